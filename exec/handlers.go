// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The ProbeChain is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the ProbeChain. If not, see <http://www.gnu.org/licenses/>.

package exec

import (
	"github.com/evochora/evochora/isa"
	"github.com/evochora/evochora/molecule"
	"github.com/evochora/evochora/organism"
	"github.com/evochora/evochora/world"
)

// opcode returns the structured id for (family, operation, variant),
// panicking on an out-of-range triple since these are compile-time
// constants of this package, not untrusted input.
func opcode(family, operation, variant int) isa.Opcode {
	op, err := isa.Compute(family, operation, variant)
	if err != nil {
		panic(err)
	}
	return op
}

// Instruction families, matching §4.4's non-exhaustive list. Family 0 is
// reserved so NOP is id 0.
const (
	familyMisc = iota
	familyArith
	familyStack
	familyControl
	familyEnv
	familyOrganism
	familyLocation
	familyCompare
)

// Build constructs the opcode registry for every instruction this runtime
// ships with (§4.4). fuzzyTolerance configures the Hamming-distance
// tolerance JMPF and CALL use to resolve their label-ref target (§4.5).
// Opcode families and variants beyond what Build defines are simply absent
// from the registry; the pipeline's "not found" path treats them as
// NotCode, matching §4.4's "the core must accept whatever is registered".
func Build(fuzzyTolerance int) *isa.Registry {
	r := isa.NewRegistry()

	r.Define(opcode(familyMisc, 0, 0), isa.Info{Name: "NOP", Size: 1, Conflict: isa.NotApplicable}, opNop)

	r.Define(opcode(familyArith, 0, 0), isa.Info{
		Name: "ADDR", Size: 4, Conflict: isa.NotApplicable,
		Operands: []isa.OperandKind{isa.OperandRegister, isa.OperandRegister, isa.OperandRegister},
	}, opAddR)

	r.Define(opcode(familyStack, 0, 0), isa.Info{
		Name: "PUSH", Size: 2, Conflict: isa.NotApplicable,
		Operands: []isa.OperandKind{isa.OperandRegister},
	}, opPush)
	r.Define(opcode(familyStack, 1, 0), isa.Info{
		Name: "POP", Size: 2, Conflict: isa.NotApplicable,
		Operands: []isa.OperandKind{isa.OperandRegister},
	}, opPop)
	r.Define(opcode(familyStack, 2, 0), isa.Info{Name: "DUP", Size: 1, Conflict: isa.NotApplicable}, opDup)
	r.Define(opcode(familyStack, 3, 0), isa.Info{Name: "SWAP", Size: 1, Conflict: isa.NotApplicable}, opSwap)

	r.Define(opcode(familyControl, 0, 0), isa.Info{
		Name: "JMP", Size: 2, Conflict: isa.NotApplicable,
		Operands: []isa.OperandKind{isa.OperandImmediate},
	}, opJmp)
	r.Define(opcode(familyControl, 1, 0), isa.Info{
		Name: "JMPF", Size: 2, Conflict: isa.NotApplicable,
		Operands: []isa.OperandKind{isa.OperandLabelRef},
	}, makeJmpf(fuzzyTolerance))
	r.Define(opcode(familyControl, 2, 0), isa.Info{
		Name: "CALL", Size: 2, Conflict: isa.NotApplicable,
		Operands:            []isa.OperandKind{isa.OperandLabelRef},
		RequiresCallBinding: true,
	}, makeCall(fuzzyTolerance))
	r.Define(opcode(familyControl, 3, 0), isa.Info{Name: "RET", Size: 1, Conflict: isa.NotApplicable}, opRet)

	r.Define(opcode(familyEnv, 0, 0), isa.Info{
		Name: "PEEK", Size: 2, Conflict: isa.SelfOnly,
		Operands: []isa.OperandKind{isa.OperandRegister},
	}, opPeek)
	r.Define(opcode(familyEnv, 1, 0), isa.Info{
		Name: "POKE", Size: 2, Conflict: isa.WorldWrite,
		Operands: []isa.OperandKind{isa.OperandRegister},
	}, opPoke)
	r.Define(opcode(familyEnv, 2, 0), isa.Info{Name: "HARVEST", Size: 1, Conflict: isa.WorldWrite}, opHarvest)

	r.Define(opcode(familyOrganism, 0, 0), isa.Info{
		Name: "FORK", Size: 2, Conflict: isa.SelfOnly,
		Operands: []isa.OperandKind{isa.OperandImmediate},
	}, opFork)
	r.Define(opcode(familyOrganism, 1, 0), isa.Info{
		Name: "SETDV", Size: 2, Conflict: isa.NotApplicable,
		Operands: []isa.OperandKind{isa.OperandRegister},
	}, opSetDV)
	r.Define(opcode(familyOrganism, 2, 0), isa.Info{
		Name: "SCAN", Size: 2, Conflict: isa.SelfOnly,
		Operands: []isa.OperandKind{isa.OperandRegister},
	}, opScan)

	r.Define(opcode(familyLocation, 0, 0), isa.Info{
		Name: "LRSET", Size: 3, Conflict: isa.NotApplicable,
		Operands: []isa.OperandKind{isa.OperandImmediate, isa.OperandRegister},
	}, opLRSet)
	r.Define(opcode(familyLocation, 1, 0), isa.Info{
		Name: "LRGET", Size: 3, Conflict: isa.NotApplicable,
		Operands: []isa.OperandKind{isa.OperandRegister, isa.OperandImmediate},
	}, opLRGet)
	r.Define(opcode(familyLocation, 2, 0), isa.Info{
		Name: "PUSHL", Size: 2, Conflict: isa.NotApplicable,
		Operands: []isa.OperandKind{isa.OperandImmediate},
	}, opPushL)
	r.Define(opcode(familyLocation, 3, 0), isa.Info{
		Name: "POPL", Size: 2, Conflict: isa.NotApplicable,
		Operands: []isa.OperandKind{isa.OperandImmediate},
	}, opPopL)

	r.Define(opcode(familyCompare, 0, 0), isa.Info{
		Name: "IFEQ", Size: 3, Conflict: isa.NotApplicable,
		Operands: []isa.OperandKind{isa.OperandRegister, isa.OperandRegister},
	}, opIfEq)

	return r
}

// IsCallOpcode reports whether m's opcode is CALL; it is the predicate
// artifact.Loader needs without importing this package's registry.
func IsCallOpcode(m molecule.Molecule) bool {
	if !m.IsCode() {
		return false
	}
	return isa.Opcode(uint16(m.Value())) == opcode(familyControl, 2, 0)
}

func opNop(ctx *isa.Context) error { return nil }

func opAddR(ctx *isa.Context) error {
	dst, a, b := int(ctx.Immediates[0]), int(ctx.Immediates[1]), int(ctx.Immediates[2])
	av, err := ctx.Org.GetDR(a)
	if err != nil {
		return err
	}
	bv, err := ctx.Org.GetDR(b)
	if err != nil {
		return err
	}
	return ctx.Org.SetDR(dst, av.Add(bv))
}

func opPush(ctx *isa.Context) error {
	src := int(ctx.Immediates[0])
	v, err := ctx.Org.GetDR(src)
	if err != nil {
		return err
	}
	return ctx.Org.PushData(v)
}

func opPop(ctx *isa.Context) error {
	dst := int(ctx.Immediates[0])
	v, err := ctx.Org.PopData()
	if err != nil {
		return err
	}
	return ctx.Org.SetDR(dst, v)
}

func opDup(ctx *isa.Context) error {
	v, err := ctx.Org.PopData()
	if err != nil {
		return err
	}
	if err := ctx.Org.PushData(v); err != nil {
		return err
	}
	return ctx.Org.PushData(v)
}

func opSwap(ctx *isa.Context) error {
	a, err := ctx.Org.PopData()
	if err != nil {
		return err
	}
	b, err := ctx.Org.PopData()
	if err != nil {
		return err
	}
	if err := ctx.Org.PushData(a); err != nil {
		return err
	}
	return ctx.Org.PushData(b)
}

func opJmp(ctx *isa.Context) error {
	offset := ctx.Immediates[0]
	next, err := ctx.World.Move(ctx.Org.IPBeforeFetch, ctx.Org.DVBeforeFetch.Scale(offset))
	if err != nil {
		return err
	}
	ctx.NewIP = next
	return nil
}

func makeJmpf(tolerance int) isa.Handler {
	return func(ctx *isa.Context) error {
		hash := uint32(ctx.Immediates[0])
		target, found := ctx.Labels.Lookup(hash, tolerance)
		if !found {
			return ErrNoLabelMatch
		}
		ctx.NewIP = target
		return nil
	}
}

func makeCall(tolerance int) isa.Handler {
	return func(ctx *isa.Context) error {
		binding, _ := ctx.Bindings.ResolveCallBinding(ctx.Org.IPBeforeFetch)

		returnIP, err := ctx.World.Move(ctx.Org.IPBeforeFetch, ctx.Org.DVBeforeFetch.Scale(int32(ctx.Info.Size)))
		if err != nil {
			return err
		}
		frame := organismFrame(ctx, returnIP, binding)
		if err := ctx.Org.PushCall(frame); err != nil {
			return err
		}

		hash := uint32(ctx.Immediates[0])
		target, found := ctx.Labels.Lookup(hash, tolerance)
		if !found {
			return ErrNoLabelMatch
		}
		ctx.NewIP = target
		return nil
	}
}

func opRet(ctx *isa.Context) error {
	frame, err := ctx.Org.PopCall()
	if err != nil {
		return err
	}
	copy(ctx.Org.PR, frame.SavedPR)
	copy(ctx.Org.FPR, frame.SavedFPR)
	ctx.NewIP = frame.ReturnIP
	ctx.NewDV = frame.ReturnDV
	return nil
}

func opPeek(ctx *isa.Context) error {
	if !ctx.HasTarget {
		return ErrTypeMismatch
	}
	dst := int(ctx.Immediates[0])
	c := make(world.Coord, len(ctx.Org.IP))
	c[0] = ctx.TargetMolecule.Value()
	return ctx.Org.SetDR(dst, c)
}

func opPoke(ctx *isa.Context) error {
	if !ctx.HasTarget {
		return ErrTypeMismatch
	}
	src := int(ctx.Immediates[0])
	v, err := ctx.Org.GetDR(src)
	if err != nil {
		return err
	}
	m, err := molecule.Pack(molecule.DATA, v[0], 0)
	if err != nil {
		return ErrTypeMismatch
	}
	ctx.StageWrite(ctx.TargetCoord, m, uint32(ctx.Org.ID))
	return nil
}

func opHarvest(ctx *isa.Context) error {
	if !ctx.HasTarget || !ctx.TargetMolecule.IsEnergy() {
		return ErrTypeMismatch
	}
	amount := ctx.TargetMolecule.Value()
	ctx.Org.AddEnergy(int64(amount))
	zero, err := molecule.Pack(molecule.ENERGY, 0, ctx.TargetMolecule.Marker())
	if err != nil {
		return err
	}
	ctx.StageWrite(ctx.TargetCoord, zero, ctx.TargetOwner)
	return nil
}

func opFork(ctx *isa.Context) error {
	permille := ctx.Immediates[0]
	dp, err := ctx.Org.ActiveDP()
	if err != nil {
		return err
	}
	ctx.Fork = &isa.ForkRequest{
		IP:          dp.Clone(),
		DV:          ctx.Org.DV.Clone(),
		EnergySplit: float64(permille) / 1000.0,
	}
	return nil
}

func opSetDV(ctx *isa.Context) error {
	idx := int(ctx.Immediates[0])
	v, err := ctx.Org.GetDR(idx)
	if err != nil {
		return err
	}
	ctx.NewDV = v.Clone()
	return nil
}

func opScan(ctx *isa.Context) error {
	dst := int(ctx.Immediates[0])
	ahead, err := ctx.World.Move(ctx.Org.IP, ctx.Org.DV)
	if err != nil {
		return err
	}
	m, _, err := ctx.World.Get(ahead)
	if err != nil {
		return err
	}
	c := make(world.Coord, len(ctx.Org.IP))
	c[0] = int32(m.Type())
	return ctx.Org.SetDR(dst, c)
}

func opLRSet(ctx *isa.Context) error {
	lrIdx, drIdx := int(ctx.Immediates[0]), int(ctx.Immediates[1])
	v, err := ctx.Org.GetDR(drIdx)
	if err != nil {
		return err
	}
	return ctx.Org.SetLR(lrIdx, v)
}

func opLRGet(ctx *isa.Context) error {
	drIdx, lrIdx := int(ctx.Immediates[0]), int(ctx.Immediates[1])
	v, err := ctx.Org.GetLR(lrIdx)
	if err != nil {
		return err
	}
	return ctx.Org.SetDR(drIdx, v)
}

func opPushL(ctx *isa.Context) error {
	lrIdx := int(ctx.Immediates[0])
	v, err := ctx.Org.GetLR(lrIdx)
	if err != nil {
		return err
	}
	return ctx.Org.PushLocation(v)
}

func opPopL(ctx *isa.Context) error {
	lrIdx := int(ctx.Immediates[0])
	v, err := ctx.Org.PopLocation()
	if err != nil {
		return err
	}
	return ctx.Org.SetLR(lrIdx, v)
}

func opIfEq(ctx *isa.Context) error {
	a, err := ctx.Org.GetDR(int(ctx.Immediates[0]))
	if err != nil {
		return err
	}
	b, err := ctx.Org.GetDR(int(ctx.Immediates[1]))
	if err != nil {
		return err
	}
	mult := int32(1)
	if !a.Equal(b) {
		mult = 2
	}
	next, err := ctx.World.Move(ctx.Org.IPBeforeFetch, ctx.Org.DVBeforeFetch.Scale(int32(ctx.Info.Size)*mult))
	if err != nil {
		return err
	}
	ctx.NewIP = next
	return nil
}

// organismFrame builds a Frame for CALL, snapshotting PR/FPR so RET can
// restore them.
func organismFrame(ctx *isa.Context, returnIP world.Coord, binding []int) organism.Frame {
	return organism.Frame{
		ReturnIP: returnIP,
		ReturnDV: ctx.Org.DVBeforeFetch.Clone(),
		SavedPR:  cloneCoords(ctx.Org.PR),
		SavedFPR: cloneCoords(ctx.Org.FPR),
		Bindings: binding,
	}
}

func cloneCoords(cs []world.Coord) []world.Coord {
	out := make([]world.Coord, len(cs))
	for i, c := range cs {
		out[i] = c.Clone()
	}
	return out
}
