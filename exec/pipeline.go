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

// Package exec implements the per-opcode effect functions and the ordered
// eight-step instruction pipeline described in §4.5: fetch, decode, resolve
// bindings, cost query, affordability, effect, IP advance and failure
// handling.
package exec

import (
	"github.com/evochora/evochora/isa"
	"github.com/evochora/evochora/organism"
	"github.com/evochora/evochora/thermo"
	"github.com/evochora/evochora/world"
)

// Pipeline drives one organism through one instruction. It holds no
// per-organism state; the same Pipeline is shared, read-only, across every
// worker in the tick engine (§5).
type Pipeline struct {
	Registry         *isa.Registry
	Policy           thermo.Policy
	ErrorPenaltyCost int64
}

// NewPipeline builds a Pipeline around a registry produced by Build.
func NewPipeline(registry *isa.Registry, policy thermo.Policy, errorPenaltyCost int64) *Pipeline {
	return &Pipeline{Registry: registry, Policy: policy, ErrorPenaltyCost: errorPenaltyCost}
}

// Step runs the full §4.5 pipeline for org's next instruction. It returns
// the writes staged by a successful effect (nil on any failure, per step 8),
// a fork request if the instruction was FORK and succeeded, and the budget
// actually paid. Register/stack/ER/SR/IP/DV updates are applied directly
// rather than buffered, since §5 guarantees each organism is touched by
// exactly one worker per tick; the returned budget lets Phase C's conflict
// resolution (engine package) exactly undo the energy/entropy cost of a
// write that ultimately loses (§4.8 Phase C).
func (p *Pipeline) Step(org *organism.Organism, w *world.World, labels *world.LabelIndex, bindings isa.BindingResolver, tick uint64) ([]isa.WriteRecord, *isa.ForkRequest, thermo.Budget) {
	org.ClearFailure()

	// Step 1: fetch.
	m, _, err := w.Get(org.IP)
	if err != nil {
		org.IPBeforeFetch = org.IP.Clone()
		org.DVBeforeFetch = org.DV.Clone()
		org.Fail("OutOfBounds", p.ErrorPenaltyCost)
		return nil, nil, thermo.Budget{}
	}
	org.IPBeforeFetch = org.IP.Clone()
	org.DVBeforeFetch = org.DV.Clone()

	if !m.IsCode() {
		org.Fail("NotCode", p.ErrorPenaltyCost)
		p.advanceDefault(org, w, 1)
		return nil, nil, thermo.Budget{}
	}

	opcode := isa.Opcode(uint16(m.Value()))
	info, handler, ok := p.Registry.Lookup(opcode)
	if !ok {
		org.Fail("NotCode", p.ErrorPenaltyCost)
		p.advanceDefault(org, w, 1)
		return nil, nil, thermo.Budget{}
	}

	ctx := &isa.Context{
		Org:      org,
		World:    w,
		Labels:   labels,
		Bindings: bindings,
		Tick:     tick,
		Opcode:   opcode,
		Info:     info,
	}

	// Step 2: decode.
	if err := p.decode(ctx, org, w, info); err != nil {
		org.Fail(failureKind(err), p.ErrorPenaltyCost)
		p.advanceDefault(org, w, info.Size)
		return nil, nil, thermo.Budget{}
	}

	// Step 3: resolve call bindings (CALL only).
	if info.RequiresCallBinding {
		if bindings == nil {
			org.Fail("BindingMissing", p.ErrorPenaltyCost)
			p.advanceDefault(org, w, info.Size)
			return nil, nil, thermo.Budget{}
		}
		if _, found := bindings.ResolveCallBinding(org.IPBeforeFetch); !found {
			org.Fail("BindingMissing", p.ErrorPenaltyCost)
			p.advanceDefault(org, w, info.Size)
			return nil, nil, thermo.Budget{}
		}
	}

	p.resolveTarget(ctx, org, w)

	// Step 4: cost query.
	budget := p.Policy.Cost(buildCostContext(ctx, info))

	// Step 5: affordability.
	if !org.CanAfford(budget.Energy) {
		org.Fail("InsufficientEnergy", p.ErrorPenaltyCost)
		p.advanceDefault(org, w, info.Size)
		return nil, nil, thermo.Budget{}
	}

	// Step 6: effect.
	if err := handler(ctx); err != nil {
		org.Fail(failureKind(err), p.ErrorPenaltyCost)
		p.advanceDefault(org, w, info.Size)
		return nil, nil, thermo.Budget{}
	}

	org.PayEnergy(budget.Energy)
	org.AddEntropy(budget.Entropy)

	// Step 7: IP advance; a control instruction may have overwritten it.
	if ctx.NewIP != nil {
		org.IP = ctx.NewIP
	} else {
		p.advanceDefault(org, w, info.Size)
	}
	if ctx.NewDV != nil {
		org.DV = ctx.NewDV
	}

	return ctx.Writes, ctx.Fork, budget
}

// advanceDefault applies IP += DV_before_fetch * size, respecting topology.
// If the advance itself runs off a BOUNDED world, the organism is left at
// ip_before_fetch (preserving the "IP always inside the world" invariant)
// and the instruction is marked failed, unless it already failed for a more
// specific reason.
func (p *Pipeline) advanceDefault(org *organism.Organism, w *world.World, size int) {
	delta := org.DVBeforeFetch.Scale(int32(size))
	next, err := w.Move(org.IPBeforeFetch, delta)
	if err != nil {
		if !org.InstructionFailed {
			org.Fail("OutOfBounds", p.ErrorPenaltyCost)
		}
		org.IP = org.IPBeforeFetch.Clone()
		return
	}
	org.IP = next
}

// resolveTarget populates the context's target-cell fields from the
// organism's active data pointer, for every instruction that isn't tagged
// NOT_APPLICABLE (§4.4). SELF_ONLY instructions that read a cell (e.g.
// PEEK) still need a resolved target for thermodynamic costing even though
// they never enter conflict resolution.
func (p *Pipeline) resolveTarget(ctx *isa.Context, org *organism.Organism, w *world.World) {
	if ctx.Info.Conflict == isa.NotApplicable {
		return
	}
	dp, err := org.ActiveDP()
	if err != nil {
		return
	}
	m, owner, err := w.Get(dp)
	if err != nil {
		return
	}
	ctx.HasTarget = true
	ctx.TargetCoord = dp
	ctx.TargetMolecule = m
	ctx.TargetOwner = owner
}

func buildCostContext(ctx *isa.Context, info isa.Info) thermo.CostContext {
	cc := thermo.CostContext{
		InstructionName: info.Name,
		Org:             ctx.Org,
		IsWrite:         info.Conflict == isa.WorldWrite,
	}
	if !ctx.HasTarget {
		return cc
	}
	cc.HasTarget = true
	cc.TargetType = ctx.TargetMolecule.Type()
	cc.TargetValue = ctx.TargetMolecule.Value()
	if !cc.IsWrite {
		switch {
		case ctx.TargetOwner == 0:
			cc.Relation = thermo.Unowned
		case int64(ctx.TargetOwner) == ctx.Org.ID:
			cc.Relation = thermo.Own
		default:
			cc.Relation = thermo.Foreign
		}
	}
	return cc
}
