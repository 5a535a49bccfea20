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

// Package organism holds the per-organism execution state described in
// spec §3/§4.3: registers, stacks, pointers, thermodynamic budget and
// failure bookkeeping. It is pure data with bounds-checked accessors; it
// never touches the world or the instruction set directly.
package organism

import (
	"errors"

	"github.com/google/uuid"

	"github.com/evochora/evochora/world"
)

// Errors returned by register and stack accessors. These are instruction
// failure kinds (§7); the exec pipeline translates them into
// instruction_failed + failure_reason on the organism.
var (
	ErrBadRegister     = errors.New("organism: bad register index")
	ErrStackUnderflow  = errors.New("organism: stack underflow")
	ErrStackOverflow   = errors.New("organism: stack overflow")
	ErrBadPointerIndex = errors.New("organism: bad data-pointer index")
)

// Frame is a procedure-call-stack entry: everything needed to return from a
// CALL and the formal-to-actual binding table resolved at call time.
type Frame struct {
	ReturnIP world.Coord
	ReturnDV world.Coord
	SavedPR  []world.Coord
	SavedFPR []world.Coord
	Bindings []int // formal register index -> actual register id
}

// Clone returns a deep copy of f, used when snapshotting the failure call
// stack (§4.3) so later mutation of the live call stack cannot retroactively
// change a recorded failure.
func (f Frame) Clone() Frame {
	out := Frame{
		ReturnIP: f.ReturnIP.Clone(),
		ReturnDV: f.ReturnDV.Clone(),
		SavedPR:  make([]world.Coord, len(f.SavedPR)),
		SavedFPR: make([]world.Coord, len(f.SavedFPR)),
		Bindings: append([]int(nil), f.Bindings...),
	}
	for i, c := range f.SavedPR {
		out.SavedPR[i] = c.Clone()
	}
	for i, c := range f.SavedFPR {
		out.SavedFPR[i] = c.Clone()
	}
	return out
}

// RegisterCounts configures the arity of each coordinate-valued register
// file, per the artifact/engine configuration (§6).
type RegisterCounts struct {
	DR int // data registers
	PR int // procedure registers
	FPR int // formal-parameter registers
	LR int // location registers
}

// Limits bounds the saturating thermodynamic registers and stack depths.
type Limits struct {
	MaxEnergy      int64
	MaxEntropy     int64
	MaxStackDepth  int
	MaxDataPointer int
}

// Organism is the full per-organism execution state (§3).
type Organism struct {
	ID        int64
	ParentID  *int64
	BirthTick uint64
	ProgramID uuid.UUID

	IP, DV                     world.Coord
	IPBeforeFetch, DVBeforeFetch world.Coord

	DataPointers  []world.Coord
	ActiveDPIndex int

	DR, PR, FPR, LR []world.Coord

	DataStack     []world.Coord
	CallStack     []Frame
	LocationStack []world.Coord

	ER int64 // energy register, saturating [0, MaxEnergy]
	SR int64 // entropy register, saturating [0, MaxEntropy]
	MR uint8 // molecule marker register

	InstructionFailed bool
	FailureReason     string
	FailureCallStack  []Frame

	limits Limits
}

// New creates an organism with the given register arities, starting IP/DV,
// initial energy and thermodynamic/stack limits. parentID is nil for
// initial-seeded organisms.
func New(id int64, parentID *int64, birthTick uint64, programID uuid.UUID, ip, dv world.Coord, initialEnergy int64, counts RegisterCounts, limits Limits) *Organism {
	o := &Organism{
		ID:            id,
		ParentID:      parentID,
		BirthTick:     birthTick,
		ProgramID:     programID,
		IP:            ip.Clone(),
		DV:            dv.Clone(),
		DataPointers:  []world.Coord{ip.Clone()},
		ActiveDPIndex: 0,
		DR:            make([]world.Coord, counts.DR),
		PR:            make([]world.Coord, counts.PR),
		FPR:           make([]world.Coord, counts.FPR),
		LR:            make([]world.Coord, counts.LR),
		limits:        limits,
	}
	o.ER = clamp(initialEnergy, 0, limits.MaxEnergy)
	zero := make(world.Coord, len(ip))
	for i := range o.DR {
		o.DR[i] = zero.Clone()
	}
	for i := range o.PR {
		o.PR[i] = zero.Clone()
	}
	for i := range o.FPR {
		o.FPR[i] = zero.Clone()
	}
	for i := range o.LR {
		o.LR[i] = zero.Clone()
	}
	return o
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Alive reports whether the organism still has energy to pay for its next
// instruction; ER reaching 0 retires it at the end of the tick (§4.3, §4.8).
func (o *Organism) Alive() bool { return o.ER > 0 }

// CanAfford reports whether the organism's current ER covers cost.
func (o *Organism) CanAfford(cost int64) bool { return o.ER >= cost }

// PayEnergy deducts cost from ER. The caller must have already verified
// CanAfford; ER is clamped to 0 defensively.
func (o *Organism) PayEnergy(cost int64) {
	o.ER = clamp(o.ER-cost, 0, o.limits.MaxEnergy)
}

// PayEnergyCapped deducts up to cost from ER, capped at the organism's
// current balance, and returns the amount actually paid (§4.5 step 5: the
// error penalty is capped at current ER).
func (o *Organism) PayEnergyCapped(cost int64) int64 {
	paid := cost
	if paid > o.ER {
		paid = o.ER
	}
	o.ER -= paid
	return paid
}

// RefundEnergy restores cost to ER, saturating at MaxEnergy (§4.8 Phase C:
// a losing writer's cost is refunded).
func (o *Organism) RefundEnergy(cost int64) {
	o.ER = clamp(o.ER+cost, 0, o.limits.MaxEnergy)
}

// AddEnergy increases ER by n, saturating at MaxEnergy (e.g. HARVEST).
func (o *Organism) AddEnergy(n int64) {
	o.ER = clamp(o.ER+n, 0, o.limits.MaxEnergy)
}

// AddEntropy increases SR by n, saturating at MaxEntropy.
func (o *Organism) AddEntropy(n int64) {
	o.SR = clamp(o.SR+n, 0, o.limits.MaxEntropy)
}

// RevertEntropy removes a previously applied entropy delta (e.g. on
// WriteConflict refund), saturating at 0.
func (o *Organism) RevertEntropy(n int64) {
	o.SR = clamp(o.SR-n, 0, o.limits.MaxEntropy)
}

// Limits returns the organism's configured thermodynamic/stack bounds.
func (o *Organism) Limits() Limits { return o.limits }

// getReg is the shared bounds-checked accessor for the four coordinate
// register files.
func getReg(regs []world.Coord, idx int) (world.Coord, error) {
	if idx < 0 || idx >= len(regs) {
		return nil, ErrBadRegister
	}
	return regs[idx], nil
}

func setReg(regs []world.Coord, idx int, v world.Coord) error {
	if idx < 0 || idx >= len(regs) {
		return ErrBadRegister
	}
	regs[idx] = v.Clone()
	return nil
}

func (o *Organism) GetDR(idx int) (world.Coord, error)  { return getReg(o.DR, idx) }
func (o *Organism) SetDR(idx int, v world.Coord) error   { return setReg(o.DR, idx, v) }
func (o *Organism) GetPR(idx int) (world.Coord, error)  { return getReg(o.PR, idx) }
func (o *Organism) SetPR(idx int, v world.Coord) error   { return setReg(o.PR, idx, v) }
func (o *Organism) GetFPR(idx int) (world.Coord, error) { return getReg(o.FPR, idx) }
func (o *Organism) SetFPR(idx int, v world.Coord) error  { return setReg(o.FPR, idx, v) }
func (o *Organism) GetLR(idx int) (world.Coord, error)  { return getReg(o.LR, idx) }
func (o *Organism) SetLR(idx int, v world.Coord) error   { return setReg(o.LR, idx, v) }

// ActiveDP returns the currently active data pointer.
func (o *Organism) ActiveDP() (world.Coord, error) {
	return getReg(o.DataPointers, o.ActiveDPIndex)
}

// SetActiveDPIndex switches the active data pointer, bounds-checked against
// the declared number of data pointers.
func (o *Organism) SetActiveDPIndex(idx int) error {
	if idx < 0 || idx >= len(o.DataPointers) {
		return ErrBadPointerIndex
	}
	o.ActiveDPIndex = idx
	return nil
}

// PushData pushes c onto the data stack, failing with ErrStackOverflow at
// the configured bound.
func (o *Organism) PushData(c world.Coord) error {
	if len(o.DataStack) >= o.limits.MaxStackDepth {
		return ErrStackOverflow
	}
	o.DataStack = append(o.DataStack, c.Clone())
	return nil
}

// PopData pops the top of the data stack, failing with ErrStackUnderflow if
// empty.
func (o *Organism) PopData() (world.Coord, error) {
	if len(o.DataStack) == 0 {
		return nil, ErrStackUnderflow
	}
	top := o.DataStack[len(o.DataStack)-1]
	o.DataStack = o.DataStack[:len(o.DataStack)-1]
	return top, nil
}

// PushCall pushes a procedure frame onto the call stack.
func (o *Organism) PushCall(f Frame) error {
	if len(o.CallStack) >= o.limits.MaxStackDepth {
		return ErrStackOverflow
	}
	o.CallStack = append(o.CallStack, f)
	return nil
}

// PopCall pops the top procedure frame, failing with ErrStackUnderflow if
// empty.
func (o *Organism) PopCall() (Frame, error) {
	if len(o.CallStack) == 0 {
		return Frame{}, ErrStackUnderflow
	}
	top := o.CallStack[len(o.CallStack)-1]
	o.CallStack = o.CallStack[:len(o.CallStack)-1]
	return top, nil
}

// PushLocation pushes c onto the location stack.
func (o *Organism) PushLocation(c world.Coord) error {
	if len(o.LocationStack) >= o.limits.MaxStackDepth {
		return ErrStackOverflow
	}
	o.LocationStack = append(o.LocationStack, c.Clone())
	return nil
}

// PopLocation pops the top of the location stack, failing with
// ErrStackUnderflow if empty.
func (o *Organism) PopLocation() (world.Coord, error) {
	if len(o.LocationStack) == 0 {
		return nil, ErrStackUnderflow
	}
	top := o.LocationStack[len(o.LocationStack)-1]
	o.LocationStack = o.LocationStack[:len(o.LocationStack)-1]
	return top, nil
}

// Fail records an instruction failure: sets the flag, the reason, deducts
// the error penalty (capped at current ER) and snapshots the call stack (§4.5
// step 8). IP advance still happens in the caller.
func (o *Organism) Fail(reason string, errorPenaltyCost int64) {
	o.InstructionFailed = true
	o.FailureReason = reason
	o.FailureCallStack = make([]Frame, len(o.CallStack))
	for i, f := range o.CallStack {
		o.FailureCallStack[i] = f.Clone()
	}
	o.PayEnergyCapped(errorPenaltyCost)
}

// ClearFailure resets the failure bookkeeping. The pipeline calls it at the
// start of every instruction, so the flags stay clear only if that
// instruction succeeds (§3: "cleared on next successful instruction").
func (o *Organism) ClearFailure() {
	o.InstructionFailed = false
	o.FailureReason = ""
	o.FailureCallStack = nil
}
