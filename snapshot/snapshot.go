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

// Package snapshot builds the immutable per-tick view the engine hands to
// an external sink (§4.9): either a full cell image or the cells changed
// since the previous emitted snapshot, plus the per-organism runtime view.
package snapshot

import (
	"bytes"
	"encoding/binary"

	"github.com/golang/snappy"

	"github.com/evochora/evochora/molecule"
	"github.com/evochora/evochora/organism"
	"github.com/evochora/evochora/world"
)

// CellChange records one cell whose content changed since the previous
// snapshot.
type CellChange struct {
	Coord    world.Coord
	Molecule molecule.Molecule
	Owner    uint32
}

// OrganismView is the per-organism runtime state a snapshot exposes: ER/SR,
// IP/DV, every register file, the data and location stacks, and the last
// instruction's failure flag and reason. The call stack is exposed only as
// its depth (CallDepth); its frames and the failure call-stack snapshot are
// not copied.
type OrganismView struct {
	ID                int64
	ParentID          *int64
	BirthTick         uint64
	IP, DV            world.Coord
	DR, PR, FPR, LR   []world.Coord
	DataStack         []world.Coord
	LocationStack     []world.Coord
	CallDepth         int
	ER, SR            int64
	InstructionFailed bool
	FailureReason     string
}

// ViewOrganism copies the fields of o a snapshot needs to carry, independent
// of the organism's own mutable backing slices.
func ViewOrganism(o *organism.Organism) OrganismView {
	return OrganismView{
		ID:                o.ID,
		ParentID:          o.ParentID,
		BirthTick:         o.BirthTick,
		IP:                o.IP.Clone(),
		DV:                o.DV.Clone(),
		DR:                cloneCoords(o.DR),
		PR:                cloneCoords(o.PR),
		FPR:               cloneCoords(o.FPR),
		LR:                cloneCoords(o.LR),
		DataStack:         cloneCoords(o.DataStack),
		LocationStack:     cloneCoords(o.LocationStack),
		CallDepth:         len(o.CallStack),
		ER:                o.ER,
		SR:                o.SR,
		InstructionFailed: o.InstructionFailed,
		FailureReason:     o.FailureReason,
	}
}

func cloneCoords(cs []world.Coord) []world.Coord {
	out := make([]world.Coord, len(cs))
	for i, c := range cs {
		out[i] = c.Clone()
	}
	return out
}

// TickSnapshot is the immutable record emitted at the end of a tick (§4.9).
// Exactly one of FullCells or CellsChanged is populated, selected by
// whether this tick lands on the accumulated-delta interval.
type TickSnapshot struct {
	Tick     uint64
	RNGState uint64

	// FullCells holds every live cell, snappy-compressed, on ticks that
	// land on the accumulated-delta interval; nil otherwise.
	FullCells []byte
	// CellsChanged holds only the cells that changed since the previous
	// snapshot; nil on a full-image tick.
	CellsChanged []CellChange

	Organisms []OrganismView
}

// Sink receives emitted snapshots. It must not block the caller (§6); a
// sink that needs to do slow work should buffer internally.
type Sink interface {
	Emit(snap TickSnapshot)
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(snap TickSnapshot)

func (f SinkFunc) Emit(snap TickSnapshot) { f(snap) }

// EncodeFullImage serializes every cell of w into a snappy-compressed byte
// slice: a flat sequence of (molecule uint32, owner uint32) pairs in
// flattened-index order.
func EncodeFullImage(w *world.World) []byte {
	var buf bytes.Buffer
	shape := w.Shape()
	volume := w.Volume()
	var coord world.Coord
	for idx := int32(0); idx < volume; idx++ {
		coord = world.Unflatten(shape, idx)
		m, owner, err := w.Get(coord)
		if err != nil {
			continue
		}
		var rec [8]byte
		binary.LittleEndian.PutUint32(rec[0:4], uint32(m))
		binary.LittleEndian.PutUint32(rec[4:8], owner)
		buf.Write(rec[:])
	}
	return snappy.Encode(nil, buf.Bytes())
}

// DecodeFullImage is the inverse of EncodeFullImage, used by sinks that
// need to reconstruct a full cell grid from a compressed payload.
func DecodeFullImage(shape []int32, compressed []byte) ([]CellChange, error) {
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, err
	}
	n := len(raw) / 8
	out := make([]CellChange, 0, n)
	for i := 0; i < n; i++ {
		rec := raw[i*8 : i*8+8]
		m := molecule.Molecule(binary.LittleEndian.Uint32(rec[0:4]))
		owner := binary.LittleEndian.Uint32(rec[4:8])
		if m == 0 && owner == 0 {
			continue
		}
		out = append(out, CellChange{
			Coord:    world.Unflatten(shape, int32(i)),
			Molecule: m,
			Owner:    owner,
		})
	}
	return out, nil
}

// Scheduler decides, per tick, whether to emit at all (sampling_interval)
// and whether the emitted snapshot should carry a full image
// (accumulated_delta_interval), per §4.9/§6.
type Scheduler struct {
	SamplingInterval         int
	AccumulatedDeltaInterval int
}

// ShouldEmit reports whether tick lands on the sampling interval.
func (s Scheduler) ShouldEmit(tick uint64) bool {
	interval := s.SamplingInterval
	if interval < 1 {
		interval = 1
	}
	return tick%uint64(interval) == 0
}

// ShouldEmitFullImage reports whether tick, given it is already emitting,
// should carry a full cell image rather than a delta.
func (s Scheduler) ShouldEmitFullImage(tick uint64) bool {
	interval := s.AccumulatedDeltaInterval
	if interval < 1 {
		interval = 1
	}
	return tick%uint64(interval) == 0
}
