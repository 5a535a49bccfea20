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

package isa

import (
	"github.com/evochora/evochora/molecule"
	"github.com/evochora/evochora/organism"
	"github.com/evochora/evochora/world"
)

// WriteRecord is a staged world write produced by an instruction's effect.
// It is not applied to the world directly; the engine's commit phase (§4.8
// Phase D) is the only writer.
type WriteRecord struct {
	Coord    world.Coord
	Molecule molecule.Molecule
	Owner    uint32
}

// ForkRequest is staged by the FORK handler and read by the engine after a
// successful effect to schedule a new organism on the next tick (§4.5).
type ForkRequest struct {
	IP, DV      world.Coord
	EnergySplit float64
}

// BindingResolver looks up the call-binding table for a CALL site by its
// absolute coordinate (§4.5 step 3, §4.7). It is satisfied by
// *artifact.Artifact without isa importing package artifact.
type BindingResolver interface {
	ResolveCallBinding(coord world.Coord) ([]int, bool)
}

// Context carries everything a Handler needs to compute one instruction's
// staged effect: decoded operands, the acting organism, read-only world and
// label-index access, and the write/fork staging areas the engine drains
// after the call.
type Context struct {
	Org      *organism.Organism
	World    *world.World
	Labels   *world.LabelIndex
	Bindings BindingResolver
	Tick     uint64

	Opcode Opcode
	Info   Info

	// Immediates holds the decoded payload of every operand cell (register
	// operands decode to their register index), and OperandCells the world coordinate each operand was fetched
	// from (fetch/decode, §4.5 steps 1-2).
	Immediates   []int32
	OperandCells []world.Coord

	HasTarget      bool
	TargetCoord    world.Coord
	TargetMolecule molecule.Molecule
	TargetOwner    uint32

	// NewIP/NewDV let a control instruction override the default IP
	// advance (§4.5 step 7); nil means "apply the default".
	NewIP, NewDV world.Coord

	Writes []WriteRecord
	Fork   *ForkRequest
}

// StageWrite appends a pending world write; it does not touch the world
// itself (§4.5 step 6, §5: writes are read-only during phase B).
func (c *Context) StageWrite(coord world.Coord, m molecule.Molecule, owner uint32) {
	c.Writes = append(c.Writes, WriteRecord{Coord: coord.Clone(), Molecule: m, Owner: owner})
}

// Handler computes one instruction's effect: register/stack mutation on
// Org, staged writes via Context.StageWrite, and optionally NewIP/NewDV or
// Fork. A returned error is an instruction-failure kind (§7); the pipeline
// (package exec) translates it into organism.Fail.
type Handler func(ctx *Context) error

type registryEntry struct {
	info    Info
	handler Handler
}

// Registry is the opcode dispatch table (§4.4): opcode id -> (metadata,
// semantic function). It is built once at startup by package exec and
// consulted read-only thereafter.
type Registry struct {
	entries map[Opcode]registryEntry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Opcode]registryEntry)}
}

// Define registers an opcode's metadata and handler. Redefining an existing
// opcode overwrites it.
func (r *Registry) Define(op Opcode, info Info, h Handler) {
	r.entries[op] = registryEntry{info: info, handler: h}
}

// Lookup returns the metadata and handler for op, or ok=false if nothing is
// registered at that id.
func (r *Registry) Lookup(op Opcode) (Info, Handler, bool) {
	e, ok := r.entries[op]
	return e.info, e.handler, ok
}

// Len reports the number of defined opcodes.
func (r *Registry) Len() int { return len(r.entries) }
