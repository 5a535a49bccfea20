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

// Package artifact implements the frozen compiler-output record (§3, §6)
// and the loader that validates it, places its molecules into a fresh
// World, and builds the call-binding registry and label index (§4.7).
package artifact

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/evochora/evochora/isa"
	"github.com/evochora/evochora/molecule"
	"github.com/evochora/evochora/world"
)

// Artifact validation failures (§7): the simulation does not start.
var (
	ErrInvalidPlacement       = errors.New("artifact: invalid placement")
	ErrBindingRefersToNonCall = errors.New("artifact: call binding does not refer to a CALL cell")
)

// Meta mirrors the external artifact format's meta block (§6).
type Meta struct {
	Shape    []int32
	Topology world.Topology
}

// LabelEntry is a resolved label: its coordinate and its derived 19-bit
// hash.
type LabelEntry struct {
	Coord world.Coord
	Hash  uint32
}

// InitialOrganism is one entry of the artifact's initial-organism seed list.
type InitialOrganism struct {
	Coord, DV world.Coord
	Energy    int64
	ProgramID uuid.UUID
}

// Artifact is the frozen, validated record a Loader produces: everything
// the engine needs to seed a simulation (§3, §4.7).
type Artifact struct {
	ID               uuid.UUID
	Meta             Meta
	Placements       map[int32]molecule.Molecule // keyed by flattened coordinate index
	Labels           map[string]LabelEntry
	CallBindings     map[int32][]int // keyed by flattened CALL-site coordinate index
	InitialOrganisms []InitialOrganism
}

// ResolveCallBinding satisfies isa.BindingResolver: it looks up the binding
// table for a CALL site by absolute coordinate (§4.5 step 3). Runtime
// introspection of the artifact beyond this lookup is forbidden (§9); a
// miss is a hard failure, not a cue to re-parse anything.
func (a *Artifact) ResolveCallBinding(coord world.Coord) ([]int, bool) {
	idx, err := world.Flatten(a.Meta.Shape, coord)
	if err != nil {
		return nil, false
	}
	b, ok := a.CallBindings[idx]
	return b, ok
}

var _ isa.BindingResolver = (*Artifact)(nil)

// RawPlacement is one unvalidated (coordinate, molecule) entry as received
// from the external compiler.
type RawPlacement struct {
	Coord  world.Coord
	Type   molecule.Type
	Value  int32
	Marker uint8
}

// RawLabel is one unvalidated label entry.
type RawLabel struct {
	Name  string
	Coord world.Coord
}

// RawCallBinding is one unvalidated call-binding entry.
type RawCallBinding struct {
	Coord     world.Coord
	Registers []int
}

// RawArtifact is the external, untrusted artifact format (§6) before
// loading.
type RawArtifact struct {
	Shape            []int32
	Topology         world.Topology
	Placements       []RawPlacement
	Labels           []RawLabel
	CallBindings     []RawCallBinding
	InitialOrganisms []InitialOrganism
}

// Loader validates and loads a RawArtifact (§4.7).
type Loader struct {
	// IsCallOpcode reports whether a CODE molecule's opcode is CALL. It is
	// supplied by the caller (which owns an isa.Registry) rather than
	// imported here, so package artifact never depends on the concrete
	// instruction set.
	IsCallOpcode func(m molecule.Molecule) bool
}

// NewLoader returns a Loader that uses isCallOpcode to validate call
// bindings.
func NewLoader(isCallOpcode func(m molecule.Molecule) bool) *Loader {
	return &Loader{IsCallOpcode: isCallOpcode}
}

// Load validates raw, places its molecules into a freshly allocated World,
// and returns the frozen Artifact plus the populated World and label index.
func (l *Loader) Load(raw RawArtifact) (*Artifact, *world.World, *world.LabelIndex, error) {
	w, err := world.New(raw.Shape, raw.Topology)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrInvalidPlacement, err)
	}

	packed := make([]molecule.Molecule, len(raw.Placements))
	g := new(errgroup.Group)
	for i := range raw.Placements {
		i := i
		g.Go(func() error {
			p := raw.Placements[i]
			if _, err := world.Flatten(raw.Shape, p.Coord); err != nil {
				return fmt.Errorf("%w: placement %d at %v: %v", ErrInvalidPlacement, i, p.Coord, err)
			}
			m, err := molecule.Pack(p.Type, p.Value, p.Marker)
			if err != nil {
				return fmt.Errorf("%w: placement %d at %v: %v", molecule.ErrInvalidMolecule, i, p.Coord, err)
			}
			packed[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}

	placements := make(map[int32]molecule.Molecule, len(raw.Placements))
	for i, p := range raw.Placements {
		idx, _ := world.Flatten(raw.Shape, p.Coord)
		placements[idx] = packed[i]
		if err := w.Set(p.Coord, packed[i], 0); err != nil {
			return nil, nil, nil, fmt.Errorf("%w: placement %d at %v: %v", ErrInvalidPlacement, i, p.Coord, err)
		}
	}

	labelIndex := world.NewLabelIndex(world.DefaultLabelCacheSize)
	labels := make(map[string]LabelEntry, len(raw.Labels))
	for _, lbl := range raw.Labels {
		if _, err := world.Flatten(raw.Shape, lbl.Coord); err != nil {
			return nil, nil, nil, fmt.Errorf("%w: label %q at %v: %v", ErrInvalidPlacement, lbl.Name, lbl.Coord, err)
		}
		hash := isa.LabelHash(lbl.Name)
		labels[lbl.Name] = LabelEntry{Coord: lbl.Coord.Clone(), Hash: hash}
		labelIndex.Add(hash, lbl.Coord)
	}

	callBindings := make(map[int32][]int, len(raw.CallBindings))
	for _, cb := range raw.CallBindings {
		idx, err := world.Flatten(raw.Shape, cb.Coord)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("%w: binding at %v: %v", ErrInvalidPlacement, cb.Coord, err)
		}
		m, _, _ := w.Get(cb.Coord)
		if l.IsCallOpcode == nil || !l.IsCallOpcode(m) {
			return nil, nil, nil, fmt.Errorf("%w: coord %v", ErrBindingRefersToNonCall, cb.Coord)
		}
		callBindings[idx] = append([]int(nil), cb.Registers...)
	}

	for i, io := range raw.InitialOrganisms {
		if _, err := world.Flatten(raw.Shape, io.Coord); err != nil {
			return nil, nil, nil, fmt.Errorf("%w: initial organism %d at %v: %v", ErrInvalidPlacement, i, io.Coord, err)
		}
	}

	art := &Artifact{
		ID:               Hash(raw),
		Meta:             Meta{Shape: append([]int32(nil), raw.Shape...), Topology: raw.Topology},
		Placements:       placements,
		Labels:           labels,
		CallBindings:     callBindings,
		InitialOrganisms: append([]InitialOrganism(nil), raw.InitialOrganisms...),
	}
	return art, w, labelIndex, nil
}
