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

// Package world implements the n-dimensional molecule grid: shape, topology,
// flat storage, neighborhood and coordinate movement.
package world

import (
	"errors"
	"fmt"

	"github.com/evochora/evochora/molecule"
)

// Topology controls how Move behaves at the edges of the grid.
type Topology uint8

const (
	Torus Topology = iota
	Bounded
)

func (t Topology) String() string {
	if t == Torus {
		return "TORUS"
	}
	return "BOUNDED"
}

// Coord is a point in the n-dimensional lattice. Its length must equal the
// World's dimensionality everywhere it is used.
type Coord []int32

// Clone returns an independent copy of c.
func (c Coord) Clone() Coord {
	out := make(Coord, len(c))
	copy(out, c)
	return out
}

// Add returns c + delta component-wise; it does not wrap or bounds-check.
func (c Coord) Add(delta Coord) Coord {
	out := make(Coord, len(c))
	for i := range c {
		out[i] = c[i] + delta[i]
	}
	return out
}

// Scale returns c scaled component-wise by n; used to project a direction
// vector forward by a step count (fetch offsets, IP advance).
func (c Coord) Scale(n int32) Coord {
	out := make(Coord, len(c))
	for i := range c {
		out[i] = c[i] * n
	}
	return out
}

// Equal reports whether c and other name the same point.
func (c Coord) Equal(other Coord) bool {
	if len(c) != len(other) {
		return false
	}
	for i := range c {
		if c[i] != other[i] {
			return false
		}
	}
	return true
}

// Less gives a total (lexicographic) order over coordinates, used to
// tie-break fuzzy-jump resolution.
func (c Coord) Less(other Coord) bool {
	for i := 0; i < len(c) && i < len(other); i++ {
		if c[i] != other[i] {
			return c[i] < other[i]
		}
	}
	return len(c) < len(other)
}

var (
	// ErrOutOfBounds is returned by Move under BOUNDED topology and by Get/Set
	// for any coordinate outside the configured shape.
	ErrOutOfBounds = errors.New("world: out of bounds")
	// ErrDimensionMismatch is returned when a coordinate's length does not
	// match the world's configured dimensionality.
	ErrDimensionMismatch = errors.New("world: dimension mismatch")
)

// cell is the flat, packed representation of one grid position: the packed
// molecule bits plus its owner id (0 = unowned).
type cell struct {
	molecule uint32
	owner    uint32
}

// World is the n-dimensional molecule grid described in §3/§4.2. The zero
// value is not usable; use New.
type World struct {
	shape    []int32
	strides  []int32
	volume   int32
	topology Topology
	cells    []cell
}

// New allocates a World of the given shape and topology. Every dimension must
// be positive.
func New(shape []int32, topology Topology) (*World, error) {
	if len(shape) == 0 {
		return nil, fmt.Errorf("world: shape must have at least one dimension")
	}
	volume := int32(1)
	strides := make([]int32, len(shape))
	for i, d := range shape {
		if d <= 0 {
			return nil, fmt.Errorf("world: dimension %d has non-positive size %d", i, d)
		}
		strides[i] = volume
		volume *= d
	}
	return &World{
		shape:    append([]int32(nil), shape...),
		strides:  strides,
		volume:   volume,
		topology: topology,
		cells:    make([]cell, volume),
	}, nil
}

// Shape returns the world's dimension sizes. The caller must not mutate it.
func (w *World) Shape() []int32 { return w.shape }

// Dims returns the number of dimensions.
func (w *World) Dims() int { return len(w.shape) }

// Topology returns the world's configured topology.
func (w *World) Topology() Topology { return w.topology }

// Volume returns the total number of cells.
func (w *World) Volume() int32 { return w.volume }

// Flatten computes the flat index of coord within a grid of the given shape.
// It is a standalone function (rather than a World method) so artifact
// validation can run against a shape before a World exists.
func Flatten(shape []int32, coord Coord) (int32, error) {
	if len(coord) != len(shape) {
		return 0, fmt.Errorf("%w: coord has %d dims, shape has %d", ErrDimensionMismatch, len(coord), len(shape))
	}
	idx := int32(0)
	stride := int32(1)
	for i, d := range shape {
		if coord[i] < 0 || coord[i] >= d {
			return 0, fmt.Errorf("%w: coord %v dim %d out of [0,%d)", ErrOutOfBounds, coord, i, d)
		}
		idx += coord[i] * stride
		stride *= d
	}
	return idx, nil
}

// Unflatten is the inverse of Flatten.
func Unflatten(shape []int32, idx int32) Coord {
	coord := make(Coord, len(shape))
	for i, d := range shape {
		coord[i] = idx % d
		idx /= d
	}
	return coord
}

func (w *World) flatten(coord Coord) (int32, error) {
	return Flatten(w.shape, coord)
}

// Get returns the molecule and owner id stored at coord.
func (w *World) Get(coord Coord) (molecule.Molecule, uint32, error) {
	idx, err := w.flatten(coord)
	if err != nil {
		return 0, 0, err
	}
	c := w.cells[idx]
	return molecule.Molecule(c.molecule), c.owner, nil
}

// Set is the unconditional write described in §4.2: the engine guarantees it
// is only called from the commit phase.
func (w *World) Set(coord Coord, m molecule.Molecule, owner uint32) error {
	idx, err := w.flatten(coord)
	if err != nil {
		return err
	}
	w.cells[idx] = cell{molecule: uint32(m), owner: owner}
	return nil
}

// unitSteps lists the 2*dims axis-aligned unit direction vectors.
func unitSteps(dims int) []Coord {
	steps := make([]Coord, 0, 2*dims)
	for axis := 0; axis < dims; axis++ {
		pos := make(Coord, dims)
		pos[axis] = 1
		neg := make(Coord, dims)
		neg[axis] = -1
		steps = append(steps, pos, neg)
	}
	return steps
}

// Neighbors returns the axis-aligned unit-step neighbors of coord. Under
// BOUNDED topology, neighbors that would fall outside the grid are omitted;
// under TORUS every one of the 2*dims neighbors is present (wrapped).
func (w *World) Neighbors(coord Coord) []Coord {
	steps := unitSteps(len(w.shape))
	out := make([]Coord, 0, len(steps))
	for _, d := range steps {
		n, err := w.Move(coord, d)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

// Move applies delta to coord respecting the world's topology: TORUS wraps
// modulo each dimension; BOUNDED returns ErrOutOfBounds if the result falls
// outside the grid.
func (w *World) Move(coord Coord, delta Coord) (Coord, error) {
	if len(coord) != len(w.shape) || len(delta) != len(w.shape) {
		return nil, ErrDimensionMismatch
	}
	out := make(Coord, len(w.shape))
	for i, d := range w.shape {
		v := coord[i] + delta[i]
		switch w.topology {
		case Torus:
			v %= d
			if v < 0 {
				v += d
			}
		case Bounded:
			if v < 0 || v >= d {
				return nil, ErrOutOfBounds
			}
		}
		out[i] = v
	}
	return out, nil
}
