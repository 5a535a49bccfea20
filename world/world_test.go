package world

import (
	"testing"

	"github.com/evochora/evochora/molecule"
)

func TestFlattenUnflattenRoundTrip(t *testing.T) {
	shape := []int32{4, 3, 2}
	for x := int32(0); x < 4; x++ {
		for y := int32(0); y < 3; y++ {
			for z := int32(0); z < 2; z++ {
				c := Coord{x, y, z}
				idx, err := Flatten(shape, c)
				if err != nil {
					t.Fatalf("Flatten(%v): %v", c, err)
				}
				back := Unflatten(shape, idx)
				if !back.Equal(c) {
					t.Errorf("Unflatten(%d) = %v, want %v", idx, back, c)
				}
			}
		}
	}
}

func TestGetSet(t *testing.T) {
	w, err := New([]int32{10, 1}, Torus)
	if err != nil {
		t.Fatal(err)
	}
	m, err := molecule.Pack(molecule.ENERGY, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Set(Coord{3, 0}, m, 7); err != nil {
		t.Fatal(err)
	}
	got, owner, err := w.Get(Coord{3, 0})
	if err != nil {
		t.Fatal(err)
	}
	if got != m || owner != 7 {
		t.Errorf("Get = (%v,%d), want (%v,7)", got, owner, m)
	}
}

func TestMoveTorusWraps(t *testing.T) {
	w, err := New([]int32{10, 1}, Torus)
	if err != nil {
		t.Fatal(err)
	}
	c, err := w.Move(Coord{9, 0}, Coord{1, 0})
	if err != nil {
		t.Fatal(err)
	}
	if !c.Equal(Coord{0, 0}) {
		t.Errorf("Move wrapped to %v, want [0 0]", c)
	}
	c, err = w.Move(Coord{0, 0}, Coord{-1, 0})
	if err != nil {
		t.Fatal(err)
	}
	if !c.Equal(Coord{9, 0}) {
		t.Errorf("Move wrapped to %v, want [9 0]", c)
	}
}

func TestMoveBoundedErrors(t *testing.T) {
	w, err := New([]int32{10, 1}, Bounded)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Move(Coord{9, 0}, Coord{1, 0}); err != ErrOutOfBounds {
		t.Errorf("Move = %v, want ErrOutOfBounds", err)
	}
}

func TestNeighborsBoundedOmitsOffGrid(t *testing.T) {
	w, err := New([]int32{3, 3}, Bounded)
	if err != nil {
		t.Fatal(err)
	}
	n := w.Neighbors(Coord{0, 0})
	if len(n) != 2 {
		t.Errorf("Neighbors at corner = %d, want 2", len(n))
	}
}

func TestNeighborsTorusAlwaysFull(t *testing.T) {
	w, err := New([]int32{3, 3}, Torus)
	if err != nil {
		t.Fatal(err)
	}
	n := w.Neighbors(Coord{0, 0})
	if len(n) != 4 {
		t.Errorf("Neighbors = %d, want 4", len(n))
	}
}

func TestLabelIndexLookupExactAndFuzzy(t *testing.T) {
	li := NewLabelIndex(16)
	li.Add(0x10000, Coord{1, 1})
	li.Add(0x10003, Coord{2, 2})

	coord, found := li.Lookup(0x10001, 2)
	if !found {
		t.Fatalf("expected a match")
	}
	if !coord.Equal(Coord{1, 1}) {
		t.Errorf("nearest = %v, want [1 1]", coord)
	}

	coord, found = li.Lookup(0x10003, 0)
	if !found || !coord.Equal(Coord{2, 2}) {
		t.Errorf("exact Lookup = %v,%v, want [2 2],true", coord, found)
	}
}

func TestLabelIndexLookupNoMatch(t *testing.T) {
	li := NewLabelIndex(16)
	li.Add(0x10000, Coord{1, 1})
	if _, found := li.Lookup(0x7FFFF, 0); found {
		t.Errorf("expected no match within tolerance 0")
	}
}

func TestLabelIndexInvalidationOnMutation(t *testing.T) {
	li := NewLabelIndex(16)
	li.Add(0x10000, Coord{1, 1})
	if _, found := li.Lookup(0x10000, 0); !found {
		t.Fatalf("expected initial match")
	}
	li.Remove(0x10000, Coord{1, 1})
	if _, found := li.Lookup(0x10000, 0); found {
		t.Errorf("expected no match after removal")
	}
}
