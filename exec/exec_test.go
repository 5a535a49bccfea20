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
	"testing"

	"github.com/google/uuid"

	"github.com/evochora/evochora/isa"
	"github.com/evochora/evochora/molecule"
	"github.com/evochora/evochora/organism"
	"github.com/evochora/evochora/thermo"
	"github.com/evochora/evochora/world"
)

func newTestWorld(t *testing.T, shape []int32, topo world.Topology) *world.World {
	t.Helper()
	w, err := world.New(shape, topo)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	return w
}

func codeCell(t *testing.T, value int32) molecule.Molecule {
	t.Helper()
	m, err := molecule.Pack(molecule.CODE, value, 0)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	return m
}

func newTestOrganism(ip, dv world.Coord, energy int64) *organism.Organism {
	return organism.New(1, nil, 0, uuid.Nil, ip, dv, energy,
		organism.RegisterCounts{DR: 4, PR: 2, FPR: 2, LR: 2},
		organism.Limits{MaxEnergy: 1000, MaxEntropy: 1000, MaxStackDepth: 8, MaxDataPointer: 1})
}

// TestNopSpinConsumesEnergyAndAdvancesIP exercises the NOP-spin scenario
// (§8): repeated NOPs cost the instruction base every step and walk the IP
// along DV.
func TestNopSpinConsumesEnergyAndAdvancesIP(t *testing.T) {
	w := newTestWorld(t, []int32{8}, world.Bounded)
	for i := int32(0); i < 8; i++ {
		if err := w.Set(world.Coord{i}, codeCell(t, int32(opcode(familyMisc, 0, 0))), 0); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	org := newTestOrganism(world.Coord{0}, world.Coord{1}, 100)
	registry := Build(2)
	policy := thermo.NewUniversalPolicy(thermo.Budget{Energy: 1, Entropy: 0})
	p := NewPipeline(registry, policy, 1)
	labels := world.NewLabelIndex(0)

	for step := 0; step < 5; step++ {
		writes, fork, _ := p.Step(org, w, labels, nil, uint64(step))
		if len(writes) != 0 || fork != nil {
			t.Fatalf("step %d: NOP must not write or fork", step)
		}
		if org.InstructionFailed {
			t.Fatalf("step %d: unexpected failure %q", step, org.FailureReason)
		}
	}
	if org.IP[0] != 5 {
		t.Fatalf("IP = %v, want [5]", org.IP)
	}
	if org.ER != 95 {
		t.Fatalf("ER = %d, want 95", org.ER)
	}
}

// TestHarvestTransfersEnergyAndZeroesCell exercises the energy-harvest
// scenario (§8): HARVEST moves an ENERGY cell's value into the organism's ER
// and leaves a zeroed ENERGY cell behind.
func TestHarvestTransfersEnergyAndZeroesCell(t *testing.T) {
	w := newTestWorld(t, []int32{4}, world.Bounded)
	harvestOp := opcode(familyEnv, 2, 0)
	if err := w.Set(world.Coord{0}, codeCell(t, int32(harvestOp)), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	energyCell, err := molecule.Pack(molecule.ENERGY, 40, 0)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if err := w.Set(world.Coord{1}, energyCell, 0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	org := newTestOrganism(world.Coord{0}, world.Coord{1}, 10)
	org.DataPointers[0] = world.Coord{1}
	registry := Build(2)
	policy := thermo.NewUniversalPolicy(thermo.Budget{Energy: 0, Entropy: 0})
	p := NewPipeline(registry, policy, 1)
	labels := world.NewLabelIndex(0)

	writes, _, _ := p.Step(org, w, labels, nil, 0)
	if org.InstructionFailed {
		t.Fatalf("HARVEST failed: %q", org.FailureReason)
	}
	if org.ER != 50 {
		t.Fatalf("ER = %d, want 50", org.ER)
	}
	if len(writes) != 1 {
		t.Fatalf("len(writes) = %d, want 1", len(writes))
	}
	if writes[0].Molecule.Value() != 0 || !writes[0].Molecule.IsEnergy() {
		t.Fatalf("staged write = %v, want zeroed ENERGY cell", writes[0].Molecule)
	}
}

// TestJmpfMatchesWithinToleranceAndTiesBreakLexicographically exercises the
// fuzzy-jump scenario (§8 scenario 4): two candidate labels tied at the same
// minimal Hamming distance from the operand hash, lower coordinate wins.
func TestJmpfMatchesWithinToleranceAndTiesBreakLexicographically(t *testing.T) {
	w := newTestWorld(t, []int32{8}, world.Bounded)
	jmpfOp := opcode(familyControl, 1, 0)
	if err := w.Set(world.Coord{0}, codeCell(t, int32(jmpfOp)), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	ref, err := isa.PackLabelRef(0x10000)
	if err != nil {
		t.Fatalf("PackLabelRef: %v", err)
	}
	if err := w.Set(world.Coord{1}, ref, 0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	labels := world.NewLabelIndex(0)
	labels.Add(0x10001, world.Coord{5}) // Hamming distance 1 from the query hash
	labels.Add(0x10002, world.Coord{2}) // also distance 1: a genuine tie

	org := newTestOrganism(world.Coord{0}, world.Coord{1}, 10)
	registry := Build(2)
	policy := thermo.NewUniversalPolicy(thermo.Budget{})
	p := NewPipeline(registry, policy, 1)

	p.Step(org, w, labels, nil, 0)
	if org.InstructionFailed {
		t.Fatalf("JMPF failed: %q", org.FailureReason)
	}
	if org.IP[0] != 2 {
		t.Fatalf("IP = %v, want [2] (lexicographically smaller tie)", org.IP)
	}
}

// TestInsufficientEnergyFailsWithoutEffect exercises the out-of-energy
// scenario (§8 scenario 6): an organism that cannot afford an instruction's
// cost fails it instead of applying the effect, and still advances past it.
func TestInsufficientEnergyFailsWithoutEffect(t *testing.T) {
	w := newTestWorld(t, []int32{4}, world.Bounded)
	if err := w.Set(world.Coord{0}, codeCell(t, int32(opcode(familyMisc, 0, 0))), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	org := newTestOrganism(world.Coord{0}, world.Coord{1}, 0)
	registry := Build(2)
	policy := thermo.NewUniversalPolicy(thermo.Budget{Energy: 5, Entropy: 0})
	p := NewPipeline(registry, policy, 1)
	labels := world.NewLabelIndex(0)

	p.Step(org, w, labels, nil, 0)
	if !org.InstructionFailed {
		t.Fatalf("expected failure on insufficient energy")
	}
	if org.FailureReason != "InsufficientEnergy" {
		t.Fatalf("FailureReason = %q, want InsufficientEnergy", org.FailureReason)
	}
	if org.IP[0] != 1 {
		t.Fatalf("IP = %v, want [1] (still advances past a failed instruction)", org.IP)
	}
}

// TestPushPopRoundTrip is a basic sanity check on the stack family: a value
// pushed from DR0 is popped back into DR1.
func TestPushPopRoundTrip(t *testing.T) {
	w := newTestWorld(t, []int32{8}, world.Bounded)
	pushOp := opcode(familyStack, 0, 0)
	popOp := opcode(familyStack, 1, 0)
	if err := w.Set(world.Coord{0}, codeCell(t, int32(pushOp)), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := w.Set(world.Coord{1}, codeCell(t, 0), 0); err != nil { // DR index 0
		t.Fatalf("Set: %v", err)
	}
	if err := w.Set(world.Coord{2}, codeCell(t, int32(popOp)), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := w.Set(world.Coord{3}, codeCell(t, 1), 0); err != nil { // DR index 1
		t.Fatalf("Set: %v", err)
	}

	org := newTestOrganism(world.Coord{0}, world.Coord{1}, 100)
	if err := org.SetDR(0, world.Coord{7}); err != nil {
		t.Fatalf("SetDR: %v", err)
	}
	registry := Build(2)
	policy := thermo.NewUniversalPolicy(thermo.Budget{})
	p := NewPipeline(registry, policy, 1)
	labels := world.NewLabelIndex(0)

	p.Step(org, w, labels, nil, 0) // PUSH DR0
	if org.InstructionFailed {
		t.Fatalf("PUSH failed: %q", org.FailureReason)
	}
	p.Step(org, w, labels, nil, 1) // POP DR1
	if org.InstructionFailed {
		t.Fatalf("POP failed: %q", org.FailureReason)
	}
	got, err := org.GetDR(1)
	if err != nil {
		t.Fatalf("GetDR: %v", err)
	}
	if got[0] != 7 {
		t.Fatalf("DR1 = %v, want [7]", got)
	}
}
