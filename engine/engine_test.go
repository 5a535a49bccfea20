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

package engine

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	mapset "github.com/deckarep/golang-set"
	"github.com/google/uuid"

	"github.com/evochora/evochora/exec"
	"github.com/evochora/evochora/internal/xlog"
	"github.com/evochora/evochora/isa"
	"github.com/evochora/evochora/molecule"
	"github.com/evochora/evochora/organism"
	"github.com/evochora/evochora/snapshot"
	"github.com/evochora/evochora/thermo"
	"github.com/evochora/evochora/world"
)

// The exec package's opcode family constants are unexported; these mirror
// their values (§4.4's family layout, as wired by exec.Build) so tests here
// can address the same opcodes without reaching into package exec.
const (
	testFamilyMisc     = 0
	testFamilyEnv      = 4
	testFamilyOrganism = 5
)

func testOpcode(t *testing.T, family, operation, variant int) int32 {
	t.Helper()
	op, err := isa.Compute(family, operation, variant)
	if err != nil {
		t.Fatalf("isa.Compute: %v", err)
	}
	return int32(op)
}

func testCounts() organism.RegisterCounts {
	return organism.RegisterCounts{DR: 4, PR: 2, FPR: 2, LR: 2}
}

func testLimits() organism.Limits {
	return organism.Limits{MaxEnergy: 1000, MaxEntropy: 1000, MaxStackDepth: 8, MaxDataPointer: 1}
}

func newTestEngine(t *testing.T, shape []int32, errorPenaltyCost int64, base thermo.Budget) *Engine {
	t.Helper()
	w, err := world.New(shape, world.Bounded)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	registry := exec.Build(2)
	policy := thermo.NewUniversalPolicy(base)
	e := &Engine{
		World:    w,
		Labels:   world.NewLabelIndex(0),
		Bindings: nil,
		Pipeline: exec.NewPipeline(registry, policy, errorPenaltyCost),
		Config: Config{
			Parallelism:              2,
			SamplingInterval:         1,
			AccumulatedDeltaInterval: 1,
			RegisterCounts:           testCounts(),
			OrganismLimits:           testLimits(),
			ErrorPenaltyCost:         errorPenaltyCost,
			FuzzyTolerance:           2,
		},
		Logger:    xlog.Discard,
		pool:      newWorkerPool(2),
		organisms: make(map[int64]*organism.Organism),
		dirty:     mapset.NewSet(),
		sched:     snapshot.Scheduler{SamplingInterval: 1, AccumulatedDeltaInterval: 1},
	}
	t.Cleanup(e.Shutdown)
	return e
}

func mustCode(t *testing.T, value int32) molecule.Molecule {
	t.Helper()
	m, err := molecule.Pack(molecule.CODE, value, 0)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	return m
}

// TestWriteConflictLowestIDWins exercises the write-conflict scenario (§8
// scenario 3): two organisms POKE the same cell the same tick; the lowest
// organism id wins, the other is refunded and fails WriteConflict.
func TestWriteConflictLowestIDWins(t *testing.T) {
	e := newTestEngine(t, []int32{20}, 1, thermo.Budget{Energy: 2, Entropy: 0})

	pokeOp := testOpcode(t, testFamilyEnv, 1, 0)
	if err := e.World.Set(world.Coord{0}, mustCode(t, pokeOp), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := e.World.Set(world.Coord{1}, mustCode(t, 0), 0); err != nil { // DR index 0
		t.Fatalf("Set: %v", err)
	}
	if err := e.World.Set(world.Coord{10}, mustCode(t, pokeOp), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := e.World.Set(world.Coord{11}, mustCode(t, 0), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	org7 := organism.New(7, nil, 0, uuid.Nil, world.Coord{0}, world.Coord{1}, 100, testCounts(), testLimits())
	org7.DataPointers[0] = world.Coord{5}
	if err := org7.SetDR(0, world.Coord{1}); err != nil {
		t.Fatalf("SetDR: %v", err)
	}

	org11 := organism.New(11, nil, 0, uuid.Nil, world.Coord{10}, world.Coord{1}, 100, testCounts(), testLimits())
	org11.DataPointers[0] = world.Coord{5}
	if err := org11.SetDR(0, world.Coord{2}); err != nil {
		t.Fatalf("SetDR: %v", err)
	}

	e.organisms[7] = org7
	e.organisms[11] = org11

	e.RunTick()

	m, owner, err := e.World.Get(world.Coord{5})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if m.Value() != 1 || owner != 7 {
		t.Fatalf("cell(5) = value=%d owner=%d, want value=1 owner=7", m.Value(), owner)
	}

	if !org11.InstructionFailed || org11.FailureReason != "WriteConflict" {
		t.Fatalf("org11 failed=%v reason=%q, want true/WriteConflict\n%s", org11.InstructionFailed, org11.FailureReason, spew.Sdump(org11))
	}
	if org11.ER != 99 {
		t.Fatalf("org11.ER = %d, want 99 (100 - 2 paid, +2 refunded, -1 penalty)\n%s", org11.ER, spew.Sdump(org11))
	}
	if org7.InstructionFailed {
		t.Fatalf("org7 must not be marked failed\n%s", spew.Sdump(org7))
	}
	if org7.ER != 98 {
		t.Fatalf("org7.ER = %d, want 98\n%s", org7.ER, spew.Sdump(org7))
	}
}

// TestForkLineagePromotesChildNextTick exercises the FORK-lineage scenario
// (§8 scenario 5): the child is assigned the next id, receives half the
// parent's energy, and is not live until the tick after the FORK.
func TestForkLineagePromotesChildNextTick(t *testing.T) {
	e := newTestEngine(t, []int32{20}, 1, thermo.Budget{})

	forkOp := testOpcode(t, testFamilyOrganism, 0, 0)
	if err := e.World.Set(world.Coord{0}, mustCode(t, forkOp), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := e.World.Set(world.Coord{1}, mustCode(t, 500), 0); err != nil { // 500 permille = 0.5
		t.Fatalf("Set: %v", err)
	}
	nopOp := testOpcode(t, testFamilyMisc, 0, 0)
	if err := e.World.Set(world.Coord{3}, mustCode(t, nopOp), 0); err != nil { // NOP for the child to land on
		t.Fatalf("Set: %v", err)
	}

	parent := organism.New(1, nil, 0, uuid.Nil, world.Coord{0}, world.Coord{1}, 100, testCounts(), testLimits())
	parent.DataPointers[0] = world.Coord{3}
	e.organisms[1] = parent
	e.nextID = 2

	e.RunTick()

	if _, live := e.organisms[2]; live {
		t.Fatalf("child must not be live the same tick it was forked")
	}
	if len(e.pendingForks) != 1 {
		t.Fatalf("len(pendingForks) = %d, want 1", len(e.pendingForks))
	}
	child := e.pendingForks[0]
	if child.ID != 2 {
		t.Fatalf("child.ID = %d, want 2", child.ID)
	}
	if child.ParentID == nil || *child.ParentID != 1 {
		t.Fatalf("child.ParentID = %v, want 1", child.ParentID)
	}
	if child.ER != 50 {
		t.Fatalf("child.ER = %d, want 50", child.ER)
	}
	if parent.ER != 50 {
		t.Fatalf("parent.ER = %d, want 50", parent.ER)
	}

	e.RunTick()

	if _, live := e.organisms[1]; !live {
		t.Fatalf("parent must still be live")
	}
	if _, live := e.organisms[2]; !live {
		t.Fatalf("child must be live on the tick after it was forked")
	}
}

// TestOutOfEnergyDeathRetiresOrganism exercises the out-of-energy scenario
// (§8 scenario 6): an organism that cannot afford its next instruction is
// retired at the end of the tick it fails on.
func TestOutOfEnergyDeathRetiresOrganism(t *testing.T) {
	e := newTestEngine(t, []int32{4}, 5, thermo.Budget{Energy: 6, Entropy: 0})

	if err := e.World.Set(world.Coord{0}, mustCode(t, testOpcode(t, testFamilyMisc, 0, 0)), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	org := organism.New(1, nil, 0, uuid.Nil, world.Coord{0}, world.Coord{1}, 5, testCounts(), testLimits())
	e.organisms[1] = org

	e.RunTick()

	if _, live := e.organisms[1]; live {
		t.Fatalf("organism with insufficient energy must be retired")
	}
}
