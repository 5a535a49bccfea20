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

// Package engine drives the tick loop: the fixed worker pool, the five-phase
// per-tick pipeline (collect, execute, merge & resolve, commit, emit) and
// deterministic write-conflict resolution (§4.8).
package engine

import (
	"sort"

	mapset "github.com/deckarep/golang-set"
	"github.com/google/uuid"

	"github.com/evochora/evochora/exec"
	"github.com/evochora/evochora/internal/xlog"
	"github.com/evochora/evochora/isa"
	"github.com/evochora/evochora/organism"
	"github.com/evochora/evochora/snapshot"
	"github.com/evochora/evochora/thermo"
	"github.com/evochora/evochora/world"
)

// Engine owns the world, the live organism population and the worker pool,
// and drives one RunTick call per simulation step.
type Engine struct {
	World    *world.World
	Labels   *world.LabelIndex
	Bindings isa.BindingResolver
	Pipeline *exec.Pipeline
	Config   Config
	Sink     snapshot.Sink
	Logger   *xlog.Logger

	pool *workerPool

	organisms    map[int64]*organism.Organism
	pendingForks []*organism.Organism
	nextID       int64

	tick     uint64
	rngState uint64

	// dirty accumulates flattened coordinates touched by a commit since the
	// last emitted snapshot; drained into a CellChange list on emit (§4.9).
	dirty mapset.Set
	sched snapshot.Scheduler
}

// New builds an Engine around an already-loaded world/label index/binding
// resolver, and starts its worker pool (§4.8 "a fixed-size worker pool of P
// threads, sized at startup"). Call Seed to populate the initial organism
// population before the first RunTick.
func New(cfg Config, w *world.World, labels *world.LabelIndex, bindings isa.BindingResolver, registry *isa.Registry, policy thermo.Policy, sink snapshot.Sink, logger *xlog.Logger) *Engine {
	e := &Engine{
		World:    w,
		Labels:   labels,
		Bindings: bindings,
		Pipeline: exec.NewPipeline(registry, policy, cfg.ErrorPenaltyCost),
		Config:   cfg,
		Sink:     sink,
		Logger:   xlog.Default(logger),
		pool:     newWorkerPool(cfg.Parallelism),
		organisms: make(map[int64]*organism.Organism),
		dirty:     mapset.NewSet(),
		sched: snapshot.Scheduler{
			SamplingInterval:         cfg.SamplingInterval,
			AccumulatedDeltaInterval: cfg.AccumulatedDeltaInterval,
		},
	}
	e.Logger.Info("engine started", "parallelism", cfg.Parallelism)
	return e
}

// Seed registers the initial organism population (§4.7 "seed initial
// organisms from a configured list"). It assigns each a fresh id and marks
// them live starting on the next RunTick.
func (e *Engine) Seed(specs []OrganismSpec) {
	for _, s := range specs {
		id := e.nextID
		e.nextID++
		o := organism.New(id, nil, e.tick, s.ProgramID, s.IP, s.DV, s.InitialEnergy,
			e.Config.RegisterCounts, e.Config.OrganismLimits)
		e.organisms[id] = o
	}
}

// OrganismSpec is one entry of the artifact's initial_organisms list (§6):
// starting coordinate, direction vector, initial energy and program id.
type OrganismSpec struct {
	IP, DV        world.Coord
	InitialEnergy int64
	ProgramID     uuid.UUID
}

// Tick returns the number of the tick about to run (or just completed, if
// called from within a Sink callback).
func (e *Engine) Tick() uint64 { return e.tick }

// LiveCount returns the number of currently live organisms.
func (e *Engine) LiveCount() int { return len(e.organisms) }

// Shutdown stops the worker pool. Idempotent and safe from any goroutine
// (§4.8).
func (e *Engine) Shutdown() { e.pool.Shutdown() }

// RunTick executes exactly one tick: collect, execute, merge & resolve,
// commit, emit (§4.8).
func (e *Engine) RunTick() {
	liveIDs := e.phaseCollect()

	writes, forks, budgets := e.phaseExecute(liveIDs)

	resolutions := e.phaseMerge(liveIDs, writes, budgets)

	e.phaseCommit(liveIDs, resolutions, forks)

	e.phaseEmit()

	e.tick++
}

// phaseCollect promotes last tick's forked children to live and returns a
// stable snapshot of live organism ids (§4.8 Phase A).
func (e *Engine) phaseCollect() []int64 {
	for _, child := range e.pendingForks {
		e.organisms[child.ID] = child
	}
	e.pendingForks = nil

	ids := make([]int64, 0, len(e.organisms))
	for id := range e.organisms {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// phaseExecute runs the instruction pipeline for every live organism's
// chunk in parallel (§4.8 Phase B). Each index i of the result slices
// belongs to exactly one worker, so no locking is needed.
func (e *Engine) phaseExecute(liveIDs []int64) ([][]isa.WriteRecord, []*isa.ForkRequest, []thermo.Budget) {
	n := len(liveIDs)
	writes := make([][]isa.WriteRecord, n)
	forks := make([]*isa.ForkRequest, n)
	budgets := make([]thermo.Budget, n)

	e.pool.Dispatch(n, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			org := e.organisms[liveIDs[i]]
			w, f, b := e.Pipeline.Step(org, e.World, e.Labels, e.Bindings, e.tick)
			writes[i] = w
			forks[i] = f
			budgets[i] = b
		}
	})
	return writes, forks, budgets
}

// phaseMerge resolves write conflicts across every coordinate touched this
// tick (§4.8 Phase C).
func (e *Engine) phaseMerge(liveIDs []int64, writes [][]isa.WriteRecord, budgets []thermo.Budget) map[string]resolution {
	var pending []pendingWrite
	for i, recs := range writes {
		for _, r := range recs {
			pending = append(pending, pendingWrite{
				organismID: liveIDs[i],
				conflict:   isa.WorldWrite,
				record:     r,
				cost:       budgets[i],
			})
		}
	}
	if len(pending) == 0 {
		return nil
	}
	return resolveConflicts(pending)
}

// phaseCommit applies every winning write to the world, refunds and fails
// every losing writer, retires organisms whose ER fell to 0, and stages any
// FORK requests as next tick's newly live children (§4.8 Phase D).
func (e *Engine) phaseCommit(liveIDs []int64, resolutions map[string]resolution, forks []*isa.ForkRequest) {
	for _, res := range resolutions {
		if res.winner != nil {
			w := res.winner.record
			if err := e.World.Set(w.Coord, w.Molecule, w.Owner); err != nil {
				e.Logger.Warn("commit: write rejected", "err", err)
				continue
			}
			e.markDirty(w.Coord)
		}
		for _, loser := range res.losers {
			org, ok := e.organisms[loser.organismID]
			if !ok {
				continue
			}
			org.RefundEnergy(loser.cost.Energy)
			org.RevertEntropy(loser.cost.Entropy)
			org.Fail("WriteConflict", e.Config.ErrorPenaltyCost)
		}
	}

	for i, id := range liveIDs {
		org := e.organisms[id]
		if org.ER <= 0 {
			delete(e.organisms, id)
			continue
		}
		if forks[i] != nil {
			e.spawnChild(org, forks[i])
		}
	}
}

// spawnChild materializes a FORK request into a new organism, staged as
// pending until next tick's collect phase (§4.5 FORK, §4.8 Phase A).
func (e *Engine) spawnChild(parent *organism.Organism, req *isa.ForkRequest) {
	id := e.nextID
	e.nextID++
	parentID := parent.ID
	childEnergy := int64(float64(parent.ER) * req.EnergySplit)
	parent.PayEnergy(childEnergy)

	child := organism.New(id, &parentID, e.tick+1, parent.ProgramID, req.IP, req.DV, childEnergy,
		e.Config.RegisterCounts, e.Config.OrganismLimits)
	for i, r := range parent.PR {
		if i < len(child.PR) {
			child.SetPR(i, r)
		}
	}
	for i, r := range parent.FPR {
		if i < len(child.FPR) {
			child.SetFPR(i, r)
		}
	}
	e.pendingForks = append(e.pendingForks, child)
}

// phaseEmit builds and hands an immutable TickSnapshot to the sink,
// honoring the configured sampling and delta-accumulation cadence (§4.8
// Phase E, §4.9).
func (e *Engine) phaseEmit() {
	if e.Sink == nil || !e.sched.ShouldEmit(e.tick) {
		return
	}

	snap := snapshot.TickSnapshot{
		Tick:      e.tick,
		RNGState:  e.rngState,
		Organisms: e.viewOrganisms(),
	}
	if e.sched.ShouldEmitFullImage(e.tick) {
		snap.FullCells = snapshot.EncodeFullImage(e.World)
	} else {
		snap.CellsChanged = e.drainDirty()
	}
	e.dirty = mapset.NewSet()
	e.Sink.Emit(snap)
}

func (e *Engine) viewOrganisms() []snapshot.OrganismView {
	ids := make([]int64, 0, len(e.organisms))
	for id := range e.organisms {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]snapshot.OrganismView, len(ids))
	for i, id := range ids {
		out[i] = snapshot.ViewOrganism(e.organisms[id])
	}
	return out
}

func (e *Engine) markDirty(c world.Coord) {
	idx, err := world.Flatten(e.World.Shape(), c)
	if err != nil {
		return
	}
	e.dirty.Add(idx)
}

func (e *Engine) drainDirty() []snapshot.CellChange {
	out := make([]snapshot.CellChange, 0, e.dirty.Cardinality())
	for _, v := range e.dirty.ToSlice() {
		idx := v.(int32)
		coord := world.Unflatten(e.World.Shape(), idx)
		m, owner, err := e.World.Get(coord)
		if err != nil {
			continue
		}
		out = append(out, snapshot.CellChange{Coord: coord, Molecule: m, Owner: owner})
	}
	return out
}
