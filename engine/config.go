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

import "github.com/evochora/evochora/organism"

// Config collects every engine-level option named in §6: parallelism, the
// snapshot cadence and the per-organism thermodynamic bounds. It is a plain
// struct tree with no file format or flag parsing, the way probeconfig.Config
// is built and handed to callers however they see fit.
type Config struct {
	Parallelism int // engine.parallelism, clamped to >= 2

	SamplingInterval         int // engine.sampling_interval, >= 1
	AccumulatedDeltaInterval int // engine.accumulated_delta_interval, >= 1

	RegisterCounts organism.RegisterCounts
	OrganismLimits organism.Limits

	ErrorPenaltyCost int64 // organism.error_penalty_cost
	FuzzyTolerance   int   // not read by New: JMPF/CALL use the tolerance given to exec.Build for the registry

	Seed uint64 // reserved: no randomized tie-break is on the hot path today
}
