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
	mapset "github.com/deckarep/golang-set"

	"github.com/evochora/evochora/isa"
	"github.com/evochora/evochora/thermo"
	"github.com/evochora/evochora/world"
)

// pendingWrite is one worker's staged write, tagged with its conflict class
// and originating organism (§4.8 Phase B/C).
type pendingWrite struct {
	organismID int64
	conflict   isa.ConflictClass
	record     isa.WriteRecord
	cost       thermo.Budget // cost already paid for this write; refunded to losers
}

// resolution is Phase C's output for one contested coordinate: the winning
// write (always set; the lowest organism id's) and the losing writes, each
// needing a refund and a WriteConflict failure.
type resolution struct {
	winner *pendingWrite
	losers []pendingWrite
}

// resolveConflicts groups writes by target coordinate using the set of
// coordinates actually touched this tick (§4.8 Phase C: "the set of
// coordinates touched this tick ... used for the merge/resolve pass"), then
// picks one winner per coordinate deterministically by lowest organism id.
// Writers who agree with the winner on (molecule, owner) are not losers even
// if they are a distinct write record, since the merged effect is identical.
func resolveConflicts(writes []pendingWrite) map[string]resolution {
	touched := mapset.NewSet()
	byCoord := make(map[string][]pendingWrite)
	for _, w := range writes {
		key := coordKey(w.record.Coord)
		touched.Add(key)
		byCoord[key] = append(byCoord[key], w)
	}

	out := make(map[string]resolution, touched.Cardinality())
	for _, v := range touched.ToSlice() {
		key := v.(string)
		group := byCoord[key]
		out[key] = resolveGroup(group)
	}
	return out
}

func resolveGroup(group []pendingWrite) resolution {
	best := group[0]
	for _, w := range group[1:] {
		if w.organismID < best.organismID {
			best = w
		}
	}

	var losers []pendingWrite
	for _, w := range group {
		if w.organismID == best.organismID {
			continue
		}
		if w.record.Molecule == best.record.Molecule && w.record.Owner == best.record.Owner {
			continue // agrees with the winner; not a loser (§4.8 Phase C)
		}
		losers = append(losers, w)
	}
	return resolution{winner: &best, losers: losers}
}

func coordKey(c world.Coord) string {
	b := make([]byte, 0, len(c)*5)
	for _, v := range c {
		b = append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24), '|')
	}
	return string(b)
}
