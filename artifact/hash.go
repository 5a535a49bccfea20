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

package artifact

import (
	"encoding/binary"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"
)

// Hash derives a deterministic content hash of a RawArtifact, used as the
// artifact's id (Artifact.ID). Seeded organisms take their ProgramID from
// their own InitialOrganism entry, not from this hash. Two artifacts with
// byte-identical placements, labels, bindings and seed lists, in the same
// slice order, always hash to the same id. Each slice is written in the
// order given, so the same entries in a different order hash differently.
func Hash(raw RawArtifact) uuid.UUID {
	h := sha3.New256()

	var buf [8]byte
	putI32 := func(v int32) {
		binary.LittleEndian.PutUint32(buf[:4], uint32(v))
		h.Write(buf[:4])
	}
	putCoord := func(c []int32) {
		for _, v := range c {
			putI32(v)
		}
	}

	putI32(int32(len(raw.Shape)))
	putCoord(raw.Shape)
	buf[0] = byte(raw.Topology)
	h.Write(buf[:1])

	for _, p := range raw.Placements {
		putCoord(p.Coord)
		buf[0] = byte(p.Type)
		h.Write(buf[:1])
		putI32(p.Value)
		buf[0] = p.Marker
		h.Write(buf[:1])
	}
	for _, l := range raw.Labels {
		h.Write([]byte(l.Name))
		putCoord(l.Coord)
	}
	for _, cb := range raw.CallBindings {
		putCoord(cb.Coord)
		for _, r := range cb.Registers {
			putI32(int32(r))
		}
	}
	for _, io := range raw.InitialOrganisms {
		putCoord(io.Coord)
		putCoord(io.DV)
		binary.LittleEndian.PutUint64(buf[:8], uint64(io.Energy))
		h.Write(buf[:8])
	}

	sum := h.Sum(nil)
	id, err := uuid.FromBytes(sum[:16])
	if err != nil {
		// sum[:16] is always exactly 16 bytes; FromBytes cannot fail here.
		panic(err)
	}
	return id
}
