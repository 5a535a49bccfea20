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
	"github.com/cespare/xxhash/v2"

	"github.com/evochora/evochora/molecule"
)

// LabelHashBits is the width of a label hash (§3, §6).
const LabelHashBits = 19

// LabelHashMask extracts the low 19 bits of a hash.
const LabelHashMask uint32 = 1<<LabelHashBits - 1

// LabelHash derives the stable 19-bit fuzzy-jump hash of a label name from
// its UTF-8 bytes. xxhash is a fixed, publicly specified algorithm, which is
// exactly what "compiler and runtime must agree bit-for-bit" (§6) requires:
// any compiler in any language can reproduce this value byte-for-byte.
func LabelHash(name string) uint32 {
	sum := xxhash.Sum64String(name)
	return uint32(sum) & LabelHashMask
}

// A single molecule's 16-bit value field cannot hold a full 19-bit label
// hash. A label-ref operand cell therefore spreads the hash across both
// fields it has available: the low 16 bits live in Value (as the raw,
// unsigned bit pattern), the high 3 bits live in the low 3 bits of Marker.
// This reuses the existing packing contract rather than widening it.

// PackLabelRef builds a CODE molecule whose operand encodes the given
// 19-bit label hash.
func PackLabelRef(hash uint32) (molecule.Molecule, error) {
	hash &= LabelHashMask
	low16 := int32(int16(uint16(hash)))
	high3 := uint8(hash >> 16)
	return molecule.Pack(molecule.CODE, low16, high3)
}

// DecodeLabelRef recovers the 19-bit label hash packed by PackLabelRef.
func DecodeLabelRef(m molecule.Molecule) uint32 {
	low16 := uint32(uint16(m.Value()))
	high3 := uint32(m.Marker() & 0x7)
	return (high3 << 16) | low16
}
