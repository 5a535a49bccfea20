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

// Package isa defines the structured opcode ID scheme, per-opcode metadata
// and the opcode registry (§4.4). Instruction effects themselves live in
// package exec, which populates a Registry built here.
package isa

import "fmt"

// Bit widths of the three opcode ID fields. variant is the fastest-varying
// field (a mutation here is a near-neighbor operation), family the slowest
// (a mutation here is catastrophic) — see §4.4.
const (
	VariantBits   = 3
	OperationBits = 5
	FamilyBits    = 8

	VariantCount   = 1 << VariantBits   // O
	OperationCount = 1 << OperationBits
	FamilyCount    = 1 << FamilyBits    // F = OperationCount * VariantCount

	operationStride = VariantCount         // adding O changes only operation
	familyStride    = OperationCount * VariantCount // adding F changes only family
)

// Opcode is a structured, non-negative instruction identifier decomposed as
// family*F + operation*O + variant (§4.4).
type Opcode uint32

// NOP is opcode id 0 by construction (family 0, operation 0, variant 0).
const NOP Opcode = 0

// Compute builds an Opcode from its three fields. It is the bijective
// inverse of Opcode.Extract within range.
func Compute(family, operation, variant int) (Opcode, error) {
	if family < 0 || family >= FamilyCount {
		return 0, fmt.Errorf("isa: family %d out of range [0,%d)", family, FamilyCount)
	}
	if operation < 0 || operation >= OperationCount {
		return 0, fmt.Errorf("isa: operation %d out of range [0,%d)", operation, OperationCount)
	}
	if variant < 0 || variant >= VariantCount {
		return 0, fmt.Errorf("isa: variant %d out of range [0,%d)", variant, VariantCount)
	}
	return Opcode(family*familyStride + operation*operationStride + variant), nil
}

// Extract decomposes an Opcode into (family, operation, variant).
func (op Opcode) Extract() (family, operation, variant int) {
	v := int(op)
	variant = v % VariantCount
	v /= VariantCount
	operation = v % OperationCount
	family = v / OperationCount
	return
}

// OperandKind tags the kind of a single in-world operand cell (§4.4).
type OperandKind uint8

const (
	OperandRegister OperandKind = iota
	OperandImmediate
	OperandVector
	OperandLabelRef
)

func (k OperandKind) String() string {
	switch k {
	case OperandRegister:
		return "register"
	case OperandImmediate:
		return "immediate"
	case OperandVector:
		return "vector"
	case OperandLabelRef:
		return "label-ref"
	default:
		return fmt.Sprintf("OperandKind(%d)", uint8(k))
	}
}

// ConflictClass tells the tick engine whether an opcode's effect writes
// shared world state (§4.4, §4.8).
type ConflictClass uint8

const (
	SelfOnly ConflictClass = iota
	WorldWrite
	NotApplicable
)

// Info is the metadata stored per opcode: name, operand shape, world-cell
// footprint and conflict class. The semantic function itself is registered
// alongside an Info in a Registry, not stored on Info, so that package isa
// has no dependency on package exec.
type Info struct {
	Name     string
	Operands []OperandKind
	Size     int // number of world cells the instruction occupies, for IP advance
	Conflict ConflictClass

	// RequiresCallBinding marks CALL-like opcodes that must resolve a
	// call-binding entry keyed by ip_before_fetch before costing or effect
	// computation (§4.5 step 3).
	RequiresCallBinding bool
}
