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
	"errors"

	"github.com/evochora/evochora/organism"
	"github.com/evochora/evochora/world"
)

// Handler-facing sentinel errors that do not already exist in package
// organism or package world. failureKind maps any of these, plus the
// lower-level sentinels, onto the §7 instruction-failure taxonomy.
var (
	ErrTypeMismatch = errors.New("exec: type mismatch")
	ErrNoLabelMatch = errors.New("exec: no label match")
)

// failureKind maps an error returned by decode or a semantic handler onto
// one of the named instruction-failure kinds in §7.
func failureKind(err error) string {
	switch {
	case errors.Is(err, world.ErrOutOfBounds):
		return "OutOfBounds"
	case errors.Is(err, world.ErrDimensionMismatch):
		return "OutOfBounds"
	case errors.Is(err, organism.ErrStackUnderflow):
		return "StackUnderflow"
	case errors.Is(err, organism.ErrStackOverflow):
		return "StackOverflow"
	case errors.Is(err, organism.ErrBadRegister):
		return "BadRegister"
	case errors.Is(err, organism.ErrBadPointerIndex):
		return "BadRegister"
	case errors.Is(err, ErrNoLabelMatch):
		return "NoLabelMatch"
	case errors.Is(err, ErrTypeMismatch):
		return "TypeMismatch"
	default:
		return "TypeMismatch"
	}
}
