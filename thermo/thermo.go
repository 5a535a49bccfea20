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

// Package thermo implements the thermodynamic cost policy (§4.6): a
// pluggable interface consulted before every instruction's effect, plus a
// concrete UniversalPolicy driven entirely by a data table so experiments
// can retune costs without recompiling (§9).
package thermo

import (
	"github.com/evochora/evochora/molecule"
	"github.com/evochora/evochora/organism"
)

// Relation classifies a target cell's ownership relative to the acting
// organism (§4.6).
type Relation uint8

const (
	Own Relation = iota
	Foreign
	Unowned
)

// Budget is an (energy, entropy) pair.
type Budget struct {
	Energy  int64
	Entropy int64
}

// CostContext is everything the policy needs to price one instruction
// (§4.6): the instruction, the acting organism, and the optional target
// cell and its relation to the organism.
type CostContext struct {
	InstructionName string
	Org             *organism.Organism
	IsWrite         bool

	HasTarget   bool
	TargetType  molecule.Type
	TargetValue int32
	Relation    Relation
}

// Policy prices one instruction. It is consulted before effect computation
// and never after (§4.6): effects must not retroactively alter cost.
type Policy interface {
	Cost(ctx CostContext) Budget
}

// PermilleBase selects what a rule's per-mille fraction is taken of.
type PermilleBase uint8

const (
	FromTargetValue PermilleBase = iota
	FromOrganismER
)

// ValueRule is the innermost rule in the lookup chain: an absolute
// {energy, entropy}, a per-mille fraction of a configured base, or both
// (in which case they add, §4.6 step 3).
type ValueRule struct {
	Energy          *int64
	Entropy         *int64
	EnergyPermille  *int64
	EntropyPermille *int64
	PermilleBase    PermilleBase
}

func (v ValueRule) resolve(ctx CostContext) Budget {
	var base int64
	switch v.PermilleBase {
	case FromOrganismER:
		if ctx.Org != nil {
			base = ctx.Org.ER
		}
	default:
		base = int64(ctx.TargetValue)
	}
	var b Budget
	if v.Energy != nil {
		b.Energy += *v.Energy
	}
	if v.EnergyPermille != nil {
		b.Energy += base * (*v.EnergyPermille) / 1000
	}
	if v.Entropy != nil {
		b.Entropy += *v.Entropy
	}
	if v.EntropyPermille != nil {
		b.Entropy += base * (*v.EntropyPermille) / 1000
	}
	return b
}

// hasAny reports whether the rule specifies anything at all, used to
// decide whether it fully resolves a cost or the chain should keep falling
// back.
func (v ValueRule) hasAny() bool {
	return v.Energy != nil || v.Entropy != nil || v.EnergyPermille != nil || v.EntropyPermille != nil
}

// TypeRule is the write-rules[type] / read-rules[relation][type] level: a
// value-specific override map plus a type-wide default.
type TypeRule struct {
	ByValue map[int32]ValueRule
	Default *ValueRule
}

func (t TypeRule) lookup(value int32) (ValueRule, bool) {
	if t.ByValue != nil {
		if vr, ok := t.ByValue[value]; ok {
			return vr, true
		}
	}
	if t.Default != nil {
		return *t.Default, true
	}
	return ValueRule{}, false
}

// InstructionRule is the per-instruction override: an own base plus the
// write-rules / read-rules sub-tables (§4.6 step 2).
type InstructionRule struct {
	Base       *Budget
	WriteRules map[molecule.Type]TypeRule
	ReadRules  map[Relation]map[molecule.Type]TypeRule
}

// UniversalPolicy is the concrete, fully data-driven policy described in
// §4.6, keyed by instruction name (or family pattern — the caller decides
// how granular the key is) and modeled on Erigon's
// GasSchedule.GetOr(key, defaultVal) override-map pattern.
type UniversalPolicy struct {
	Base      Budget
	Overrides map[string]InstructionRule
}

// NewUniversalPolicy returns a policy with the given global default and an
// empty override table.
func NewUniversalPolicy(base Budget) *UniversalPolicy {
	return &UniversalPolicy{Base: base, Overrides: make(map[string]InstructionRule)}
}

// Cost resolves the lookup chain in §4.6: value-specific write/read rule,
// then type-default write/read rule, then the instruction's own base, then
// the global base.
func (p *UniversalPolicy) Cost(ctx CostContext) Budget {
	rule, ok := p.Overrides[ctx.InstructionName]
	if !ok {
		return p.Base
	}

	if ctx.HasTarget {
		var typeRules map[molecule.Type]TypeRule
		if ctx.IsWrite {
			typeRules = rule.WriteRules
		} else if byRelation, ok := rule.ReadRules[ctx.Relation]; ok {
			typeRules = byRelation
		}
		if tr, ok := typeRules[ctx.TargetType]; ok {
			if vr, matched := tr.lookup(ctx.TargetValue); matched && vr.hasAny() {
				resolved := vr.resolve(ctx)
				return p.fillGaps(resolved, vr, rule)
			}
		}
	}

	if rule.Base != nil {
		return *rule.Base
	}
	return p.Base
}

// fillGaps lets a ValueRule specify only energy or only entropy; the
// unspecified half falls back through the instruction base to the global
// base, rather than silently resolving to zero.
func (p *UniversalPolicy) fillGaps(resolved Budget, vr ValueRule, rule InstructionRule) Budget {
	out := resolved
	if vr.Energy == nil && vr.EnergyPermille == nil {
		if rule.Base != nil {
			out.Energy = rule.Base.Energy
		} else {
			out.Energy = p.Base.Energy
		}
	}
	if vr.Entropy == nil && vr.EntropyPermille == nil {
		if rule.Base != nil {
			out.Entropy = rule.Base.Entropy
		} else {
			out.Entropy = p.Base.Entropy
		}
	}
	return out
}
