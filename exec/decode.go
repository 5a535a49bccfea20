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
	"github.com/evochora/evochora/isa"
	"github.com/evochora/evochora/organism"
	"github.com/evochora/evochora/world"
)

// decode reads one in-world operand cell per entry of info.Operands at
// ip_before_fetch + dv_before_fetch*k for k=1..len(Operands) (§4.5 step 2).
// Register and immediate operands decode to the cell's signed value;
// label-ref operands decode to the full 19-bit hash (see
// isa.DecodeLabelRef).
func (p *Pipeline) decode(ctx *isa.Context, org *organism.Organism, w *world.World, info isa.Info) error {
	ctx.Immediates = make([]int32, 0, len(info.Operands))
	ctx.OperandCells = make([]world.Coord, 0, len(info.Operands))
	for k, kind := range info.Operands {
		delta := org.DVBeforeFetch.Scale(int32(k + 1))
		cellCoord, err := w.Move(org.IPBeforeFetch, delta)
		if err != nil {
			return err
		}
		m, _, err := w.Get(cellCoord)
		if err != nil {
			return err
		}
		ctx.OperandCells = append(ctx.OperandCells, cellCoord)
		if kind == isa.OperandLabelRef {
			ctx.Immediates = append(ctx.Immediates, int32(isa.DecodeLabelRef(m)))
		} else {
			ctx.Immediates = append(ctx.Immediates, m.Value())
		}
	}
	return nil
}
