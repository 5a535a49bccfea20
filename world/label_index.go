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

package world

import (
	"math/bits"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
	bloomfilter "github.com/holiman/bloomfilter/v2"
)

// DefaultLabelCacheSize bounds the fuzzy-jump resolution cache.
const DefaultLabelCacheSize = 4096

type cacheKey struct {
	hash       uint32
	tolerance  int
	generation uint64
}

type cacheEntry struct {
	coord Coord
	found bool
}

// LabelIndex maps 19-bit label hashes to the coordinates of the LABEL-marker
// cells that produced them, and resolves fuzzy jumps by nearest Hamming
// distance. It is built once at artifact load time. The tick engine never
// calls Add or Remove: a POKE that overwrites a label cell leaves the index
// unchanged.
type LabelIndex struct {
	mu      sync.RWMutex
	entries map[uint32][]Coord

	generation uint64 // bumped on every Add/Remove to invalidate the cache

	cache  *lru.Cache
	filter *bloomfilter.Filter
}

// NewLabelIndex creates an empty index. cacheSize bounds the number of
// memoized fuzzy-jump resolutions kept across ticks.
func NewLabelIndex(cacheSize int) *LabelIndex {
	if cacheSize <= 0 {
		cacheSize = DefaultLabelCacheSize
	}
	cache, _ := lru.New(cacheSize)
	// 19-bit hashes: a filter sized for ~2^19 distinct keys at a low false
	// positive rate is cheap and keeps exact-hash lookups off the full scan.
	filter, err := bloomfilter.New(1<<21, 4)
	if err != nil {
		filter = nil
	}
	return &LabelIndex{
		entries: make(map[uint32][]Coord),
		cache:   cache,
		filter:  filter,
	}
}

// Add records that hash resolves to coord. It must not run concurrently
// with other Add or Remove calls.
func (li *LabelIndex) Add(hash uint32, coord Coord) {
	li.mu.Lock()
	defer li.mu.Unlock()
	li.entries[hash] = append(li.entries[hash], coord.Clone())
	if li.filter != nil {
		li.filter.Add(hashKey(hash))
	}
	atomic.AddUint64(&li.generation, 1)
}

// Remove drops coord from hash's coordinate list.
func (li *LabelIndex) Remove(hash uint32, coord Coord) {
	li.mu.Lock()
	defer li.mu.Unlock()
	coords := li.entries[hash]
	for i, c := range coords {
		if c.Equal(coord) {
			li.entries[hash] = append(coords[:i], coords[i+1:]...)
			break
		}
	}
	if len(li.entries[hash]) == 0 {
		delete(li.entries, hash)
	}
	atomic.AddUint64(&li.generation, 1)
}

// Lookup resolves a fuzzy jump: the nearest coordinate (by Hamming distance
// of its label hash to hash, within tolerance) is returned; ties break by
// lexicographic coordinate order. found is false if no label is within
// tolerance.
func (li *LabelIndex) Lookup(hash uint32, tolerance int) (coord Coord, found bool) {
	gen := atomic.LoadUint64(&li.generation)
	key := cacheKey{hash: hash, tolerance: tolerance, generation: gen}
	if v, ok := li.cache.Get(key); ok {
		e := v.(cacheEntry)
		return e.coord, e.found
	}
	coord, found = li.resolve(hash, tolerance)
	li.cache.Add(key, cacheEntry{coord: coord, found: found})
	return coord, found
}

func (li *LabelIndex) resolve(hash uint32, tolerance int) (Coord, bool) {
	li.mu.RLock()
	defer li.mu.RUnlock()

	// An exact hash match (distance 0) can never be beaten by a fuzzy
	// neighbor, so the filter's cheap "might contain this exact hash" check
	// is a safe fast path only at tolerance 0. At tolerance > 0 a closer or
	// lexicographically smaller candidate may still exist at a different
	// hash, so the filter cannot shortcut the scan.
	if tolerance == 0 {
		if li.filter != nil && !li.filter.Contains(hashKey(hash)) {
			return nil, false
		}
		if coords, ok := li.entries[hash]; ok && len(coords) > 0 {
			return lexMin(coords), true
		}
		return nil, false
	}

	var best Coord
	bestDist := -1
	for h, coords := range li.entries {
		d := bits.OnesCount32(h ^ hash)
		if d > tolerance {
			continue
		}
		candidate := lexMin(coords)
		if bestDist == -1 || d < bestDist || (d == bestDist && candidate.Less(best)) {
			best = candidate
			bestDist = d
		}
	}
	if bestDist == -1 {
		return nil, false
	}
	return best, true
}

func lexMin(coords []Coord) Coord {
	best := coords[0]
	for _, c := range coords[1:] {
		if c.Less(best) {
			best = c
		}
	}
	return best
}

// hashKey adapts a label hash to bloomfilter.Filter's Hasher contract
// (Sum64() uint64), the same shape cespare/xxhash's Digest already
// satisfies.
type hashKey uint32

func (h hashKey) Sum64() uint64 { return uint64(h) }
