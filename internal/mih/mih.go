// Package mih implements Multi-Index Hashing: a sublinear approximate
// nearest-neighbour index over 64-bit codes under Hamming distance.
//
// A linear scan over N stored codes costs O(N) per query. MIH exploits
// a pigeonhole argument: if two codes are within Hamming distance r,
// partitioning each into m equal-width blocks forces at least one
// block pair to be within distance floor(r/m). Per query we only need
// to examine the slots that land in a near-matching bucket of some
// block, verify their true 64-bit distance, and stop at the first hit
// within r — the contract only promises *some* neighbour, not the
// closest one.
//
// Each block owns its own bucket map keyed by the block's value, so a
// query only has to enumerate the buckets near its own block values
// per block, then verify the true 64-bit Hamming distance on whatever
// candidates those buckets turn up.
package mih

import "math/bits"

// Blocks is the fixed partition count m. HASH_BITS (64) must be
// divisible by Blocks; BlockBits is HASH_BITS/Blocks.
const (
	Blocks    = 8
	BlockBits = 64 / Blocks
)

// block extracts the b-th BlockBits-wide sub-code of code, counting
// blocks from the most significant end (b=0 is the top BlockBits
// bits).
func block(code uint64, b int) uint16 {
	shift := uint(64 - BlockBits*(b+1))
	return uint16((code >> shift) & ((1 << BlockBits) - 1))
}

// Index stores codes partitioned into Blocks equal sub-strings, one
// bucket map per block, plus the dense slice of codes aligned with
// the registry's slot numbering.
//
// It maintains two invariants:
//
//	I1: for every slot i and block b, i is in substrings[b][block(codes[i], b)]
//	I2: no other (b, s) bucket contains i
type Index struct {
	substrings [Blocks]map[uint16]map[int]struct{}
	codes      []uint64
}

// New creates an empty MIH index.
func New() *Index {
	idx := &Index{}
	for b := range idx.substrings {
		idx.substrings[b] = make(map[uint16]map[int]struct{})
	}
	return idx
}

// Len returns the number of codes currently stored.
func (idx *Index) Len() int {
	return len(idx.codes)
}

func (idx *Index) addToBucket(b int, s uint16, slot int) {
	bucket := idx.substrings[b][s]
	if bucket == nil {
		bucket = make(map[int]struct{})
		idx.substrings[b][s] = bucket
	}
	bucket[slot] = struct{}{}
}

func (idx *Index) removeFromBucket(b int, s uint16, slot int) {
	bucket := idx.substrings[b][s]
	if bucket == nil {
		return
	}
	delete(bucket, slot)
	if len(bucket) == 0 {
		delete(idx.substrings[b], s)
	}
}

// Insert adds code at slot. The caller (the registry, via the
// coordinator) must guarantee slot == Len() before the call, since
// codes is kept dense and aligned with the registry's own slot
// numbering.
func (idx *Index) Insert(slot int, code uint64) {
	for b := 0; b < Blocks; b++ {
		idx.addToBucket(b, block(code, b), slot)
	}
	idx.codes = append(idx.codes, code)
}

// Remove deletes the code at removedSlot. If a swap-remove happened in
// the registry (movedFrom), movedSlot names the slot whose entry was
// relocated into removedSlot; its bucket memberships are moved
// accordingly and codes is compacted to match. When no swap happened
// (movedFrom is false, or removedSlot was already the last slot),
// pass movedSlot == removedSlot and movedFrom == false.
func (idx *Index) Remove(removedSlot int, movedSlot int, movedFrom bool) {
	removedCode := idx.codes[removedSlot]
	for b := 0; b < Blocks; b++ {
		idx.removeFromBucket(b, block(removedCode, b), removedSlot)
	}

	last := len(idx.codes) - 1
	if !movedFrom {
		idx.codes = idx.codes[:last]
		return
	}

	movedCode := idx.codes[movedSlot]
	for b := 0; b < Blocks; b++ {
		idx.removeFromBucket(b, block(movedCode, b), movedSlot)
		idx.addToBucket(b, block(movedCode, b), removedSlot)
	}
	idx.codes[removedSlot] = movedCode
	idx.codes = idx.codes[:last]
}

// neighborBlockValues enumerates every BlockBits-wide value within
// Hamming distance rBlock of s, including s itself. BlockBits is 8
// here, so this is at most a handful of candidates for rBlock<=1 (9
// values: s and its 8 single-bit flips).
func neighborBlockValues(s uint16, rBlock int) []uint16 {
	if rBlock <= 0 {
		return []uint16{s}
	}

	const width = BlockBits
	max := uint16(1)<<width - 1

	values := []uint16{s}
	if rBlock >= width {
		// Degenerate: every value in the block is a "neighbour".
		values = values[:0]
		for v := uint16(0); ; v++ {
			values = append(values, v)
			if v == max {
				break
			}
		}
		return values
	}

	for v := uint16(0); ; v++ {
		if v != s && bits.OnesCount16(v^s) <= rBlock {
			values = append(values, v)
		}
		if v == max {
			break
		}
	}
	return values
}

// Search returns a stored slot within Hamming distance r of query, and
// the exact distance, or found=false if no such slot exists. It makes
// no promise about which qualifying slot is returned when several
// exist — it returns the first one the block scan happens to visit.
func (idx *Index) Search(query uint64, r int) (slot int, distance int, found bool) {
	if len(idx.codes) == 0 {
		return 0, 0, false
	}

	rBlock := r / Blocks
	visited := make(map[int]struct{})

	for b := 0; b < Blocks; b++ {
		qBlock := block(query, b)
		for _, s := range neighborBlockValues(qBlock, rBlock) {
			bucket := idx.substrings[b][s]
			if bucket == nil {
				continue
			}
			for candidate := range bucket {
				if _, seen := visited[candidate]; seen {
					continue
				}
				visited[candidate] = struct{}{}

				d := bits.OnesCount64(query ^ idx.codes[candidate])
				if d <= r {
					return candidate, d, true
				}
			}
		}
	}

	return 0, 0, false
}

// CodeAt returns the code stored at slot. The caller must ensure
// 0 <= slot < Len().
func (idx *Index) CodeAt(slot int) uint64 {
	return idx.codes[slot]
}
