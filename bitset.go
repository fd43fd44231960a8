package harel

import "math/bits"

// bitset is a fixed-size set of StateIDs.
type bitset []uint64

func newBitset(n int) bitset {
	return make(bitset, (n+63)/64)
}

func (b bitset) has(id StateID) bool {
	w := int(id) >> 6
	return id >= 0 && w < len(b) && b[w]&(1<<(uint(id)&63)) != 0
}

func (b bitset) set(id StateID)   { b[int(id)>>6] |= 1 << (uint(id) & 63) }
func (b bitset) clear(id StateID) { b[int(id)>>6] &^= 1 << (uint(id) & 63) }

func (b bitset) clone() bitset {
	out := make(bitset, len(b))
	copy(out, b)
	return out
}

func (b bitset) count() int {
	n := 0
	for _, w := range b {
		n += bits.OnesCount64(w)
	}
	return n
}

func (b bitset) empty() bool {
	for _, w := range b {
		if w != 0 {
			return false
		}
	}
	return true
}

func (b bitset) intersects(o bitset) bool {
	for i := range min(len(b), len(o)) {
		if b[i]&o[i] != 0 {
			return true
		}
	}
	return false
}

func (b bitset) union(o bitset) {
	for i := range min(len(b), len(o)) {
		b[i] |= o[i]
	}
}

func (b bitset) equal(o bitset) bool {
	if len(b) != len(o) {
		return false
	}
	for i := range b {
		if b[i] != o[i] {
			return false
		}
	}
	return true
}

// each visits members in ascending order.
func (b bitset) each(fn func(StateID)) {
	for i, w := range b {
		for w != 0 {
			tz := bits.TrailingZeros64(w)
			fn(StateID(i<<6 + tz))
			w &= w - 1
		}
	}
}

// members returns the ids in ascending order.
func (b bitset) members() []StateID {
	out := make([]StateID, 0, b.count())
	b.each(func(id StateID) { out = append(out, id) })
	return out
}

// anyIn reports whether a member falls in [lo, hi).
func (b bitset) anyIn(lo, hi StateID) bool {
	for id := lo; id < hi; {
		w := int(id) >> 6
		if w >= len(b) {
			return false
		}
		word := b[w] >> (uint(id) & 63)
		if word != 0 {
			return id+StateID(bits.TrailingZeros64(word)) < hi
		}
		id = StateID((w + 1) << 6)
	}
	return false
}

// maskRange returns the members of b within [lo, hi).
func (b bitset) maskRange(lo, hi StateID) bitset {
	out := make(bitset, len(b))
	for id := lo; id < hi; {
		w := int(id) >> 6
		if w >= len(b) {
			break
		}
		if b[w] == 0 {
			id = StateID((w + 1) << 6)
			continue
		}
		if b.has(id) {
			out.set(id)
		}
		id++
	}
	return out
}

// outOfRange reports whether any member is >= n.
func (b bitset) outOfRange(n int) bool {
	if len(b) != (n+63)/64 {
		return true
	}
	if r := n & 63; r != 0 && len(b) > 0 {
		return b[len(b)-1]>>uint(r) != 0
	}
	return false
}
