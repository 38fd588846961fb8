package memory

import "math/bits"

// slotBitmap tracks which slots of a segment are in use, one bit per slot.
type slotBitmap struct {
	words []uint64
	n     uint32
	hint  uint32 // lowest slot that may be free
}

func newSlotBitmap(n uint32) *slotBitmap {
	return &slotBitmap{words: make([]uint64, (n+63)/64), n: n}
}

// take marks the lowest free slot at or after the hint as used.
func (b *slotBitmap) take() (uint32, bool) {
	for w := b.hint / 64; w < uint32(len(b.words)); w++ {
		word := b.words[w]
		if word == ^uint64(0) {
			continue
		}
		slot := w*64 + uint32(bits.TrailingZeros64(^word))
		if slot >= b.n {
			return 0, false
		}
		b.words[w] |= 1 << (slot % 64)
		b.hint = slot + 1
		return slot, true
	}
	return 0, false
}

func (b *slotBitmap) put(slot uint32) {
	if slot >= b.n {
		return
	}
	b.words[slot/64] &^= 1 << (slot % 64)
	if slot < b.hint {
		b.hint = slot
	}
}

func (b *slotBitmap) used() uint32 {
	var n uint32
	for _, w := range b.words {
		n += uint32(bits.OnesCount64(w))
	}
	return n
}
