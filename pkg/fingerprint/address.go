package fingerprint

import (
	"errors"
	"fmt"
)

const (
	// OffsetBits is the width of the offset field of an AbstractAddress
	OffsetBits = 24
	// MaxOffset is the first offset that no longer fits an AbstractAddress
	MaxOffset = 1 << OffsetBits
)

// ErrNoSegment is returned when a block is not contained in any known segment
// or its offset does not fit the encoding.
var ErrNoSegment = errors.New("no containing segment")

// AbstractAddress is a position-independent (segment, offset) code address
type AbstractAddress struct {
	Segment uint8
	Offset  uint32
}

// Packed returns the address as segment<<24 | offset
func (a AbstractAddress) Packed() uint32 {
	return uint32(a.Segment)<<OffsetBits | a.Offset&(MaxOffset-1)
}

// String returns the fixed-width hex form used for hashing
func (a AbstractAddress) String() string {
	return fmt.Sprintf("%08x", a.Packed())
}

// Encode returns the abstract address of the block [blockStart, blockEnd) in
// the first segment that contains it.
func (t SegmentTable) Encode(blockStart, blockEnd uint64) (AbstractAddress, error) {
	for _, seg := range t {
		if !seg.Contains(blockStart, blockEnd) {
			continue
		}
		off := blockStart - seg.Start
		if off >= MaxOffset {
			return AbstractAddress{}, fmt.Errorf("%w: offset %#x of %#x overflows %d bits", ErrNoSegment, off, blockStart, OffsetBits)
		}
		return AbstractAddress{Segment: seg.Index, Offset: uint32(off)}, nil
	}
	return AbstractAddress{}, ErrNoSegment
}

// Resolve returns the absolute address an abstract address refers to
func (t SegmentTable) Resolve(a AbstractAddress) (uint64, error) {
	seg, ok := t.Lookup(a.Segment)
	if !ok {
		return 0, fmt.Errorf("invalid segment index %d (table has %d)", a.Segment, len(t))
	}
	if uint64(a.Offset) >= seg.Size() {
		return 0, fmt.Errorf("offset %#x outside %s", a.Offset, seg)
	}
	return seg.Start + uint64(a.Offset), nil
}
