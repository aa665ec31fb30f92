package fingerprint

import (
	"fmt"
	"strings"
)

// MaxSegments is the number of segments addressable by the 8-bit segment index
const MaxSegments = 256

// Perms are the protection flags of a memory region
type Perms uint8

const (
	PermRead Perms = 1 << iota
	PermWrite
	PermExec
)

func (p Perms) String() string {
	var sb strings.Builder
	for _, f := range []struct {
		bit Perms
		c   byte
	}{
		{PermRead, 'r'},
		{PermWrite, 'w'},
		{PermExec, 'x'},
	} {
		if p&f.bit != 0 {
			sb.WriteByte(f.c)
		} else {
			sb.WriteByte('-')
		}
	}
	return sb.String()
}

// ParsePerms parses an "rwx" style permission string ("r-x", "rx", "x")
func ParsePerms(s string) (Perms, error) {
	var p Perms
	for _, c := range s {
		switch c {
		case 'r':
			p |= PermRead
		case 'w':
			p |= PermWrite
		case 'x':
			p |= PermExec
		case '-', 'p', 's':
		default:
			return 0, fmt.Errorf("invalid permission character %q in %q", c, s)
		}
	}
	return p, nil
}

// MapEntry is one region of the host's memory-map listing
type MapEntry struct {
	Start uint64
	End   uint64
	Perms Perms
	Path  string
}

// Executable reports whether the region can be executed
func (m MapEntry) Executable() bool {
	return m.Perms&PermExec != 0
}

// Segment is an executable region of the traced binary, covering [Start, End)
type Segment struct {
	Start uint64
	End   uint64
	Index uint8
}

// Size returns the number of bytes covered by the segment
func (s Segment) Size() uint64 {
	return s.End - s.Start
}

// Contains reports whether the block [start, end) lies inside the segment
func (s Segment) Contains(start, end uint64) bool {
	return start >= s.Start && start < s.End && end <= s.End
}

func (s Segment) String() string {
	return fmt.Sprintf("seg[%d] %#x-%#x (%#x)", s.Index, s.Start, s.End, s.Size())
}

// SegmentTable is the ordered, immutable list of interesting segments of one run
type SegmentTable []Segment

// BuildSegmentTable selects the executable regions ending below threshold,
// keeping the listing order and numbering them from 0.
// The second return value is the number of qualifying regions that did not
// fit the 8-bit segment index and were left out.
func BuildSegmentTable(maps []MapEntry, threshold uint64) (SegmentTable, int) {
	var dropped int
	table := make(SegmentTable, 0, len(maps))
	for _, m := range maps {
		if !m.Executable() || m.End >= threshold || m.End <= m.Start {
			continue
		}
		if len(table) == MaxSegments {
			dropped++
			continue
		}
		table = append(table, Segment{
			Start: m.Start,
			End:   m.End,
			Index: uint8(len(table)),
		})
	}
	return table, dropped
}

// Lookup returns the segment with the given index
func (t SegmentTable) Lookup(index uint8) (Segment, bool) {
	if int(index) >= len(t) {
		return Segment{}, false
	}
	return t[index], true
}
