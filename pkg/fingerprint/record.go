package fingerprint

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// HashSeed is the initial accumulator of the trace hash
const HashSeed uint64 = 5381

// Hash is the classic multiplicative string hash: acc = acc*33 + c
func Hash(s string) uint64 {
	h := HashSeed
	for i := 0; i < len(s); i++ {
		h = h<<5 + h + uint64(s[i])
	}
	return h
}

// Serialize concatenates the fixed-width hex form of the first limit entries
func Serialize(trace []AbstractAddress, limit int) string {
	if limit < 0 || limit > len(trace) {
		limit = len(trace)
	}
	var sb strings.Builder
	sb.Grow(limit * 8)
	for _, a := range trace[:limit] {
		fmt.Fprintf(&sb, "%08x", a.Packed())
	}
	return sb.String()
}

// Record is the finalized fingerprint of one traced run
type Record struct {
	BlockCount int
	Hash       uint64
	Marker     bool

	// not part of the textual form
	Key  string
	Args []string
}

// NewRecord computes the record of a trace, hashing at most limit entries
func NewRecord(trace []AbstractAddress, limit int, marker bool) *Record {
	return &Record{
		BlockCount: len(trace),
		Hash:       Hash(Serialize(trace, limit)),
		Marker:     marker,
	}
}

// String returns the textual form "<block_count> <hash> <marker as 0/1>"
func (r *Record) String() string {
	marker := 0
	if r.Marker {
		marker = 1
	}
	return fmt.Sprintf("%d %d %d", r.BlockCount, r.Hash, marker)
}

// Equal reports whether two records carry the same fingerprint
func (r *Record) Equal(o *Record) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.BlockCount == o.BlockCount && r.Hash == o.Hash && r.Marker == o.Marker
}

// ParseRecord parses the textual form of a record
func ParseRecord(s string) (*Record, error) {
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return nil, fmt.Errorf("invalid record %q: expected 3 fields, got %d", s, len(fields))
	}
	count, err := strconv.Atoi(fields[0])
	if err != nil || count < 0 {
		return nil, fmt.Errorf("invalid record block count %q", fields[0])
	}
	hash, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		// some tracers print the hash as a signed long
		signed, serr := strconv.ParseInt(fields[1], 10, 64)
		if serr != nil {
			return nil, fmt.Errorf("invalid record hash %q: %v", fields[1], err)
		}
		hash = uint64(signed)
	}
	var marker bool
	switch fields[2] {
	case "0":
	case "1":
		marker = true
	default:
		return nil, fmt.Errorf("invalid record marker flag %q", fields[2])
	}
	return &Record{BlockCount: count, Hash: hash, Marker: marker}, nil
}

// OutputKey derives the sink key of a run from its invocation arguments. The
// key is uppercase hex, the form preloaded tracers name their record files.
func OutputKey(args []string) string {
	cmdline := strings.Join(args, " ")
	if len(cmdline) > MaxArgsLength {
		cmdline = cmdline[:MaxArgsLength]
	}
	if len(cmdline) == 0 {
		return "none"
	}
	return strings.ToUpper(hex.EncodeToString([]byte(cmdline)))
}
