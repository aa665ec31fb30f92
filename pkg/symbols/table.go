// Package symbols resolves instruction pointers to function symbols of the
// images mapped into a traced process.
package symbols

import (
	"errors"
	"fmt"
	"sort"

	"github.com/blacktop/fptrace/pkg/fingerprint"
)

// ErrNoSymbols is returned when an image carries no function symbols
var ErrNoSymbols = errors.New("no function symbols")

// Entry is one function symbol at its preferred (unslid) address
type Entry struct {
	Name  string `yaml:"name"`
	Start uint64 `yaml:"start"`
	End   uint64 `yaml:"end"`
}

func (e Entry) String() string {
	return fmt.Sprintf("%#x-%#x %s", e.Start, e.End, e.Name)
}

// Table is a sorted function symbol table of one image
type Table struct {
	Path string
	// Preferred is the lowest address the image asks to be loaded at.
	Preferred uint64
	entries   []Entry
}

// NewTable sorts entries and closes the ones without a size at the start of
// the next entry.
func NewTable(path string, preferred uint64, entries []Entry) *Table {
	sorted := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			continue
		}
		sorted = append(sorted, e)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})
	for i := range sorted {
		if sorted[i].End > sorted[i].Start {
			continue
		}
		sorted[i].End = sorted[i].Start + 1
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j].Start > sorted[i].Start {
				sorted[i].End = sorted[j].Start
				break
			}
		}
	}
	return &Table{Path: path, Preferred: preferred, entries: sorted}
}

// Len returns the number of symbols
func (t *Table) Len() int { return len(t.entries) }

// Entries returns the symbols sorted by address
func (t *Table) Entries() []Entry { return t.entries }

// Lookup returns the symbol containing addr, an unslid address
func (t *Table) Lookup(addr uint64) (Entry, bool) {
	i := sort.Search(len(t.entries), func(i int) bool {
		return t.entries[i].Start > addr
	})
	if i == 0 {
		return Entry{}, false
	}
	// aliases share a start address; the first one listed wins
	start := t.entries[i-1].Start
	for i > 0 && t.entries[i-1].Start == start {
		i--
	}
	for ; i < len(t.entries) && t.entries[i].Start == start; i++ {
		if addr < t.entries[i].End {
			return t.entries[i], true
		}
	}
	return Entry{}, false
}

// Resolve implements fingerprint.SymbolResolver for an image loaded at its
// preferred address.
func (t *Table) Resolve(pc uint64) (*fingerprint.Symbol, error) {
	return t.ResolveSlid(pc, 0)
}

// ResolveSlid resolves pc for an image loaded slide bytes above its
// preferred address.
func (t *Table) ResolveSlid(pc, slide uint64) (*fingerprint.Symbol, error) {
	e, ok := t.Lookup(pc - slide)
	if !ok {
		return nil, nil
	}
	return &fingerprint.Symbol{Name: e.Name, Base: e.Start + slide}, nil
}
