package emu

import (
	"fmt"
	"sort"

	"github.com/blacktop/fptrace/pkg/fingerprint"
)

// PageSize is the unicorn mapping granularity
const PageSize = 0x1000

type Page struct {
	Addr  uint64
	Size  uint64
	Perms fingerprint.Perms
	Name  string
}

func (p *Page) Contains(addr uint64) bool {
	return p.Addr <= addr && addr < p.Addr+p.Size
}

func (p *Page) Overlaps(addr, size uint64) bool {
	return p.Addr < addr+size && addr < p.Addr+p.Size
}

// MemMap tracks the named regions mapped into the emulator
type MemMap struct {
	Pages []*Page
}

func NewMemMap() *MemMap {
	return &MemMap{}
}

func (m *MemMap) Contains(addr uint64) bool {
	return m.Find(addr) != nil
}

// Find returns the region containing addr
func (m *MemMap) Find(addr uint64) *Page {
	for _, p := range m.Pages {
		if p.Contains(addr) {
			return p
		}
	}
	return nil
}

func (m *MemMap) RangeValid(addr, size uint64) bool {
	for _, p := range m.Pages {
		if p.Overlaps(addr, size) {
			return false
		}
	}
	return true
}

// Map records a page aligned region; overlapping an existing region is an error.
func (m *MemMap) Map(addr, size uint64, perms fingerprint.Perms, name string) (*Page, error) {
	addr, size = Align(addr, size, true)
	if size == 0 {
		return nil, fmt.Errorf("empty region at %#x", addr)
	}
	if !m.RangeValid(addr, size) {
		return nil, fmt.Errorf("invalid range %#x-%#x", addr, addr+size)
	}
	p := &Page{Addr: addr, Size: size, Perms: perms, Name: name}
	m.Pages = append(m.Pages, p)
	sort.Slice(m.Pages, func(i, j int) bool {
		return m.Pages[i].Addr < m.Pages[j].Addr
	})
	return p, nil
}

func (m *MemMap) Remove(addr uint64) {
	for i, p := range m.Pages {
		if p.Contains(addr) {
			m.Pages = append(m.Pages[:i], m.Pages[i+1:]...)
			return
		}
	}
}

// Entries renders the regions as a memory-map listing
func (m *MemMap) Entries() []fingerprint.MapEntry {
	out := make([]fingerprint.MapEntry, 0, len(m.Pages))
	for _, p := range m.Pages {
		out = append(out, fingerprint.MapEntry{
			Start: p.Addr,
			End:   p.Addr + p.Size,
			Perms: p.Perms,
			Path:  p.Name,
		})
	}
	return out
}

func (m *MemMap) String() string {
	var s string
	for _, p := range m.Pages {
		s += fmt.Sprintf("%#x-%#x %s %s\n", p.Addr, p.Addr+p.Size, p.Perms, p.Name)
	}
	return s
}

// Align returns an aligned memory addr/size to be uses with unicorn MemMap
func Align(addr, size uint64, growl ...bool) (uint64, uint64) {
	to := uint64(PageSize)
	mask := ^(to - 1)
	right := addr + size
	right = (right + to - 1) & mask
	addr &= mask
	size = right - addr
	if len(growl) > 0 && growl[0] {
		size = (size + to - 1) & mask
	}
	return addr, size
}
