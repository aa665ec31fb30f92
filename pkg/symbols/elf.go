package symbols

import (
	"debug/elf"
	"errors"
	"fmt"
)

// LoadELF reads the function symbols of an ELF image, from the static symbol
// table when present and from the dynamic one otherwise.
func LoadELF(path string) (*Table, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF %s: %v", path, err)
	}
	defer f.Close()

	var preferred uint64
	first := true
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if first || prog.Vaddr < preferred {
			preferred = prog.Vaddr
			first = false
		}
	}
	// mappings are page aligned
	preferred &^= 0xfff

	var entries []Entry
	for _, load := range []func() ([]elf.Symbol, error){f.Symbols, f.DynamicSymbols} {
		syms, err := load()
		if err != nil {
			if errors.Is(err, elf.ErrNoSymbols) {
				continue
			}
			return nil, fmt.Errorf("failed to read symbols of %s: %v", path, err)
		}
		for _, sym := range syms {
			if elf.ST_TYPE(sym.Info) != elf.STT_FUNC || sym.Section == elf.SHN_UNDEF || sym.Value == 0 {
				continue
			}
			entries = append(entries, Entry{
				Name:  NormalizeELF(sym.Name),
				Start: sym.Value,
				End:   sym.Value + sym.Size,
			})
		}
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoSymbols)
	}
	return NewTable(path, preferred, entries), nil
}
