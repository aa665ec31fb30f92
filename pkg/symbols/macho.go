package symbols

import (
	"fmt"
	"runtime"

	"github.com/blacktop/go-macho"
	"github.com/blacktop/go-macho/types"
)

// LoadMachO reads the function symbols of a Mach-O image. For universal
// binaries the slice matching the running architecture is used, else the
// first one.
func LoadMachO(path string) (*Table, error) {
	var m *macho.File

	fat, err := macho.OpenFat(path)
	if err != nil && err != macho.ErrNotFat {
		return nil, fmt.Errorf("failed to open universal Mach-O %s: %v", path, err)
	}
	if err == macho.ErrNotFat {
		m, err = macho.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open Mach-O %s: %v", path, err)
		}
		defer m.Close()
	} else {
		defer fat.Close()
		m = fat.Arches[0].File
		for _, arch := range fat.Arches {
			if arch.CPU == hostCPU() {
				m = arch.File
				break
			}
		}
	}

	var preferred uint64
	if text := m.Segment("__TEXT"); text != nil {
		preferred = text.Addr
	}

	if m.Symtab == nil {
		return nil, fmt.Errorf("%s: %w", path, ErrNoSymbols)
	}
	var entries []Entry
	for _, sym := range m.Symtab.Syms {
		if sym.Type.IsDebugSym() || !sym.Type.IsDefinedInSection() || sym.Value == 0 {
			continue
		}
		entries = append(entries, Entry{
			Name:  NormalizeMachO(sym.Name),
			Start: sym.Value,
		})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoSymbols)
	}
	// nlist entries carry no size; NewTable closes each at its successor
	return NewTable(path, preferred, entries), nil
}

func hostCPU() types.CPU {
	switch runtime.GOARCH {
	case "arm64":
		return types.CPUArm64
	case "amd64":
		return types.CPUAmd64
	case "386":
		return types.CPUI386
	default:
		return types.CPUArm
	}
}
