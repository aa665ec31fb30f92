package dictionary

import (
	"debug/elf"
	"fmt"
	"os"

	"github.com/apex/log"
	"github.com/blacktop/fptrace/internal/magic"
	"github.com/blacktop/go-macho"
)

// BinaryArguments returns every option-like string embedded in the read-only
// data of the executable at path. Images of an unknown format are scanned
// whole.
func BinaryArguments(path string) ([]string, error) {
	format, err := magic.Detect(path)
	if err != nil {
		return nil, err
	}

	var blobs [][]byte
	switch format {
	case magic.ELF:
		blobs, err = elfData(path)
	case magic.MachO:
		blobs, err = machoData(path)
	default:
		var dat []byte
		dat, err = os.ReadFile(path)
		blobs = [][]byte{dat}
	}
	if err != nil {
		return nil, err
	}

	var args []string
	for _, dat := range blobs {
		args = append(args, FindArguments(dat)...)
	}
	log.WithFields(log.Fields{
		"format":    format,
		"sections":  len(blobs),
		"arguments": len(args),
	}).Debug("scanned binary")
	return args, nil
}

// elfData returns the allocated, non executable PROGBITS sections
func elfData(path string) ([][]byte, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF %s: %v", path, err)
	}
	defer f.Close()

	var blobs [][]byte
	for _, sec := range f.Sections {
		if sec.Type != elf.SHT_PROGBITS || sec.Flags&elf.SHF_ALLOC == 0 || sec.Flags&elf.SHF_EXECINSTR != 0 {
			continue
		}
		dat, err := sec.Data()
		if err != nil {
			return nil, fmt.Errorf("failed to read section %s of %s: %v", sec.Name, path, err)
		}
		blobs = append(blobs, dat)
	}
	return blobs, nil
}

// machoData returns the string and constant sections of every slice
func machoData(path string) ([][]byte, error) {
	var files []*macho.File

	fat, err := macho.OpenFat(path)
	if err != nil && err != macho.ErrNotFat {
		return nil, fmt.Errorf("failed to open universal Mach-O %s: %v", path, err)
	}
	if err == macho.ErrNotFat {
		m, err := macho.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open Mach-O %s: %v", path, err)
		}
		defer m.Close()
		files = append(files, m)
	} else {
		defer fat.Close()
		for _, arch := range fat.Arches {
			files = append(files, arch.File)
		}
	}

	var blobs [][]byte
	for _, m := range files {
		for _, sec := range m.Sections {
			if !sec.Flags.IsCstringLiterals() && sec.Name != "__const" && sec.Name != "__rodata" {
				continue
			}
			dat, err := sec.Data()
			if err != nil {
				return nil, fmt.Errorf("failed to read section %s.%s of %s: %v", sec.Seg, sec.Name, path, err)
			}
			blobs = append(blobs, dat)
		}
	}
	return blobs, nil
}
