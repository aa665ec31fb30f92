package magic

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

type Magic uint32

const (
	Magic32    Magic = 0xfeedface
	Magic64    Magic = 0xfeedfacf
	MagicFatBE Magic = 0xcafebabe
	MagicFatLE Magic = 0xbebafeca
)

var elfMagic = []byte("\x7fELF")

// Format is an executable image format
type Format uint8

const (
	Unknown Format = iota
	ELF
	MachO
)

func (f Format) String() string {
	switch f {
	case ELF:
		return "ELF"
	case MachO:
		return "Mach-O"
	default:
		return "unknown"
	}
}

// Detect sniffs the image format of the file at filePath
func Detect(filePath string) (Format, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return Unknown, fmt.Errorf("failed to open file %s: %w", filePath, err)
	}
	defer f.Close()
	return DetectReader(f)
}

// DetectReader sniffs the image format from the first bytes of r
func DetectReader(r io.Reader) (Format, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return Unknown, fmt.Errorf("failed to read magic: %w", err)
	}
	if bytes.Equal(magic[:], elfMagic) {
		return ELF, nil
	}
	switch Magic(binary.LittleEndian.Uint32(magic[:])) {
	case Magic32, Magic64, MagicFatBE, MagicFatLE:
		return MachO, nil
	}
	switch Magic(binary.BigEndian.Uint32(magic[:])) {
	case Magic32, Magic64:
		return MachO, nil
	}
	return Unknown, nil
}

func IsMachO(filePath string) (bool, error) {
	format, err := Detect(filePath)
	if err != nil {
		return false, err
	}
	if format != MachO {
		return false, fmt.Errorf("not a macho file")
	}
	return true, nil
}

func IsELF(filePath string) (bool, error) {
	format, err := Detect(filePath)
	if err != nil {
		return false, err
	}
	if format != ELF {
		return false, fmt.Errorf("not an ELF file")
	}
	return true, nil
}
