package symbols

import (
	"fmt"

	"github.com/blacktop/fptrace/internal/magic"
)

// Load reads the symbol table of the image at path, sniffing its format
func Load(path string) (*Table, error) {
	format, err := magic.Detect(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case magic.ELF:
		return LoadELF(path)
	case magic.MachO:
		return LoadMachO(path)
	default:
		return nil, fmt.Errorf("%s: unsupported image format", path)
	}
}
