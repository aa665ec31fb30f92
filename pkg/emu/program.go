package emu

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/blacktop/fptrace/pkg/fingerprint"
	"github.com/blacktop/fptrace/pkg/symbols"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultStubBase places the stubs at the default non-interesting threshold,
	// the way shared libraries sit above the traced image.
	DefaultStubBase = fingerprint.DefaultThreshold
	// StubSlot is the room reserved for each stub
	StubSlot = 0x10
)

// Program describes a flat arm64 program and the library functions it calls
type Program struct {
	Base  uint64 `yaml:"base"`
	Entry uint64 `yaml:"entry,omitempty"`
	// Code is the hex encoded image, instructions and data, loaded at Base.
	Code     string   `yaml:"code"`
	StubBase uint64   `yaml:"stub_base,omitempty"`
	Stubs    []string `yaml:"stubs,omitempty"`
	Args     []string `yaml:"args,omitempty"`
	// Registers holds initial register values; strings may be hex ("0x10").
	Registers       map[string]any `yaml:"registers,omitempty"`
	MaxInstructions uint64         `yaml:"max_instructions,omitempty"`

	code []byte
}

// ParseProgram reads a YAML program file
func ParseProgram(name string) (*Program, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("error reading program file: %v", err)
	}
	defer f.Close()
	return DecodeProgram(f)
}

// DecodeProgram decodes and verifies a YAML program
func DecodeProgram(r io.Reader) (*Program, error) {
	var p Program
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("error unmarshalling program: %v", err)
	}
	if err := p.Verify(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Verify decodes the image and fills the defaults
func (p *Program) Verify() error {
	code, err := hex.DecodeString(strings.Join(strings.Fields(p.Code), ""))
	if err != nil {
		return fmt.Errorf("invalid program code: %v", err)
	}
	if len(code) == 0 {
		return fmt.Errorf("program has no code")
	}
	p.code = code
	if p.Entry == 0 {
		p.Entry = p.Base
	}
	if p.Entry < p.Base || p.Entry >= p.Base+uint64(len(code)) {
		return fmt.Errorf("entry %#x outside of code %#x-%#x", p.Entry, p.Base, p.Base+uint64(len(code)))
	}
	if p.StubBase == 0 {
		p.StubBase = DefaultStubBase
	}
	if addr, size := Align(p.Base, uint64(len(code)), true); addr+size > p.StubBase {
		return fmt.Errorf("code overlaps stubs at %#x", p.StubBase)
	}
	seen := make(map[string]bool, len(p.Stubs))
	for _, name := range p.Stubs {
		if name == "" || seen[name] {
			return fmt.Errorf("invalid or duplicate stub %q", name)
		}
		seen[name] = true
	}
	if _, err := p.RegisterValues(); err != nil {
		return err
	}
	return nil
}

// Bytes returns the decoded image
func (p *Program) Bytes() []byte { return p.code }

// End is the first address past the image
func (p *Program) End() uint64 { return p.Base + uint64(len(p.code)) }

// StubAddr returns where the stub named name is mapped
func (p *Program) StubAddr(name string) (uint64, bool) {
	for i, stub := range p.Stubs {
		if stub == name {
			return p.StubBase + uint64(i)*StubSlot, true
		}
	}
	return 0, false
}

// StubTable is the symbol table of the stub region
func (p *Program) StubTable() *symbols.Table {
	entries := make([]symbols.Entry, 0, len(p.Stubs))
	for i, name := range p.Stubs {
		start := p.StubBase + uint64(i)*StubSlot
		entries = append(entries, symbols.Entry{Name: name, Start: start, End: start + StubSlot})
	}
	return symbols.NewTable("[stubs]", p.StubBase, entries)
}

// RegisterValues returns the initial register values by lowercase name
func (p *Program) RegisterValues() (map[string]uint64, error) {
	regs := make(map[string]uint64, len(p.Registers))
	for name, v := range p.Registers {
		val, err := cast.ToUint64E(v)
		if err != nil {
			return nil, fmt.Errorf("invalid value for register %s: %v", name, err)
		}
		regs[strings.ToLower(name)] = val
	}
	return regs, nil
}

// Dump writes the program as YAML
func (p *Program) Dump(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return err
	}
	return enc.Close()
}
