package emu

import (
	"encoding/binary"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/blacktop/fptrace/pkg/fingerprint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assemble hex encodes little endian instruction words followed by data
func assemble(data []byte, words ...uint32) string {
	buf := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[4*i:], w)
	}
	return hex.EncodeToString(append(buf, data...))
}

func TestAlign(t *testing.T) {
	addr, size := Align(0x1234, 0x10)
	assert.Equal(t, uint64(0x1000), addr)
	assert.Equal(t, uint64(0x1000), size)
	addr, size = Align(0x1ff0, 0x20, true)
	assert.Equal(t, uint64(0x1000), addr)
	assert.Equal(t, uint64(0x2000), size)
}

func TestMemMap(t *testing.T) {
	m := NewMemMap()
	code, err := m.Map(0x10010, 0x20, fingerprint.PermRead|fingerprint.PermExec, "[program]")
	require.NoError(t, err)
	assert.Equal(t, uint64(0x10000), code.Addr)
	assert.Equal(t, uint64(PageSize), code.Size)

	_, err = m.Map(0x8000, 0x1000, fingerprint.PermRead|fingerprint.PermWrite, "[stack]")
	require.NoError(t, err)
	_, err = m.Map(0x10800, 0x10, fingerprint.PermRead, "overlap")
	assert.Error(t, err)
	_, err = m.Map(0x20000, 0, fingerprint.PermRead, "empty")
	assert.Error(t, err)

	assert.Equal(t, []fingerprint.MapEntry{
		{Start: 0x8000, End: 0x9000, Perms: fingerprint.PermRead | fingerprint.PermWrite, Path: "[stack]"},
		{Start: 0x10000, End: 0x11000, Perms: fingerprint.PermRead | fingerprint.PermExec, Path: "[program]"},
	}, m.Entries())
	assert.Equal(t, "[program]", m.Find(0x10fff).Name)
	assert.Nil(t, m.Find(0x11000))
	assert.Contains(t, m.String(), "0x10000-0x11000 r-x [program]")

	m.Remove(0x8800)
	assert.False(t, m.Contains(0x8000))
	assert.Len(t, m.Pages, 1)
}

const programYAML = `
base: 0x10000
code: |
  1f2003d5 c0035fd6
stubs: [fopen, fclose, exit]
args: ["-f", "input"]
registers:
  x1: 0x20
  SP: 4096
`

func TestDecodeProgram(t *testing.T) {
	p, err := DecodeProgram(strings.NewReader(programYAML))
	require.NoError(t, err)
	assert.Equal(t, uint64(0x10000), p.Entry)
	assert.Equal(t, DefaultStubBase, p.StubBase)
	assert.Len(t, p.Bytes(), 8)
	assert.Equal(t, uint64(0x10008), p.End())

	addr, ok := p.StubAddr("fclose")
	require.True(t, ok)
	assert.Equal(t, DefaultStubBase+StubSlot, addr)
	_, ok = p.StubAddr("close")
	assert.False(t, ok)

	sym, err := p.StubTable().Resolve(addr + 4)
	require.NoError(t, err)
	require.NotNil(t, sym)
	assert.Equal(t, "fclose", sym.Name)
	assert.Equal(t, addr, sym.Base)

	regs, err := p.RegisterValues()
	require.NoError(t, err)
	assert.Equal(t, map[string]uint64{"x1": 0x20, "sp": 4096}, regs)

	var sb strings.Builder
	require.NoError(t, p.Dump(&sb))
	again, err := DecodeProgram(strings.NewReader(sb.String()))
	require.NoError(t, err)
	assert.Equal(t, p.Bytes(), again.Bytes())
	assert.Equal(t, p.Stubs, again.Stubs)
}

func TestDecodeProgramErrors(t *testing.T) {
	for name, doc := range map[string]string{
		"bad hex":        "base: 0x1000\ncode: zz\n",
		"no code":        "base: 0x1000\n",
		"entry outside":  "base: 0x1000\nentry: 0x2000\ncode: 1f2003d5\n",
		"overlaps stubs": "base: 0x1000\nstub_base: 0x1000\ncode: 1f2003d5\n",
		"duplicate stub": "base: 0x1000\ncode: 1f2003d5\nstubs: [exit, exit]\n",
		"bad register":   "base: 0x1000\ncode: 1f2003d5\nregisters: {x0: nope}\n",
		"unknown field":  "base: 0x1000\ncode: 1f2003d5\ncount: 3\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeProgram(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestHandleTable(t *testing.T) {
	h := NewHandleTable()
	assert.Equal(t, uintptr(3), h.Open("/etc/hosts"))
	assert.Equal(t, uintptr(4), h.Open("/tmp/canary.opencrs"))
	assert.True(t, h.Close(3))
	assert.False(t, h.Close(3))
	assert.Equal(t, uintptr(3), h.Open("/dev/null"))

	fds, err := h.Handles()
	require.NoError(t, err)
	assert.Equal(t, []uintptr{3, 4}, fds)
	path, err := h.Resolve(4)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/canary.opencrs", path)
	_, err = h.Resolve(9)
	assert.Error(t, err)
}

func TestStubKind(t *testing.T) {
	assert.Equal(t, stubOpen, stubKindOf("fopen"))
	assert.Equal(t, stubClose, stubKindOf("close"))
	assert.Equal(t, stubExit, stubKindOf("_exit"))
	assert.Equal(t, stubReturn, stubKindOf("puts"))
	assert.Equal(t, "close", stubClose.String())
}
