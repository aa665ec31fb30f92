package symbols

import (
	"errors"
	"testing"

	"github.com/blacktop/fptrace/pkg/fingerprint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripStubPrefixes(t *testing.T) {
	assert.Equal(t, "fclose", StripStubPrefixes("j___stub_fclose"))
	assert.Equal(t, "fclose", StripStubPrefixes("__stub_j_fclose"))
	assert.Equal(t, "j_", StripStubPrefixes("j_"))
	assert.Equal(t, "close", StripStubPrefixes("close"))
}

func TestNormalize(t *testing.T) {
	elfNames := map[string]string{
		"fclose":            "fclose",
		"fclose@plt":        "fclose",
		"fclose@@GLIBC_2.1": "fclose",
		"close@GLIBC_2.0":   "close",
		"j_close":           "close",
		"__stub_fclose":     "fclose",
		"@odd":              "@odd",
	}
	for in, want := range elfNames {
		assert.Equal(t, want, NormalizeELF(in), in)
	}
	machoNames := map[string]string{
		"_close":         "close",
		"__stub__fclose": "fclose",
		"_":              "_",
		"main":           "main",
	}
	for in, want := range machoNames {
		assert.Equal(t, want, NormalizeMachO(in), in)
	}
}

func TestTableLookup(t *testing.T) {
	table := NewTable("libc.so", 0, []Entry{
		{Name: "fopen", Start: 0x2000, End: 0x2100},
		{Name: "fclose", Start: 0x1000}, // no size, runs to fopen
		{Name: "_IO_fclose", Start: 0x1000},
		{Name: "", Start: 0x500},
		{Name: "tail", Start: 0x3000},
	})
	require.Equal(t, 4, table.Len())

	tests := []struct {
		addr uint64
		want string
	}{
		{0x1000, "fclose"},
		{0x1fff, "fclose"},
		{0x2000, "fopen"},
		{0x20ff, "fopen"},
		{0x2100, ""}, // gap after a sized symbol
		{0x3000, "tail"},
		{0x3001, ""},
		{0x0fff, ""},
	}
	for _, tt := range tests {
		e, ok := table.Lookup(tt.addr)
		if tt.want == "" {
			assert.False(t, ok, "%#x resolved to %s", tt.addr, e)
			continue
		}
		require.True(t, ok, "%#x", tt.addr)
		assert.Equal(t, tt.want, e.Name, "%#x", tt.addr)
	}
}

func TestTableResolveSlid(t *testing.T) {
	table := NewTable("a.out", 0x100000000, []Entry{{Name: "close", Start: 0x100001000, End: 0x100001010}})
	sym, err := table.ResolveSlid(0x100005004, 0x4000)
	require.NoError(t, err)
	require.NotNil(t, sym)
	assert.Equal(t, &fingerprint.Symbol{Name: "close", Base: 0x100005000}, sym)

	sym, err = table.Resolve(0x100005004)
	require.NoError(t, err)
	assert.Nil(t, sym)
}

func TestProcessResolver(t *testing.T) {
	maps := []fingerprint.MapEntry{
		{Start: 0x08048000, End: 0x08049000, Perms: fingerprint.PermRead | fingerprint.PermExec, Path: "/bin/sample"},
		{Start: 0xf7d00000, End: 0xf7d10000, Perms: fingerprint.PermRead, Path: "/lib/libc.so.6"},
		{Start: 0xf7d10000, End: 0xf7e00000, Perms: fingerprint.PermRead | fingerprint.PermExec, Path: "/lib/libc.so.6"},
		{Start: 0xf7f00000, End: 0xf7f01000, Perms: fingerprint.PermRead | fingerprint.PermExec, Path: "[vdso]"},
		{Start: 0xf7f10000, End: 0xf7f20000, Perms: fingerprint.PermRead | fingerprint.PermExec, Path: "/lib/ld.so"},
	}
	var loads []string
	r, err := NewProcessResolver(fingerprint.MapperFunc(func() ([]fingerprint.MapEntry, error) { return maps, nil }))
	require.NoError(t, err)
	r.Loader = func(path string) (*Table, error) {
		loads = append(loads, path)
		switch path {
		case "/bin/sample":
			return NewTable(path, 0x08048000, []Entry{{Name: "main", Start: 0x08048100, End: 0x08048200}}), nil
		case "/lib/libc.so.6":
			return NewTable(path, 0, []Entry{{Name: "fclose", Start: 0x12000, End: 0x12100}}), nil
		default:
			return nil, errors.New("stripped")
		}
	}

	sym, err := r.Resolve(0x08048150)
	require.NoError(t, err)
	assert.Equal(t, &fingerprint.Symbol{Name: "main", Base: 0x08048100}, sym)

	// libc is slid to its lowest mapping, not its first executable one
	sym, err = r.Resolve(0xf7d12010)
	require.NoError(t, err)
	assert.Equal(t, &fingerprint.Symbol{Name: "fclose", Base: 0xf7d12000}, sym)

	sym, err = r.Resolve(0xf7d13000)
	require.NoError(t, err)
	assert.Nil(t, sym)

	sym, err = r.Resolve(0xf7f00010) // vdso is not file backed
	require.NoError(t, err)
	assert.Nil(t, sym)

	_, err = r.Resolve(0xf7f10010)
	assert.Error(t, err)
	_, err = r.Resolve(0xf7f10020)
	assert.Error(t, err)

	assert.Equal(t, []string{"/bin/sample", "/lib/libc.so.6", "/lib/ld.so"}, loads, "tables are loaded once")
	assert.Equal(t, uint64(0xf7d00000), r.Images()["/lib/libc.so.6"])
}

func TestProcessResolverRefresh(t *testing.T) {
	maps := []fingerprint.MapEntry{
		{Start: 0x1000, End: 0x2000, Perms: fingerprint.PermExec, Path: "/bin/sample"},
	}
	var loads int
	r, err := NewProcessResolver(fingerprint.MapperFunc(func() ([]fingerprint.MapEntry, error) { return maps, nil }))
	require.NoError(t, err)
	r.RefreshOnMiss = true
	r.Loader = func(path string) (*Table, error) {
		loads++
		return NewTable(path, 0, []Entry{{Name: "close", Start: 0x10, End: 0x20}}), nil
	}

	sym, err := r.Resolve(0x1010)
	require.NoError(t, err)
	require.NotNil(t, sym)

	// a library appears after startup
	maps = append(maps, fingerprint.MapEntry{Start: 0x8000, End: 0x9000, Perms: fingerprint.PermExec, Path: "/lib/late.so"})
	sym, err = r.Resolve(0x8010)
	require.NoError(t, err)
	require.NotNil(t, sym)
	assert.Equal(t, uint64(0x8010), sym.Base)

	_, err = r.Resolve(0x1010)
	require.NoError(t, err)
	assert.Equal(t, 2, loads, "tables survive a refresh")
}

type countingResolver struct {
	calls int
	err   error
}

func (c *countingResolver) Resolve(pc uint64) (*fingerprint.Symbol, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	if pc == 0 {
		return nil, nil
	}
	return &fingerprint.Symbol{Name: "close", Base: pc}, nil
}

func TestCache(t *testing.T) {
	next := &countingResolver{}
	c, err := NewCache(next, 2)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		sym, err := c.Resolve(0x10)
		require.NoError(t, err)
		assert.Equal(t, "close", sym.Name)
	}
	assert.Equal(t, 1, next.calls)

	sym, err := c.Resolve(0)
	require.NoError(t, err)
	assert.Nil(t, sym)
	_, _ = c.Resolve(0)
	assert.Equal(t, 2, next.calls, "misses are cached")

	_, _ = c.Resolve(0x20) // evicts 0x10
	_, _ = c.Resolve(0x10)
	assert.Equal(t, 4, next.calls)
	assert.Equal(t, 2, c.Len())

	next.err = errors.New("boom")
	c.Purge()
	_, err = c.Resolve(0x10)
	assert.Error(t, err)
	assert.Equal(t, 0, c.Len(), "errors are not cached")
}
