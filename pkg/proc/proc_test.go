//go:build linux

package proc

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/blacktop/fptrace/pkg/fingerprint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureMaps = `08048000-08049000 r-xp 00000000 08:02 173521 /opt/target/bin/sample
08049000-0804a000 rw-p 00000000 08:02 173521 /opt/target/bin/sample
0804a000-0806b000 rw-p 00000000 00:00 0 [heap]
f7d00000-f7ed0000 r-xp 00000000 08:02 262146 /lib/i386-linux-gnu/libc.so.6
`

// fakeProc lays out a minimal /proc/<pid> tree
func fakeProc(t *testing.T, pid int, fds map[int]string) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, strconv.Itoa(pid))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "fd"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "maps"), []byte(fixtureMaps), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cmdline"), []byte("/opt/target/bin/sample\x00-f\x00input\x00"), 0o644))
	require.NoError(t, os.Symlink("/opt/target/bin/sample", filepath.Join(dir, "exe")))
	for fd, target := range fds {
		require.NoError(t, os.Symlink(target, filepath.Join(dir, "fd", strconv.Itoa(fd))))
	}
	return root
}

func TestMaps(t *testing.T) {
	root := fakeProc(t, 4242, nil)
	p, err := OpenFS(root, 4242)
	require.NoError(t, err)

	maps, err := p.Maps()
	require.NoError(t, err)
	require.Len(t, maps, 4)
	assert.Equal(t, fingerprint.MapEntry{
		Start: 0x08048000,
		End:   0x08049000,
		Perms: fingerprint.PermRead | fingerprint.PermExec,
		Path:  "/opt/target/bin/sample",
	}, maps[0])
	assert.False(t, maps[1].Executable())

	table, err := p.Segments(fingerprint.DefaultThreshold)
	require.NoError(t, err)
	assert.Equal(t, fingerprint.SegmentTable{{Start: 0x08048000, End: 0x08049000, Index: 0}}, table)
}

func TestHandles(t *testing.T) {
	root := fakeProc(t, 4242, map[int]string{
		0: "/dev/pts/1",
		3: "/etc/passwd",
		5: "/tmp/canary.opencrs",
	})
	p, err := OpenFS(root, 4242)
	require.NoError(t, err)

	fds, err := p.Handles()
	require.NoError(t, err)
	assert.ElementsMatch(t, []uintptr{0, 3, 5}, fds)

	path, err := p.Resolve(5)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/canary.opencrs", path)

	_, err = p.Resolve(9)
	assert.Error(t, err)

	fd, path, ok := p.FindMarker(fingerprint.DefaultMarker)
	require.True(t, ok)
	assert.Equal(t, uintptr(5), fd)
	assert.Equal(t, "/tmp/canary.opencrs", path)

	_, _, ok = p.FindMarker("nope")
	assert.False(t, ok)
}

func TestCmdLine(t *testing.T) {
	root := fakeProc(t, 7, nil)
	p, err := OpenFS(root, 7)
	require.NoError(t, err)

	args, err := p.CmdLine()
	require.NoError(t, err)
	assert.Equal(t, []string{"-f", "input"}, args)

	exe, err := p.Executable()
	require.NoError(t, err)
	assert.Equal(t, "/opt/target/bin/sample", exe)
}

func TestRunAgainstFakeProc(t *testing.T) {
	root := fakeProc(t, 99, map[int]string{4: "/tmp/canary.opencrs"})
	p, err := OpenFS(root, 99)
	require.NoError(t, err)

	run, err := fingerprint.NewRun(nil, fingerprint.Host{
		Mapper:  p,
		Handles: p,
		Symbols: closeResolver{},
	})
	require.NoError(t, err)
	require.NoError(t, run.Start())
	run.OpenGate()
	run.OnBasicBlock(fingerprint.BlockEvent{Start: 0x08048100, End: 0x08048120})
	run.OnBasicBlock(fingerprint.BlockEvent{Start: 0xf7d01000, End: 0xf7d01010}) // libc
	run.OnCallTransfer(fingerprint.CallEvent{PC: 0xf7d02000})

	rec, err := run.Finalize(0)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.BlockCount)
	assert.Equal(t, fingerprint.Hash("00000100"), rec.Hash)
	assert.True(t, rec.Marker)
}

func TestOpenSelf(t *testing.T) {
	if _, err := os.Stat("/proc/self/maps"); err != nil {
		t.Skip("no procfs")
	}
	p, err := Open(0)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), p.PID())

	maps, err := p.Maps()
	require.NoError(t, err)
	var exec bool
	for _, m := range maps {
		if m.Executable() {
			exec = true
			break
		}
	}
	assert.True(t, exec, "the test binary must have an executable mapping")

	f, err := os.Create(filepath.Join(t.TempDir(), "self.opencrs"))
	require.NoError(t, err)
	defer f.Close()
	_, path, ok := p.FindMarker(".opencrs")
	require.True(t, ok)
	assert.Equal(t, f.Name(), path)
}

type closeResolver struct{}

func (closeResolver) Resolve(pc uint64) (*fingerprint.Symbol, error) {
	return &fingerprint.Symbol{Name: "fclose", Base: pc}, nil
}
