package dictionary

import (
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// embedded in the test binary's read-only data
var selfUsage = "usage: dictionary.test\t--dictionary-selftest"

func writePage(t *testing.T, path string, content []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(content)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestParseHeuristic(t *testing.T) {
	h, err := ParseHeuristic("MAN")
	require.NoError(t, err)
	assert.Equal(t, Man, h)
	_, err = ParseHeuristic("ghidra")
	assert.Error(t, err)
}

func TestLetters(t *testing.T) {
	args := Letters()
	assert.Len(t, args, 62)
	assert.Equal(t, "-a", args[0])
	assert.Contains(t, args, "-Z")
	assert.Equal(t, "-9", args[61])
}

func TestFindArguments(t *testing.T) {
	text := []byte("-x at start\n  -v, --verbose\tprint more a--no-space a-b ---three -_bad\n")
	assert.Equal(t, []string{"-v", "--verbose"}, FindArguments(text))
}

func TestTop(t *testing.T) {
	args := []string{"-b", "-a", "-a", "-c", "-c", "-c", "-b", "-d"}
	assert.Equal(t, []string{"-c", "-b", "-a"}, Top(args, 3))
	// ties keep first-seen order
	assert.Equal(t, []string{"-c", "-b"}, Top(args, 2))
	assert.Equal(t, []string{"-c", "-b", "-a", "-d"}, Top(args, 0))
	assert.Len(t, Top(args, 100), 4)
	assert.Empty(t, Top(nil, 3))
}

func TestWriteRead(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, []string{"-v", "--help", "-a", "-v"}))
	assert.Equal(t, "--help\n-a\n-v\n", buf.String())

	args, err := Read(strings.NewReader("# generated\n--help\n\n  -a \n-v\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"--help", "-a", "-v"}, args)
}

func TestManPaths(t *testing.T) {
	dir := t.TempDir()
	conf := filepath.Join(dir, "manpath.config")
	require.NoError(t, os.WriteFile(conf, []byte(strings.Join([]string{
		"# MANDATORY_MANPATH /commented",
		"MANDATORY_MANPATH\t\t\t/usr/man",
		"MANDATORY_MANPATH\t\t\t/usr/share/man",
		"MANPATH_MAP\t/bin\t\t\t/usr/share/man",
		"MANPATH_MAP\t/opt/bin\t\t/opt/man",
		"MANDB_MAP\t/usr/man\t\t/var/cache/man/fsstnd",
		"",
	}, "\n")), 0o644))

	paths, err := ManPaths(conf, filepath.Join(dir, "man_db.conf"))
	require.NoError(t, err)
	assert.Equal(t, []string{"/usr/man", "/usr/share/man", "/opt/man"}, paths)
}

func TestGenerateMan(t *testing.T) {
	dir := t.TempDir()
	man := filepath.Join(dir, "man")
	other := filepath.Join(dir, "other")
	writePage(t, filepath.Join(man, "man1", "xxd.1.gz"), []byte(".TP\n\\-r | \\-revert\nreverse operation\n.TP\n\\-c cols\n"))
	writePage(t, filepath.Join(other, "man1", "cat.1.gz"), []byte(".TP\n\\-v, \\-\\-show\\-nonprinting\n.TP\n\\-r\n"))
	// translations are skipped
	writePage(t, filepath.Join(man, "de", "man1", "xxd.1.gz"), []byte("\xff\xfe -k\n"))
	require.NoError(t, os.WriteFile(filepath.Join(man, "man1", "broken.1.gz"), []byte("not gzip -z"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(man, "man1", "plain.1"), []byte(" -p\n"), 0o644))

	conf := filepath.Join(dir, "man_db.conf")
	require.NoError(t, os.WriteFile(conf, []byte(
		"MANDATORY_MANPATH "+man+"\nMANPATH_MAP /bin "+other+"\nMANPATH_MAP /sbin "+filepath.Join(dir, "missing")+"\n",
	), 0o644))

	g := &Generator{ManConfigs: []string{conf}, Parallelism: 2}
	args, err := g.Generate(context.Background(), Man)
	require.NoError(t, err)
	assert.Equal(t, []string{"--show-nonprinting", "-c", "-r", "-revert", "-v"}, args)
}

func TestGenerateManCanceled(t *testing.T) {
	dir := t.TempDir()
	writePage(t, filepath.Join(dir, "man", "man1", "a.1.gz"), []byte(" -a\n"))
	conf := filepath.Join(dir, "manpath.config")
	require.NoError(t, os.WriteFile(conf, []byte("MANDATORY_MANPATH "+filepath.Join(dir, "man")+"\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&Generator{ManConfigs: []string{conf}}).Generate(ctx, Man)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerateBinary(t *testing.T) {
	_, err := (&Generator{}).Generate(context.Background(), Binary)
	assert.Error(t, err)

	exe, err := os.Executable()
	require.NoError(t, err)
	require.NotEmpty(t, selfUsage)
	args, err := (&Generator{Target: exe}).Generate(context.Background(), Binary)
	require.NoError(t, err)
	assert.Contains(t, args, "--dictionary-selftest")
}

func TestBinaryArgumentsUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\ncase $1 in\n  -h|--help) usage;;\n  -v) verbose;;\nesac\n -v\n"), 0o755))

	args, err := BinaryArguments(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"-h", "-v", "-v"}, args)
	assert.Equal(t, []string{"-v", "-h"}, Top(args, 0))
}
