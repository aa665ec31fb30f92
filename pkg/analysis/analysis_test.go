package analysis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/blacktop/fptrace/pkg/fingerprint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgument(t *testing.T) {
	assert.Empty(t, None().Args())
	assert.Equal(t, "<none>", None().String())
	assert.Equal(t, []string{"-v"}, Flag("-v").Args())
	assert.Equal(t, []string{"-o", "string"}, FlagString("-o", CanaryString).Args())
	assert.Equal(t, []string{"/tmp/canary.opencrs"}, File("/tmp/canary.opencrs").Args())
	assert.Equal(t, "-f /tmp/c", FlagFile("-f", "/tmp/c").String())
	assert.Equal(t, "flag+file", KindFlagFile.String())
	assert.Equal(t, "STRING_ENABLER", RoleStringEnabler.String())
}

func TestClassify(t *testing.T) {
	baseline := []uint64{10, 20}
	rec := func(hash uint64, marker bool) *Result {
		return &Result{Record: &fingerprint.Record{Hash: hash, Marker: marker}}
	}
	tests := []struct {
		name string
		arg  Argument
		res  *Result
		want []Role
	}{
		{"flag changes hash", Flag("-v"), rec(30, false), []Role{RoleFlag}},
		{"flag like baseline", Flag("-v"), rec(20, false), nil},
		{"flag waits on stdin", Flag("-"), &Result{TimedOut: true}, []Role{RoleStdinEnabler}},
		{"flag waits and differs", Flag("-i"), &Result{TimedOut: true, Record: &fingerprint.Record{Hash: 1}}, []Role{RoleStdinEnabler, RoleFlag}},
		{"string", FlagString("-o", "x"), rec(31, false), []Role{RoleStringEnabler}},
		{"string like baseline", FlagString("-o", "x"), rec(10, false), nil},
		{"file opened", File("/c"), rec(10, true), []Role{RoleFileEnabler}},
		{"file ignored", File("/c"), rec(99, false), nil},
		{"flag file", FlagFile("-f", "/c"), rec(10, true), []Role{RoleFileEnabler}},
		{"none on stdin", None(), &Result{TimedOut: true}, []Role{RoleStdinEnabler}},
		{"none", None(), rec(77, false), nil},
		{"no result", Flag("-v"), nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.arg, tt.res, baseline))
		})
	}
}

func TestPlantCanary(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "work")
	path, err := PlantCanary(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, CanaryFilename), path)
	assert.True(t, strings.Contains(path, fingerprint.DefaultMarker))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "canary", string(data))
}

// fakeTarget models a program with -v (changes control flow), -o <string>,
// -f <file> and a positional "-" reading stdin.
type fakeTarget struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeTarget) Analyze(_ context.Context, arg Argument) (*Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, arg.String())
	f.mu.Unlock()

	hash := uint64(100) // usage message
	var marker bool
	switch {
	case arg.Kind == KindNone, arg.Flag == "-h", arg.Flag == "--help":
		hash = 100
	case arg.Flag == "-v" && arg.Kind == KindFlag:
		hash = 200
	case arg.Flag == "-o" && arg.Kind == KindFlag:
		hash = 300 // missing operand
	case arg.Flag == "-o" && arg.Kind == KindFlagString:
		hash = 301
	case arg.Flag == "-v" && arg.Kind == KindFlagString:
		hash = 200 // string ignored
	case arg.Flag == "-f" && arg.Kind == KindFlagFile:
		hash, marker = 400, true
	case arg.Flag == "-":
		return &Result{TimedOut: true}, ErrNoRecord
	}
	return &Result{Record: &fingerprint.Record{Hash: hash, Marker: marker}}, nil
}

func TestFuzz(t *testing.T) {
	target := &fakeTarget{}
	f := &Fuzzer{
		Analyzer:   target,
		Dictionary: []string{"-v", "-o", "-f"},
		CanaryPath: "/tmp/canary.opencrs",
	}
	valid, err := f.Fuzz(context.Background())
	require.NoError(t, err)

	got := make(map[string][]Role)
	for _, arg := range valid {
		got[arg.String()] = arg.Roles
	}
	assert.Equal(t, map[string][]Role{
		"-f /tmp/canary.opencrs": {RoleFileEnabler},
		"-":                      {RoleStdinEnabler},
		"-v":                     {RoleFlag},
		"-o":                     {RoleFlag},
		"-o string":              {RoleStringEnabler},
	}, got)
	assert.Contains(t, target.calls, "/tmp/canary.opencrs")
}

func TestFuzzSkipsFlagFileWhenPositionalFileWorks(t *testing.T) {
	target := AnalyzerFunc(func(_ context.Context, arg Argument) (*Result, error) {
		if arg.Kind == KindFlagFile {
			t.Errorf("unexpected flag+file attempt %s", arg)
		}
		return &Result{Record: &fingerprint.Record{Hash: 1, Marker: arg.Kind == KindFile}}, nil
	})
	f := &Fuzzer{Analyzer: target, Dictionary: []string{"-f"}, CanaryPath: "/tmp/canary.opencrs"}
	valid, err := f.Fuzz(context.Background())
	require.NoError(t, err)
	require.Len(t, valid, 1)
	assert.Equal(t, KindFile, valid[0].Kind)
}

func TestFuzzAnalyzerFailure(t *testing.T) {
	f := &Fuzzer{Analyzer: AnalyzerFunc(func(context.Context, Argument) (*Result, error) {
		return nil, errors.New("exec format error")
	})}
	_, err := f.Fuzz(context.Background())
	assert.ErrorContains(t, err, "exec format error")
}

func TestBaselineRandom(t *testing.T) {
	f := &Fuzzer{RandomBaseline: 3, Parallelism: 2}
	args := f.BaselineArguments()
	require.Len(t, args, 3+6)
	for _, arg := range args[3:6] {
		assert.True(t, strings.HasPrefix(arg.Flag, "-") && !strings.HasPrefix(arg.Flag, "--"), arg.Flag)
		assert.Len(t, arg.Flag, 11)
	}
	for _, arg := range args[6:] {
		assert.True(t, strings.HasPrefix(arg.Flag, "--"), arg.Flag)
	}
}
