//go:build linux || darwin

package analysis

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blacktop/fptrace/pkg/fingerprint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// the script stands in for a target running under the tracer library: it
// writes the record the tracer would emit at exit.
const fakeTracedTarget = `#!/bin/sh
key=$(printf '%s' "$*" | od -An -tx1 | tr -d ' \n' | tr a-f A-F)
[ -z "$key" ] && key=none
if [ "$1" = "-" ]; then
	read line
fi
marker=0
[ -f "$1" ] && marker=1
echo "$# 5381 $marker" > "$FPTRACE_OUTPUT/$key"
`

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	dir := t.TempDir()
	target := filepath.Join(dir, "target.sh")
	require.NoError(t, os.WriteFile(target, []byte(fakeTracedTarget), 0o755))
	return &Runner{
		Target:    target,
		TracerLib: filepath.Join(dir, "libfptrace.so"),
		WorkDir:   dir,
		Timeout:   2 * time.Second,
	}
}

func TestRunnerRun(t *testing.T) {
	r := newTestRunner(t)
	canary, err := PlantCanary(r.WorkDir)
	require.NoError(t, err)

	res, err := r.Run(context.Background(), []string{canary}, nil)
	require.NoError(t, err)
	assert.False(t, res.TimedOut)
	assert.Equal(t, 0, res.ExitCode)
	require.NotNil(t, res.Record)
	assert.Equal(t, 1, res.Record.BlockCount)
	assert.Equal(t, fingerprint.HashSeed, res.Record.Hash)
	assert.True(t, res.Record.Marker)
	assert.Equal(t, fingerprint.OutputKey([]string{canary}), res.Record.Key)

	res, err = r.Analyze(context.Background(), None())
	require.NoError(t, err)
	assert.Equal(t, "none", res.Record.Key)
	assert.False(t, res.Record.Marker)
}

func TestRunnerTimeout(t *testing.T) {
	r := newTestRunner(t)
	r.Timeout = 200 * time.Millisecond

	res, err := r.Run(context.Background(), []string{"-"}, nil)
	assert.ErrorIs(t, err, ErrNoRecord)
	require.NotNil(t, res)
	assert.True(t, res.TimedOut)
	assert.Equal(t, []Role{RoleStdinEnabler}, Classify(Flag("-"), res, nil))
}

func TestRunnerStdin(t *testing.T) {
	r := newTestRunner(t)
	r.Stdin = []byte("hello\n")
	res, err := r.Run(context.Background(), []string{"-"}, nil)
	require.NoError(t, err)
	assert.False(t, res.TimedOut)
	assert.Equal(t, 1, res.Record.BlockCount)
}

func TestRunnerVerify(t *testing.T) {
	_, err := (&Runner{TracerLib: "x.so"}).Run(context.Background(), nil, nil)
	assert.Error(t, err)
	_, err = (&Runner{Target: "/bin/true"}).Run(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestRunnerRelativeWorkDir(t *testing.T) {
	r := newTestRunner(t)
	t.Chdir(r.WorkDir)
	require.NoError(t, os.Mkdir("work", 0o755))
	r.WorkDir = "work"

	for range 2 {
		res, err := r.Run(context.Background(), []string{"-v"}, nil)
		require.NoError(t, err)
		assert.Equal(t, fingerprint.OutputKey([]string{"-v"}), res.Record.Key)
	}
	assert.Empty(t, r.OutputDir)
	assert.FileExists(t, filepath.Join("work", DefaultOutputDir, fingerprint.OutputKey([]string{"-v"})))
	assert.NoDirExists(t, filepath.Join("work", "work"))
}

func TestRunnerConcurrentBaseline(t *testing.T) {
	r := newTestRunner(t)
	f := &Fuzzer{Analyzer: r, RandomBaseline: 3, Parallelism: 4}

	hashes, err := f.Baseline(context.Background())
	require.NoError(t, err)
	// the fake target hashes nothing but the seed
	assert.Equal(t, []uint64{fingerprint.HashSeed}, hashes)
	assert.Equal(t, 2*time.Second, r.Timeout)
	assert.Empty(t, r.OutputDir)
}
