package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/apex/log"
	"github.com/blacktop/fptrace/pkg/fingerprint"
)

const (
	// DefaultTimeout bounds one traced execution
	DefaultTimeout = 5 * time.Second
	// DefaultOutputDir is where the tracer writes its records, relative to the
	// target's working directory.
	DefaultOutputDir = "traces"
	// OutputDirEnv tells the tracer library where to write records
	OutputDirEnv = "FPTRACE_OUTPUT"
)

// ErrNoRecord is returned when the traced target exited without a record
var ErrNoRecord = errors.New("tracer emitted no record")

// Result is the outcome of one traced execution
type Result struct {
	Record   *fingerprint.Record
	TimedOut bool
	ExitCode int
	Duration time.Duration
	Stderr   string
}

// Analyzer runs the target with an argument and fingerprints the execution
type Analyzer interface {
	Analyze(ctx context.Context, arg Argument) (*Result, error)
}

// AnalyzerFunc adapts a function to an Analyzer
type AnalyzerFunc func(ctx context.Context, arg Argument) (*Result, error)

func (f AnalyzerFunc) Analyze(ctx context.Context, arg Argument) (*Result, error) {
	return f(ctx, arg)
}

// Runner launches a target with the tracer library preloaded
type Runner struct {
	Target    string
	TracerLib string
	OutputDir string
	WorkDir   string
	Timeout   time.Duration
	Env       []string
	// Stdin is fed to every execution; nil leaves stdin open and empty
	Stdin []byte
}

// settings resolves the timeout and the absolute record folder of one run.
// The Runner itself is never written, so concurrent runs may share it.
func (r *Runner) settings() (time.Duration, string, error) {
	if r.Target == "" {
		return 0, "", fmt.Errorf("target is required")
	}
	if r.TracerLib == "" {
		return 0, "", fmt.Errorf("tracer library is required")
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	out := r.OutputDir
	if out == "" {
		out = DefaultOutputDir
	}
	if !filepath.IsAbs(out) {
		// the target runs in WorkDir, so the tracer resolves relative folders there
		abs, err := filepath.Abs(filepath.Join(r.WorkDir, out))
		if err != nil {
			return 0, "", fmt.Errorf("failed to resolve output folder %s: %v", out, err)
		}
		out = abs
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return 0, "", fmt.Errorf("failed to create output folder: %v", err)
	}
	return timeout, out, nil
}

// Analyze implements Analyzer
func (r *Runner) Analyze(ctx context.Context, arg Argument) (*Result, error) {
	return r.Run(ctx, arg.Args(), nil)
}

// Run executes the target once with args. The process is killed when the
// timeout expires; a killed process still yields the record its tracer
// flushed, if any.
func (r *Runner) Run(ctx context.Context, args []string, stdin io.Reader) (*Result, error) {
	timeout, outputDir, err := r.settings()
	if err != nil {
		return nil, err
	}

	key := fingerprint.OutputKey(args)
	recordPath := filepath.Join(outputDir, key)
	if err := os.Remove(recordPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove stale record: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.Target, args...)
	cmd.Dir = r.WorkDir
	cmd.Env = append(os.Environ(), r.Env...)
	cmd.Env = append(cmd.Env,
		"LD_PRELOAD="+r.TracerLib,
		"LD_BIND_NOW=1",
		OutputDirEnv+"="+outputDir,
	)
	cmd.Stderr = &stderr
	switch {
	case stdin != nil:
		cmd.Stdin = stdin
	case r.Stdin != nil:
		cmd.Stdin = bytes.NewReader(r.Stdin)
	default:
		// an open pipe that never delivers data, so a target reading stdin blocks
		pr, pw, err := os.Pipe()
		if err != nil {
			return nil, fmt.Errorf("failed to create stdin pipe: %v", err)
		}
		defer pr.Close()
		defer pw.Close()
		cmd.Stdin = pr
	}
	setProcessGroup(cmd)
	cmd.WaitDelay = time.Second

	log.WithFields(log.Fields{
		"target": r.Target,
		"args":   args,
		"key":    key,
	}).Debug("running target")

	start := time.Now()
	err = cmd.Run()
	res := &Result{
		Duration: time.Since(start),
		Stderr:   stderr.String(),
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) && !res.TimedOut {
		return nil, fmt.Errorf("failed to run %s: %v", r.Target, err)
	}

	res.Record, err = fingerprint.ReadRecordFile(recordPath)
	if err != nil {
		if isNotExist(recordPath) {
			return res, fmt.Errorf("%w: %s", ErrNoRecord, recordPath)
		}
		return res, err
	}
	res.Record.Args = args
	return res, nil
}

func isNotExist(path string) bool {
	_, err := os.Stat(path)
	return os.IsNotExist(err)
}
