package analysis

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/apex/log"
	"golang.org/x/sync/errgroup"
)

var helpFlags = []string{"-h", "--help"}

// Fuzzer exercises a target with candidate arguments and keeps the ones whose
// fingerprint shows they change its behavior.
type Fuzzer struct {
	Analyzer   Analyzer
	Dictionary []string
	CanaryPath string
	// RandomBaseline adds that many random single and double dash flags to
	// the baseline runs.
	RandomBaseline int
	Parallelism    int

	baseline []uint64
	seen     []uint64
}

func (f *Fuzzer) analyze(ctx context.Context, arg Argument) (*Result, error) {
	res, err := f.Analyzer.Analyze(ctx, arg)
	if err != nil {
		if errors.Is(err, ErrNoRecord) && res != nil {
			log.WithField("arg", arg).Debug("no record")
			return res, nil
		}
		return nil, fmt.Errorf("failed to analyze %q: %w", arg, err)
	}
	return res, nil
}

func randomFlag(dashes int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	b := make([]byte, dashes, dashes+10)
	for i := range b {
		b[i] = '-'
	}
	for range 10 {
		b = append(b, letters[rand.IntN(len(letters))])
	}
	return string(b)
}

// BaselineArguments returns the arguments whose runs define normal behavior
func (f *Fuzzer) BaselineArguments() []Argument {
	args := []Argument{None()}
	for _, h := range helpFlags {
		args = append(args, Flag(h))
	}
	for _, dashes := range []int{1, 2} {
		for range f.RandomBaseline {
			args = append(args, Flag(randomFlag(dashes)))
		}
	}
	return args
}

// Baseline runs the baseline arguments and records their hashes
func (f *Fuzzer) Baseline(ctx context.Context) ([]uint64, error) {
	args := f.BaselineArguments()

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	if f.Parallelism > 0 {
		g.SetLimit(f.Parallelism)
	}
	for _, arg := range args {
		g.Go(func() error {
			res, err := f.analyze(ctx, arg)
			if err != nil {
				return err
			}
			if res.Record == nil {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			if !slices.Contains(f.baseline, res.Record.Hash) {
				f.baseline = append(f.baseline, res.Record.Hash)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("baseline failed: %w", err)
	}
	slices.Sort(f.baseline)
	log.WithField("hashes", len(f.baseline)).Info("baseline computed")
	return f.baseline, nil
}

// check classifies arg and reports whether it is a new valid argument. Every
// hash is remembered so "-x <string>" is not reported again after "-x".
func (f *Fuzzer) check(arg *Argument, res *Result) bool {
	arg.Roles = Classify(*arg, res, f.baseline)
	valid := len(arg.Roles) > 0
	if res.Record != nil {
		if slices.Contains(f.seen, res.Record.Hash) {
			valid = false
		}
		f.seen = append(f.seen, res.Record.Hash)
	}
	return valid
}

// Fuzz runs the fuzzing sequence and returns the valid arguments with their
// roles. Baseline is computed first when it has not been run.
func (f *Fuzzer) Fuzz(ctx context.Context) ([]Argument, error) {
	if f.Analyzer == nil {
		return nil, fmt.Errorf("analyzer is required")
	}
	if f.baseline == nil {
		if _, err := f.Baseline(ctx); err != nil {
			return nil, err
		}
	}

	var valid []Argument
	try := func(arg Argument) (Argument, error) {
		res, err := f.analyze(ctx, arg)
		if err != nil {
			return arg, err
		}
		if f.check(&arg, res) {
			log.WithFields(log.Fields{
				"arg":   arg,
				"roles": arg.Roles,
			}).Info("valid argument")
			valid = append(valid, arg)
		}
		return arg, nil
	}

	if f.CanaryPath != "" {
		file, err := try(File(f.CanaryPath))
		if err != nil {
			return nil, err
		}
		if !file.HasRole(RoleFileEnabler) {
			for _, word := range f.Dictionary {
				if _, err := try(FlagFile(word, f.CanaryPath)); err != nil {
					return nil, err
				}
			}
		}
	}

	seq := []Argument{Flag("-"), None()}
	for _, word := range f.Dictionary {
		seq = append(seq, Flag(word), FlagString(word, CanaryString))
	}
	for _, arg := range seq {
		if err := ctx.Err(); err != nil {
			return valid, err
		}
		if _, err := try(arg); err != nil {
			return nil, err
		}
	}
	return valid, nil
}
