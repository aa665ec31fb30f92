// Package dictionary builds the candidate argument lists the fuzzer tries
// against a target.
package dictionary

import (
	"bufio"
	"cmp"
	"context"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strings"
)

// Heuristic is a way of collecting candidate arguments
type Heuristic string

const (
	Man        Heuristic = "man"        // options documented in the installed manual pages
	Binary     Heuristic = "binary"     // option-like strings embedded in the target
	Generation Heuristic = "generation" // every single character flag
)

// Heuristics lists the available heuristics
var Heuristics = []Heuristic{Man, Binary, Generation}

// ArgumentPattern matches an option preceded by whitespace, like " --verbose"
var ArgumentPattern = regexp.MustCompile(`\s-{1,2}[a-zA-Z0-9][a-zA-Z0-9_-]*`)

// ParseHeuristic returns the heuristic called name
func ParseHeuristic(name string) (Heuristic, error) {
	h := Heuristic(strings.ToLower(name))
	if !slices.Contains(Heuristics, h) {
		return "", fmt.Errorf("unknown heuristic %q (available: %v)", name, Heuristics)
	}
	return h, nil
}

// Generator collects candidate arguments
type Generator struct {
	// ManConfigs are the man-db configuration files naming the manual folders
	// (default DefaultManConfigs)
	ManConfigs []string
	// Target is the executable scanned by the binary heuristic
	Target string
	// Parallelism bounds the number of manual pages read at once
	Parallelism int
}

// Generate returns the arguments found by h. Duplicates are kept so Top can
// rank them by frequency.
func (g *Generator) Generate(ctx context.Context, h Heuristic) ([]string, error) {
	switch h {
	case Man:
		return g.manArguments(ctx)
	case Binary:
		if g.Target == "" {
			return nil, fmt.Errorf("the %s heuristic needs a target", h)
		}
		return BinaryArguments(g.Target)
	case Generation:
		return Letters(), nil
	default:
		return nil, fmt.Errorf("unknown heuristic %q", h)
	}
}

// Letters returns "-<c>" for every ASCII letter and digit
func Letters() []string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	args := make([]string, 0, len(alphabet))
	for _, c := range alphabet {
		args = append(args, "-"+string(c))
	}
	return args
}

// FindArguments returns every option in text, without its leading whitespace
func FindArguments(text []byte) []string {
	var args []string
	for _, m := range ArgumentPattern.FindAll(text, -1) {
		args = append(args, strings.TrimLeft(string(m), " \t\r\n\v\f"))
	}
	return args
}

// Top keeps the n most frequent arguments. Ties keep the order in which the
// arguments were first seen. A non-positive n keeps every distinct argument.
func Top(args []string, n int) []string {
	counts := make(map[string]int)
	var uniq []string
	for _, a := range args {
		if counts[a] == 0 {
			uniq = append(uniq, a)
		}
		counts[a]++
	}
	slices.SortStableFunc(uniq, func(a, b string) int {
		return cmp.Compare(counts[b], counts[a])
	})
	if n > 0 && n < len(uniq) {
		uniq = uniq[:n]
	}
	return uniq
}

// Write writes the distinct arguments to w, sorted, one per line
func Write(w io.Writer, args []string) error {
	args = slices.Clone(args)
	slices.Sort(args)
	args = slices.Compact(args)
	bw := bufio.NewWriter(w)
	for _, a := range args {
		if _, err := fmt.Fprintln(bw, a); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Read parses a dictionary written by Write. Blank lines and lines starting
// with '#' are skipped.
func Read(r io.Reader) ([]string, error) {
	var args []string
	s := bufio.NewScanner(r)
	for s.Scan() {
		if a := strings.TrimSpace(s.Text()); a != "" && !strings.HasPrefix(a, "#") {
			args = append(args, a)
		}
	}
	return args, s.Err()
}
