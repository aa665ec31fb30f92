package dictionary

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/apex/log"
	"golang.org/x/sync/errgroup"
)

// DefaultManConfigs are the man-db configuration files of Debian and Red Hat
// based systems.
var DefaultManConfigs = []string{"/etc/manpath.config", "/etc/man_db.conf"}

// ManPaths returns the manual folders named by the MANDATORY_MANPATH and
// MANPATH_MAP lines of the given configuration files. Missing files are
// skipped.
func ManPaths(configs ...string) ([]string, error) {
	var paths []string
	for _, conf := range configs {
		f, err := os.Open(conf)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to open man config: %w", err)
		}
		s := bufio.NewScanner(f)
		for s.Scan() {
			line := s.Text()
			if !strings.HasPrefix(line, "MANDATORY_MANPATH") && !strings.HasPrefix(line, "MANPATH_MAP") {
				continue
			}
			if fields := strings.Fields(line); len(fields) > 1 && !slices.Contains(paths, fields[len(fields)-1]) {
				paths = append(paths, fields[len(fields)-1])
			}
		}
		f.Close()
		if err := s.Err(); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", conf, err)
		}
	}
	return paths, nil
}

// manPages returns the gzipped pages below the given folders
func manPages(dirs []string) ([]string, error) {
	var pages []string
	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == dir && errors.Is(err, fs.ErrNotExist) {
					return fs.SkipDir
				}
				log.WithError(err).WithField("path", path).Debug("skipping unreadable man folder")
				return nil
			}
			if !d.IsDir() && strings.HasSuffix(d.Name(), ".gz") {
				pages = append(pages, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
		}
	}
	return pages, nil
}

// PageArguments returns the distinct options a gzipped manual page documents.
// Pages that are not UTF-8 are translations and yield nothing.
func PageArguments(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer zr.Close()
	dat, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if !utf8.Valid(dat) {
		return nil, nil
	}
	// roff escapes the dashes of options
	dat = bytes.ReplaceAll(dat, []byte(`\-`), []byte("-"))
	args := FindArguments(dat)
	slices.Sort(args)
	return slices.Compact(args), nil
}

func (g *Generator) manArguments(ctx context.Context) ([]string, error) {
	configs := g.ManConfigs
	if len(configs) == 0 {
		configs = DefaultManConfigs
	}
	dirs, err := ManPaths(configs...)
	if err != nil {
		return nil, err
	}
	pages, err := manPages(dirs)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"folders": len(dirs), "pages": len(pages)}).Debug("reading manual pages")

	var mu sync.Mutex
	seen := make(map[string]struct{})
	eg, ctx := errgroup.WithContext(ctx)
	if g.Parallelism > 0 {
		eg.SetLimit(g.Parallelism)
	}
	for _, page := range pages {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			args, err := PageArguments(page)
			if err != nil {
				log.WithError(err).Debug("skipping manual page")
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			for _, a := range args {
				seen[a] = struct{}{}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	args := make([]string, 0, len(seen))
	for a := range seen {
		args = append(args, a)
	}
	slices.Sort(args)
	return args, nil
}
