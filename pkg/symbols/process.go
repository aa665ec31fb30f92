package symbols

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/apex/log"
	"github.com/blacktop/fptrace/pkg/fingerprint"
)

type image struct {
	path  string
	base  uint64 // lowest mapped address of the file
	exec  []fingerprint.MapEntry
	table *Table
	err   error
	once  sync.Once
}

func (i *image) contains(pc uint64) bool {
	for _, m := range i.exec {
		if pc >= m.Start && pc < m.End {
			return true
		}
	}
	return false
}

// ProcessResolver resolves addresses of a live process against the symbol
// tables of the files it maps. Tables are loaded on first use.
type ProcessResolver struct {
	Mapper fingerprint.MemoryMapper
	// Loader reads a symbol table; defaults to Load.
	Loader func(path string) (*Table, error)
	// RefreshOnMiss re-reads the memory map when no image contains a pc,
	// to pick up libraries loaded after startup.
	RefreshOnMiss bool

	mu     sync.Mutex
	images []*image
	loaded map[string]*image
}

// NewProcessResolver reads the memory map of the process behind mapper
func NewProcessResolver(mapper fingerprint.MemoryMapper) (*ProcessResolver, error) {
	r := &ProcessResolver{
		Mapper: mapper,
		Loader: Load,
		loaded: make(map[string]*image),
	}
	if err := r.Refresh(); err != nil {
		return nil, err
	}
	return r, nil
}

// Refresh rebuilds the image list from the current memory map, keeping the
// tables already loaded.
func (r *ProcessResolver) Refresh() error {
	maps, err := r.Mapper.Maps()
	if err != nil {
		return fmt.Errorf("failed to read memory map: %v", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded == nil {
		r.loaded = make(map[string]*image)
	}
	byPath := make(map[string]*image)
	var images []*image
	for _, m := range maps {
		if !strings.HasPrefix(m.Path, "/") {
			continue // anonymous, [heap], [vdso] ...
		}
		img, ok := byPath[m.Path]
		if !ok {
			if prev, ok := r.loaded[m.Path]; ok && prev.base == m.Start {
				img = prev
				img.exec = nil
			} else {
				img = &image{path: m.Path, base: m.Start}
			}
			byPath[m.Path] = img
			images = append(images, img)
		}
		if m.Start < img.base {
			img.base = m.Start
		}
		if m.Executable() {
			img.exec = append(img.exec, m)
		}
	}
	sort.Slice(images, func(i, j int) bool { return images[i].base < images[j].base })
	r.images = images
	r.loaded = byPath
	return nil
}

func (r *ProcessResolver) find(pc uint64) *image {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, img := range r.images {
		if img.contains(pc) {
			return img
		}
	}
	return nil
}

// Resolve implements fingerprint.SymbolResolver
func (r *ProcessResolver) Resolve(pc uint64) (*fingerprint.Symbol, error) {
	img := r.find(pc)
	if img == nil && r.RefreshOnMiss {
		if err := r.Refresh(); err != nil {
			return nil, err
		}
		img = r.find(pc)
	}
	if img == nil {
		return nil, nil
	}
	img.once.Do(func() {
		loader := r.Loader
		if loader == nil {
			loader = Load
		}
		img.table, img.err = loader(img.path)
		if img.err != nil {
			log.WithError(img.err).WithField("image", img.path).Debug("no symbols")
		}
	})
	if img.err != nil {
		return nil, img.err
	}
	return img.table.ResolveSlid(pc, img.base-img.table.Preferred)
}

// Images returns the file-backed images of the process and their load bases
func (r *ProcessResolver) Images() map[string]uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]uint64, len(r.images))
	for _, img := range r.images {
		out[img.path] = img.base
	}
	return out
}
