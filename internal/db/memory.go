package db

import (
	"encoding/gob"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/blacktop/fptrace/internal/model"
	"github.com/pkg/errors"
)

// Memory is a database that stores data in memory and persists it to a gob
// file on Close.
type Memory struct {
	Runs map[string]*model.Run
	Path string

	mu sync.RWMutex
}

// NewInMemory creates a new in-memory database.
func NewInMemory(path string) (Database, error) {
	if path == "" {
		return nil, errors.New("'path' is required")
	}
	return &Memory{
		Runs: make(map[string]*model.Run),
		Path: path,
	}, nil
}

// Connect loads the database file, if it exists.
func (m *Memory) Connect() error {
	f, err := os.Open(m.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := gob.NewDecoder(f).Decode(&m.Runs); err != nil {
		return errors.Wrapf(err, "failed to decode %s", m.Path)
	}
	return nil
}

// Save creates or overwrites a run.
func (m *Memory) Save(run *model.Run) error {
	if err := run.BeforeCreate(nil); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if prev, ok := m.Runs[run.ID]; ok {
		run.CreatedAt = prev.CreatedAt
	} else if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now
	m.Runs[run.ID] = run
	return nil
}

// Get returns the run for the given id.
// It returns ErrNotFound if the id does not exist.
func (m *Memory) Get(id string) (*model.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, exists := m.Runs[id]
	if !exists {
		return nil, model.ErrNotFound
	}
	return run, nil
}

func (m *Memory) filter(keep func(*model.Run) bool) []*model.Run {
	m.mu.RLock()
	defer m.mu.RUnlock()
	runs := []*model.Run{}
	for _, r := range m.Runs {
		if keep(r) {
			runs = append(runs, r)
		}
	}
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].CreatedAt.Before(runs[j].CreatedAt)
	})
	return runs
}

func (m *Memory) List(target string) ([]*model.Run, error) {
	return m.filter(func(r *model.Run) bool {
		return target == "" || r.Target == target
	}), nil
}

func (m *Memory) FindByHash(hash uint64) ([]*model.Run, error) {
	h := strconv.FormatUint(hash, 10)
	return m.filter(func(r *model.Run) bool { return r.Hash == h }), nil
}

// Delete removes the given run.
// It returns ErrNotFound if the id does not exist.
func (m *Memory) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Runs[id]; !ok {
		return model.ErrNotFound
	}
	delete(m.Runs, id)
	return nil
}

// Close writes the database file.
func (m *Memory) Close() error {
	f, err := os.Create(m.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	m.mu.RLock()
	defer m.mu.RUnlock()
	return gob.NewEncoder(f).Encode(m.Runs)
}
