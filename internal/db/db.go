// Package db provides a database interface and implementations.
package db

import (
	"fmt"

	"github.com/blacktop/fptrace/internal/model"
	"github.com/blacktop/fptrace/pkg/fingerprint"
)

// Database is the interface that wraps the basic database operations.
type Database interface {
	// Connect connects to the database.
	Connect() error

	// Save creates or overwrites a run.
	Save(run *model.Run) error

	// Get returns the run with the given id.
	// It returns model.ErrNotFound if the id does not exist.
	Get(id string) (*model.Run, error)

	// List returns the runs of a target, oldest first; an empty target
	// lists every run.
	List(target string) ([]*model.Run, error)

	// FindByHash returns the runs sharing a trace hash.
	FindByHash(hash uint64) ([]*model.Run, error)

	// Delete removes the given run.
	// It returns model.ErrNotFound if the id does not exist.
	Delete(id string) error

	// Close closes the database.
	Close() error
}

// Sink stores finalized records as runs of Target
type Sink struct {
	DB     Database
	Target string
	Source string
}

var _ fingerprint.Sink = (*Sink)(nil)

func (s *Sink) Write(key string, rec *fingerprint.Record) error {
	run := model.NewRun(s.Target, s.Source, rec)
	run.Key = key
	if err := s.DB.Save(run); err != nil {
		return fmt.Errorf("failed to store run %s: %v", key, err)
	}
	return nil
}
