// Package model contains the fingerprint record model for the database.
package model

import (
	"errors"
	"strconv"
	"time"

	"github.com/blacktop/fptrace/pkg/fingerprint"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("no run found")

// Run is one fingerprinted execution of a target.
type Run struct {
	ID        string         `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Target string   `gorm:"index" json:"target,omitempty"`
	Key    string   `gorm:"index" json:"key"`
	Args   []string `gorm:"serializer:json" json:"args,omitempty"`
	Source string   `json:"source,omitempty"`
	Status int      `json:"status"`

	BlockCount int    `json:"block_count"`
	Hash       string `gorm:"index" json:"hash"` // decimal; postgres has no unsigned 64-bit column
	Marker     bool   `json:"marker"`
	TimedOut   bool   `json:"timed_out,omitempty"`
}

// BeforeCreate assigns a random id to new runs
func (r *Run) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// NewRun converts a fingerprint record
func NewRun(target, source string, rec *fingerprint.Record) *Run {
	return &Run{
		ID:         uuid.NewString(),
		Target:     target,
		Key:        rec.Key,
		Args:       append([]string(nil), rec.Args...),
		Source:     source,
		BlockCount: rec.BlockCount,
		Hash:       strconv.FormatUint(rec.Hash, 10),
		Marker:     rec.Marker,
	}
}

// Record converts the run back into a fingerprint record
func (r *Run) Record() (*fingerprint.Record, error) {
	hash, err := strconv.ParseUint(r.Hash, 10, 64)
	if err != nil {
		return nil, err
	}
	rec := &fingerprint.Record{
		BlockCount: r.BlockCount,
		Hash:       hash,
		Marker:     r.Marker,
		Key:        r.Key,
		Args:       r.Args,
	}
	return rec, nil
}
