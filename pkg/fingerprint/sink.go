package fingerprint

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileSink writes each record to <Dir>/<key>
type FileSink struct {
	Dir string
}

// NewFileSink creates a FileSink, creating dir if needed
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %v", dir, err)
	}
	return &FileSink{Dir: dir}, nil
}

// Path returns the file a record with the given key is written to
func (s *FileSink) Path(key string) string {
	return filepath.Join(s.Dir, key)
}

func (s *FileSink) Write(key string, rec *Record) error {
	if err := os.WriteFile(s.Path(key), []byte(rec.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write record %s: %v", key, err)
	}
	return nil
}

// ReadRecordFile parses a record written by a FileSink
func ReadRecordFile(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read record file: %v", err)
	}
	rec, err := ParseRecord(string(data))
	if err != nil {
		return nil, err
	}
	rec.Key = filepath.Base(path)
	return rec, nil
}

// MemorySink keeps records in memory, keyed like a FileSink
type MemorySink struct {
	mu      sync.Mutex
	records map[string]*Record
	order   []string
}

func NewMemorySink() *MemorySink {
	return &MemorySink{records: make(map[string]*Record)}
}

func (s *MemorySink) Write(key string, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[key]; !ok {
		s.order = append(s.order, key)
	}
	s.records[key] = rec
	return nil
}

// Get returns the record stored under key
func (s *MemorySink) Get(key string) (*Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	return rec, ok
}

// Keys returns the keys in first-write order
func (s *MemorySink) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// MultiSink fans a record out to several sinks, stopping at the first failure
type MultiSink []Sink

func (m MultiSink) Write(key string, rec *Record) error {
	for _, s := range m {
		if err := s.Write(key, rec); err != nil {
			return err
		}
	}
	return nil
}
