// Package replay records and replays the event stream a DBI host delivers to
// a fingerprinting run.
package replay

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/blacktop/fptrace/pkg/fingerprint"
	"github.com/blacktop/fptrace/pkg/symbols"
	"gopkg.in/yaml.v3"
)

// EventType is the kind of a logged event
type EventType string

const (
	EventGate  EventType = "gate"
	EventBlock EventType = "block"
	EventCall  EventType = "call"
	EventOpen  EventType = "open"
	EventClose EventType = "close"
	EventExit  EventType = "exit"
)

// Event is one logged host callback or handle-table change
type Event struct {
	Type   EventType `yaml:"type"`
	Start  uint64    `yaml:"start,omitempty"`
	End    uint64    `yaml:"end,omitempty"`
	PC     uint64    `yaml:"pc,omitempty"`
	FD     uint64    `yaml:"fd,omitempty"`
	Path   string    `yaml:"path,omitempty"`
	Status int       `yaml:"status,omitempty"`
}

func (e Event) String() string {
	switch e.Type {
	case EventBlock:
		return fmt.Sprintf("block %#x-%#x", e.Start, e.End)
	case EventCall:
		return fmt.Sprintf("call %#x", e.PC)
	case EventOpen:
		return fmt.Sprintf("open %d %s", e.FD, e.Path)
	case EventClose:
		return fmt.Sprintf("close %d", e.FD)
	case EventExit:
		return fmt.Sprintf("exit %d", e.Status)
	default:
		return string(e.Type)
	}
}

// Mapping is a memory map line of the log
type Mapping struct {
	Start uint64 `yaml:"start"`
	End   uint64 `yaml:"end"`
	Perms string `yaml:"perms"`
	Path  string `yaml:"path,omitempty"`
}

// Log is a recorded execution: the process state the host would expose and
// the ordered events it delivered.
type Log struct {
	Args    []string          `yaml:"args,omitempty"`
	Maps    []Mapping         `yaml:"maps"`
	Symbols []symbols.Entry   `yaml:"symbols,omitempty"`
	Handles map[uint64]string `yaml:"handles,omitempty"`
	Events  []Event           `yaml:"events"`

	// MapsError and HandlesError simulate host query failures
	MapsError    string `yaml:"maps_error,omitempty"`
	HandlesError string `yaml:"handles_error,omitempty"`
}

// Parse decodes a YAML event log
func Parse(r io.Reader) (*Log, error) {
	var l Log
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&l); err != nil {
		return nil, fmt.Errorf("failed to decode event log: %v", err)
	}
	if err := l.validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

// Open reads the event log at path
func Open(path string) (*Log, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read event log: %v", err)
	}
	return Parse(bytes.NewReader(data))
}

func (l *Log) validate() error {
	for i, m := range l.Maps {
		if _, err := fingerprint.ParsePerms(m.Perms); err != nil {
			return fmt.Errorf("map %d: %v", i, err)
		}
	}
	for i, ev := range l.Events {
		switch ev.Type {
		case EventGate, EventCall, EventClose, EventExit:
		case EventBlock:
			if ev.End < ev.Start {
				return fmt.Errorf("event %d: block ends before it starts: %s", i, ev)
			}
		case EventOpen:
			if ev.Path == "" {
				return fmt.Errorf("event %d: open without a path", i)
			}
		default:
			return fmt.Errorf("event %d: unknown event type %q", i, ev.Type)
		}
	}
	return nil
}

// MapEntries converts the logged memory map
func (l *Log) MapEntries() ([]fingerprint.MapEntry, error) {
	entries := make([]fingerprint.MapEntry, 0, len(l.Maps))
	for _, m := range l.Maps {
		perms, err := fingerprint.ParsePerms(m.Perms)
		if err != nil {
			return nil, err
		}
		entries = append(entries, fingerprint.MapEntry{
			Start: m.Start,
			End:   m.End,
			Perms: perms,
			Path:  m.Path,
		})
	}
	return entries, nil
}

// SetMaps replaces the logged memory map
func (l *Log) SetMaps(entries []fingerprint.MapEntry) {
	l.Maps = l.Maps[:0]
	for _, e := range entries {
		l.Maps = append(l.Maps, Mapping{
			Start: e.Start,
			End:   e.End,
			Perms: e.Perms.String(),
			Path:  e.Path,
		})
	}
}

// Write encodes the log as YAML
func (l *Log) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(l); err != nil {
		return fmt.Errorf("failed to encode event log: %v", err)
	}
	return enc.Close()
}

// Save writes the log to path
func (l *Log) Save(path string) error {
	var buf bytes.Buffer
	if err := l.Write(&buf); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// Counts tallies the events per type
func (l *Log) Counts() map[EventType]int {
	counts := make(map[EventType]int)
	for _, ev := range l.Events {
		counts[ev.Type]++
	}
	return counts
}

// fds returns the handle numbers in ascending order
func fds(handles map[uint64]string) []uint64 {
	out := make([]uint64, 0, len(handles))
	for fd := range handles {
		out = append(out, fd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
