package fingerprint

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/apex/log"
)

var (
	// ErrSetupFailed is returned when the segment table could not be built
	ErrSetupFailed = errors.New("trace setup failed")
	// ErrFinalized is returned when a run is finalized twice
	ErrFinalized = errors.New("run already finalized")
)

type runState uint8

const (
	stateCreated runState = iota
	stateStarted
	stateFailed
	stateFinalized
)

func (s runState) String() string {
	switch s {
	case stateCreated:
		return "created"
	case stateStarted:
		return "started"
	case stateFailed:
		return "failed"
	case stateFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("runState(%d)", s)
	}
}

// Tracer is the callback surface a host drives
type Tracer interface {
	Start() error
	OpenGate()
	OnBasicBlock(BlockEvent)
	OnCallTransfer(CallEvent)
	Finalize(status int) (*Record, error)
}

var (
	_ Tracer = (*Run)(nil)
	_ Tracer = (*LockedRun)(nil)
)

// Stats counts what happened to the events of a run
type Stats struct {
	Blocks      int // basic-block events received
	Recorded    int // blocks appended to the trace
	Gated       int // blocks ignored before the gate opened
	Threshold   int // blocks ending at or above the threshold
	NoSegment   int // blocks outside every segment
	Calls       int // call-transfer events received
	Guarded     int // calls that matched the guarded symbol substring
	Inspections int // handle-table scans performed
}

// Run is the per-process fingerprinting context. It is not safe for
// concurrent use; see LockedRun.
type Run struct {
	conf *Config
	host Host
	log  log.Interface

	state    runState
	gate     bool
	segments SegmentTable
	trace    []AbstractAddress
	marker   bool
	stats    Stats
}

// NewRun creates a run for one traced process execution
func NewRun(conf *Config, host Host) (*Run, error) {
	if conf == nil {
		conf = DefaultConfig()
	}
	if err := conf.Verify(); err != nil {
		return nil, fmt.Errorf("invalid config: %v", err)
	}
	if host.Mapper == nil {
		return nil, fmt.Errorf("host memory mapper is required")
	}
	return &Run{
		conf: conf,
		host: host,
		log:  conf.Logger,
	}, nil
}

// Start builds the segment table. A failed map query aborts the run: every
// later event is ignored and Finalize emits nothing.
func (r *Run) Start() error {
	if r.state != stateCreated {
		return fmt.Errorf("cannot start run in state %s", r.state)
	}
	maps, err := r.host.Mapper.Maps()
	if err != nil {
		r.state = stateFailed
		return fmt.Errorf("%w: failed to query memory map: %v", ErrSetupFailed, err)
	}
	var dropped int
	r.segments, dropped = BuildSegmentTable(maps, r.conf.Threshold)
	if dropped > 0 {
		r.log.WithFields(log.Fields{
			"kept":    len(r.segments),
			"dropped": dropped,
		}).Warn("too many executable segments")
	}
	for _, seg := range r.segments {
		r.log.Debugf("segment %s", seg)
	}
	r.state = stateStarted
	return nil
}

// OpenGate starts recording basic blocks, once the target reached its entry point
func (r *Run) OpenGate() {
	if r.state == stateStarted {
		r.gate = true
	}
}

// SetArgs sets the invocation arguments used to key the record
func (r *Run) SetArgs(args []string) {
	r.host.Args = append([]string(nil), args...)
}

// OnBasicBlock records an executed basic block
func (r *Run) OnBasicBlock(ev BlockEvent) {
	if r.state != stateStarted {
		return
	}
	r.stats.Blocks++
	if !r.gate {
		r.stats.Gated++
		return
	}
	if ev.End >= r.conf.Threshold {
		r.stats.Threshold++
		return
	}
	addr, err := r.segments.Encode(ev.Start, ev.End)
	if err != nil {
		r.stats.NoSegment++
		return
	}
	r.trace = append(r.trace, addr)
	r.stats.Recorded++
}

// OnCallTransfer inspects the open handles when a guarded operation is
// called and raises the marker flag if one refers to the marker artifact.
func (r *Run) OnCallTransfer(ev CallEvent) {
	if r.state != stateStarted {
		return
	}
	r.stats.Calls++
	if r.marker || r.host.Symbols == nil || r.host.Handles == nil {
		return
	}
	sym, err := r.host.Symbols.Resolve(ev.PC)
	if err != nil || sym == nil || sym.Name == "" {
		return
	}
	if !strings.Contains(sym.Name, r.conf.Guarded) {
		return
	}
	r.stats.Guarded++
	r.inspectHandles(sym)
}

func (r *Run) inspectHandles(sym *Symbol) {
	fds, err := r.host.Handles.Handles()
	if err != nil {
		r.log.WithError(err).Debug("failed to enumerate open handles")
		return
	}
	r.stats.Inspections++
	for _, fd := range fds {
		path, err := r.host.Handles.Resolve(fd)
		if err != nil {
			continue
		}
		if strings.Contains(path, r.conf.Marker) {
			r.log.WithFields(log.Fields{
				"symbol": sym.Name,
				"fd":     fd,
				"path":   path,
			}).Debug("marker handle found")
			r.marker = true
			return
		}
	}
}

// Finalize computes the run's record and hands it to the sink. It must be
// called once, when the process exits.
func (r *Run) Finalize(status int) (*Record, error) {
	switch r.state {
	case stateFinalized:
		return nil, ErrFinalized
	case stateCreated, stateFailed:
		r.state = stateFinalized
		return nil, ErrSetupFailed
	}
	r.state = stateFinalized

	rec := NewRecord(r.trace, r.conf.Cap, r.marker)
	rec.Args = r.host.Args
	rec.Key = OutputKey(r.host.Args)

	r.log.WithFields(log.Fields{
		"status": status,
		"blocks": rec.BlockCount,
		"hash":   rec.Hash,
		"marker": rec.Marker,
	}).Debug("run finalized")

	if r.host.Sink != nil {
		if err := r.host.Sink.Write(rec.Key, rec); err != nil {
			return rec, fmt.Errorf("failed to emit record %s: %w", rec.Key, err)
		}
	}
	return rec, nil
}

// Segments returns the run's segment table
func (r *Run) Segments() SegmentTable { return r.segments }

// Trace returns a copy of the recorded trace
func (r *Run) Trace() []AbstractAddress {
	return append([]AbstractAddress(nil), r.trace...)
}

// Marker reports whether the marker artifact was seen
func (r *Run) Marker() bool { return r.marker }

// Stats returns the run's event counters
func (r *Run) Stats() Stats { return r.stats }

// LockedRun serializes every callback of a Run behind one mutex, for hosts
// that deliver events from more than one thread.
type LockedRun struct {
	mu  sync.Mutex
	run *Run
}

// NewLockedRun wraps run
func NewLockedRun(run *Run) *LockedRun {
	return &LockedRun{run: run}
}

func (l *LockedRun) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.run.Start()
}

func (l *LockedRun) OpenGate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.run.OpenGate()
}

func (l *LockedRun) OnBasicBlock(ev BlockEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.run.OnBasicBlock(ev)
}

func (l *LockedRun) OnCallTransfer(ev CallEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.run.OnCallTransfer(ev)
}

func (l *LockedRun) Finalize(status int) (*Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.run.Finalize(status)
}

// Stats returns the wrapped run's counters
func (l *LockedRun) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.run.Stats()
}
