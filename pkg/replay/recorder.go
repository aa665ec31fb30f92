package replay

import (
	"sync"

	"github.com/blacktop/fptrace/pkg/fingerprint"
)

// Recorder is a fingerprint.Tracer that appends every callback to a Log
// before forwarding it.
type Recorder struct {
	mu   sync.Mutex
	next fingerprint.Tracer
	log  *Log
}

var _ fingerprint.Tracer = (*Recorder)(nil)

// NewRecorder records the callbacks delivered to next into l
func NewRecorder(next fingerprint.Tracer, l *Log) *Recorder {
	return &Recorder{next: next, log: l}
}

func (r *Recorder) add(ev Event) {
	r.mu.Lock()
	r.log.Events = append(r.log.Events, ev)
	r.mu.Unlock()
}

func (r *Recorder) Start() error {
	return r.next.Start()
}

func (r *Recorder) OpenGate() {
	r.add(Event{Type: EventGate})
	r.next.OpenGate()
}

func (r *Recorder) OnBasicBlock(ev fingerprint.BlockEvent) {
	r.add(Event{Type: EventBlock, Start: ev.Start, End: ev.End})
	r.next.OnBasicBlock(ev)
}

func (r *Recorder) OnCallTransfer(ev fingerprint.CallEvent) {
	r.add(Event{Type: EventCall, PC: ev.PC})
	r.next.OnCallTransfer(ev)
}

// HandleOpened logs a handle-table change observed by the host
func (r *Recorder) HandleOpened(fd uintptr, path string) {
	r.add(Event{Type: EventOpen, FD: uint64(fd), Path: path})
}

// HandleClosed logs a handle-table change observed by the host
func (r *Recorder) HandleClosed(fd uintptr) {
	r.add(Event{Type: EventClose, FD: uint64(fd)})
}

func (r *Recorder) Finalize(status int) (*fingerprint.Record, error) {
	r.add(Event{Type: EventExit, Status: status})
	return r.next.Finalize(status)
}

// Log returns the recorded log
func (r *Recorder) Log() *Log {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.log
}
