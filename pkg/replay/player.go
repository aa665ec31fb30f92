package replay

import (
	"errors"
	"fmt"

	"github.com/apex/log"
	"github.com/blacktop/fptrace/pkg/fingerprint"
	"github.com/blacktop/fptrace/pkg/symbols"
)

// handleTable is the mutable handle table of a replayed process. An empty
// path models a handle whose target cannot be resolved.
type handleTable struct {
	paths   map[uint64]string
	listErr error
}

func (h *handleTable) Handles() ([]uintptr, error) {
	if h.listErr != nil {
		return nil, h.listErr
	}
	var out []uintptr
	for _, fd := range fds(h.paths) {
		out = append(out, uintptr(fd))
	}
	return out, nil
}

func (h *handleTable) Resolve(fd uintptr) (string, error) {
	path, ok := h.paths[uint64(fd)]
	if !ok || path == "" {
		return "", fmt.Errorf("handle %d: cannot resolve", fd)
	}
	return path, nil
}

// Player feeds a Log to a fingerprint.Tracer
type Player struct {
	log     *Log
	handles *handleTable
	symbols *symbols.Table
}

// NewPlayer creates a player for l
func NewPlayer(l *Log) *Player {
	h := &handleTable{paths: make(map[uint64]string, len(l.Handles))}
	for fd, path := range l.Handles {
		h.paths[fd] = path
	}
	if l.HandlesError != "" {
		h.listErr = errors.New(l.HandlesError)
	}
	return &Player{
		log:     l,
		handles: h,
		symbols: symbols.NewTable("replay", 0, l.Symbols),
	}
}

// Host returns the host collaborators backed by the log
func (p *Player) Host(sink fingerprint.Sink) fingerprint.Host {
	return fingerprint.Host{
		Mapper: fingerprint.MapperFunc(func() ([]fingerprint.MapEntry, error) {
			if p.log.MapsError != "" {
				return nil, errors.New(p.log.MapsError)
			}
			return p.log.MapEntries()
		}),
		Symbols: p.symbols,
		Handles: p.handles,
		Sink:    sink,
		Args:    p.log.Args,
	}
}

// NewRun creates a run wired to the log's host
func (p *Player) NewRun(conf *fingerprint.Config, sink fingerprint.Sink) (*fingerprint.Run, error) {
	return fingerprint.NewRun(conf, p.Host(sink))
}

// Play starts t, delivers every event up to the first exit and finalizes.
// A log without an exit event finalizes with status 0 after its last event.
func (p *Player) Play(t fingerprint.Tracer) (*fingerprint.Record, error) {
	if err := t.Start(); err != nil {
		if !errors.Is(err, fingerprint.ErrSetupFailed) {
			return nil, err
		}
		log.WithError(err).Warn("replaying aborted run")
	}
	status := 0
events:
	for _, ev := range p.log.Events {
		switch ev.Type {
		case EventGate:
			t.OpenGate()
		case EventBlock:
			t.OnBasicBlock(fingerprint.BlockEvent{Start: ev.Start, End: ev.End})
		case EventCall:
			t.OnCallTransfer(fingerprint.CallEvent{PC: ev.PC})
		case EventOpen:
			p.handles.paths[ev.FD] = ev.Path
		case EventClose:
			delete(p.handles.paths, ev.FD)
		case EventExit:
			status = ev.Status
			break events
		}
	}
	return t.Finalize(status)
}
