package emu

import (
	"fmt"
	"sort"
	"sync"
)

// FirstHandle is the first number handed out, after the standard streams
const FirstHandle = 3

// HandleTable is the open-file table of the emulated program
type HandleTable struct {
	mu    sync.Mutex
	paths map[uintptr]string
}

func NewHandleTable() *HandleTable {
	return &HandleTable{paths: make(map[uintptr]string)}
}

// Open allocates the lowest unused handle for path
func (h *HandleTable) Open(path string) uintptr {
	h.mu.Lock()
	defer h.mu.Unlock()
	fd := uintptr(FirstHandle)
	for {
		if _, ok := h.paths[fd]; !ok {
			break
		}
		fd++
	}
	h.paths[fd] = path
	return fd
}

// Close releases fd; it reports whether fd was open
func (h *HandleTable) Close(fd uintptr) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.paths[fd]; !ok {
		return false
	}
	delete(h.paths, fd)
	return true
}

func (h *HandleTable) Handles() ([]uintptr, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fds := make([]uintptr, 0, len(h.paths))
	for fd := range h.paths {
		fds = append(fds, fd)
	}
	sort.Slice(fds, func(i, j int) bool { return fds[i] < fds[j] })
	return fds, nil
}

func (h *HandleTable) Resolve(fd uintptr) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	path, ok := h.paths[fd]
	if !ok {
		return "", fmt.Errorf("handle %d is not open", fd)
	}
	return path, nil
}

type stubKind uint8

const (
	stubReturn stubKind = iota
	stubOpen
	stubClose
	stubExit
)

func (k stubKind) String() string {
	switch k {
	case stubOpen:
		return "open"
	case stubClose:
		return "close"
	case stubExit:
		return "exit"
	default:
		return "return"
	}
}

// stubKindOf picks the behavior of a library stub from its name. Unknown
// functions return zero.
func stubKindOf(name string) stubKind {
	switch name {
	case "open", "open64", "fopen", "fopen64":
		return stubOpen
	case "close", "fclose":
		return stubClose
	case "exit", "_exit", "_Exit":
		return stubExit
	default:
		return stubReturn
	}
}
