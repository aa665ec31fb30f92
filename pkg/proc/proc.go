//go:build linux

// Package proc implements the fingerprint host interfaces on top of procfs.
package proc

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/blacktop/fptrace/pkg/fingerprint"
	"github.com/prometheus/procfs"
)

// Process is a live process inspected through /proc
type Process struct {
	root string
	pid  int
	proc procfs.Proc
}

// Open opens the process with the given pid; pid <= 0 means the current process
func Open(pid int) (*Process, error) {
	return OpenFS(procfs.DefaultMountPoint, pid)
}

// OpenFS opens a process below a procfs mounted at root
func OpenFS(root string, pid int) (*Process, error) {
	fs, err := procfs.NewFS(root)
	if err != nil {
		return nil, fmt.Errorf("failed to open procfs at %s: %v", root, err)
	}
	if pid <= 0 {
		pid = os.Getpid()
	}
	p, err := fs.Proc(pid)
	if err != nil {
		return nil, fmt.Errorf("failed to open process %d: %v", pid, err)
	}
	return &Process{
		root: root,
		pid:  pid,
		proc: p,
	}, nil
}

// PID returns the process id
func (p *Process) PID() int { return p.pid }

// Maps returns the process' memory map in listing order
func (p *Process) Maps() ([]fingerprint.MapEntry, error) {
	maps, err := p.proc.ProcMaps()
	if err != nil {
		return nil, fmt.Errorf("failed to read memory map of %d: %v", p.pid, err)
	}
	entries := make([]fingerprint.MapEntry, 0, len(maps))
	for _, m := range maps {
		entries = append(entries, fingerprint.MapEntry{
			Start: uint64(m.StartAddr),
			End:   uint64(m.EndAddr),
			Perms: perms(m.Perms),
			Path:  m.Pathname,
		})
	}
	return entries, nil
}

func perms(p *procfs.ProcMapPermissions) fingerprint.Perms {
	var out fingerprint.Perms
	if p == nil {
		return out
	}
	if p.Read {
		out |= fingerprint.PermRead
	}
	if p.Write {
		out |= fingerprint.PermWrite
	}
	if p.Execute {
		out |= fingerprint.PermExec
	}
	return out
}

// Handles lists the process' open file descriptors
func (p *Process) Handles() ([]uintptr, error) {
	fds, err := p.proc.FileDescriptors()
	if err != nil {
		return nil, fmt.Errorf("failed to list file descriptors of %d: %v", p.pid, err)
	}
	return fds, nil
}

// Resolve returns the target of /proc/<pid>/fd/<fd>
func (p *Process) Resolve(fd uintptr) (string, error) {
	link := filepath.Join(p.root, strconv.Itoa(p.pid), "fd", strconv.FormatUint(uint64(fd), 10))
	return os.Readlink(link)
}

// Executable returns the path of the process' executable
func (p *Process) Executable() (string, error) {
	return p.proc.Executable()
}

// CmdLine returns the process' arguments, without argv[0]
func (p *Process) CmdLine() ([]string, error) {
	args, err := p.proc.CmdLine()
	if err != nil {
		return nil, fmt.Errorf("failed to read command line of %d: %v", p.pid, err)
	}
	if len(args) > 0 {
		args = args[1:]
	}
	return args, nil
}

// Segments builds the segment table of the process for the given threshold
func (p *Process) Segments(threshold uint64) (fingerprint.SegmentTable, error) {
	maps, err := p.Maps()
	if err != nil {
		return nil, err
	}
	table, _ := fingerprint.BuildSegmentTable(maps, threshold)
	return table, nil
}

// FindMarker scans the open handles for a path containing marker and returns
// the first match.
func (p *Process) FindMarker(marker string) (uintptr, string, bool) {
	fds, err := p.Handles()
	if err != nil {
		return 0, "", false
	}
	for _, fd := range fds {
		path, err := p.Resolve(fd)
		if err != nil {
			continue
		}
		if strings.Contains(path, marker) {
			return fd, path, true
		}
	}
	return 0, "", false
}
