//go:build !linux

package proc

import (
	"errors"

	"github.com/blacktop/fptrace/pkg/fingerprint"
)

// ErrUnsupported is returned on platforms without a Linux procfs
var ErrUnsupported = errors.New("procfs process inspection is only supported on linux")

// Process is a live process inspected through /proc
type Process struct {
	pid int
}

func Open(pid int) (*Process, error) { return nil, ErrUnsupported }
func OpenFS(root string, pid int) (*Process, error) { return nil, ErrUnsupported }

func (p *Process) PID() int { return p.pid }
func (p *Process) Maps() ([]fingerprint.MapEntry, error) { return nil, ErrUnsupported }
func (p *Process) Handles() ([]uintptr, error) { return nil, ErrUnsupported }
func (p *Process) Resolve(fd uintptr) (string, error) { return "", ErrUnsupported }
func (p *Process) Executable() (string, error) { return "", ErrUnsupported }
func (p *Process) CmdLine() ([]string, error) { return nil, ErrUnsupported }
func (p *Process) FindMarker(string) (uintptr, string, bool) { return 0, "", false }
func (p *Process) Segments(uint64) (fingerprint.SegmentTable, error) {
	return nil, ErrUnsupported
}
