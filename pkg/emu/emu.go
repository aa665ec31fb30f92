//go:build unicorn

// Package emu fingerprints flat arm64 programs under the unicorn engine. The
// emulator stands in for the DBI host: it reports basic blocks and call
// transfers to a fingerprint.Tracer and models the file handles the program
// opens through its library stubs.
package emu

import (
	"errors"
	"fmt"

	"github.com/apex/log"
	"github.com/blacktop/fptrace/pkg/fingerprint"
	"github.com/blacktop/fptrace/pkg/symbols"
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"
	"golang.org/x/arch/arm64/arm64asm"
)

const (
	STACK_BASE = 0x60000000
	STACK_SIZE = 0x800000

	DefaultMaxInstructions = 1000000
	maxPathLength          = 0x1000
)

var (
	// ErrNoExit is returned when the instruction budget ran out before the
	// program exited
	ErrNoExit = errors.New("program did not exit")
	// ErrFault is returned when the program touched unmapped memory
	ErrFault = errors.New("emulation fault")
)

// HandleObserver is notified of the handle-table changes made by the stubs.
// A tracer passed to Run that implements it receives them.
type HandleObserver interface {
	HandleOpened(fd uintptr, path string)
	HandleClosed(fd uintptr)
}

var retInstruction = []byte{0xc0, 0x03, 0x5f, 0xd6}

// Config is a emulation configuration object
type Config struct {
	MaxInstructions uint64
	Verbose         bool
}

// Emulation runs one program
type Emulation struct {
	mu   uc.Unicorn
	conf *Config
	prog *Program

	mem     *MemMap
	code    *Page
	stubs   *symbols.Table
	kinds   map[uint64]stubKind
	handles *HandleTable

	tracer fingerprint.Tracer
	status int
	exited bool
	fault  error
}

// NewEmulation creates a new emuluation instance with prog loaded
func NewEmulation(prog *Program, conf *Config) (*Emulation, error) {
	var err error

	if conf == nil {
		conf = &Config{}
	}
	if conf.MaxInstructions == 0 {
		conf.MaxInstructions = DefaultMaxInstructions
	}
	if prog.Bytes() == nil {
		if err := prog.Verify(); err != nil {
			return nil, err
		}
	}
	if prog.MaxInstructions > 0 {
		conf.MaxInstructions = prog.MaxInstructions
	}

	e := &Emulation{
		conf:    conf,
		prog:    prog,
		mem:     NewMemMap(),
		stubs:   prog.StubTable(),
		kinds:   make(map[uint64]stubKind, len(prog.Stubs)),
		handles: NewHandleTable(),
	}

	e.mu, err = uc.NewUnicorn(uc.ARCH_ARM64, uc.MODE_ARM)
	if err != nil {
		return nil, fmt.Errorf("failed to create new unicorn instance: %v", err)
	}
	if err := e.mu.SetCPUModel(uc.CPU_ARM64_MAX); err != nil {
		return nil, fmt.Errorf("failed to set cpu model to CPU_AARCH64_MAX: %v", err)
	}
	if err := e.mu.RegWrite(uc.ARM64_REG_PSTATE, 0); err != nil {
		return nil, fmt.Errorf("failed to init PSTATE register: %v", err)
	}
	// enable vfp
	cpacrEL1, err := e.mu.RegRead(uc.ARM64_REG_CPACR_EL1)
	if err != nil {
		return nil, fmt.Errorf("failed to read cpacr_el1 register: %v", err)
	}
	if err := e.mu.RegWrite(uc.ARM64_REG_CPACR_EL1, cpacrEL1|0x300000); err != nil {
		return nil, fmt.Errorf("failed to enable vfp: %v", err)
	}

	for _, setup := range []func() error{
		e.InitStack,
		e.loadCode,
		e.loadStubs,
		e.loadRegisters,
		e.SetupHooks,
	} {
		if err := setup(); err != nil {
			e.mu.Close()
			return nil, err
		}
	}
	return e, nil
}

func (e *Emulation) Close() error {
	return e.mu.Close()
}

func (e *Emulation) mapRegion(addr, size uint64, perms fingerprint.Perms, name string) (*Page, error) {
	page, err := e.mem.Map(addr, size, perms, name)
	if err != nil {
		return nil, fmt.Errorf("failed to map %s: %v", name, err)
	}
	if err := e.mu.MemMapProt(page.Addr, page.Size, ucProt(perms)); err != nil {
		e.mem.Remove(page.Addr)
		return nil, fmt.Errorf("failed to memmap %s at %#x: %v", name, page.Addr, err)
	}
	return page, nil
}

// InitStack initialize stack to 8MBs
func (e *Emulation) InitStack() error {
	if _, err := e.mapRegion(STACK_BASE, STACK_SIZE, fingerprint.PermRead|fingerprint.PermWrite, "[stack]"); err != nil {
		return err
	}
	if err := e.mu.RegWrite(uc.ARM64_REG_SP, STACK_BASE+STACK_SIZE); err != nil {
		return fmt.Errorf("failed to set SP register to %#x: %v", STACK_BASE+STACK_SIZE, err)
	}
	return nil
}

func (e *Emulation) loadCode() error {
	code := e.prog.Bytes()
	page, err := e.mapRegion(e.prog.Base, uint64(len(code)), fingerprint.PermRead|fingerprint.PermExec, "[program]")
	if err != nil {
		return err
	}
	if err := e.mu.MemWrite(e.prog.Base, code); err != nil {
		return fmt.Errorf("failed to write code at %#x: %v", e.prog.Base, err)
	}
	e.code = page
	return nil
}

// loadStubs maps a ret for every library function the program calls
func (e *Emulation) loadStubs() error {
	if len(e.prog.Stubs) == 0 {
		return nil
	}
	size := uint64(len(e.prog.Stubs)) * StubSlot
	if _, err := e.mapRegion(e.prog.StubBase, size, fingerprint.PermRead|fingerprint.PermExec, "[stubs]"); err != nil {
		return err
	}
	for _, name := range e.prog.Stubs {
		addr, _ := e.prog.StubAddr(name)
		if err := e.mu.MemWrite(addr, retInstruction); err != nil {
			return fmt.Errorf("failed to write stub %s at %#x: %v", name, addr, err)
		}
		e.kinds[addr] = stubKindOf(name)
	}
	return nil
}

func (e *Emulation) loadRegisters() error {
	regs, err := e.prog.RegisterValues()
	if err != nil {
		return err
	}
	for name, val := range regs {
		reg, err := registerByName(name)
		if err != nil {
			return err
		}
		if err := e.mu.RegWrite(reg, val); err != nil {
			return fmt.Errorf("failed to set %s register to %#x: %v", name, val, err)
		}
	}
	return nil
}

// Maps lists the mapped regions
func (e *Emulation) Maps() ([]fingerprint.MapEntry, error) {
	regions, err := e.mu.MemRegions()
	if err != nil {
		return nil, fmt.Errorf("failed to query memory regions: %v", err)
	}
	out := make([]fingerprint.MapEntry, 0, len(regions))
	for _, mr := range regions {
		entry := fingerprint.MapEntry{
			Start: mr.Begin,
			End:   mr.End + 1, // unicorn regions are inclusive
			Perms: permsOf(mr.Prot),
		}
		if p := e.mem.Find(mr.Begin); p != nil {
			entry.Path = p.Name
		}
		out = append(out, entry)
	}
	return out, nil
}

// Handles returns the program's open-file table
func (e *Emulation) Handles() *HandleTable { return e.handles }

// Host returns the host collaborators backed by the emulator
func (e *Emulation) Host(sink fingerprint.Sink) fingerprint.Host {
	return fingerprint.Host{
		Mapper:  fingerprint.MapperFunc(e.Maps),
		Symbols: e.stubs,
		Handles: e.handles,
		Sink:    sink,
		Args:    e.prog.Args,
	}
}

// NewRun creates a run wired to the emulator's host
func (e *Emulation) NewRun(conf *fingerprint.Config, sink fingerprint.Sink) (*fingerprint.Run, error) {
	return fingerprint.NewRun(conf, e.Host(sink))
}

// SetupHooks adds all the unicorn hooks
func (e *Emulation) SetupHooks() error {
	//***********************************************************************
	//* HOOK_MEM_READ_INVALID|HOOK_MEM_WRITE_INVALID|HOOK_MEM_FETCH_INVALID *
	//***********************************************************************
	if _, err := e.mu.HookAdd(uc.HOOK_MEM_READ_INVALID|uc.HOOK_MEM_WRITE_INVALID|uc.HOOK_MEM_FETCH_INVALID,
		func(mu uc.Unicorn, access int, addr uint64, size int, value int64) bool {
			e.fault = fmt.Errorf("%w: %s @ %#x, size=%d", ErrFault, accessName(access), addr, size)
			if e.conf.Verbose {
				fmt.Println(colorHook("[MEM_INVALID]") + colorDetails(" %s @ %#x, size=%d, value: %#x", accessName(access), addr, size, value))
			}
			return false
		}, 1, 0); err != nil {
		return fmt.Errorf("failed to register mem invalid read/write/fetch hook: %v", err)
	}
	//**************
	//* HOOK_BLOCK *
	//**************
	if _, err := e.mu.HookAdd(uc.HOOK_BLOCK, func(mu uc.Unicorn, addr uint64, size uint32) {
		if e.conf.Verbose {
			fmt.Println(colorHook("[BLOCK]") + colorDetails(" addr: %#x, size: %d", addr, size))
		}
		if e.tracer == nil {
			return
		}
		if addr == e.prog.Entry {
			e.tracer.OpenGate()
		}
		e.tracer.OnBasicBlock(fingerprint.BlockEvent{Start: addr, End: addr + uint64(size)})
	}, 1, 0); err != nil {
		return fmt.Errorf("failed to register block hook: %v", err)
	}
	//*************
	//* HOOK_CODE *
	//*************
	if _, err := e.mu.HookAdd(uc.HOOK_CODE, func(mu uc.Unicorn, addr uint64, size uint32) {
		if kind, ok := e.kinds[addr]; ok {
			e.callStub(addr, kind)
			return
		}
		code, err := mu.MemRead(addr, uint64(size))
		if err != nil {
			log.Errorf("failed to read instruction at %#x: %v", addr, err)
			return
		}
		inst, err := arm64asm.Decode(code)
		if err != nil {
			return
		}
		if e.conf.Verbose {
			diss(addr, code, inst)
		}
		if target, ok := e.callTarget(addr, inst); ok && !e.code.Contains(target) && e.tracer != nil {
			e.tracer.OnCallTransfer(fingerprint.CallEvent{PC: target})
		}
	}, 1, 0); err != nil {
		return fmt.Errorf("failed to register code hook: %v", err)
	}

	return nil
}

// callTarget returns the destination of a branch with link
func (e *Emulation) callTarget(addr uint64, inst arm64asm.Inst) (uint64, bool) {
	switch inst.Op {
	case arm64asm.BL:
		if rel, ok := inst.Args[0].(arm64asm.PCRel); ok {
			return addr + uint64(int64(rel)), true
		}
	case arm64asm.BLR:
		if r, ok := inst.Args[0].(arm64asm.Reg); ok {
			reg, err := ucRegister(r)
			if err != nil {
				return 0, false
			}
			target, err := e.mu.RegRead(reg)
			if err != nil {
				return 0, false
			}
			return target, true
		}
	}
	return 0, false
}

// callStub performs the library function at addr before its ret executes
func (e *Emulation) callStub(addr uint64, kind stubKind) {
	x0, err := e.mu.RegRead(uc.ARM64_REG_X0)
	if err != nil {
		log.Errorf("failed to read x0: %v", err)
		return
	}
	ret := uint64(0)
	switch kind {
	case stubOpen:
		path, err := e.ReadCString(x0, maxPathLength)
		if err != nil {
			log.Errorf("failed to read path at %#x: %v", x0, err)
			ret = ^uint64(0)
			break
		}
		fd := e.handles.Open(path)
		if obs, ok := e.tracer.(HandleObserver); ok {
			obs.HandleOpened(fd, path)
		}
		ret = uint64(fd)
	case stubClose:
		if !e.handles.Close(uintptr(x0)) {
			ret = ^uint64(0)
			break
		}
		if obs, ok := e.tracer.(HandleObserver); ok {
			obs.HandleClosed(uintptr(x0))
		}
	case stubExit:
		e.status = int(int32(x0))
		e.exited = true
		e.mu.Stop()
		return
	}
	if e.conf.Verbose {
		if sym, _ := e.stubs.Resolve(addr); sym != nil {
			fmt.Println(colorHook("[STUB]") + colorDetails(" %s(%#x) = %#x", sym.Name, x0, ret))
		}
	}
	if err := e.mu.RegWrite(uc.ARM64_REG_X0, ret); err != nil {
		log.Errorf("failed to write x0: %v", err)
	}
}

// Run drives t with the program from its entry until it exits. A program that
// faults or exhausts its instruction budget is not finalized, like a process
// that crashed or was killed.
func (e *Emulation) Run(t fingerprint.Tracer) (*fingerprint.Record, error) {
	if err := t.Start(); err != nil {
		if !errors.Is(err, fingerprint.ErrSetupFailed) {
			return nil, err
		}
		log.WithError(err).Warn("emulating aborted run")
	}
	e.tracer = t
	defer func() { e.tracer = nil }()

	err := e.mu.StartWithOptions(e.prog.Entry, 0, &uc.UcOptions{Count: e.conf.MaxInstructions})
	switch {
	case e.exited:
	case e.fault != nil:
		return nil, e.fault
	case err != nil:
		return nil, fmt.Errorf("failed to emulate: %v", err)
	default:
		return nil, fmt.Errorf("%w after %d instructions", ErrNoExit, e.conf.MaxInstructions)
	}

	fds, _ := e.handles.Handles()
	log.WithFields(log.Fields{
		"status":  e.status,
		"handles": len(fds),
	}).Debug("program exited")

	return t.Finalize(e.status)
}

// Status is the exit status passed to the exit stub
func (e *Emulation) Status() (int, bool) { return e.status, e.exited }
