//go:build unicorn

package emu

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/blacktop/fptrace/pkg/fingerprint"
	"github.com/dustin/go-humanize"
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"
	"golang.org/x/arch/arm64/arm64asm"
)

// ReadCString reads a NUL terminated string of at most max bytes
func (e *Emulation) ReadCString(addr, max uint64) (string, error) {
	var sb strings.Builder
	for off := uint64(0); off < max; {
		// do not read across a page boundary into unmapped memory
		n := min(PageSize-(addr+off)%PageSize, max-off)
		dat, err := e.mu.MemRead(addr+off, n)
		if err != nil {
			return "", err
		}
		if i := bytes.IndexByte(dat, 0); i >= 0 {
			sb.Write(dat[:i])
			return sb.String(), nil
		}
		sb.Write(dat)
		off += n
	}
	return "", fmt.Errorf("string at %#x longer than %d bytes", addr, max)
}

// DumpMemRegions prints emulation memory regions
func (e *Emulation) DumpMemRegions() error {
	maps, err := e.Maps()
	if err != nil {
		return err
	}
	for _, m := range maps {
		fmt.Printf(
			colorHook("    begin: ") + colorDetails("%#09x", m.Start) +
				colorHook(", end: ") + colorDetails("%#09x", m.End) +
				colorHook(", prot: ") + colorDetails("%s", m.Perms) +
				colorHook(", size: ") + colorDetails("%s", humanize.IBytes(m.End-m.Start)) +
				colorHook(", name: ") + colorDetails("%s\n", m.Path),
		)
	}
	return nil
}

func diss(addr uint64, code []byte, inst arm64asm.Inst) {
	op, args, _ := strings.Cut(inst.String(), " ")
	fmt.Printf("%s:  %s   %s %s\n",
		colorAddr("%#08x", addr),
		colorOpCodes(hex.EncodeToString(code)),
		colorOp("%-7s", strings.ToLower(op)),
		colorRegs(args),
	)
}

func ucProt(p fingerprint.Perms) int {
	prot := uc.PROT_NONE
	if p&fingerprint.PermRead != 0 {
		prot |= uc.PROT_READ
	}
	if p&fingerprint.PermWrite != 0 {
		prot |= uc.PROT_WRITE
	}
	if p&fingerprint.PermExec != 0 {
		prot |= uc.PROT_EXEC
	}
	return prot
}

func permsOf(prot int) fingerprint.Perms {
	var p fingerprint.Perms
	if prot&uc.PROT_READ != 0 {
		p |= fingerprint.PermRead
	}
	if prot&uc.PROT_WRITE != 0 {
		p |= fingerprint.PermWrite
	}
	if prot&uc.PROT_EXEC != 0 {
		p |= fingerprint.PermExec
	}
	return p
}

func accessName(access int) string {
	switch access {
	case uc.MEM_WRITE_UNMAPPED:
		return "MEM_WRITE_UNMAPPED"
	case uc.MEM_WRITE_PROT:
		return "MEM_WRITE_PROT"
	case uc.MEM_READ_UNMAPPED:
		return "MEM_READ_UNMAPPED"
	case uc.MEM_READ_PROT:
		return "MEM_READ_PROT"
	case uc.MEM_FETCH_UNMAPPED:
		return "MEM_FETCH_UNMAPPED"
	case uc.MEM_FETCH_PROT:
		return "MEM_FETCH_PROT"
	default:
		return "unknown memory error " + strconv.Itoa(access)
	}
}

// registerByName maps x0-x30, fp, lr and sp to unicorn registers
func registerByName(name string) (int, error) {
	switch name {
	case "sp":
		return uc.ARM64_REG_SP, nil
	case "fp", "x29":
		return uc.ARM64_REG_X29, nil
	case "lr", "x30":
		return uc.ARM64_REG_X30, nil
	}
	if n, err := strconv.Atoi(strings.TrimPrefix(name, "x")); err == nil && strings.HasPrefix(name, "x") && n >= 0 && n <= 28 {
		return uc.ARM64_REG_X0 + n, nil
	}
	return uc.ARM64_REG_INVALID, fmt.Errorf("failed to find register %s", name)
}

func ucRegister(r arm64asm.Reg) (int, error) {
	if r < arm64asm.X0 || r > arm64asm.X30 {
		return uc.ARM64_REG_INVALID, fmt.Errorf("unsupported register %s", r)
	}
	return registerByName("x" + strconv.Itoa(int(r-arm64asm.X0)))
}
