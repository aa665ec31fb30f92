package magic

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestDetectReader(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Format
	}{
		{"elf", []byte("\x7fELF\x02\x01\x01"), ELF},
		{"macho64", []byte{0xcf, 0xfa, 0xed, 0xfe}, MachO},
		{"macho32", []byte{0xce, 0xfa, 0xed, 0xfe}, MachO},
		{"fat", []byte{0xca, 0xfe, 0xba, 0xbe}, MachO},
		{"script", []byte("#!/bin/sh\n"), Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectReader(bytes.NewReader(tt.data))
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("DetectReader() = %s, want %s", got, tt.want)
			}
		})
	}
	if _, err := DetectReader(bytes.NewReader([]byte{0x7f})); err == nil {
		t.Error("DetectReader() on a short file should fail")
	}
}

func TestIsELF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.out")
	if err := os.WriteFile(path, []byte("\x7fELF\x01\x01\x01\x00"), 0o644); err != nil {
		t.Fatal(err)
	}
	if ok, err := IsELF(path); !ok || err != nil {
		t.Errorf("IsELF() = %v, %v", ok, err)
	}
	if ok, _ := IsMachO(path); ok {
		t.Error("IsMachO() should be false for an ELF")
	}
}
