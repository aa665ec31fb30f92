package cmd

import (
	"testing"

	"github.com/blacktop/fptrace/pkg/fingerprint"
	"github.com/stretchr/testify/assert"
)

func TestCompareRecords(t *testing.T) {
	base := &fingerprint.Record{BlockCount: 10, Hash: 0x1234, Marker: true}
	tests := []struct {
		name string
		b    *fingerprint.Record
		want string
		same bool
	}{
		{"equal", &fingerprint.Record{BlockCount: 10, Hash: 0x1234, Marker: true}, "same execution", true},
		{"marker", &fingerprint.Record{BlockCount: 10, Hash: 0x1234}, "same path, marker differs", false},
		{"capped", &fingerprint.Record{BlockCount: 12, Hash: 0x1234, Marker: true}, "same prefix, lengths differ (+2 blocks)", false},
		{"different", &fingerprint.Record{BlockCount: 7, Hash: 0x99, Marker: true}, "different path (-3 blocks)", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, same := compareRecords(base, tt.b)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.same, same)
		})
	}
}
