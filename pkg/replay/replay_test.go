package replay

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/blacktop/fptrace/pkg/fingerprint"
	"github.com/blacktop/fptrace/pkg/symbols"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlayCanary(t *testing.T) {
	l, err := Open(filepath.Join("testdata", "canary.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 7, l.Counts()[EventBlock])

	sink := fingerprint.NewMemorySink()
	p := NewPlayer(l)
	run, err := p.NewRun(nil, sink)
	require.NoError(t, err)

	rec, err := p.Play(run)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.BlockCount)
	assert.Equal(t, fingerprint.Hash("000000500000006000000070"), rec.Hash)
	assert.True(t, rec.Marker)
	assert.Equal(t, fingerprint.OutputKey([]string{"-f", "/tmp/canary.opencrs"}), rec.Key)

	stats := run.Stats()
	assert.Equal(t, 2, stats.Gated)
	assert.Equal(t, 1, stats.Threshold)
	assert.Equal(t, 1, stats.Guarded)

	_, ok := sink.Get(rec.Key)
	assert.True(t, ok)
}

func TestPlayMarkerClosedBeforeGuardedCall(t *testing.T) {
	l := &Log{
		Maps:    []Mapping{{Start: 0x1000, End: 0x2000, Perms: "r-x"}},
		Symbols: []symbols.Entry{{Name: "close", Start: 0x9000, End: 0x9100}},
		Events: []Event{
			{Type: EventOpen, FD: 3, Path: "/tmp/x.opencrs"},
			{Type: EventClose, FD: 3},
			{Type: EventCall, PC: 0x9000},
		},
	}
	p := NewPlayer(l)
	run, err := p.NewRun(nil, nil)
	require.NoError(t, err)
	rec, err := p.Play(run)
	require.NoError(t, err)
	assert.False(t, rec.Marker)
	assert.Equal(t, 1, run.Stats().Inspections)
	assert.Equal(t, "none", rec.Key)
}

func TestPlayUnresolvableHandle(t *testing.T) {
	l := &Log{
		Maps:    []Mapping{{Start: 0x1000, End: 0x2000, Perms: "r-x"}},
		Symbols: []symbols.Entry{{Name: "fclose", Start: 0x9000}},
		Handles: map[uint64]string{3: "", 4: "/home/u/.opencrs"},
		Events:  []Event{{Type: EventCall, PC: 0x9000}},
	}
	p := NewPlayer(l)
	run, err := p.NewRun(nil, nil)
	require.NoError(t, err)
	rec, err := p.Play(run)
	require.NoError(t, err)
	assert.True(t, rec.Marker)
}

func TestPlaySetupFailure(t *testing.T) {
	l := &Log{
		MapsError: "permission denied",
		Events: []Event{
			{Type: EventGate},
			{Type: EventBlock, Start: 0x1050, End: 0x1060},
			{Type: EventExit, Status: 1},
		},
	}
	sink := fingerprint.NewMemorySink()
	p := NewPlayer(l)
	run, err := p.NewRun(nil, sink)
	require.NoError(t, err)
	rec, err := p.Play(run)
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, fingerprint.ErrSetupFailed)
	assert.Empty(t, sink.Keys())
}

func TestPlayHandlesError(t *testing.T) {
	l := &Log{
		Maps:         []Mapping{{Start: 0x1000, End: 0x2000, Perms: "r-x"}},
		Symbols:      []symbols.Entry{{Name: "close", Start: 0x9000}},
		Handles:      map[uint64]string{3: "/tmp/c.opencrs"},
		HandlesError: "EMFILE",
		Events:       []Event{{Type: EventCall, PC: 0x9000}},
	}
	p := NewPlayer(l)
	run, err := p.NewRun(nil, nil)
	require.NoError(t, err)
	rec, err := p.Play(run)
	require.NoError(t, err)
	assert.False(t, rec.Marker)
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"unknown event": "maps: []\nevents:\n  - {type: jump}\n",
		"bad perms":     "maps:\n  - {start: 0x1000, end: 0x2000, perms: rq}\nevents: []\n",
		"inverted":      "maps: []\nevents:\n  - {type: block, start: 0x20, end: 0x10}\n",
		"open":          "maps: []\nevents:\n  - {type: open, fd: 3}\n",
		"unknown field": "maps: []\nevents: []\nthreads: 2\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(in))
			assert.Error(t, err)
		})
	}
}

func TestRecorderRoundTrip(t *testing.T) {
	maps := []fingerprint.MapEntry{{Start: 0x1000, End: 0x2000, Perms: fingerprint.PermRead | fingerprint.PermExec, Path: "/bin/x"}}
	host := fingerprint.Host{
		Mapper: fingerprint.MapperFunc(func() ([]fingerprint.MapEntry, error) { return maps, nil }),
		Args:   []string{"-v"},
	}
	run, err := fingerprint.NewRun(nil, host)
	require.NoError(t, err)

	l := &Log{Args: host.Args}
	l.SetMaps(maps)
	rec := NewRecorder(run, l)
	require.NoError(t, rec.Start())
	rec.OnBasicBlock(fingerprint.BlockEvent{Start: 0x1000, End: 0x1004})
	rec.OpenGate()
	rec.OnBasicBlock(fingerprint.BlockEvent{Start: 0x1050, End: 0x1060})
	rec.OnCallTransfer(fingerprint.CallEvent{PC: 0x1100})
	rec.HandleOpened(3, "/tmp/a")
	rec.HandleClosed(3)
	live, err := rec.Finalize(0)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, rec.Log().Write(&buf))
	parsed, err := Parse(&buf)
	require.NoError(t, err)
	assert.Len(t, parsed.Events, 7)
	assert.Equal(t, "/bin/x", parsed.Maps[0].Path)

	p := NewPlayer(parsed)
	replayed, err := p.NewRun(nil, nil)
	require.NoError(t, err)
	again, err := p.Play(replayed)
	require.NoError(t, err)
	assert.True(t, live.Equal(again))
	assert.Equal(t, live.Key, again.Key)
}

func TestSave(t *testing.T) {
	l := &Log{Maps: []Mapping{{Start: 1, End: 2, Perms: "x"}}, Events: []Event{{Type: EventGate}}}
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, l.Save(path))
	got, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, l.Events, got.Events)
}
