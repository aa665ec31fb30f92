package db

import (
	"path/filepath"
	"testing"

	"github.com/blacktop/fptrace/internal/model"
	"github.com/blacktop/fptrace/pkg/fingerprint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDatabase(t *testing.T, db Database) {
	t.Helper()
	require.NoError(t, db.Connect())

	sink := &Sink{DB: db, Target: "/bin/sample", Source: "replay"}
	rec := &fingerprint.Record{BlockCount: 3, Hash: 18446744073709551615, Marker: true, Args: []string{"-f", "x y"}}
	require.NoError(t, sink.Write("2D662078", rec))
	require.NoError(t, sink.Write("none", &fingerprint.Record{BlockCount: 1, Hash: 5381}))

	other := model.NewRun("/bin/other", "run", &fingerprint.Record{BlockCount: 1, Hash: 5381, Key: "none"})
	require.NoError(t, db.Save(other))

	runs, err := db.List("/bin/sample")
	require.NoError(t, err)
	require.Len(t, runs, 2)

	all, err := db.List("")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	var stored *model.Run
	for _, r := range runs {
		if r.Key == "2D662078" {
			stored = r
		}
	}
	require.NotNil(t, stored)
	assert.NotEmpty(t, stored.ID)
	got, err := stored.Record()
	require.NoError(t, err)
	assert.True(t, got.Equal(rec))
	assert.Equal(t, []string{"-f", "x y"}, got.Args)

	byID, err := db.Get(stored.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.Hash, byID.Hash)

	same, err := db.FindByHash(5381)
	require.NoError(t, err)
	assert.Len(t, same, 2)

	// overwrite
	byID.Marker = false
	require.NoError(t, db.Save(byID))
	byID, err = db.Get(stored.ID)
	require.NoError(t, err)
	assert.False(t, byID.Marker)

	require.NoError(t, db.Delete(stored.ID))
	_, err = db.Get(stored.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.ErrorIs(t, db.Delete(stored.ID), model.ErrNotFound)

	require.NoError(t, db.Close())
}

func TestSqlite(t *testing.T) {
	db, err := NewSqlite(filepath.Join(t.TempDir(), "fptrace.db"), 100)
	require.NoError(t, err)
	testDatabase(t, db)
}

func TestSqliteArgsColumn(t *testing.T) {
	store, err := NewSqlite(filepath.Join(t.TempDir(), "fptrace.db"), 100)
	require.NoError(t, err)
	require.NoError(t, store.Connect())
	defer store.Close()

	args := []string{"-f", "/tmp/canary.opencrs", "two words"}
	run := model.NewRun("/bin/sample", "run", &fingerprint.Record{BlockCount: 2, Hash: 7, Args: args})
	require.NoError(t, store.Save(run))

	// stored as printable text so postgres accepts it too
	var raw string
	require.NoError(t, store.(*Sqlite).db.Raw("SELECT args FROM runs WHERE id = ?", run.ID).Scan(&raw).Error)
	assert.NotContains(t, raw, "\x00")
	assert.JSONEq(t, `["-f","/tmp/canary.opencrs","two words"]`, raw)

	got, err := store.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, args, got.Args)
}

func TestMemory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fptrace.gob")
	db, err := NewInMemory(path)
	require.NoError(t, err)
	testDatabase(t, db)

	// Close persisted the remaining runs
	reopened, err := NewInMemory(path)
	require.NoError(t, err)
	require.NoError(t, reopened.Connect())
	runs, err := reopened.List("")
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestNewValidation(t *testing.T) {
	_, err := NewSqlite("", 0)
	assert.Error(t, err)
	_, err = NewInMemory("")
	assert.Error(t, err)
	_, err = NewPostgres("localhost", "", "u", "", "fptrace", "")
	assert.Error(t, err)

	pg, err := NewPostgres("localhost", "5432", "u", "", "fptrace", "")
	require.NoError(t, err)
	assert.Equal(t, "host=localhost port=5432 user=u dbname=fptrace sslmode=disable", pg.(*Postgres).DSN())
}
