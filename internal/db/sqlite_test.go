package db

import (
	"path/filepath"
	"strings"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	write := buildDSN("/tmp/test.sqlite", ModeWrite)
	read := buildDSN("/tmp/test.sqlite", ModeRead)

	for _, dsn := range []string{write, read} {
		assert.True(t, strings.HasPrefix(dsn, "/tmp/test.sqlite?"))
		assert.Contains(t, dsn, "_journal_mode=WAL")
		assert.Contains(t, dsn, "_busy_timeout=5000")
		assert.Contains(t, dsn, "_foreign_keys=on")
	}
	assert.Contains(t, write, "_txlock=immediate")
	assert.NotContains(t, read, "_txlock")
}

func TestOpenSQLite_InvalidMode(t *testing.T) {
	_, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"), PoolMode("invalid"), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid SQLite mode")
}

func TestOpenSQLite_InvalidPath(t *testing.T) {
	_, err := OpenSQLite("/nonexistent/dir/test.db", ModeWrite, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping sqlite")
}

func TestOpenSQLitePair(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	writeDB, readDB, err := OpenSQLitePair(path, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		writeDB.Close()
		readDB.Close()
	})

	assert.Equal(t, 1, writeDB.Stats().MaxOpenConnections)
	assert.Equal(t, 4, readDB.Stats().MaxOpenConnections)

	var journalMode string
	require.NoError(t, readDB.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", strings.ToLower(journalMode))

	_, err = writeDB.Exec("CREATE TABLE test (id INTEGER PRIMARY KEY, val TEXT)")
	require.NoError(t, err)
	_, err = writeDB.Exec("INSERT INTO test (val) VALUES ('hello')")
	require.NoError(t, err)

	var val string
	require.NoError(t, readDB.QueryRow("SELECT val FROM test WHERE id = 1").Scan(&val))
	assert.Equal(t, "hello", val)
}

func TestRunMigrations(t *testing.T) {
	writeDB, readDB := OpenTestSQLite(t)

	var name string
	err := readDB.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'tables'").Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "tables", name)

	v, err := MigrationVersion(writeDB)
	require.NoError(t, err)
	assert.EqualValues(t, 1, v)

	// Re-running is a no-op.
	require.NoError(t, RunMigrations(writeDB))
}

func TestOpenSQLitePair_ConcurrentWritesSerialize(t *testing.T) {
	writeDB, readDB := OpenTestSQLite(t)

	_, err := writeDB.Exec("CREATE TABLE counter (id INTEGER PRIMARY KEY, n INTEGER)")
	require.NoError(t, err)
	_, err = writeDB.Exec("INSERT INTO counter (id, n) VALUES (1, 0)")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 20)
	for i := range errs {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			if idx%2 == 0 {
				_, errs[idx] = writeDB.Exec("UPDATE counter SET n = n + 1 WHERE id = 1")
				return
			}
			var n int
			errs[idx] = readDB.QueryRow("SELECT n FROM counter WHERE id = 1").Scan(&n)
		}(i)
	}
	wg.Wait()

	for i, e := range errs {
		assert.NoError(t, e, "op %d failed", i)
	}

	var n int
	require.NoError(t, readDB.QueryRow("SELECT n FROM counter WHERE id = 1").Scan(&n))
	assert.Equal(t, 10, n)
}
