// Package db provides SQLite connectivity helpers and migration support for
// the table store.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"
)

// PoolMode selects how a SQLite pool is tuned.
type PoolMode string

// Pool modes.
const (
	// ModeWrite serializes writers: one connection, immediate transactions.
	ModeWrite PoolMode = "write"
	// ModeRead allows concurrent readers.
	ModeRead PoolMode = "read"
)

const (
	defaultBusyTimeout  = "5000" // 5 seconds
	defaultSynchronous  = "NORMAL"
	defaultJournalMode  = "WAL"
	defaultReadPoolSize = 4
)

// OpenSQLite opens a *sql.DB pool for the given SQLite file path.
//
// ModeWrite uses a single connection with _txlock=immediate so concurrent
// writers queue instead of failing with SQLITE_BUSY. ModeRead opens maxOpen
// connections (0 means 4). Both modes use WAL, busy_timeout=5000ms,
// synchronous=NORMAL and foreign_keys=on.
func OpenSQLite(path string, mode PoolMode, maxOpen int) (*sql.DB, error) {
	if mode != ModeRead && mode != ModeWrite {
		return nil, fmt.Errorf("invalid SQLite mode %q: must be %q or %q", mode, ModeRead, ModeWrite)
	}

	db, err := sql.Open("sqlite3", buildDSN(path, mode))
	if err != nil {
		return nil, fmt.Errorf("open sqlite (%s): %w", mode, err)
	}

	if mode == ModeWrite {
		maxOpen = 1
	} else if maxOpen <= 0 {
		maxOpen = defaultReadPoolSize
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite (%s): %w", mode, err)
	}

	return db, nil
}

// OpenSQLitePair opens a write pool and a read pool over the same file.
// readMaxOpen controls the read pool size (0 defaults to 4).
func OpenSQLitePair(path string, readMaxOpen int) (writeDB, readDB *sql.DB, err error) {
	writeDB, err = OpenSQLite(path, ModeWrite, 0)
	if err != nil {
		return nil, nil, err
	}

	readDB, err = OpenSQLite(path, ModeRead, readMaxOpen)
	if err != nil {
		_ = writeDB.Close()
		return nil, nil, err
	}

	return writeDB, readDB, nil
}

func buildDSN(path string, mode PoolMode) string {
	params := url.Values{}
	params.Set("_journal_mode", defaultJournalMode)
	params.Set("_busy_timeout", defaultBusyTimeout)
	params.Set("_synchronous", defaultSynchronous)
	params.Set("_foreign_keys", "on")

	if mode == ModeWrite {
		params.Set("_txlock", "immediate")
	}

	return path + "?" + params.Encode()
}
