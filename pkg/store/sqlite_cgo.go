//go:build cgo

package store

import (
	_ "github.com/mattn/go-sqlite3" // cgo SQLite driver, registered as "sqlite3"
)

// CGOSQLiteStore implements KV with the cgo mattn/go-sqlite3 driver. It
// shares the schema and queries of SQLiteStore.
type CGOSQLiteStore struct {
	*sqlStore
}

// Compile-time interface check
var _ KV = (*CGOSQLiteStore)(nil)

// NewCGOSQLiteStore opens dbPath with the cgo driver.
func NewCGOSQLiteStore(dbPath string) (*CGOSQLiteStore, error) {
	s, err := openSQL("sqlite3", dbPath, dialectSQLite)
	if err != nil {
		return nil, err
	}
	return &CGOSQLiteStore{sqlStore: s}, nil
}

func openCGOSQLite(dbPath string) (KV, error) {
	s, err := NewCGOSQLiteStore(dbPath)
	if err != nil {
		return nil, err
	}
	return s, nil
}
