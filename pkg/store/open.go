package store

import (
	"context"
	"fmt"
)

// Driver identifies a KV backend.
type Driver string

const (
	DriverMemory   Driver = "memory"   // in-memory (tests)
	DriverSQLite   Driver = "sqlite"   // modernc.org/sqlite (default)
	DriverSQLite3  Driver = "sqlite3"  // mattn/go-sqlite3, cgo builds only
	DriverPostgres Driver = "postgres" // pgx
	DriverS3       Driver = "s3"       // S3 / MinIO compatible
)

// Options selects and configures a backend for Open.
type Options struct {
	Driver Driver
	Path   string // SQLite database path
	DSN    string // Postgres DSN
	S3     S3Config
}

// Open constructs the KV backend named by opts.Driver. On failure the
// returned KV is a nil interface.
func Open(ctx context.Context, opts Options) (KV, error) {
	var (
		kv  KV
		err error
	)
	switch opts.Driver {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite, "":
		var s *SQLiteStore
		if s, err = NewSQLiteStore(sqlitePath(opts.Path)); err == nil {
			kv = s
		}
	case DriverSQLite3:
		kv, err = openCGOSQLite(sqlitePath(opts.Path))
	case DriverPostgres:
		var s *PostgresStore
		if s, err = NewPostgresStore(ctx, opts.DSN); err == nil {
			kv = s
		}
	case DriverS3:
		var s *S3Store
		if s, err = NewS3Store(ctx, opts.S3); err == nil {
			kv = s
		}
	default:
		return nil, fmt.Errorf("store: unknown driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}
	return kv, nil
}

func sqlitePath(path string) string {
	if path == "" {
		return ":memory:"
	}
	return path
}
