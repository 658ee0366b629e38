package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// sqlDialect captures the differences between the SQL backends.
type sqlDialect struct {
	name       string
	valueType  string // column type for payloads
	positional bool   // $1 style placeholders instead of ?
}

var (
	dialectSQLite   = sqlDialect{name: "sqlite", valueType: "BLOB"}
	dialectPostgres = sqlDialect{name: "postgres", valueType: "BYTEA", positional: true}
)

// rebind rewrites ? placeholders for dialects that need positional ones.
func (d sqlDialect) rebind(query string) string {
	if !d.positional {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// sqlStore implements KV on top of database/sql. It backs every SQL driver.
type sqlStore struct {
	db      *sql.DB
	dialect sqlDialect
}

func newSQLStore(ctx context.Context, db *sql.DB, dialect sqlDialect) (*sqlStore, error) {
	s := &sqlStore{db: db, dialect: dialect}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates the records table and its secondary index if they don't exist.
func (s *sqlStore) initSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS records (
			collection TEXT NOT NULL,
			record_key TEXT NOT NULL,
			idx TEXT NOT NULL DEFAULT '',
			value %s NOT NULL,
			updated_at BIGINT NOT NULL,
			PRIMARY KEY (collection, record_key)
		)`, s.dialect.valueType),
		`CREATE INDEX IF NOT EXISTS idx_records_index ON records(collection, idx)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Get retrieves a record by key.
func (s *sqlStore) Get(ctx context.Context, collection, key string) (*Record, error) {
	if err := checkArgs(collection, key); err != nil {
		return nil, err
	}
	query := s.dialect.rebind(`
		SELECT record_key, idx, value, updated_at
		FROM records
		WHERE collection = ? AND record_key = ?
	`)

	var rec Record
	var updatedAt int64
	err := s.db.QueryRowContext(ctx, query, collection, key).Scan(&rec.Key, &rec.Index, &rec.Value, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil // Not found, no error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	rec.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &rec, nil
}

// Put inserts or replaces a record.
func (s *sqlStore) Put(ctx context.Context, collection string, record *Record) error {
	if record == nil {
		return ErrInvalidArgument
	}
	if err := checkArgs(collection, record.Key); err != nil {
		return err
	}
	updatedAt := record.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	value := record.Value
	if value == nil {
		value = []byte{}
	}

	query := s.dialect.rebind(`
		INSERT INTO records (collection, record_key, idx, value, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collection, record_key) DO UPDATE SET
			idx = excluded.idx,
			value = excluded.value,
			updated_at = excluded.updated_at
	`)
	_, err := s.db.ExecContext(ctx, query, collection, record.Key, record.Index, value, updatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to put record: %w", err)
	}
	return nil
}

// Delete removes a record by key.
func (s *sqlStore) Delete(ctx context.Context, collection, key string) (bool, error) {
	if err := checkArgs(collection, key); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		s.dialect.rebind(`DELETE FROM records WHERE collection = ? AND record_key = ?`),
		collection, key)
	if err != nil {
		return false, fmt.Errorf("failed to delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete record: %w", err)
	}
	return n > 0, nil
}

// All returns every record in a collection ordered by key.
func (s *sqlStore) All(ctx context.Context, collection string) ([]*Record, error) {
	if collection == "" {
		return nil, ErrInvalidArgument
	}
	return s.query(ctx, `
		SELECT record_key, idx, value, updated_at
		FROM records
		WHERE collection = ?
		ORDER BY record_key
	`, collection)
}

// ByIndex returns every record whose secondary index matches.
func (s *sqlStore) ByIndex(ctx context.Context, collection, index string) ([]*Record, error) {
	if collection == "" {
		return nil, ErrInvalidArgument
	}
	return s.query(ctx, `
		SELECT record_key, idx, value, updated_at
		FROM records
		WHERE collection = ? AND idx = ?
		ORDER BY record_key
	`, collection, index)
}

func (s *sqlStore) query(ctx context.Context, query string, args ...any) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	records := make([]*Record, 0)
	for rows.Next() {
		var rec Record
		var updatedAt int64
		if err := rows.Scan(&rec.Key, &rec.Index, &rec.Value, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return records, nil
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *sqlStore) DB() *sql.DB {
	return s.db
}

// SQLiteStore implements KV using SQLite (modernc.org/sqlite, no cgo).
type SQLiteStore struct {
	*sqlStore
}

// Compile-time interface check
var _ KV = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite-backed store.
// The dbPath can be a file path or ":memory:" for an in-memory database.
// Creates tables and indexes if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	s, err := openSQL("sqlite", dbPath, dialectSQLite)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{sqlStore: s}, nil
}

func openSQL(driver, dsn string, dialect sqlDialect) (*sqlStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect.name == "sqlite" && strings.Contains(dsn, ":memory:") {
		// Each pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	s, err := newSQLStore(context.Background(), db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}
