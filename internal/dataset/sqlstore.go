package dataset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS documents (
	key TEXT PRIMARY KEY,
	body TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

const getDocument = `SELECT body FROM documents WHERE key = ?`

const upsertDocument = `INSERT INTO documents (key, body, updated_at) VALUES (?, ?, ?)
ON CONFLICT (key) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`

// SQLStore keeps the dataset document as a row of a key/value table. driver is "sqlite" for
// a local file or "libsql" for a remote libsql database.
type SQLStore struct {
	db  *sql.DB
	key string
}

// OpenSQLStore opens the database and creates the documents table when it is missing.
func OpenSQLStore(ctx context.Context, driver, dsn, key string) (*SQLStore, error) {
	switch driver {
	case "sqlite", "libsql":
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		// a single writer keeps sqlite from returning SQLITE_BUSY
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable wal: %w", err)
		}
	}
	store, err := NewSQLStore(ctx, db, key)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func NewSQLStore(ctx context.Context, db *sql.DB, key string) (*SQLStore, error) {
	if key == "" {
		key = "runners"
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create documents table: %w", err)
	}
	return &SQLStore{db: db, key: key}, nil
}

func (s *SQLStore) Load(ctx context.Context) (Dataset, error) {
	var body string
	err := s.db.QueryRowContext(ctx, getDocument, s.key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return Dataset{}, ErrNotFound
	}
	if err != nil {
		return Dataset{}, fmt.Errorf("load document %s: %w", s.key, err)
	}
	return Decode([]byte(body))
}

func (s *SQLStore) Save(ctx context.Context, d Dataset) error {
	buf, err := Encode(d)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, upsertDocument, s.key, string(buf), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save document %s: %w", s.key, err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
