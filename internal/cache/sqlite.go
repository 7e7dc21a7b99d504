package cache

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/segmentio/encoding/json"
	_ "modernc.org/sqlite"

	"github.com/semtest-ai/semtest/engine/internal/schema"
	"github.com/semtest-ai/semtest/engine/pkg/types"
)

// SQLiteStore persists judgments across test runs. Rows are keyed by
// (fingerprint, schema_version), so a judgment schema change orphans old
// entries instead of silently reusing incompatible data.
type SQLiteStore struct {
	db      *sql.DB
	version int
}

// NewSQLiteStore opens (or creates) a judgment cache at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS judgments (
			fingerprint    TEXT    NOT NULL,
			schema_version INTEGER NOT NULL,
			judgment       BLOB    NOT NULL,
			provider       TEXT    NOT NULL,
			created_at     INTEGER NOT NULL,
			PRIMARY KEY (fingerprint, schema_version)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create judgments table: %w", err)
	}

	return &SQLiteStore{db: db, version: schema.Version}, nil
}

func (s *SQLiteStore) Get(fingerprint string) (*types.Judgment, bool, error) {
	row := s.db.QueryRow(
		`SELECT judgment FROM judgments WHERE fingerprint = ? AND schema_version = ?`,
		fingerprint, s.version,
	)

	var blob []byte
	if err := row.Scan(&blob); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get judgment: %w", err)
	}

	var j types.Judgment
	if err := json.Unmarshal(blob, &j); err != nil {
		return nil, false, fmt.Errorf("decode cached judgment: %w", err)
	}
	return &j, true, nil
}

func (s *SQLiteStore) Put(fingerprint string, j *types.Judgment) error {
	blob, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("encode judgment: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO judgments(fingerprint, schema_version, judgment, provider, created_at)
		 VALUES(?, ?, ?, ?, ?)
		 ON CONFLICT(fingerprint, schema_version) DO UPDATE SET judgment=excluded.judgment, provider=excluded.provider`,
		fingerprint, s.version, blob, j.Provider, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("put judgment: %w", err)
	}
	return nil
}

// Invalidate removes every entry, including rows written under older schema
// versions.
func (s *SQLiteStore) Invalidate() error {
	if _, err := s.db.Exec(`DELETE FROM judgments`); err != nil {
		return fmt.Errorf("invalidate cache: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Stats reports entry count for the current schema version and overall.
type Stats struct {
	Entries      int
	StaleEntries int
}

func (s *SQLiteStore) Stats() (*Stats, error) {
	var st Stats
	row := s.db.QueryRow(`SELECT COUNT(*) FROM judgments WHERE schema_version = ?`, s.version)
	if err := row.Scan(&st.Entries); err != nil {
		return nil, fmt.Errorf("stats query: %w", err)
	}
	row = s.db.QueryRow(`SELECT COUNT(*) FROM judgments WHERE schema_version != ?`, s.version)
	if err := row.Scan(&st.StaleEntries); err != nil {
		return nil, fmt.Errorf("stats query: %w", err)
	}
	return &st, nil
}
