// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache persists raw retrieval pages in SQLite, keyed by
// (query fingerprint, page index). The cache outlives a pipeline run; the
// retrieval engine decides freshness and follows a read-through,
// write-after policy, so a stale entry survives until a refetch succeeds.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/review-engine/pkg/types"
)

// Store is the on-disk page cache. Writes to distinct keys never conflict
// and a write to an existing key replaces the whole entry, so concurrent
// page fetchers need no coordination beyond the database itself.
type Store struct {
	db *sql.DB
}

// Entry is one cached page.
type Entry struct {
	// Fingerprint identifies the normalized query expression.
	Fingerprint string

	// Page is the zero-based page index.
	Page int

	// Records are the page's raw records in source order.
	Records []types.RawRecord

	// Total is the source-reported total result count for the query.
	Total int

	// FetchedAt is when the page was fetched from the source.
	FetchedAt time.Time
}

// Open opens or creates the cache database at path, creating parent
// directories as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS pages (
		fingerprint TEXT NOT NULL,
		page INTEGER NOT NULL,
		records BLOB NOT NULL,
		total INTEGER NOT NULL,
		fetched_at TEXT NOT NULL,
		PRIMARY KEY (fingerprint, page)
	)`)
	return err
}

// Get returns the cached entry for (fingerprint, page), or nil when the key
// has never been written. Staleness is the caller's concern.
func (s *Store) Get(ctx context.Context, fingerprint string, page int) (*Entry, error) {
	var (
		blob      []byte
		total     int
		fetchedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT records, total, fetched_at FROM pages WHERE fingerprint = ? AND page = ?`,
		fingerprint, page,
	).Scan(&blob, &total, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache entry: %w", err)
	}

	var records []types.RawRecord
	if err := json.Unmarshal(blob, &records); err != nil {
		return nil, fmt.Errorf("decoding cached records: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, fetchedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing cache timestamp: %w", err)
	}

	return &Entry{
		Fingerprint: fingerprint,
		Page:        page,
		Records:     records,
		Total:       total,
		FetchedAt:   ts,
	}, nil
}

// Put inserts or replaces the entry for (e.Fingerprint, e.Page). The write
// is idempotent: last successful write wins, with no partial overwrite.
func (s *Store) Put(ctx context.Context, e Entry) error {
	blob, err := json.Marshal(e.Records)
	if err != nil {
		return fmt.Errorf("encoding records: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pages (fingerprint, page, records, total, fetched_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(fingerprint, page) DO UPDATE SET
			records=excluded.records, total=excluded.total, fetched_at=excluded.fetched_at`,
		e.Fingerprint, e.Page, blob, e.Total, e.FetchedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// Purge removes every entry for a fingerprint. Used by the cache CLI
// subcommand, never by the engine itself.
func (s *Store) Purge(ctx context.Context, fingerprint string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pages WHERE fingerprint = ?`, fingerprint)
	if err != nil {
		return 0, fmt.Errorf("purging cache entries: %w", err)
	}
	return res.RowsAffected()
}

// Stats summarizes cache contents for the cache CLI subcommand.
type Stats struct {
	Entries      int
	Fingerprints int
}

// Stat reports how many pages and distinct queries the cache holds.
func (s *Store) Stat(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT fingerprint) FROM pages`,
	).Scan(&st.Entries, &st.Fingerprints)
	if err != nil {
		return Stats{}, fmt.Errorf("reading cache stats: %w", err)
	}
	return st, nil
}
