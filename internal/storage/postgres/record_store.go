// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagesnap/pagesnap/internal/snapshot"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// RecordStoreConfig controls the Postgres connection pool used for
// snapshot rows.
type RecordStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// FreshnessWindow bounds cache lookups and selects sweep victims.
	FreshnessWindow time.Duration
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// RecordStore reads and writes render records in Postgres.
//
// Expected schema (see db/schema.sql):
//
//	CREATE TABLE snapshots (
//		id UUID PRIMARY KEY,
//		url TEXT NOT NULL,
//		title TEXT,
//		description TEXT,
//		keywords TEXT,
//		artifact_url TEXT NOT NULL,
//		width INT NOT NULL,
//		height INT NOT NULL,
//		full_page BOOLEAN NOT NULL DEFAULT FALSE,
//		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type RecordStore struct {
	pool   pgxQuerier
	table  string
	window time.Duration
	clock  snapshot.Clock
}

// NewRecordStore creates a Postgres-backed RecordStore using the provided
// config.
func NewRecordStore(ctx context.Context, cfg RecordStoreConfig, clock snapshot.Clock) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewRecordStoreWithPool(pool, cfg.Table, cfg.FreshnessWindow, clock)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewRecordStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewRecordStoreWithPool(pool pgxQuerier, table string, window time.Duration, clock snapshot.Clock) (*RecordStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "snapshots"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if window <= 0 {
		return nil, fmt.Errorf("freshness window must be > 0")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	return &RecordStore{pool: pool, table: table, window: window, clock: clock}, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// FindFresh returns the newest record matching exactly on URL, width,
// height and full-page flag within the freshness window, or nil when no
// such record exists.
func (s *RecordStore) FindFresh(ctx context.Context, key snapshot.CacheKey) (*snapshot.RenderRecord, error) {
	query := fmt.Sprintf(`
SELECT id, url, title, description, keywords, artifact_url, width, height, full_page, created_at
FROM %s
WHERE url = $1 AND width = $2 AND height = $3 AND full_page = $4 AND created_at > $5
ORDER BY created_at DESC
LIMIT 1`, s.table)

	cutoff := s.clock.Now().Add(-s.window)
	row := s.pool.QueryRow(ctx, query, key.URL, key.Width, key.Height, key.FullPage, cutoff)

	var rec snapshot.RenderRecord
	err := row.Scan(
		&rec.ID,
		&rec.URL,
		&rec.Title,
		&rec.Description,
		&rec.Keywords,
		&rec.ArtifactURL,
		&rec.Width,
		&rec.Height,
		&rec.FullPage,
		&rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query fresh snapshot: %w", err)
	}
	return &rec, nil
}

// Save inserts a render record. The id is supplied by the caller; a
// collision surfaces as an insert error.
func (s *RecordStore) Save(ctx context.Context, record snapshot.RenderRecord) error {
	if record.ID == "" {
		return fmt.Errorf("record id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	url,
	title,
	description,
	keywords,
	artifact_url,
	width,
	height,
	full_page,
	created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)`, s.table)

	args := []any{
		record.ID,
		record.URL,
		record.Title,
		record.Description,
		record.Keywords,
		record.ArtifactURL,
		record.Width,
		record.Height,
		record.FullPage,
		record.CreatedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// DeleteStale removes every record older than the freshness window and
// returns the artifact URLs captured from the deleted rows. The delete and
// the URL capture happen in a single statement, so row removal is never
// blocked on (or rolled back by) artifact cleanup.
func (s *RecordStore) DeleteStale(ctx context.Context) (snapshot.StaleBatch, error) {
	query := fmt.Sprintf(`
WITH stale AS (
	DELETE FROM %s
	WHERE created_at < $1
	RETURNING artifact_url
)
SELECT artifact_url FROM stale`, s.table)

	cutoff := s.clock.Now().Add(-s.window)
	rows, err := s.pool.Query(ctx, query, cutoff)
	if err != nil {
		return snapshot.StaleBatch{}, fmt.Errorf("delete stale snapshots: %w", err)
	}
	defer rows.Close()

	var batch snapshot.StaleBatch
	for rows.Next() {
		var artifactURL *string
		if err := rows.Scan(&artifactURL); err != nil {
			return snapshot.StaleBatch{}, fmt.Errorf("scan stale snapshot: %w", err)
		}
		batch.Deleted++
		if artifactURL != nil && *artifactURL != "" {
			batch.ArtifactURLs = append(batch.ArtifactURLs, *artifactURL)
		}
	}
	if err := rows.Err(); err != nil {
		return snapshot.StaleBatch{}, fmt.Errorf("iterate stale snapshots: %w", err)
	}
	return batch, nil
}
