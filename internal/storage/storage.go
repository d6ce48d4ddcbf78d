// Copyright (c) 2026 Homerteo
// SPDX-License-Identifier: Apache-2.0
// See LICENSE file for details.

// Package storage persists the fleet aggregate and the dedup ledger in
// SQLite. Counter updates are upsert-increments and the per-batch write is
// one transaction, so concurrent batch commits never double-count and a
// failed batch leaves the ledger unmarked for redelivery to retry.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	// Import modernc.org/sqlite as a blank import to register the driver
	_ "modernc.org/sqlite"

	"github.com/homerteo/ms-reporter/internal/stats"
)

const (
	categoryType       = "type"
	categoryDecade     = "decade"
	categorySpeedClass = "speedClass"
)

// Store wraps the SQL database connection for the reporter.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates a store at the given path and initializes the schema.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Single connection: session pragmas apply everywhere and concurrent
	// batch commits queue instead of hitting SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	s := &Store{db: db, path: path}

	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}
	if err := s.createSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	_, _ = s.db.ExecContext(context.Background(), "PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}

	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(context.Background(), pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) createSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS fleet_stats (
		id TEXT PRIMARY KEY,
		total_vehicles INTEGER NOT NULL DEFAULT 0,
		hp_total REAL NOT NULL DEFAULT 0,
		hp_count INTEGER NOT NULL DEFAULT 0,
		last_updated TEXT
	);
	CREATE TABLE IF NOT EXISTS fleet_counters (
		stats_id TEXT NOT NULL,
		category TEXT NOT NULL,
		bucket TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (stats_id, category, bucket)
	);
	CREATE TABLE IF NOT EXISTS processed_vehicles (
		id TEXT PRIMARY KEY,
		processed_at TEXT NOT NULL
	);
	`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// FilterProcessed returns which of the given event ids are already in the
// dedup ledger.
func (s *Store) FilterProcessed(ctx context.Context, ids []string) (map[string]bool, error) {
	processed := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return processed, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	query := "SELECT id FROM processed_vehicles WHERE id IN (" + placeholders + ")"

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query processed vehicles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan processed vehicle: %w", err)
		}
		processed[id] = true
	}
	return processed, rows.Err()
}

// CommitBatch marks the given event ids as processed and applies the batch
// increments in a single transaction. The marker insert is the serialization
// point: ids that lost the insert race (already in the ledger) are excluded
// from the increments. build receives the set of winning ids and returns the
// deltas to apply; it may return nil to apply nothing.
//
// Returns the number of ids newly marked. A rollback leaves the ledger
// unmarked so upstream redelivery retries the whole batch.
func (s *Store) CommitBatch(ctx context.Context, ids []string, build func(newIDs map[string]bool) *stats.BatchIncrement, now time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin batch transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	newIDs := make(map[string]bool, len(ids))
	nowStr := formatTime(now)
	for _, id := range ids {
		res, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO processed_vehicles (id, processed_at) VALUES (?, ?)",
			id, nowStr)
		if err != nil {
			return 0, fmt.Errorf("mark vehicle %s processed: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("mark vehicle %s processed: %w", id, err)
		}
		if n > 0 {
			newIDs[id] = true
		}
	}

	if len(newIDs) == 0 {
		// Whole batch was redelivered; nothing to apply.
		return 0, tx.Commit()
	}

	inc := build(newIDs)
	if inc != nil && !inc.Empty() {
		if err := applyIncrements(ctx, tx, inc, nowStr); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}
	return len(newIDs), nil
}

func applyIncrements(ctx context.Context, tx *sql.Tx, inc *stats.BatchIncrement, nowStr string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO fleet_stats (id, total_vehicles, hp_total, hp_count, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			total_vehicles = total_vehicles + excluded.total_vehicles,
			hp_total = hp_total + excluded.hp_total,
			hp_count = hp_count + excluded.hp_count,
			last_updated = excluded.last_updated`,
		stats.FleetStatsID, inc.TotalVehicles, inc.HPSum, inc.HPCount, nowStr)
	if err != nil {
		return fmt.Errorf("upsert fleet stats: %w", err)
	}

	counters := []struct {
		category string
		buckets  map[string]uint64
	}{
		{categoryType, inc.ByType},
		{categoryDecade, inc.ByDecade},
		{categorySpeedClass, inc.BySpeedClass},
	}

	for _, c := range counters {
		for bucket, count := range c.buckets {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO fleet_counters (stats_id, category, bucket, count)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(stats_id, category, bucket) DO UPDATE SET
					count = count + excluded.count`,
				stats.FleetStatsID, c.category, bucket, count)
			if err != nil {
				return fmt.Errorf("upsert %s counter %s: %w", c.category, bucket, err)
			}
		}
	}
	return nil
}

// Snapshot returns the current fleet aggregate. When no aggregate row exists
// yet it returns a zero-valued snapshot, never an error, so the first query
// and the first write can race without failing.
func (s *Store) Snapshot(ctx context.Context) (*stats.FleetSnapshot, error) {
	snap := stats.NewFleetSnapshot()

	var lastUpdated sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT total_vehicles, hp_total, hp_count, last_updated FROM fleet_stats WHERE id = ?",
		stats.FleetStatsID,
	).Scan(&snap.TotalVehicles, &snap.HPStats.Total, &snap.HPStats.Count, &lastUpdated)
	if err == sql.ErrNoRows {
		return snap, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query fleet stats: %w", err)
	}

	if lastUpdated.Valid {
		if ts, err := parseTime(lastUpdated.String); err == nil {
			snap.LastUpdated = ts
		}
	}
	if snap.HPStats.Count > 0 {
		snap.HPStats.Average = snap.HPStats.Total / float64(snap.HPStats.Count)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT category, bucket, count FROM fleet_counters WHERE stats_id = ?",
		stats.FleetStatsID)
	if err != nil {
		return nil, fmt.Errorf("query fleet counters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var category, bucket string
		var count uint64
		if err := rows.Scan(&category, &bucket, &count); err != nil {
			return nil, fmt.Errorf("scan fleet counter: %w", err)
		}
		switch category {
		case categoryType:
			snap.VehiclesByType[bucket] = count
		case categoryDecade:
			snap.VehiclesByDecade[bucket] = count
		case categorySpeedClass:
			snap.VehiclesBySpeedClass[bucket] = count
		}
	}
	return snap, rows.Err()
}

// ProcessedCount returns the number of entries in the dedup ledger.
func (s *Store) ProcessedCount(ctx context.Context) (uint64, error) {
	var n uint64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM processed_vehicles").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count processed vehicles: %w", err)
	}
	return n, nil
}

// SQLite date/time functions only understand this layout, not Go's default
// time.Time string form.
const timeLayout = "2006-01-02 15:04:05"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
