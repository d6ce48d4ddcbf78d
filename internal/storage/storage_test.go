// Copyright (c) 2026 Homerteo
// SPDX-License-Identifier: Apache-2.0
// See LICENSE file for details.

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homerteo/ms-reporter/internal/stats"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "reporter.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSnapshotBeforeFirstWrite(t *testing.T) {
	s := openTestStore(t)

	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, stats.FleetStatsID, snap.ID)
	assert.Zero(t, snap.TotalVehicles)
	assert.Empty(t, snap.VehiclesByType)
	assert.Empty(t, snap.VehiclesByDecade)
	assert.Empty(t, snap.VehiclesBySpeedClass)
	assert.Zero(t, snap.HPStats.Average)
	assert.True(t, snap.LastUpdated.IsZero())
}

func TestCommitBatchAppliesIncrements(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	inc := &stats.BatchIncrement{
		TotalVehicles: 2,
		ByType:        map[string]uint64{"SUV": 1, "Sedan": 1},
		ByDecade:      map[string]uint64{"1990": 1, "2020": 1},
		BySpeedClass:  map[string]uint64{"LOW": 1, "HIGH": 1},
		HPSum:         300,
		HPCount:       2,
	}
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	n, err := s.CommitBatch(ctx, []string{"v1", "v2"}, func(newIDs map[string]bool) *stats.BatchIncrement {
		assert.Len(t, newIDs, 2)
		return inc
	}, now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.TotalVehicles)
	assert.Equal(t, map[string]uint64{"SUV": 1, "Sedan": 1}, snap.VehiclesByType)
	assert.Equal(t, map[string]uint64{"1990": 1, "2020": 1}, snap.VehiclesByDecade)
	assert.Equal(t, map[string]uint64{"LOW": 1, "HIGH": 1}, snap.VehiclesBySpeedClass)
	assert.Equal(t, float64(300), snap.HPStats.Total)
	assert.Equal(t, uint64(2), snap.HPStats.Count)
	assert.Equal(t, float64(150), snap.HPStats.Average)
	assert.Equal(t, now, snap.LastUpdated)
}

func TestCommitBatchRedelivery(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	inc := &stats.BatchIncrement{
		TotalVehicles: 1,
		ByType:        map[string]uint64{"SUV": 1},
	}
	n, err := s.CommitBatch(ctx, []string{"v1"}, func(map[string]bool) *stats.BatchIncrement {
		return inc
	}, time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// Replay of the same id must win nothing and apply nothing.
	n, err = s.CommitBatch(ctx, []string{"v1"}, func(map[string]bool) *stats.BatchIncrement {
		t.Fatal("build must not be called for a fully redelivered batch")
		return nil
	}, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.TotalVehicles)
	assert.Equal(t, map[string]uint64{"SUV": 1}, snap.VehiclesByType)
}

func TestCommitBatchPartialRedelivery(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.CommitBatch(ctx, []string{"v1"}, func(map[string]bool) *stats.BatchIncrement {
		return &stats.BatchIncrement{TotalVehicles: 1}
	}, time.Now())
	require.NoError(t, err)

	n, err := s.CommitBatch(ctx, []string{"v1", "v2"}, func(newIDs map[string]bool) *stats.BatchIncrement {
		assert.Equal(t, map[string]bool{"v2": true}, newIDs)
		return &stats.BatchIncrement{TotalVehicles: 1}
	}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.TotalVehicles)
}

func TestHorsepowerAverageAcrossBatches(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.CommitBatch(ctx, []string{"a", "b"}, func(map[string]bool) *stats.BatchIncrement {
		return &stats.BatchIncrement{TotalVehicles: 2, HPSum: 100, HPCount: 2}
	}, time.Now())
	require.NoError(t, err)

	_, err = s.CommitBatch(ctx, []string{"c"}, func(map[string]bool) *stats.BatchIncrement {
		return &stats.BatchIncrement{TotalVehicles: 1, HPSum: 50, HPCount: 1}
	}, time.Now())
	require.NoError(t, err)

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, float64(150), snap.HPStats.Total)
	assert.Equal(t, uint64(3), snap.HPStats.Count)
	assert.Equal(t, float64(50), snap.HPStats.Average)
}

func TestFilterProcessed(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	empty, err := s.FilterProcessed(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = s.CommitBatch(ctx, []string{"v1", "v3"}, func(map[string]bool) *stats.BatchIncrement {
		return nil
	}, time.Now())
	require.NoError(t, err)

	seen, err := s.FilterProcessed(ctx, []string{"v1", "v2", "v3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"v1": true, "v3": true}, seen)
}

func TestProcessedCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	n, err := s.ProcessedCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.CommitBatch(ctx, []string{"v1", "v2", "v3"}, func(map[string]bool) *stats.BatchIncrement {
		return nil
	}, time.Now())
	require.NoError(t, err)

	n, err = s.ProcessedCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)
}
