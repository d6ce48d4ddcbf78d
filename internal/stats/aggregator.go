// Copyright (c) 2026 Homerteo
// SPDX-License-Identifier: Apache-2.0
// See LICENSE file for details.

package stats

import (
	"context"
	"log"
	"time"

	"github.com/homerteo/ms-reporter/internal/events"
	"github.com/homerteo/ms-reporter/internal/metrics"
)

// Store is the persistence the aggregator runs against.
type Store interface {
	// FilterProcessed returns which of the ids are already in the dedup ledger.
	FilterProcessed(ctx context.Context, ids []string) (map[string]bool, error)
	// CommitBatch marks ids as processed and applies the increments built
	// from the winning ids, all in one atomic store operation. Returns the
	// number of ids newly marked.
	CommitBatch(ctx context.Context, ids []string, build func(newIDs map[string]bool) *BatchIncrement, now time.Time) (int, error)
	// Snapshot returns the current aggregate, zero-valued when absent.
	Snapshot(ctx context.Context) (*FleetSnapshot, error)
}

// Notifier receives the refreshed aggregate after a batch that processed at
// least one new event. Delivery is best-effort and must not block.
type Notifier interface {
	Notify(snapshot *FleetSnapshot)
}

// Aggregator folds window batches of vehicle events into the fleet aggregate.
// It is safe for concurrent batches: the store's marker insert is the
// serialization point, so an event id shared by two in-flight batches is
// counted exactly once.
type Aggregator struct {
	store     Store
	notifier  Notifier
	collector *metrics.Collector
}

// NewAggregator creates a batch aggregator. notifier and collector may be nil.
func NewAggregator(store Store, notifier Notifier, collector *metrics.Collector) *Aggregator {
	return &Aggregator{
		store:     store,
		notifier:  notifier,
		collector: collector,
	}
}

// ProcessBatch applies one window batch to the fleet aggregate and returns
// the number of events newly folded in. A batch whose ids are all already in
// the dedup ledger is a successful no-op. On a store error the whole batch
// is abandoned as zero-processed with the ledger unmarked; redelivery from
// the upstream transport is the retry path.
func (a *Aggregator) ProcessBatch(ctx context.Context, batch []events.VehicleEvent) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	if a.collector != nil {
		a.collector.BatchStarted()
	}

	// Insertion order, first occurrence wins for ids repeated within the window.
	byID := make(map[string]events.VehicleEvent, len(batch))
	ids := make([]string, 0, len(batch))
	for _, ev := range batch {
		if _, seen := byID[ev.ID]; seen {
			continue
		}
		byID[ev.ID] = ev
		ids = append(ids, ev.ID)
	}

	// Advisory pre-check: lets a fully redelivered batch skip the write path.
	// The authoritative dedup decision is the marker insert in CommitBatch.
	processed, err := a.store.FilterProcessed(ctx, ids)
	if err != nil {
		return a.fail(err)
	}
	if len(processed) == len(ids) {
		log.Printf("aggregator: batch of %d event(s) already processed, skipping", len(ids))
		if a.collector != nil {
			a.collector.BatchApplied(0, len(batch), 0)
		}
		return 0, nil
	}

	start := time.Now()
	count, err := a.store.CommitBatch(ctx, ids, func(newIDs map[string]bool) *BatchIncrement {
		newEvents := make([]events.VehicleEvent, 0, len(newIDs))
		for _, id := range ids {
			if newIDs[id] {
				newEvents = append(newEvents, byID[id])
			}
		}
		return ComputeIncrements(newEvents)
	}, time.Now())
	if err != nil {
		return a.fail(err)
	}

	if a.collector != nil {
		a.collector.BatchApplied(count, len(batch)-count, time.Since(start).Seconds())
	}
	if count == 0 {
		return 0, nil
	}

	log.Printf("aggregator: processed %d new vehicle(s), %d duplicate(s) skipped", count, len(batch)-count)

	if a.notifier != nil {
		snapshot, err := a.store.Snapshot(ctx)
		if err != nil {
			// The aggregate update is committed; only the broadcast is lost.
			log.Printf("aggregator: snapshot for notification failed: %v", err)
			return count, nil
		}
		a.notifier.Notify(snapshot)
	}
	return count, nil
}

func (a *Aggregator) fail(err error) (int, error) {
	if a.collector != nil {
		a.collector.BatchFailed()
	}
	log.Printf("aggregator: batch abandoned: %v", err)
	return 0, err
}
