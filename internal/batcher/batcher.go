// Copyright (c) 2026 Homerteo
// SPDX-License-Identifier: Apache-2.0
// See LICENSE file for details.

// Package batcher groups the continuous event stream into fixed-duration
// wall-clock windows and emits each non-empty window as one batch.
package batcher

import (
	"log"
	"sync"
	"time"

	"github.com/homerteo/ms-reporter/internal/events"
)

// DefaultWindow is the batching window used when none is configured.
const DefaultWindow = 1000 * time.Millisecond

// Sink consumes one window's batch. Each invocation runs in its own
// goroutine, so a slow batch does not delay the next window from closing.
type Sink func(batch []events.VehicleEvent)

// Batcher converts the intake stream into time-bounded batches. Windows are
// contiguous and close on the ticker regardless of arrival rate; an empty
// window emits nothing.
type Batcher struct {
	intake <-chan events.VehicleEvent
	window time.Duration
	sink   Sink

	stopCh  chan struct{}
	loopWG  sync.WaitGroup
	batchWG sync.WaitGroup
}

// New creates a batcher reading from the given intake channel. The channel
// is owned and injected by the caller; the batcher never closes it.
func New(intake <-chan events.VehicleEvent, window time.Duration, sink Sink) *Batcher {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Batcher{
		intake: intake,
		window: window,
		sink:   sink,
		stopCh: make(chan struct{}),
	}
}

// Start launches the window loop.
func (b *Batcher) Start() {
	b.loopWG.Add(1)
	go b.run()
}

// Stop closes the current window, emits it if non-empty, and waits for every
// in-flight batch to finish. No batch is abandoned mid-apply.
func (b *Batcher) Stop() {
	close(b.stopCh)
	b.loopWG.Wait()
	b.batchWG.Wait()
}

func (b *Batcher) run() {
	defer b.loopWG.Done()

	ticker := time.NewTicker(b.window)
	defer ticker.Stop()

	var buf []events.VehicleEvent

	for {
		select {
		case ev, ok := <-b.intake:
			if !ok {
				b.emit(buf)
				return
			}
			buf = append(buf, ev)
		case <-ticker.C:
			b.emit(buf)
			buf = nil
		case <-b.stopCh:
			b.emit(buf)
			return
		}
	}
}

// emit hands a non-empty batch to the sink in a fresh goroutine. Batches may
// therefore overlap if a window closes before the previous batch completed;
// the aggregator's dedup ledger keeps that safe.
func (b *Batcher) emit(batch []events.VehicleEvent) {
	if len(batch) == 0 {
		return
	}

	log.Printf("batcher: window closed with %d event(s)", len(batch))

	b.batchWG.Add(1)
	go func(batch []events.VehicleEvent) {
		defer b.batchWG.Done()
		b.sink(batch)
	}(batch)
}
