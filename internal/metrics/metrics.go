// Copyright (c) 2026 Homerteo
// SPDX-License-Identifier: Apache-2.0
// See LICENSE file for details.

// Package metrics exposes Prometheus instrumentation for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the Prometheus metrics for the reporter pipeline.
type Collector struct {
	eventsConsumed  prometheus.Counter
	decodeFailures  prometheus.Counter
	batches         prometheus.Counter
	batchFailures   prometheus.Counter
	eventsProcessed prometheus.Counter
	duplicates      prometheus.Counter
	notifications   prometheus.Counter
	notifyFailures  prometheus.Counter

	intakeDepth prometheus.Gauge
	batchApply  prometheus.Histogram
}

// NewCollector creates the metrics collector and registers it with reg.
// Pass prometheus.DefaultRegisterer outside of tests.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		eventsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reporter_events_consumed_total",
			Help: "Total number of vehicle events accepted from the transport",
		}),
		decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reporter_decode_failures_total",
			Help: "Total number of malformed transport messages discarded",
		}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reporter_batches_total",
			Help: "Total number of window batches handed to the aggregator",
		}),
		batchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reporter_batch_failures_total",
			Help: "Total number of batches abandoned due to store errors",
		}),
		eventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reporter_events_processed_total",
			Help: "Total number of events folded into the fleet aggregate",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reporter_duplicates_skipped_total",
			Help: "Total number of redelivered events skipped by the dedup ledger",
		}),
		notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reporter_notifications_sent_total",
			Help: "Total number of aggregate snapshots broadcast to subscribers",
		}),
		notifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reporter_notification_failures_total",
			Help: "Total number of broadcast publish failures (best-effort, not retried)",
		}),
		intakeDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reporter_intake_queue_depth",
			Help: "Current number of events waiting in the intake channel",
		}),
		batchApply: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reporter_batch_apply_seconds",
			Help:    "Latency of applying one batch to the aggregate store",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.eventsConsumed, c.decodeFailures,
		c.batches, c.batchFailures, c.eventsProcessed, c.duplicates,
		c.notifications, c.notifyFailures,
		c.intakeDepth, c.batchApply,
	)
	return c
}

func (c *Collector) EventConsumed()       { c.eventsConsumed.Inc() }
func (c *Collector) DecodeFailure()       { c.decodeFailures.Inc() }
func (c *Collector) BatchStarted()        { c.batches.Inc() }
func (c *Collector) BatchFailed()         { c.batchFailures.Inc() }
func (c *Collector) NotificationSent()    { c.notifications.Inc() }
func (c *Collector) NotificationFailed()  { c.notifyFailures.Inc() }
func (c *Collector) SetIntakeDepth(n int) { c.intakeDepth.Set(float64(n)) }

// BatchApplied records a successful batch: how many events were newly folded
// in, how many were duplicate redeliveries, and how long the store write took.
func (c *Collector) BatchApplied(processed, duplicates int, seconds float64) {
	c.eventsProcessed.Add(float64(processed))
	c.duplicates.Add(float64(duplicates))
	c.batchApply.Observe(seconds)
}
