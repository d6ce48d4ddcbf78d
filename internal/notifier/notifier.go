// Copyright (c) 2026 Homerteo
// SPDX-License-Identifier: Apache-2.0
// See LICENSE file for details.

// Package notifier broadcasts refreshed fleet aggregate snapshots onto the
// materialized-view topic consumed by the gateway's subscription fan-out.
package notifier

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/homerteo/ms-reporter/internal/metrics"
	"github.com/homerteo/ms-reporter/internal/stats"
)

// TypeFleetStatsModified is the broadcast message type the gateway routes to
// its subscription resolvers.
const TypeFleetStatsModified = "ReporterVehicleStatsModified"

// Message is the broadcast envelope published after each effective batch.
type Message struct {
	Type string               `json:"type"`
	Data *stats.FleetSnapshot `json:"data"`
}

// Config holds broadcast publisher settings.
type Config struct {
	BrokerURL string
	Topic     string
	ClientID  string
	Username  string
	Password  string
}

// Broadcaster publishes snapshots fire-and-forget: a failed publish is
// logged and dropped, never retried, and never fails the batch that
// produced it. The aggregate store is the durable source of truth.
type Broadcaster struct {
	config    Config
	collector *metrics.Collector

	client mqtt.Client

	queue  chan *stats.FleetSnapshot
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewBroadcaster creates a broadcaster. collector may be nil.
func NewBroadcaster(config Config, collector *metrics.Collector) *Broadcaster {
	return &Broadcaster{
		config:    config,
		collector: collector,
		queue:     make(chan *stats.FleetSnapshot, 100),
		stopCh:    make(chan struct{}),
	}
}

// Start connects to the broker and starts the async publish worker.
func (b *Broadcaster) Start() error {
	clientID := b.config.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("ms-reporter-notify-%s", uuid.New().String()[:8])
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(b.config.BrokerURL)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetWriteTimeout(10 * time.Second)

	if b.config.Username != "" {
		opts.SetUsername(b.config.Username)
	}
	if b.config.Password != "" {
		opts.SetPassword(b.config.Password)
	}

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("notifier: connection lost: %v", err)
	})

	b.client = mqtt.NewClient(opts)
	token := b.client.Connect()
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}

	b.wg.Add(1)
	go b.runLoop()
	return nil
}

// Stop drains pending snapshots and disconnects.
func (b *Broadcaster) Stop() {
	close(b.stopCh)
	b.wg.Wait()

	if b.client != nil && b.client.IsConnected() {
		b.client.Disconnect(1000)
	}
}

// Notify queues a snapshot for broadcast. Non-blocking: drops when the
// queue is full, which only costs subscribers one intermediate update.
func (b *Broadcaster) Notify(snapshot *stats.FleetSnapshot) {
	select {
	case b.queue <- snapshot:
	default:
		log.Printf("notifier: queue full, dropping snapshot update")
		if b.collector != nil {
			b.collector.NotificationFailed()
		}
	}
}

// runLoop publishes queued snapshots.
func (b *Broadcaster) runLoop() {
	defer b.wg.Done()

	for {
		select {
		case <-b.stopCh:
			b.drainQueue()
			return
		case snapshot := <-b.queue:
			b.publish(snapshot)
		}
	}
}

// drainQueue publishes whatever is still queued at shutdown.
func (b *Broadcaster) drainQueue() {
	for {
		select {
		case snapshot := <-b.queue:
			b.publish(snapshot)
		default:
			return
		}
	}
}

func (b *Broadcaster) publish(snapshot *stats.FleetSnapshot) {
	payload, err := json.Marshal(Message{Type: TypeFleetStatsModified, Data: snapshot})
	if err != nil {
		log.Printf("notifier: marshal snapshot failed: %v", err)
		if b.collector != nil {
			b.collector.NotificationFailed()
		}
		return
	}

	token := b.client.Publish(b.config.Topic, 1, false, payload)
	token.Wait()
	if token.Error() != nil {
		log.Printf("notifier: broadcast publish failed: %v", token.Error())
		if b.collector != nil {
			b.collector.NotificationFailed()
		}
		return
	}

	if b.collector != nil {
		b.collector.NotificationSent()
	}
}
