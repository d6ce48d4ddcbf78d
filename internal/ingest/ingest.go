// Copyright (c) 2026 Homerteo
// SPDX-License-Identifier: Apache-2.0
// See LICENSE file for details.

// Package ingest consumes vehicle events from the MQTT transport and feeds
// them into the pipeline's intake channel.
package ingest

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/homerteo/ms-reporter/internal/events"
	"github.com/homerteo/ms-reporter/internal/metrics"
)

// Config holds the MQTT consumer settings.
type Config struct {
	BrokerURL string
	Topic     string
	ClientID  string
	Username  string
	Password  string
}

// Status is a point-in-time view of the consumer connection.
type Status struct {
	BrokerURL string `json:"broker_url"`
	Topic     string `json:"topic"`
	Status    string `json:"status"` // connecting, connected, disconnected
	Received  int64  `json:"received,omitempty"`
	Discarded int64  `json:"discarded,omitempty"`
	Errors    int64  `json:"errors,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// Consumer subscribes to the shared events topic, decodes vehicle-generation
// events and pushes them into the intake channel. The channel is bounded and
// the push blocks, so a slow batching stage backpressures the transport
// instead of dropping events silently. Decode failures are logged and the
// message is discarded; they never stop the stream.
type Consumer struct {
	mu     sync.RWMutex
	config Config

	intake    chan events.VehicleEvent
	collector *metrics.Collector

	client    mqtt.Client
	status    string
	received  int64
	discarded int64
	errors    int64
	lastError string

	lostCh chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewConsumer creates an MQTT consumer feeding the given intake channel.
// The intake channel is owned by the caller and injected here; the consumer
// never closes it. collector may be nil.
func NewConsumer(config Config, intake chan events.VehicleEvent, collector *metrics.Collector) *Consumer {
	return &Consumer{
		config:    config,
		intake:    intake,
		collector: collector,
		status:    "disconnected",
		stopCh:    make(chan struct{}),
	}
}

// Status returns the current connection status.
func (c *Consumer) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Status{
		BrokerURL: c.config.BrokerURL,
		Topic:     c.config.Topic,
		Status:    c.status,
		Received:  atomic.LoadInt64(&c.received),
		Discarded: atomic.LoadInt64(&c.discarded),
		Errors:    atomic.LoadInt64(&c.errors),
		LastError: c.lastError,
	}
}

// Start begins consuming with auto-reconnect.
func (c *Consumer) Start() error {
	c.wg.Add(1)
	go c.runLoop()
	return nil
}

// Stop disconnects from the broker and stops the reconnect loop. Events
// already pushed to the intake channel stay there for the batcher to drain.
func (c *Consumer) Stop() error {
	close(c.stopCh)
	c.wg.Wait()

	c.mu.Lock()
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(1000)
		c.client = nil
	}
	c.status = "disconnected"
	c.mu.Unlock()

	return nil
}

// runLoop is the main connection loop with auto-reconnect.
func (c *Consumer) runLoop() {
	defer c.wg.Done()

	retryDelay := time.Second
	maxRetryDelay := 60 * time.Second

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		err := c.connect()
		if err != nil {
			c.setError(err.Error())

			retryDelay = min(retryDelay*2, maxRetryDelay)

			select {
			case <-c.stopCh:
				return
			case <-time.After(retryDelay):
				continue
			}
		}

		retryDelay = time.Second

		// Wait until the connection drops or we are told to stop.
		select {
		case <-c.stopCh:
			return
		case <-c.lostCh:
		}

		c.mu.Lock()
		if c.client != nil && c.client.IsConnected() {
			c.client.Disconnect(1000)
		}
		c.client = nil
		c.status = "disconnected"
		c.mu.Unlock()

		select {
		case <-c.stopCh:
			return
		case <-time.After(retryDelay):
		}
	}
}

// connect establishes the MQTT connection and subscribes to the topic.
func (c *Consumer) connect() error {
	c.mu.Lock()
	c.status = "connecting"
	c.lostCh = make(chan struct{})
	lostCh := c.lostCh
	c.mu.Unlock()

	clientID := c.config.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("ms-reporter-%s", uuid.New().String()[:8])
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.config.BrokerURL)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(false) // We handle reconnect ourselves
	opts.SetConnectTimeout(10 * time.Second)

	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
	}
	if c.config.Password != "" {
		opts.SetPassword(c.config.Password)
	}

	var lostOnce sync.Once
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("ingest: connection lost: %v", err)
		c.setError(err.Error())
		lostOnce.Do(func() { close(lostCh) })
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}

	// QoS 1: at-least-once from the transport, the dedup ledger absorbs
	// redelivery.
	sub := client.Subscribe(c.config.Topic, 1, c.handleMessage)
	sub.Wait()
	if sub.Error() != nil {
		client.Disconnect(250)
		return sub.Error()
	}

	c.mu.Lock()
	c.client = client
	c.status = "connected"
	c.lastError = ""
	c.mu.Unlock()

	log.Printf("ingest: connected to %s, subscribed to %s", c.config.BrokerURL, c.config.Topic)

	return nil
}

// handleMessage decodes one transport message and forwards vehicle
// generation events into the intake channel.
func (c *Consumer) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	ev, err := events.Decode(msg.Payload())
	if err != nil {
		if errors.Is(err, events.ErrWrongKind) {
			// Other event kinds share the topic; not ours to handle.
			atomic.AddInt64(&c.discarded, 1)
			return
		}
		atomic.AddInt64(&c.errors, 1)
		if c.collector != nil {
			c.collector.DecodeFailure()
		}
		log.Printf("ingest: discarding malformed message: %v", err)
		return
	}

	select {
	case c.intake <- *ev:
		atomic.AddInt64(&c.received, 1)
		if c.collector != nil {
			c.collector.EventConsumed()
			c.collector.SetIntakeDepth(len(c.intake))
		}
	case <-c.stopCh:
	}
}

// setError sets the last error and increments the error count.
func (c *Consumer) setError(msg string) {
	c.mu.Lock()
	c.lastError = msg
	c.mu.Unlock()
	atomic.AddInt64(&c.errors, 1)
}
