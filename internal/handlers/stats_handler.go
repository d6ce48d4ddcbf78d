// Copyright (c) 2026 Homerteo
// SPDX-License-Identifier: Apache-2.0
// See LICENSE file for details.

// Package handlers contains HTTP request handlers.
package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/homerteo/ms-reporter/internal/ingest"
	"github.com/homerteo/ms-reporter/internal/stats"
	"github.com/homerteo/ms-reporter/internal/ws"
)

// StatsReader is the query side of the aggregate store.
type StatsReader interface {
	Snapshot(ctx context.Context) (*stats.FleetSnapshot, error)
	ProcessedCount(ctx context.Context) (uint64, error)
}

// VehicleStatsRecord is the externally visible shape of the fleet aggregate.
// The gateway's schema carries the map-valued fields as JSON text, so they
// are serialized to strings here, and lastUpdated as an ISO-8601 timestamp.
type VehicleStatsRecord struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	OrganizationID       string `json:"organizationId"`
	Description          string `json:"description"`
	Active               bool   `json:"active"`
	TotalVehicles        uint64 `json:"totalVehicles"`
	VehiclesByType       string `json:"vehiclesByType"`
	VehiclesByDecade     string `json:"vehiclesByDecade"`
	VehiclesBySpeedClass string `json:"vehiclesBySpeedClass"`
	HPStats              string `json:"hpStats"`
	LastUpdated          string `json:"lastUpdated"`
}

// StatsHandler serves the fleet aggregate read path and the websocket
// subscription endpoint.
type StatsHandler struct {
	reader   StatsReader
	hub      *ws.Hub
	consumer *ingest.Consumer
	upgrader websocket.Upgrader
}

// NewStatsHandler creates a stats handler. hub and consumer may be nil.
func NewStatsHandler(reader StatsReader, hub *ws.Hub, consumer *ingest.Consumer) *StatsHandler {
	return &StatsHandler{
		reader:   reader,
		hub:      hub,
		consumer: consumer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The gateway fronts external callers; direct subscribers are
			// internal dashboards.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Get handles GET /api/fleet-stats
// Returns a zero-valued record before the first event has been processed.
func (h *StatsHandler) Get(c *gin.Context) {
	snapshot, err := h.reader.Snapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, RecordFromSnapshot(snapshot))
}

// Subscribe handles GET /api/fleet-stats/ws
// Upgrades to a websocket and streams snapshot updates. The current snapshot
// is sent immediately so subscribers do not wait for the next batch.
func (h *StatsHandler) Subscribe(c *gin.Context) {
	if h.hub == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "subscriptions disabled"})
		return
	}

	snapshot, err := h.reader.Snapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("handlers: websocket upgrade failed: %v", err)
		return
	}

	if h.hub.Add(conn) != nil {
		h.hub.Notify(snapshot)
	}
}

// Status handles GET /api/status
// Operational view: transport connection, subscriber count, ledger size.
func (h *StatsHandler) Status(c *gin.Context) {
	resp := gin.H{"time": time.Now().UTC().Format(time.RFC3339)}

	if h.consumer != nil {
		resp["consumer"] = h.consumer.Status()
	}
	if h.hub != nil {
		resp["subscribers"] = h.hub.Count()
	}
	if count, err := h.reader.ProcessedCount(c.Request.Context()); err == nil {
		resp["processed_events"] = count
	}

	c.JSON(http.StatusOK, resp)
}

// RecordFromSnapshot shapes a snapshot for the gateway contract.
func RecordFromSnapshot(snapshot *stats.FleetSnapshot) VehicleStatsRecord {
	lastUpdated := snapshot.LastUpdated
	if lastUpdated.IsZero() {
		lastUpdated = time.Now().UTC()
	}

	return VehicleStatsRecord{
		ID:                   stats.FleetStatsID,
		Name:                 "Fleet Statistics",
		OrganizationID:       "global",
		Description:          "Real-time fleet statistics",
		Active:               true,
		TotalVehicles:        snapshot.TotalVehicles,
		VehiclesByType:       marshalMap(snapshot.VehiclesByType),
		VehiclesByDecade:     marshalMap(snapshot.VehiclesByDecade),
		VehiclesBySpeedClass: marshalMap(snapshot.VehiclesBySpeedClass),
		HPStats:              marshalJSON(snapshot.HPStats),
		LastUpdated:          lastUpdated.UTC().Format(time.RFC3339),
	}
}

func marshalMap(m map[string]uint64) string {
	if m == nil {
		m = map[string]uint64{}
	}
	return marshalJSON(m)
}

func marshalJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}
