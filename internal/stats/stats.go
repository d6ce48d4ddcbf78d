// Copyright (c) 2026 Homerteo
// SPDX-License-Identifier: Apache-2.0
// See LICENSE file for details.

// Package stats implements the fleet-statistics domain: category bucketing,
// per-batch increment computation, and the batch aggregator that folds
// windows of vehicle events into the persisted running aggregate.
package stats

import (
	"strconv"
	"time"

	"github.com/homerteo/ms-reporter/internal/events"
)

// FleetStatsID is the fixed identifier of the singleton fleet aggregate.
const FleetStatsID = "fleet_stats"

// UnknownVehicleType is the bucket for events that carry no vehicle type.
const UnknownVehicleType = "UNKNOWN"

// SpeedClass classifies vehicles by top speed.
type SpeedClass string

const (
	SpeedLow    SpeedClass = "LOW"    // maxSpeed <= 120
	SpeedMedium SpeedClass = "MEDIUM" // 120 < maxSpeed <= 200
	SpeedHigh   SpeedClass = "HIGH"   // maxSpeed > 200
)

// ClassifySpeed maps a top speed to its speed class.
func ClassifySpeed(maxSpeed float64) SpeedClass {
	switch {
	case maxSpeed > 200:
		return SpeedHigh
	case maxSpeed > 120:
		return SpeedMedium
	default:
		return SpeedLow
	}
}

// DecadeKey maps a model year to its decade bucket key, e.g. 1995 -> "1990".
func DecadeKey(year int) string {
	return strconv.Itoa((year / 10) * 10)
}

// HPStats is the horsepower summary of the fleet. Total and Count are the
// persisted counters; Average is derived at read time.
type HPStats struct {
	Total   float64 `json:"total"`
	Count   uint64  `json:"count"`
	Average float64 `json:"average"`
}

// FleetSnapshot is the running aggregate for the whole fleet.
type FleetSnapshot struct {
	ID                   string            `json:"id"`
	TotalVehicles        uint64            `json:"totalVehicles"`
	VehiclesByType       map[string]uint64 `json:"vehiclesByType"`
	VehiclesByDecade     map[string]uint64 `json:"vehiclesByDecade"`
	VehiclesBySpeedClass map[string]uint64 `json:"vehiclesBySpeedClass"`
	HPStats              HPStats           `json:"hpStats"`
	LastUpdated          time.Time         `json:"lastUpdated"`
}

// NewFleetSnapshot returns a zero-valued snapshot with empty bucket maps.
// The read path serves this before the first event has ever been processed.
func NewFleetSnapshot() *FleetSnapshot {
	return &FleetSnapshot{
		ID:                   FleetStatsID,
		VehiclesByType:       map[string]uint64{},
		VehiclesByDecade:     map[string]uint64{},
		VehiclesBySpeedClass: map[string]uint64{},
	}
}

// BatchIncrement holds the deltas one batch contributes to the aggregate.
// Increments commute: applying two batches in either order yields the same
// aggregate.
type BatchIncrement struct {
	TotalVehicles uint64
	ByType        map[string]uint64
	ByDecade      map[string]uint64
	BySpeedClass  map[string]uint64
	HPSum         float64
	HPCount       uint64
}

// Empty reports whether the increment carries no contribution at all.
func (inc *BatchIncrement) Empty() bool {
	return inc.TotalVehicles == 0 && inc.HPCount == 0
}

// ComputeIncrements folds a batch of vehicle events into category deltas.
// The result is deterministic for a fixed event set: replaying the same
// batch computes the same increments.
func ComputeIncrements(batch []events.VehicleEvent) *BatchIncrement {
	inc := &BatchIncrement{
		ByType:       map[string]uint64{},
		ByDecade:     map[string]uint64{},
		BySpeedClass: map[string]uint64{},
	}

	for _, ev := range batch {
		inc.TotalVehicles++

		vehicleType := ev.Payload.VehicleType
		if vehicleType == "" {
			vehicleType = UnknownVehicleType
		}
		inc.ByType[vehicleType]++

		if ev.Payload.Year != nil {
			inc.ByDecade[DecadeKey(*ev.Payload.Year)]++
		}
		if ev.Payload.MaxSpeed != nil {
			inc.BySpeedClass[string(ClassifySpeed(*ev.Payload.MaxSpeed))]++
		}
		if ev.Payload.HorsePower != nil {
			inc.HPSum += *ev.Payload.HorsePower
			inc.HPCount++
		}
	}

	return inc
}
