// Copyright (c) 2026 Homerteo
// SPDX-License-Identifier: Apache-2.0
// See LICENSE file for details.

package stats

import (
	"testing"

	"github.com/homerteo/ms-reporter/internal/events"
)

func TestClassifySpeed(t *testing.T) {
	tests := []struct {
		maxSpeed float64
		want     SpeedClass
	}{
		{0, SpeedLow},
		{120, SpeedLow},
		{120.5, SpeedMedium},
		{121, SpeedMedium},
		{200, SpeedMedium},
		{201, SpeedHigh},
		{260, SpeedHigh},
	}
	for _, tt := range tests {
		if got := ClassifySpeed(tt.maxSpeed); got != tt.want {
			t.Errorf("ClassifySpeed(%v): got %s, want %s", tt.maxSpeed, got, tt.want)
		}
	}
}

func TestDecadeKey(t *testing.T) {
	tests := []struct {
		year int
		want string
	}{
		{1995, "1990"},
		{2005, "2000"},
		{2021, "2020"},
		{1980, "1980"},
		{1989, "1980"},
		{2029, "2020"},
	}
	for _, tt := range tests {
		if got := DecadeKey(tt.year); got != tt.want {
			t.Errorf("DecadeKey(%d): got %s, want %s", tt.year, got, tt.want)
		}
	}
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func vehicle(id string, year int, vehicleType string, hp, maxSpeed float64) events.VehicleEvent {
	return events.VehicleEvent{
		ID:            id,
		AggregateType: events.AggregateTypeVehicle,
		EventType:     events.EventTypeGenerated,
		Payload: events.VehiclePayload{
			Year:        intPtr(year),
			VehicleType: vehicleType,
			HorsePower:  floatPtr(hp),
			MaxSpeed:    floatPtr(maxSpeed),
		},
	}
}

func TestComputeIncrements(t *testing.T) {
	batch := []events.VehicleEvent{
		vehicle("v1", 2015, "SUV", 200, 130),
		vehicle("v2", 2015, "SUV", 300, 260),
	}

	inc := ComputeIncrements(batch)

	if inc.TotalVehicles != 2 {
		t.Errorf("total: got %d, want 2", inc.TotalVehicles)
	}
	if inc.ByType["SUV"] != 2 {
		t.Errorf("byType[SUV]: got %d, want 2", inc.ByType["SUV"])
	}
	if inc.ByDecade["2010"] != 2 {
		t.Errorf("byDecade[2010]: got %d, want 2", inc.ByDecade["2010"])
	}
	if inc.BySpeedClass["MEDIUM"] != 1 {
		t.Errorf("bySpeedClass[MEDIUM]: got %d, want 1", inc.BySpeedClass["MEDIUM"])
	}
	if inc.BySpeedClass["HIGH"] != 1 {
		t.Errorf("bySpeedClass[HIGH]: got %d, want 1", inc.BySpeedClass["HIGH"])
	}
	if inc.HPSum != 500 {
		t.Errorf("hpSum: got %v, want 500", inc.HPSum)
	}
	if inc.HPCount != 2 {
		t.Errorf("hpCount: got %d, want 2", inc.HPCount)
	}
}

func TestComputeIncrements_MissingFields(t *testing.T) {
	// No payload fields at all: counts toward total and UNKNOWN type only.
	batch := []events.VehicleEvent{{ID: "bare"}}

	inc := ComputeIncrements(batch)

	if inc.TotalVehicles != 1 {
		t.Errorf("total: got %d, want 1", inc.TotalVehicles)
	}
	if inc.ByType[UnknownVehicleType] != 1 {
		t.Errorf("byType[UNKNOWN]: got %d, want 1", inc.ByType[UnknownVehicleType])
	}
	if len(inc.ByDecade) != 0 {
		t.Errorf("byDecade should be empty, got %v", inc.ByDecade)
	}
	if len(inc.BySpeedClass) != 0 {
		t.Errorf("bySpeedClass should be empty, got %v", inc.BySpeedClass)
	}
	if inc.HPCount != 0 || inc.HPSum != 0 {
		t.Errorf("hp stats should be zero, got sum=%v count=%d", inc.HPSum, inc.HPCount)
	}
}

func TestComputeIncrements_DecadeBuckets(t *testing.T) {
	batch := []events.VehicleEvent{
		vehicle("a", 1995, "Sedan", 100, 100),
		vehicle("b", 2005, "Sedan", 100, 100),
		vehicle("c", 2021, "Sedan", 100, 100),
	}

	inc := ComputeIncrements(batch)

	for _, decade := range []string{"1990", "2000", "2020"} {
		if inc.ByDecade[decade] != 1 {
			t.Errorf("byDecade[%s]: got %d, want 1", decade, inc.ByDecade[decade])
		}
	}
	if len(inc.ByDecade) != 3 {
		t.Errorf("expected 3 decade buckets, got %d", len(inc.ByDecade))
	}
}

func TestComputeIncrements_Empty(t *testing.T) {
	inc := ComputeIncrements(nil)
	if !inc.Empty() {
		t.Errorf("expected empty increment, got %+v", inc)
	}
}

func TestNewFleetSnapshot(t *testing.T) {
	snap := NewFleetSnapshot()
	if snap.ID != FleetStatsID {
		t.Errorf("id: got %s, want %s", snap.ID, FleetStatsID)
	}
	if snap.TotalVehicles != 0 {
		t.Errorf("total: got %d, want 0", snap.TotalVehicles)
	}
	if snap.VehiclesByType == nil || len(snap.VehiclesByType) != 0 {
		t.Errorf("vehiclesByType should be an empty map, got %v", snap.VehiclesByType)
	}
}
