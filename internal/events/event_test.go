// Copyright (c) 2026 Homerteo
// SPDX-License-Identifier: Apache-2.0
// See LICENSE file for details.

package events

import (
	"errors"
	"testing"
)

func TestDecode(t *testing.T) {
	raw := []byte(`{"at":"Vehicle","et":"Generated","aid":"v-42","data":{"year":2015,"vehicleType":"SUV","horsePower":200,"maxSpeed":130}}`)

	ev, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ev.ID != "v-42" {
		t.Errorf("id: got %s, want v-42", ev.ID)
	}
	if ev.Payload.Year == nil || *ev.Payload.Year != 2015 {
		t.Errorf("year: got %v, want 2015", ev.Payload.Year)
	}
	if ev.Payload.VehicleType != "SUV" {
		t.Errorf("vehicleType: got %s, want SUV", ev.Payload.VehicleType)
	}
	if ev.Payload.HorsePower == nil || *ev.Payload.HorsePower != 200 {
		t.Errorf("horsePower: got %v, want 200", ev.Payload.HorsePower)
	}
	if ev.Payload.MaxSpeed == nil || *ev.Payload.MaxSpeed != 130 {
		t.Errorf("maxSpeed: got %v, want 130", ev.Payload.MaxSpeed)
	}
}

func TestDecode_OptionalFieldsAbsent(t *testing.T) {
	raw := []byte(`{"at":"Vehicle","et":"Generated","aid":"v-1","data":{"vehicleType":"Sedan"}}`)

	ev, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ev.Payload.Year != nil {
		t.Errorf("year should be nil, got %v", *ev.Payload.Year)
	}
	if ev.Payload.HorsePower != nil {
		t.Errorf("horsePower should be nil, got %v", *ev.Payload.HorsePower)
	}
	if ev.Payload.MaxSpeed != nil {
		t.Errorf("maxSpeed should be nil, got %v", *ev.Payload.MaxSpeed)
	}
}

func TestDecode_NoData(t *testing.T) {
	raw := []byte(`{"at":"Vehicle","et":"Generated","aid":"v-2"}`)

	ev, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ev.Payload.VehicleType != "" {
		t.Errorf("vehicleType should be empty, got %s", ev.Payload.VehicleType)
	}
}

func TestDecode_WrongKind(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"other aggregate", `{"at":"Driver","et":"Generated","aid":"d-1","data":{}}`},
		{"other event type", `{"at":"Vehicle","et":"Updated","aid":"v-1","data":{}}`},
		{"broadcast message on shared topic", `{"type":"ReporterVehicleStatsModified","data":{"id":"fleet_stats"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			if !errors.Is(err, ErrWrongKind) {
				t.Errorf("expected ErrWrongKind, got %v", err)
			}
		})
	}
}

func TestDecode_MissingID(t *testing.T) {
	_, err := Decode([]byte(`{"at":"Vehicle","et":"Generated","data":{}}`))
	if !errors.Is(err, ErrMissingID) {
		t.Errorf("expected ErrMissingID, got %v", err)
	}
}

func TestDecode_Malformed(t *testing.T) {
	if _, err := Decode([]byte(`not json at all`)); err == nil {
		t.Error("expected error for malformed message")
	}
	_, err := Decode([]byte(`{"at":"Vehicle","et":"Generated","aid":"v-1","data":[1,2]}`))
	if !errors.Is(err, ErrBadPayload) {
		t.Errorf("expected ErrBadPayload, got %v", err)
	}
}
