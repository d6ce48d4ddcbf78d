// Copyright (c) 2026 Homerteo
// SPDX-License-Identifier: Apache-2.0
// See LICENSE file for details.

// Package events defines the transport envelope for domain events and the
// decoding of vehicle-generation events consumed by the reporter pipeline.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// AggregateTypeVehicle is the aggregate type carried by vehicle events.
	AggregateTypeVehicle = "Vehicle"
	// EventTypeGenerated marks the creation fact for a vehicle aggregate.
	EventTypeGenerated = "Generated"
)

var (
	ErrMissingID  = errors.New("event has no aggregate id")
	ErrWrongKind  = errors.New("event is not a vehicle-generation event")
	ErrBadPayload = errors.New("malformed event payload")
)

// VehiclePayload is the data section of a vehicle-generation event.
// Fields are optional on the wire; a nil field contributes nothing to the
// corresponding statistics bucket.
type VehiclePayload struct {
	Year        *int     `json:"year,omitempty"`
	VehicleType string   `json:"vehicleType,omitempty"`
	HorsePower  *float64 `json:"horsePower,omitempty"`
	MaxSpeed    *float64 `json:"maxSpeed,omitempty"`
}

// VehicleEvent is one vehicle-generation fact. ID is globally unique and
// stable across redelivery; the dedup ledger is keyed by it.
type VehicleEvent struct {
	ID            string
	AggregateType string
	EventType     string
	Payload       VehiclePayload
}

// envelope is the wire shape shared with the other services on the topic.
type envelope struct {
	AggregateType string          `json:"at"`
	EventType     string          `json:"et"`
	AggregateID   string          `json:"aid"`
	Data          json.RawMessage `json:"data"`
}

// Decode parses a raw transport message into a VehicleEvent.
// Messages of other kinds on the shared topic return ErrWrongKind and are
// simply ignored by the consumer; malformed messages return a decode error.
func Decode(raw []byte) (*VehicleEvent, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	if env.AggregateType != AggregateTypeVehicle || env.EventType != EventTypeGenerated {
		return nil, ErrWrongKind
	}
	if env.AggregateID == "" {
		return nil, ErrMissingID
	}

	var payload VehiclePayload
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
	}

	return &VehicleEvent{
		ID:            env.AggregateID,
		AggregateType: env.AggregateType,
		EventType:     env.EventType,
		Payload:       payload,
	}, nil
}
