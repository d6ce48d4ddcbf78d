// Copyright (c) 2026 Homerteo
// SPDX-License-Identifier: Apache-2.0
// See LICENSE file for details.

// Package config handles reporter configuration.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds the reporter configuration.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Broker   BrokerConfig   `json:"broker"`
	Pipeline PipelineConfig `json:"pipeline"`
	Store    StoreConfig    `json:"store"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Mode string `json:"mode"` // "debug" or "release"
}

// BrokerConfig holds MQTT transport settings.
type BrokerConfig struct {
	URL            string `json:"url"`
	EventsTopic    string `json:"events_topic"`    // shared topic the domain events arrive on
	BroadcastTopic string `json:"broadcast_topic"` // materialized-view updates for the gateway
	Username       string `json:"username,omitempty"`
	Password       string `json:"password,omitempty"`
	ClientID       string `json:"client_id,omitempty"`
}

// PipelineConfig holds batching settings.
type PipelineConfig struct {
	WindowMS       int `json:"window_ms"`       // batching window duration
	IntakeCapacity int `json:"intake_capacity"` // bounded intake channel size
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	Path string `json:"path"` // SQLite database file
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 21090,
			Mode: "release",
		},
		Broker: BrokerConfig{
			URL:            "tcp://localhost:1883",
			EventsTopic:    "emi-gateway-materialized-view-updates",
			BroadcastTopic: "emi-gateway-materialized-view-updates",
		},
		Pipeline: PipelineConfig{
			WindowMS:       1000,
			IntakeCapacity: 1024,
		},
		Store: StoreConfig{
			Path: "./data/reporter.db",
		},
	}
}

// Load loads configuration from a JSON file.
// If the file doesn't exist, returns default configuration.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves configuration to a JSON file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// LoadFromEnv overrides config values from environment variables.
func (c *Config) LoadFromEnv() {
	if host := os.Getenv("REPORTER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("REPORTER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 {
			c.Server.Port = p
		}
	}
	if mode := os.Getenv("REPORTER_MODE"); mode != "" {
		c.Server.Mode = mode
	}
	if url := os.Getenv("REPORTER_BROKER_URL"); url != "" {
		c.Broker.URL = url
	}
	if topic := os.Getenv("REPORTER_EVENTS_TOPIC"); topic != "" {
		c.Broker.EventsTopic = topic
	}
	if topic := os.Getenv("REPORTER_BROADCAST_TOPIC"); topic != "" {
		c.Broker.BroadcastTopic = topic
	}
	if user := os.Getenv("REPORTER_BROKER_USERNAME"); user != "" {
		c.Broker.Username = user
	}
	if pass := os.Getenv("REPORTER_BROKER_PASSWORD"); pass != "" {
		c.Broker.Password = pass
	}
	if clientID := os.Getenv("REPORTER_BROKER_CLIENT_ID"); clientID != "" {
		c.Broker.ClientID = clientID
	}
	if window := os.Getenv("REPORTER_WINDOW_MS"); window != "" {
		if w, err := strconv.Atoi(window); err == nil && w > 0 {
			c.Pipeline.WindowMS = w
		}
	}
	if capacity := os.Getenv("REPORTER_INTAKE_CAPACITY"); capacity != "" {
		if n, err := strconv.Atoi(capacity); err == nil && n > 0 {
			c.Pipeline.IntakeCapacity = n
		}
	}
	if path := os.Getenv("REPORTER_DB_PATH"); path != "" {
		c.Store.Path = path
	}
}

// Window returns the batching window as a duration.
func (c *PipelineConfig) Window() time.Duration {
	if c.WindowMS <= 0 {
		return time.Second
	}
	return time.Duration(c.WindowMS) * time.Millisecond
}
