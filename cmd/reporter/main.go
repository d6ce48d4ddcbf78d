// Copyright (c) 2026 Homerteo
// SPDX-License-Identifier: Apache-2.0
// See LICENSE file for details.

// Package main is the entry point for the ms-reporter service.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/homerteo/ms-reporter/internal/batcher"
	"github.com/homerteo/ms-reporter/internal/config"
	"github.com/homerteo/ms-reporter/internal/events"
	"github.com/homerteo/ms-reporter/internal/handlers"
	"github.com/homerteo/ms-reporter/internal/ingest"
	"github.com/homerteo/ms-reporter/internal/metrics"
	"github.com/homerteo/ms-reporter/internal/middleware"
	"github.com/homerteo/ms-reporter/internal/notifier"
	"github.com/homerteo/ms-reporter/internal/stats"
	"github.com/homerteo/ms-reporter/internal/storage"
	"github.com/homerteo/ms-reporter/internal/ws"
)

const defaultConfigPath = "config.json"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "serve":
		runServer(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	case "version", "-v", "--version":
		fmt.Println("ms-reporter v0.3.0")
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`ms-reporter - Real-time fleet statistics reporter

Usage:
  reporter <command> [arguments]

Commands:
  serve     Start the aggregation pipeline and API server
  help      Show this help message
  version   Show version

Environment Variables:
  REPORTER_CONFIG            Path to config file (default: config.json)
  REPORTER_HOST              Server host (default: 0.0.0.0)
  REPORTER_PORT              Server port (default: 21090)
  REPORTER_MODE              Server mode: debug or release (default: release)
  REPORTER_BROKER_URL        MQTT broker URL (default: tcp://localhost:1883)
  REPORTER_EVENTS_TOPIC      Topic the domain events arrive on
  REPORTER_BROADCAST_TOPIC   Topic materialized-view updates are published to
  REPORTER_BROKER_USERNAME   MQTT username
  REPORTER_BROKER_PASSWORD   MQTT password
  REPORTER_WINDOW_MS         Batching window in milliseconds (default: 1000)
  REPORTER_INTAKE_CAPACITY   Intake channel capacity (default: 1024)
  REPORTER_DB_PATH           SQLite database path (default: ./data/reporter.db)`)
}

func runServer(args []string) {
	for _, arg := range args {
		if arg == "-h" || arg == "--help" {
			printUsage()
			return
		}
	}

	configPath := defaultConfigPath
	if envPath := os.Getenv("REPORTER_CONFIG"); envPath != "" {
		configPath = envPath
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.LoadFromEnv()

	// Persistence
	store, err := storage.Open(cfg.Store.Path)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}

	collector := metrics.NewCollector(prometheus.DefaultRegisterer)

	// Broadcast side: MQTT materialized-view updates plus the local
	// websocket hub.
	broadcaster := notifier.NewBroadcaster(notifier.Config{
		BrokerURL: cfg.Broker.URL,
		Topic:     cfg.Broker.BroadcastTopic,
		Username:  cfg.Broker.Username,
		Password:  cfg.Broker.Password,
	}, collector)
	if err := broadcaster.Start(); err != nil {
		log.Fatalf("Failed to connect broadcaster: %v", err)
	}

	hub := ws.NewHub()
	aggregator := stats.NewAggregator(store, fanNotifier{broadcaster, hub}, collector)

	// Intake side: one explicitly owned bounded channel from the MQTT
	// consumer into the windowed batcher.
	intake := make(chan events.VehicleEvent, cfg.Pipeline.IntakeCapacity)

	windows := batcher.New(intake, cfg.Pipeline.Window(), func(batch []events.VehicleEvent) {
		if _, err := aggregator.ProcessBatch(context.Background(), batch); err != nil {
			log.Printf("Batch failed, awaiting redelivery: %v", err)
		}
	})
	windows.Start()

	consumer := ingest.NewConsumer(ingest.Config{
		BrokerURL: cfg.Broker.URL,
		Topic:     cfg.Broker.EventsTopic,
		ClientID:  cfg.Broker.ClientID,
		Username:  cfg.Broker.Username,
		Password:  cfg.Broker.Password,
	}, intake, collector)
	if err := consumer.Start(); err != nil {
		log.Fatalf("Failed to start consumer: %v", err)
	}

	// Setup Gin
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.RequestLogger())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	statsHandler := handlers.NewStatsHandler(store, hub, consumer)

	api := router.Group("/api")
	{
		api.GET("/fleet-stats", statsHandler.Get)
		api.GET("/fleet-stats/ws", statsHandler.Subscribe)
		api.GET("/status", statsHandler.Status)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting ms-reporter server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")

	// Stop intake first, then let the batcher drain in-flight windows so no
	// batch is abandoned mid-apply.
	if err := consumer.Stop(); err != nil {
		log.Printf("Error stopping consumer: %v", err)
	}
	windows.Stop()
	broadcaster.Stop()
	hub.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	if err := store.Close(); err != nil {
		log.Printf("Error closing store: %v", err)
	}

	log.Println("Server stopped")
}

// fanNotifier delivers one snapshot to every configured notifier.
type fanNotifier []stats.Notifier

func (f fanNotifier) Notify(snapshot *stats.FleetSnapshot) {
	for _, n := range f {
		n.Notify(snapshot)
	}
}
