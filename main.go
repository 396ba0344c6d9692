// Package main provides the canvashub daemon entry point: a
// real-time collaborative drawing-canvas backend combining an
// event-sourced per-canvas log with WebSocket fan-out for live
// editors.
//
// Startup sequence: Config -> Logging -> Database -> Store -> Room ->
// Session -> API -> Listen.
package main

import (
	"fmt"
	"net/http"
	"os"

	"canvashub/api"
	"canvashub/config"
	"canvashub/database"
	"canvashub/logging"
	"canvashub/room"
	"canvashub/session"
	"canvashub/store"
)

func main() {
	cfg, err := config.Initialize()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: configuration initialization failed: %v\n", err)
		os.Exit(1)
	}

	logConfig := &logging.Config{
		Level:        cfg.Logging.Level,
		TraceModules: cfg.Logging.TraceModules,
		LogDir:       cfg.Logging.LogDir,
	}
	if err := logging.ApplyConfig(logConfig); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logging.Fatal("failed to connect to database", map[string]interface{}{"error": err.Error()})
	}
	defer db.Close()

	if err := db.InitializeSchema(); err != nil {
		logging.Fatal("failed to initialize schema", map[string]interface{}{"error": err.Error()})
	}

	eventStore := store.New(db, cfg.Sync.ConflictWindow)
	rooms := room.NewManager()
	hub := session.NewHub(eventStore, rooms, cfg.WebSocket)
	router := api.NewRouter(eventStore, hub, cfg.Server)

	logging.Info("canvashub starting", map[string]interface{}{
		"ws_path": cfg.Server.WSPath,
	})

	bindAddr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logging.Info("server binding to address", map[string]interface{}{"address": bindAddr})

	if err := http.ListenAndServe(bindAddr, router); err != nil {
		logging.Fatal("server failed to start", map[string]interface{}{
			"address": bindAddr,
			"error":   err.Error(),
		})
	}
}
