// Package api exposes the HTTP companion to the WebSocket protocol
// (spec §6): canvas lookup/creation, point-in-time state and event
// reads for clients that are not currently connected, and the health
// check. The live collaboration traffic itself goes over the
// WebSocket upgrade wired in alongside these routes.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"canvashub/config"
	"canvashub/session"
	"canvashub/store"
)

// NewRouter builds the top-level mux.Router: the REST surface under
// /api plus the WebSocket upgrade at cfg.WSPath.
func NewRouter(st *store.Store, hub *session.Hub, cfg config.ServerConfig) *mux.Router {
	r := mux.NewRouter()
	h := &handler{store: st}

	r.HandleFunc(cfg.WSPath, func(w http.ResponseWriter, req *http.Request) {
		userID := req.URL.Query().Get("userId")
		if userID == "" {
			userID = req.Header.Get("X-User-Id")
		}
		hub.ServeWS(w, req, userID)
	})

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/canvas", h.createCanvas).Methods("POST")
	api.HandleFunc("/canvas/{canvasId}", h.getCanvas).Methods("GET")
	api.HandleFunc("/canvas/{canvasId}/state", h.getCanvasState).Methods("GET")
	api.HandleFunc("/canvas/{canvasId}/events", h.getCanvasEvents).Methods("GET")
	api.HandleFunc("/canvas/{canvasId}/sync", h.syncCanvas).Methods("POST")

	r.HandleFunc("/health", h.health).Methods("GET")

	return r
}
