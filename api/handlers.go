package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"canvashub/events"
	"canvashub/logging"
	"canvashub/store"
)

func kindOf(raw string) events.Kind {
	return events.Kind(raw)
}

type handler struct {
	store *store.Store
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "healthy"})
}

type createCanvasRequest struct {
	CanvasID string `json:"canvasId"`
	Name     string `json:"name"`
}

// createCanvas is idempotent (spec §6): a supplied canvasId is reused
// as-is, so calling this twice with the same id returns the same
// canvas rather than minting a second one.
func (h *handler) createCanvas(w http.ResponseWriter, r *http.Request) {
	var req createCanvasRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	id := uuid.New()
	if req.CanvasID != "" {
		parsed, err := uuid.Parse(req.CanvasID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid canvasId")
			return
		}
		id = parsed
	}

	canvas, err := h.store.GetOrCreateCanvas(r.Context(), id, req.Name)
	if err != nil {
		logging.Error("create canvas failed", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "failed to create canvas")
		return
	}

	writeJSON(w, http.StatusCreated, canvas)
}

func (h *handler) getCanvas(w http.ResponseWriter, r *http.Request) {
	canvasID, ok := parseCanvasID(w, r)
	if !ok {
		return
	}

	canvas, found, err := h.store.GetCanvas(r.Context(), canvasID)
	if err != nil {
		logging.Error("get canvas failed", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "failed to load canvas")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "canvas not found")
		return
	}

	writeJSON(w, http.StatusOK, canvas)
}

func (h *handler) getCanvasState(w http.ResponseWriter, r *http.Request) {
	canvasID, ok := parseCanvasID(w, r)
	if !ok {
		return
	}

	shapes, version, err := h.store.GetCanvasState(r.Context(), canvasID)
	if err != nil {
		logging.Error("get canvas state failed", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "failed to load canvas state")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"canvasId": canvasID,
		"shapes":   shapes,
		"version":  version,
	})
}

func (h *handler) getCanvasEvents(w http.ResponseWriter, r *http.Request) {
	canvasID, ok := parseCanvasID(w, r)
	if !ok {
		return
	}

	since := int64(0)
	if raw := r.URL.Query().Get("since"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be an integer version")
			return
		}
		since = n
	}

	evs, err := h.store.EventsSince(r.Context(), canvasID, since)
	if err != nil {
		logging.Error("get canvas events failed", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "failed to load events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"canvasId": canvasID,
		"since":    since,
		"events":   evs,
	})
}

type syncRequest struct {
	Events           []syncEventRequest `json:"events"`
	LastKnownVersion int64              `json:"lastKnownVersion"`
}

type syncEventRequest struct {
	LocalEventID string                 `json:"localEventId"`
	ShapeID      string                 `json:"shapeId,omitempty"`
	EventType    string                 `json:"eventType"`
	Payload      map[string]interface{} `json:"payload"`
	UserID       string                 `json:"userId"`
	Timestamp    int64                  `json:"timestamp,omitempty"`
}

// syncCanvas lets a client catch up via plain HTTP instead of the
// WebSocket BATCH_SYNC message, for offline-queue flush before a
// WebSocket connection has been (re-)established.
func (h *handler) syncCanvas(w http.ResponseWriter, r *http.Request) {
	canvasID, ok := parseCanvasID(w, r)
	if !ok {
		return
	}

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed sync body")
		return
	}

	missed, err := h.store.EventsSince(r.Context(), canvasID, req.LastKnownVersion)
	if err != nil {
		logging.Error("sync canvas: eventsSince failed", map[string]interface{}{"error": err.Error()})
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": false, "error": "failed to load missed events"})
		return
	}

	pending := make([]store.PendingEvent, 0, len(req.Events))
	for _, ev := range req.Events {
		kind := kindOf(ev.EventType)
		if !events.IsStorable(kind) {
			continue
		}
		var shapeID *uuid.UUID
		if ev.ShapeID != "" {
			id, err := uuid.Parse(ev.ShapeID)
			if err != nil {
				continue
			}
			shapeID = &id
		}
		pending = append(pending, store.PendingEvent{
			LocalEventID: ev.LocalEventID,
			ShapeID:      shapeID,
			UserID:       ev.UserID,
			Kind:         kind,
			Payload:      ev.Payload,
		})
	}

	result, err := h.store.StoreBatch(r.Context(), canvasID, pending)
	if err != nil {
		logging.Error("sync canvas failed", map[string]interface{}{"error": err.Error()})
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": false, "error": "failed to sync batch"})
		return
	}

	shapes, version, err := h.store.GetCanvasState(r.Context(), canvasID)
	if err != nil {
		logging.Error("sync canvas: getCanvasState failed", map[string]interface{}{"error": err.Error()})
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": false, "error": "failed to load current state"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"storedEvents": result.Stored,
		"missedEvents": missed,
		"currentState": map[string]interface{}{"shapes": shapes, "version": version},
		"conflicts":    result.Conflicts,
	})
}

func parseCanvasID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := mux.Vars(r)["canvasId"]
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid canvasId")
		return uuid.UUID{}, false
	}
	return id, true
}
