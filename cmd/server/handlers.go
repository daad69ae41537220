package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/danja/semem"
	"github.com/danja/semem/verb"
	"github.com/danja/semem/vsom"
)

type handler struct {
	engine semem.Engine
}

func newHandler(e semem.Engine) *handler {
	return &handler{engine: e}
}

// POST /tell
func (h *handler) handleTell(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	var req struct {
		Title     string `json:"title"`
		Content   string `json:"content"`
		Lazy      bool   `json:"lazy"`
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, err := h.engine.Tell(ctx, req.Title, req.Content, req.Lazy)
	writeVerbResponse(w, resp, err)
}

// POST /ask
func (h *handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	var req struct {
		SessionID string `json:"sessionId"`
		Question  string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, err := h.engine.Ask(ctx, req.SessionID, req.Question)
	writeVerbResponse(w, resp, err)
}

// POST /augment
func (h *handler) handleAugment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	var req struct {
		Type   string         `json:"type"`
		Params map[string]any `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Params == nil {
		req.Params = map[string]any{}
	}

	resp, err := h.engine.Augment(ctx, req.Type, req.Params)
	writeVerbResponse(w, resp, err)
}

// POST /zoom
func (h *handler) handleZoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
		Level     string `json:"level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, err := h.engine.Zoom(req.SessionID, req.Level)
	writeVerbResponse(w, resp, err)
}

// POST /pan
func (h *handler) handlePan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string            `json:"sessionId"`
		Filter    map[string]string `json:"filter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, err := h.engine.Pan(req.SessionID, req.Filter)
	writeVerbResponse(w, resp, err)
}

// POST /tilt
func (h *handler) handleTilt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
		Style     string `json:"style"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, err := h.engine.Tilt(req.SessionID, req.Style)
	writeVerbResponse(w, resp, err)
}

// POST /inspect
func (h *handler) handleInspect(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var req struct {
		SessionID string `json:"sessionId"`
		What      string `json:"what"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, err := h.engine.Inspect(ctx, req.SessionID, req.What)
	writeVerbResponse(w, resp, err)
}

// POST /train-vsom
func (h *handler) handleTrainVSOM(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	var req struct {
		GridSize int `json:"gridSize"`
		Epochs   int `json:"epochs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	cfg := vsom.DefaultConfig()
	if req.GridSize > 0 {
		cfg.GridSize = req.GridSize
	}
	if req.Epochs > 0 {
		cfg.Epochs = req.Epochs
	}

	resp, err := h.engine.TrainVSOM(ctx, cfg)
	writeVerbResponse(w, resp, err)
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeVerbResponse writes the verb dispatcher's response envelope,
// mapping the error's Kind to an HTTP status when one occurred.
func writeVerbResponse(w http.ResponseWriter, resp verb.Response, err error) {
	if err != nil {
		writeJSON(w, httpStatusFor(err), resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// httpStatusFor maps a semem.Kind to its nearest HTTP status.
func httpStatusFor(err error) int {
	switch semem.KindOf(err) {
	case semem.KindValidation:
		return http.StatusBadRequest
	case semem.KindTransient, semem.KindTimeout:
		return http.StatusServiceUnavailable
	case semem.KindProvider:
		return http.StatusBadGateway
	case semem.KindCancelled:
		return http.StatusRequestTimeout
	case semem.KindIntegrity, semem.KindPermanent:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, verb.Response{Success: false, Error: msg, Code: semem.KindValidation.String()})
}
