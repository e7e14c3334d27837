// Package admin exposes the operations HTTP API: pipeline status, live
// settings, manual run triggers and bulk catalog edits.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pricewatch/internal/catalog"
	"pricewatch/internal/pipeline"
	"pricewatch/internal/settings"
)

type Handler struct {
	runner    *pipeline.Runner
	catalog   catalog.Service
	settings  *settings.Manager
	tokenHash string
	tokenSalt string
	log       *slog.Logger
}

func NewHandler(runner *pipeline.Runner, cat catalog.Service, mgr *settings.Manager, tokenHash, tokenSalt string, log *slog.Logger) *Handler {
	return &Handler{
		runner:    runner,
		catalog:   cat,
		settings:  mgr,
		tokenHash: tokenHash,
		tokenSalt: tokenSalt,
		log:       log.With("component", "admin"),
	}
}

// Router builds the chi router for the admin API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.authenticate)
		r.Get("/status", h.handleStatus)
		r.Get("/settings", h.handleGetSettings)
		r.Put("/settings", h.handlePutSettings)
		r.Post("/run/{platform}", h.handleRun)
		r.Post("/items/{platform}", h.handleAddItems)
		r.Delete("/items/{platform}", h.handleRemoveItems)
	})

	return r
}

type platformStatus struct {
	ItemCount int             `json:"item_count"`
	LastRun   *pipeline.Stats `json:"last_run,omitempty"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	last := h.runner.LastStats()

	out := make(map[string]platformStatus)
	for _, platform := range h.runner.Platforms() {
		count, err := h.catalog.Count(r.Context(), platform)
		if err != nil {
			h.log.Error("status count failed", "platform", platform, "error", err)
			http.Error(w, "storage error", http.StatusInternalServerError)
			return
		}
		st := platformStatus{ItemCount: count}
		if s, ok := last[platform]; ok {
			stats := s
			st.LastRun = &stats
		}
		out[platform] = st
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	vals, err := h.settings.Load(r.Context())
	if err != nil {
		h.log.Error("settings load failed", "error", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, vals)
}

var knownKeys = map[string]struct{}{
	settings.KeyMinPriceDrop:       {},
	settings.KeyMinDiscountUp:      {},
	settings.KeyStabilityThreshold: {},
	settings.KeyPublishRatePerHour: {},
	settings.KeyTargetCatalogSize:  {},
	settings.KeyRefillQueries:      {},
}

func (h *Handler) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	for key := range body {
		if _, ok := knownKeys[key]; !ok {
			http.Error(w, "unknown setting key: "+key, http.StatusBadRequest)
			return
		}
	}
	for key, value := range body {
		if err := h.settings.Set(r.Context(), key, value); err != nil {
			h.log.Error("settings update failed", "key", key, "error", err)
			http.Error(w, "storage error", http.StatusInternalServerError)
			return
		}
	}

	vals, err := h.settings.Load(r.Context())
	if err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, vals)
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	platform := chi.URLParam(r, "platform")
	if !h.knownPlatform(platform) {
		http.Error(w, "unknown platform", http.StatusNotFound)
		return
	}

	// Runs take minutes; fire and let the status endpoint report progress.
	go func() {
		err := h.runner.RunPlatform(context.Background(), platform)
		if err != nil && !errors.Is(err, pipeline.ErrRunInFlight) {
			h.log.Error("manual run failed", "platform", platform, "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered", "platform": platform})
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

func (h *Handler) handleAddItems(w http.ResponseWriter, r *http.Request) {
	platform := chi.URLParam(r, "platform")
	if !h.knownPlatform(platform) {
		http.Error(w, "unknown platform", http.StatusNotFound)
		return
	}

	var body idsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.IDs) == 0 {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	added, skipped, err := h.catalog.AddItems(r.Context(), platform, body.IDs)
	if err != nil {
		h.log.Error("add items failed", "platform", platform, "error", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"added": added, "skipped": skipped})
}

func (h *Handler) handleRemoveItems(w http.ResponseWriter, r *http.Request) {
	platform := chi.URLParam(r, "platform")
	if !h.knownPlatform(platform) {
		http.Error(w, "unknown platform", http.StatusNotFound)
		return
	}

	var body idsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.IDs) == 0 {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	removed, err := h.catalog.RemoveItems(r.Context(), platform, body.IDs)
	if err != nil {
		h.log.Error("remove items failed", "platform", platform, "error", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (h *Handler) knownPlatform(platform string) bool {
	for _, p := range h.runner.Platforms() {
		if p == platform {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
