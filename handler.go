package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"fundmate/config"

	"github.com/go-chi/chi/v5"
)

// APIHandler handles HTTP API requests
type APIHandler struct {
	app *App
	cfg *config.Config
}

// NewAPIHandler creates a new APIHandler
func NewAPIHandler(app *App, cfg *config.Config) *APIHandler {
	return &APIHandler{app: app, cfg: cfg}
}

// handleHealth returns the health status of the application
func (h *APIHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status": "ok",
		"services": map[string]string{
			"database": "unknown",
		},
	}

	if h.app.repo != nil {
		ctx := r.Context()
		if err := h.app.repo.Health(ctx); err == nil {
			status["services"].(map[string]string)["database"] = "connected"
		} else {
			status["services"].(map[string]string)["database"] = "disconnected"
			status["status"] = "degraded"
		}
	} else {
		status["services"].(map[string]string)["database"] = "not_configured"
	}

	h.jsonResponse(w, status)
}

// handleGetPortfolio returns the saved portfolio for a date
func (h *APIHandler) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if err := validateDate(date); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	results, rates, err := h.app.Snapshot(r.Context(), date)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if results == nil {
		h.jsonError(w, fmt.Sprintf("no saved portfolio for %s", date), http.StatusNotFound)
		return
	}

	h.jsonResponse(w, map[string]interface{}{
		"date":    date,
		"brokers": results,
		"rates":   rates,
	})
}

// handleGetDates returns all dates with a saved portfolio
func (h *APIHandler) handleGetDates(w http.ResponseWriter, r *http.Request) {
	dates, err := h.app.Dates(r.Context())
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.jsonResponse(w, map[string]interface{}{
		"dates": dates,
		"count": len(dates),
	})
}

// handleProcess triggers statement processing for a date
func (h *APIHandler) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date string `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		req.Date = r.FormValue("date")
	}
	if req.Date == "" {
		req.Date = time.Now().Format("2006-01-02")
	}
	if err := validateDate(req.Date); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	summary, err := h.app.ProcessDate(r.Context(), req.Date)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.jsonResponse(w, summary)
}

// handleProcessTC rolls a saved portfolio forward using trade confirmations
func (h *APIHandler) handleProcessTC(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BaseDate   string `json:"base_date"`
		TargetDate string `json:"target_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		req.BaseDate = r.FormValue("base_date")
		req.TargetDate = r.FormValue("target_date")
	}
	if req.BaseDate == "" || req.TargetDate == "" {
		h.jsonError(w, "base_date and target_date are required", http.StatusBadRequest)
		return
	}
	if err := validateDate(req.BaseDate); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validateDate(req.TargetDate); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.TargetDate <= req.BaseDate {
		h.jsonError(w, "target_date must be after base_date", http.StatusBadRequest)
		return
	}

	summary, err := h.app.ProcessTradeConfirmations(r.Context(), req.BaseDate, req.TargetDate)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.jsonResponse(w, summary)
}

// Helper functions

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

func validateDate(date string) error {
	if date == "" {
		return fmt.Errorf("date is required")
	}
	if !dateRe.MatchString(date) {
		return fmt.Errorf("invalid date format, expected YYYY-MM-DD")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("invalid date: %s", date)
	}
	return nil
}

func (h *APIHandler) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *APIHandler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
