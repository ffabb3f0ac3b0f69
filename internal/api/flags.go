package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/letushack/labs-server/internal/flags"
	"github.com/letushack/labs-server/internal/identity"
)

// FlagsHandler handles flag generation and submission endpoints.
type FlagsHandler struct {
	*Handler
}

// NewFlagsHandler creates a new flags handler.
func NewFlagsHandler(base *Handler) *FlagsHandler {
	return &FlagsHandler{Handler: base}
}

// RegisterRoutes registers flag routes.
func (h *FlagsHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(identity.RequireAuth)
		r.Post("/api/flag/create", h.Create)
		r.Post("/api/flag/check", h.Check)
	})
}

type flagRequest struct {
	Email string `json:"email"`
	Flag  string `json:"flag"`
}

// Create generates the flag for an email.
func (h *FlagsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req flagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		Error(w, http.StatusBadRequest, "Missing required field: email")
		return
	}

	flag, err := flags.Create(req.Email, h.cfg.FlagKey)
	if err != nil {
		slog.Error("Failed to create flag", "error", err)
		Error(w, http.StatusInternalServerError, "Failed to create flag")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"flag":    flag,
	})
}

// Check validates a submitted flag.
func (h *FlagsHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req flagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Flag == "" {
		Error(w, http.StatusBadRequest, "Missing required fields: email and flag")
		return
	}

	valid := flags.Check(req.Email, req.Flag, h.cfg.FlagKey)
	message := "The flag is valid"
	if !valid {
		message = "The flag is wrong or not valid"
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"success": valid,
		"valid":   valid,
		"message": message,
	})
}
