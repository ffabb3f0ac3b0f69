package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/letushack/labs-server/internal/domain"
	"github.com/letushack/labs-server/internal/identity"
	"github.com/letushack/labs-server/internal/lab"
)

// LabsHandler handles lab container endpoints.
type LabsHandler struct {
	*Handler
}

// NewLabsHandler creates a new labs handler.
func NewLabsHandler(base *Handler) *LabsHandler {
	return &LabsHandler{Handler: base}
}

// RegisterRoutes registers lab routes.
func (h *LabsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/labs", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Group(func(r chi.Router) {
			r.Use(identity.RequireAuth)
			r.Post("/start", h.Start)
			r.Post("/stop", h.Stop)
			r.Get("/status", h.Status)
		})
	})
}

type startRequest struct {
	LabType string `json:"labType"`
}

// Start launches a lab container for the authenticated user.
func (h *LabsHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	labType, err := domain.ParseLabType(req.LabType)
	if err != nil {
		Error(w, http.StatusBadRequest, fmt.Sprintf("Invalid lab type. Must be %q or %q", domain.LabTypeXSS, domain.LabTypeCSRF))
		return
	}

	result, err := h.labs.Start(r.Context(), userID, labType)
	if err != nil {
		status := labErrorStatus(err)
		slog.Error("Failed to start lab container", "error", err, "user_id", userID, "lab_type", labType)
		Error(w, status, err.Error())
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("%s lab started successfully", strings.ToUpper(string(labType))),
		"data": map[string]interface{}{
			"containerId": result.ContainerID,
			"port":        result.Port,
			"url":         result.URL,
			"labType":     result.LabType,
		},
	})
}

type stopRequest struct {
	ContainerID string `json:"containerId"`
}

// Stop terminates one or all of the user's lab containers.
func (h *LabsHandler) Stop(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	// An empty body means "stop everything I own".
	var req stopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.labs.Stop(r.Context(), userID, req.ContainerID); err != nil {
		if errors.Is(err, lab.ErrForbidden) {
			Error(w, http.StatusForbidden, "container belongs to another user")
			return
		}
		slog.Error("Failed to stop lab container", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	message := "All user containers stopped successfully"
	if req.ContainerID != "" {
		message = "Container stopped successfully"
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": message,
	})
}

// Status returns the user's tracked lab sessions.
func (h *LabsHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	sessions := h.labs.UserSessions(userID)
	active := make([]map[string]interface{}, 0, len(sessions))
	for _, s := range sessions {
		active = append(active, map[string]interface{}{
			"containerId": s.ContainerID,
			"labType":     s.LabType,
			"port":        s.Port,
			"url":         s.URL(),
			"status":      s.Status,
			"createdAt":   s.CreatedAt,
		})
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"activeContainers": active,
		},
	})
}

// Health reports container runtime availability.
func (h *LabsHandler) Health(w http.ResponseWriter, r *http.Request) {
	available := h.labs.Available(r.Context())

	message := "Docker service is available and ready"
	if !available {
		message = "Docker service is not available. Please ensure the Docker daemon is running."
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"dockerAvailable": available,
			"message":         message,
		},
	})
}

// labErrorStatus maps lifecycle manager errors to HTTP status codes.
func labErrorStatus(err error) int {
	var imageErr *lab.ImageNotFoundError
	switch {
	case errors.Is(err, lab.ErrInvalidLabType):
		return http.StatusBadRequest
	case errors.Is(err, lab.ErrRuntimeUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, lab.ErrForbidden):
		return http.StatusForbidden
	case errors.As(err, &imageErr):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
