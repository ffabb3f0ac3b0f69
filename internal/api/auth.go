package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/letushack/labs-server/internal/domain"
	"github.com/letushack/labs-server/internal/identity"
	"github.com/letushack/labs-server/internal/shared"
)

const bcryptCost = 12

// AuthHandler handles registration, login and session endpoints.
type AuthHandler struct {
	*Handler
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(base *Handler) *AuthHandler {
	return &AuthHandler{Handler: base}
}

// RegisterRoutes registers auth routes.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/register", h.Register)
	r.Post("/api/login", h.Login)
	r.Post("/api/auth/logout", h.Logout)
	r.Get("/api/auth/check", h.Check)
}

type credentialsRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// Register creates an account and signs the user in.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.Password == "" {
		Error(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		slog.Error("Failed to hash password", "error", err)
		Error(w, http.StatusInternalServerError, "registration failed")
		return
	}

	now := time.Now()
	user := &domain.User{
		UserID:       req.UserID,
		Name:         req.Name,
		PasswordHash: string(hash),
		IPAddress:    identity.IPFromRequest(r),
		LastActivity: now,
		CreatedAt:    now,
	}
	if err := h.repo.CreateUser(r.Context(), user); err != nil {
		if shared.IsUniqueConstraintError(err) {
			Error(w, http.StatusConflict, "User already exists")
			return
		}
		slog.Error("Failed to create user", "error", err, "user_id", req.UserID)
		Error(w, http.StatusInternalServerError, "registration failed")
		return
	}

	h.notifyUser(r.Context(), user.UserID, "Welcome to letushack! Start a lab to earn your first points.", domain.NotificationInfo)
	h.issueSession(w, r, user)
}

// Login verifies credentials and sets the auth cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.Password == "" {
		Error(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	user, err := h.repo.GetUser(r.Context(), req.UserID)
	if err != nil {
		slog.Error("Failed to load user", "error", err, "user_id", req.UserID)
		Error(w, http.StatusInternalServerError, "login failed")
		return
	}
	if user == nil {
		Error(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		Error(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if err := h.repo.UpdateLastActivity(r.Context(), user.UserID, identity.IPFromRequest(r), time.Now()); err != nil {
		slog.Warn("Failed to update last activity", "error", err, "user_id", user.UserID)
	}

	h.issueSession(w, r, user)
}

// Logout clears the auth cookie and terminates the user's live feeds.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if userID := identity.UserIDFromContext(r.Context()); userID != "" {
		h.hub.CloseUser(userID)
	}
	h.auth.ClearAuthCookie(w)
	JSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// Check returns the authenticated user, or 401.
func (h *AuthHandler) Check(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user": map[string]string{
			"user_id": userID,
			"name":    identity.NameFromContext(r.Context()),
		},
	})
}

func (h *AuthHandler) issueSession(w http.ResponseWriter, r *http.Request, user *domain.User) {
	token, err := h.auth.SignToken(user.UserID, user.Name)
	if err != nil {
		slog.Error("Failed to sign token", "error", err, "user_id", user.UserID)
		Error(w, http.StatusInternalServerError, "login failed")
		return
	}
	h.auth.SetAuthCookie(w, token)

	slog.Info("User signed in", "user_id", user.UserID, "ip", identity.IPFromRequest(r))
	JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user": map[string]string{
			"user_id": user.UserID,
			"name":    user.Name,
		},
	})
}
