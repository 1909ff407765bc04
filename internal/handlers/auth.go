package handlers

import (
	"net/http"

	"github.com/ragdesk/ragdesk/internal/models"
	"github.com/ragdesk/ragdesk/internal/services"
)

// AuthHandler contains HTTP handlers for login, registration and logout.
type AuthHandler struct {
	authService *services.AuthService
}

// NewAuthHandler creates a new AuthHandler instance.
func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	desk, _ := services.DeskFromContext(r.Context())

	var req models.LoginRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	info, err := h.authService.Login(r.Context(), desk, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// Register handles POST /api/auth/register
// The new user still has to log in afterwards.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	desk, _ := services.DeskFromContext(r.Context())

	var req models.RegisterRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "username, a valid email and password are required")
		return
	}

	resp, err := h.authService.Register(r.Context(), desk, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// Logout handles POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	desk, _ := services.DeskFromContext(r.Context())

	if err := h.authService.Logout(r.Context(), desk); err != nil {
		status, msg := statusFor(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, desk.Session.Info())
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	desk, _ := services.DeskFromContext(r.Context())
	writeJSON(w, http.StatusOK, desk.Session.Info())
}
