package models

// LoginRequest is the request body for logging in.
// The same body is forwarded verbatim to the backend's /auth/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest is the request body for creating an account.
type RegisterRequest struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse is what the backend returns from login and register.
// Both fields are optional; register only sends a message.
type AuthResponse struct {
	Msg      string     `json:"msg,omitempty"`
	UserID   FlexString `json:"user_id,omitempty"`
	Username string     `json:"username,omitempty"`
}

// SessionInfo is the auth capability state exposed to the browser.
type SessionInfo struct {
	IsAuthenticated bool   `json:"isAuthenticated"`
	Username        string `json:"username,omitempty"`
	UserID          string `json:"userId,omitempty"`
	ExpiresAt       string `json:"expiresAt,omitempty"`
}
