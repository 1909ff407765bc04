package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ragdesk/ragdesk/internal/models"
	"github.com/ragdesk/ragdesk/internal/ragapi"
	"github.com/ragdesk/ragdesk/internal/session"
)

// AuthService forwards login, registration and logout to the backend and
// keeps the desk's session in step with the result.
type AuthService struct {
	log zerolog.Logger
}

// NewAuthService creates a new AuthService instance.
func NewAuthService(log zerolog.Logger) *AuthService {
	return &AuthService{log: log.With().Str("component", "auth").Logger()}
}

// Login authenticates against the backend and records the user in the
// desk's session. The backend's token cookie is kept so the session
// survives a restart.
func (s *AuthService) Login(ctx context.Context, desk *Desk, req models.LoginRequest) (models.SessionInfo, error) {
	resp, err := desk.Backend.Login(ctx, req)
	if err != nil {
		return models.SessionInfo{}, err
	}

	username := resp.Username
	if username == "" {
		username = req.Username
	}

	token := session.AccessToken{Value: desk.Backend.Cookie(ragapi.AccessTokenCookie)}
	if token.Value != "" {
		exp, err := ragapi.TokenExpiry(token.Value)
		if err != nil {
			s.log.Debug().Err(err).Str("desk_id", desk.ID).Msg("could not read token expiry")
		}
		token.ExpiresAt = exp
	}

	if err := desk.Session.Login(ctx, username, resp.UserID.String(), token); err != nil {
		return models.SessionInfo{}, fmt.Errorf("recording login: %w", err)
	}
	s.log.Info().Str("desk_id", desk.ID).Str("username", username).Msg("logged in")
	return desk.Session.Info(), nil
}

// Register creates an account on the backend. The user still has to log in.
func (s *AuthService) Register(ctx context.Context, desk *Desk, req models.RegisterRequest) (*models.AuthResponse, error) {
	resp, err := desk.Backend.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("desk_id", desk.ID).Str("username", req.Username).Msg("registered")
	return resp, nil
}

// Logout asks the backend to end the session. If the backend call fails the
// local state is left as it was.
func (s *AuthService) Logout(ctx context.Context, desk *Desk) error {
	if err := desk.Backend.Logout(ctx); err != nil {
		s.log.Error().Err(err).Str("desk_id", desk.ID).Msg("failed to logout")
		return err
	}
	if err := desk.Session.Logout(ctx); err != nil {
		return fmt.Errorf("recording logout: %w", err)
	}
	s.log.Info().Str("desk_id", desk.ID).Msg("logged out")
	return nil
}
