package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragdesk/ragdesk/internal/models"
	"github.com/ragdesk/ragdesk/internal/ragapi"
)

func TestAuthLogin(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("k"))
	require.NoError(t, err)

	backend := &MockBackend{
		LoginFunc: func(_ context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
			if req.Password != "pw" {
				return nil, &apiErr{msg: "Bad username or password"}
			}
			return &models.AuthResponse{Msg: "Login successful", UserID: "7"}, nil
		},
		Cookies: map[string]string{ragapi.AccessTokenCookie: token},
	}
	desk := newTestDesk(t, backend)
	svc := NewAuthService(zerolog.Nop())

	_, err = svc.Login(context.Background(), desk, models.LoginRequest{Username: "alice", Password: "bad"})
	require.Error(t, err)
	assert.False(t, desk.Session.IsAuthenticated())

	info, err := svc.Login(context.Background(), desk, models.LoginRequest{Username: "alice", Password: "pw"})
	require.NoError(t, err)

	assert.True(t, info.IsAuthenticated)
	assert.Equal(t, "alice", info.Username, "falls back to the submitted username")
	assert.Equal(t, "7", info.UserID)
	assert.Equal(t, exp.UTC().Format(time.RFC3339), info.ExpiresAt)
	assert.Equal(t, token, desk.Session.Token().Value)
}

func TestAuthLogout(t *testing.T) {
	t.Run("backend failure keeps the session", func(t *testing.T) {
		backend := &MockBackend{
			LoginFunc: func(context.Context, models.LoginRequest) (*models.AuthResponse, error) {
				return &models.AuthResponse{Username: "alice"}, nil
			},
			LogoutFunc: func(context.Context) error { return errors.New("down") },
		}
		desk := newTestDesk(t, backend)
		svc := NewAuthService(zerolog.Nop())
		_, err := svc.Login(context.Background(), desk, models.LoginRequest{Username: "alice", Password: "pw"})
		require.NoError(t, err)

		assert.Error(t, svc.Logout(context.Background(), desk))
		assert.True(t, desk.Session.IsAuthenticated())
	})

	t.Run("success clears the session", func(t *testing.T) {
		backend := &MockBackend{
			LoginFunc: func(context.Context, models.LoginRequest) (*models.AuthResponse, error) {
				return &models.AuthResponse{Username: "alice"}, nil
			},
			LogoutFunc: func(context.Context) error { return nil },
		}
		desk := newTestDesk(t, backend)
		svc := NewAuthService(zerolog.Nop())
		_, err := svc.Login(context.Background(), desk, models.LoginRequest{Username: "alice", Password: "pw"})
		require.NoError(t, err)

		require.NoError(t, svc.Logout(context.Background(), desk))
		assert.False(t, desk.Session.IsAuthenticated())
	})
}

func TestAuthRegister(t *testing.T) {
	backend := &MockBackend{
		RegisterFunc: func(_ context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
			return &models.AuthResponse{Msg: "Registration successful"}, nil
		},
	}
	desk := newTestDesk(t, backend)

	resp, err := NewAuthService(zerolog.Nop()).Register(context.Background(), desk, models.RegisterRequest{Username: "a", Email: "a@b.c", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, "Registration successful", resp.Msg)
	assert.False(t, desk.Session.IsAuthenticated())
}
