// Package session holds the auth state of one desk session: whether the
// browser is logged in to the RAG backend and as whom. It is passed
// explicitly to the handlers and services that need it.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ragdesk/ragdesk/internal/models"
)

// State is the persisted part of a session.
type State struct {
	Authenticated bool
	Username      string
	UserID        string

	// Token is the backend access token, replayed into a fresh cookie jar
	// when the session is restored
	Token AccessToken
}

// AccessToken is the backend's JWT cookie value and its expiry.
type AccessToken struct {
	Value string

	// ExpiresAt is zero if unknown
	ExpiresAt time.Time
}

// Store persists session state across restarts.
type Store interface {
	LoadSession(ctx context.Context, id string) (State, bool, error)
	SaveSession(ctx context.Context, id string, st State) error
	// TouchSession marks a stored session as still in use without
	// changing it. Unknown ids are ignored.
	TouchSession(ctx context.Context, id string) error
}

// Session is the auth capability of one desk session.
type Session struct {
	id    string
	store Store
	now   func() time.Time

	mu    sync.RWMutex
	state State
}

// Open returns the session with the given id, restoring any persisted state.
func Open(ctx context.Context, id string, store Store) (*Session, error) {
	s := &Session{id: id, store: store, now: time.Now}
	st, ok, err := store.LoadSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("restoring session %s: %w", id, err)
	}
	if ok {
		s.state = st
	}
	return s, nil
}

func (s *Session) ID() string { return s.id }

// IsAuthenticated reports whether the user is logged in and the backend
// token has not expired.
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticatedLocked()
}

func (s *Session) authenticatedLocked() bool {
	if !s.state.Authenticated {
		return false
	}
	exp := s.state.Token.ExpiresAt
	return exp.IsZero() || s.now().Before(exp)
}

func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Username
}

func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.UserID
}

// Token returns the backend access token recorded at login.
func (s *Session) Token() AccessToken {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Token
}

// Login records a successful backend login and persists it.
func (s *Session) Login(ctx context.Context, username, userID string, token AccessToken) error {
	return s.set(ctx, State{
		Authenticated: true,
		Username:      username,
		UserID:        userID,
		Token:         token,
	})
}

// Logout clears the auth state and persists the change.
func (s *Session) Logout(ctx context.Context) error {
	return s.set(ctx, State{})
}

// Touch tells the store the session is still in use.
func (s *Session) Touch(ctx context.Context) error {
	if err := s.store.TouchSession(ctx, s.id); err != nil {
		return fmt.Errorf("touching session %s: %w", s.id, err)
	}
	return nil
}

func (s *Session) set(ctx context.Context, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.SaveSession(ctx, s.id, st); err != nil {
		return fmt.Errorf("saving session %s: %w", s.id, err)
	}
	s.state = st
	return nil
}

// Info is the browser-facing view of the session.
func (s *Session) Info() models.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.authenticatedLocked() {
		return models.SessionInfo{}
	}
	info := models.SessionInfo{
		IsAuthenticated: true,
		Username:        s.state.Username,
		UserID:          s.state.UserID,
	}
	if exp := s.state.Token.ExpiresAt; !exp.IsZero() {
		info.ExpiresAt = exp.UTC().Format(time.RFC3339)
	}
	return info
}

// MemoryStore keeps sessions in memory. Used in tests and when no database
// is configured.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]State)}
}

func (m *MemoryStore) LoadSession(_ context.Context, id string) (State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[id]
	return st, ok, nil
}

func (m *MemoryStore) SaveSession(_ context.Context, id string, st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = st
	return nil
}

// TouchSession is a no-op: memory sessions are never purged.
func (m *MemoryStore) TouchSession(context.Context, string) error {
	return nil
}
