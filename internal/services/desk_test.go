package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragdesk/ragdesk/internal/ragapi"
	"github.com/ragdesk/ragdesk/internal/session"
)

func newDeskService(store session.Store, backend *MockBackend) *DeskService {
	return NewDeskService(store, func() (Backend, error) { return backend, nil }, zerolog.Nop())
}

func newTestDesk(t *testing.T, backend *MockBackend) *Desk {
	t.Helper()
	desk, _, err := newDeskService(session.NewMemoryStore(), backend).Resolve(context.Background(), "")
	require.NoError(t, err)
	return desk
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	svc := newDeskService(session.NewMemoryStore(), &MockBackend{})

	t.Run("empty id creates a desk", func(t *testing.T) {
		d, created, err := svc.Resolve(ctx, "")
		require.NoError(t, err)
		assert.True(t, created)
		_, err = uuid.Parse(d.ID)
		assert.NoError(t, err)
	})

	t.Run("known id returns the live desk", func(t *testing.T) {
		d, _, err := svc.Resolve(ctx, "")
		require.NoError(t, err)

		again, created, err := svc.Resolve(ctx, d.ID)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Same(t, d, again)
	})

	t.Run("malformed id is replaced", func(t *testing.T) {
		d, created, err := svc.Resolve(ctx, "../../etc/passwd")
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotEqual(t, "../../etc/passwd", d.ID)
	})
}

func TestResolveRestoresPersistedSession(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	id := uuid.New().String()
	require.NoError(t, store.SaveSession(ctx, id, session.State{
		Authenticated: true,
		Username:      "alice",
		UserID:        "7",
		Token:         session.AccessToken{Value: "jwt", ExpiresAt: time.Now().Add(time.Hour)},
	}))
	backend := &MockBackend{}
	svc := newDeskService(store, backend)

	d, created, err := svc.Resolve(ctx, id)
	require.NoError(t, err)

	assert.False(t, created)
	assert.Equal(t, id, d.ID)
	assert.True(t, d.Session.IsAuthenticated())
	assert.Equal(t, "alice", d.Session.Username())
	assert.Equal(t, "jwt", backend.restored)
}

// touchCountingStore counts TouchSession calls per id.
type touchCountingStore struct {
	*session.MemoryStore

	mu      sync.Mutex
	touches map[string]int
}

func (s *touchCountingStore) TouchSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touches[id]++
	return nil
}

func (s *touchCountingStore) count(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touches[id]
}

func TestResolveTouchesPersistedSession(t *testing.T) {
	ctx := context.Background()
	store := &touchCountingStore{MemoryStore: session.NewMemoryStore(), touches: map[string]int{}}
	id := uuid.New().String()
	require.NoError(t, store.SaveSession(ctx, id, session.State{Authenticated: true, Username: "alice"}))
	svc := newDeskService(store, &MockBackend{})

	fresh, created, err := svc.Resolve(ctx, "")
	require.NoError(t, err)
	require.True(t, created)
	assert.Zero(t, store.count(fresh.ID))

	d, _, err := svc.Resolve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, store.count(id), "restore touches")

	_, _, err = svc.Resolve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, store.count(id), "live hit within the interval does not touch")

	d.mu.Lock()
	d.storeTouched = d.storeTouched.Add(-storeTouchInterval)
	d.mu.Unlock()

	_, _, err = svc.Resolve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, store.count(id), "live hit after the interval touches again")
}

func TestForgetAndIdle(t *testing.T) {
	ctx := context.Background()
	backend := &MockBackend{}
	svc := newDeskService(session.NewMemoryStore(), backend)
	d, _, err := svc.Resolve(ctx, "")
	require.NoError(t, err)

	assert.Empty(t, svc.Idle(time.Now().Add(-time.Minute)))
	assert.Len(t, svc.Idle(time.Now().Add(time.Minute)), 1)

	svc.Forget(d.ID)

	assert.True(t, backend.isClosed())
	assert.Zero(t, svc.Count())
	_, err = svc.Get(d.ID)
	assert.ErrorIs(t, err, ErrDeskNotFound)
}

func TestDeskContext(t *testing.T) {
	d := &Desk{ID: "x"}
	ctx := WithDesk(context.Background(), d)

	got, ok := DeskFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, d, got)

	_, ok = DeskFromContext(context.Background())
	assert.False(t, ok)
}

func TestNoteBackendError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		authenticated bool
		wantLogout    bool
	}{
		{name: "nil error", err: nil, authenticated: true},
		{name: "plain error", err: errors.New("boom"), authenticated: true},
		{name: "server error", err: &ragapi.APIError{StatusCode: 500}, authenticated: true},
		{name: "unauthorized", err: &ragapi.APIError{StatusCode: 401}, authenticated: true, wantLogout: true},
		{name: "expired token", err: &ragapi.APIError{StatusCode: 422}, authenticated: true, wantLogout: true},
		{name: "wrapped unauthorized", err: fmt.Errorf("loading chat: %w", &ragapi.APIError{StatusCode: 401}), authenticated: true, wantLogout: true},
		{name: "already logged out", err: &ragapi.APIError{StatusCode: 401}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			desk := newTestDesk(t, &MockBackend{})
			if tt.authenticated {
				require.NoError(t, desk.Session.Login(ctx, "alice", "7", session.AccessToken{Value: "jwt"}))
			}

			loggedOut, err := desk.NoteBackendError(ctx, tt.err)
			require.NoError(t, err)

			assert.Equal(t, tt.wantLogout, loggedOut)
			assert.Equal(t, tt.authenticated && !tt.wantLogout, desk.Session.IsAuthenticated())
		})
	}
}
