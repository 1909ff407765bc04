package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ragdesk/ragdesk/internal/models"
	"github.com/ragdesk/ragdesk/internal/session"
	"github.com/ragdesk/ragdesk/internal/transcript"
)

var ErrDeskNotFound = errors.New("desk session not found")

// Backend is the RAG backend as seen by one desk session.
// *ragapi.Client implements it.
type Backend interface {
	transcript.Backend

	Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)
	Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error)
	Logout(ctx context.Context) error
	ListChats(ctx context.Context) (*models.ChatListResponse, error)
	UploadDocument(ctx context.Context, filename string, r io.Reader, progress func(written int64)) (*models.UploadResponse, error)
	DocumentStatus(ctx context.Context) (*models.DocumentStatusResponse, error)
	Document(ctx context.Context, documentID string) (*models.DocumentStatus, error)

	Cookie(name string) string
	RestoreAccessToken(token string)
	Close() error
}

// BackendFactory creates the backend client for a new desk session.
type BackendFactory func() (Backend, error)

// storeTouchInterval is how often a desk in use refreshes the last-use time
// of its persisted session, which the cleanup's retention is measured from.
const storeTouchInterval = time.Hour

// Desk is one browser's session with ragdesk. It owns the backend client
// (and so the backend cookies), the auth state and the upload tracker.
type Desk struct {
	ID      string
	Session *session.Session
	Backend Backend
	Uploads *UploadTracker

	mu           sync.Mutex
	lastActive   time.Time
	storeTouched time.Time
}

type unauthorizer interface {
	Unauthorized() bool
}

// NoteBackendError logs the desk out locally when err shows the backend no
// longer accepts the desk's credentials. It reports whether the desk was
// logged out; the error is from recording the logout.
func (d *Desk) NoteBackendError(ctx context.Context, err error) (bool, error) {
	var u unauthorizer
	if err == nil || !errors.As(err, &u) || !u.Unauthorized() {
		return false, nil
	}
	if !d.Session.IsAuthenticated() {
		return false, nil
	}
	if err := d.Session.Logout(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// noteBackendError is NoteBackendError with the outcome logged.
func noteBackendError(ctx context.Context, desk *Desk, err error, log zerolog.Logger) {
	loggedOut, lerr := desk.NoteBackendError(ctx, err)
	if lerr != nil {
		log.Error().Err(lerr).Str("desk_id", desk.ID).Msg("failed to record logout after backend rejected credentials")
		return
	}
	if loggedOut {
		log.Info().Str("desk_id", desk.ID).Msg("backend rejected credentials, logged out")
	}
}

// Touch marks the desk as used now.
func (d *Desk) Touch() {
	d.mu.Lock()
	d.lastActive = time.Now()
	d.mu.Unlock()
}

// dueStoreTouch reports whether the persisted session should be touched, and
// if so records now as the time it was.
func (d *Desk) dueStoreTouch(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.storeTouched.IsZero() && now.Sub(d.storeTouched) < storeTouchInterval {
		return false
	}
	d.storeTouched = now
	return true
}

func (d *Desk) LastActive() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastActive
}

// DeskService keeps the live desk sessions in memory. Their auth state is
// persisted through the session store and restored on first use.
type DeskService struct {
	store      session.Store
	newBackend BackendFactory
	log        zerolog.Logger

	mu    sync.Mutex
	desks map[string]*Desk
}

// NewDeskService creates a new DeskService instance.
func NewDeskService(store session.Store, newBackend BackendFactory, log zerolog.Logger) *DeskService {
	return &DeskService{
		store:      store,
		newBackend: newBackend,
		log:        log.With().Str("component", "desk").Logger(),
		desks:      make(map[string]*Desk),
	}
}

// Resolve returns the desk for id, restoring it from the store if it is not
// live. An empty or malformed id gets a brand new desk; created reports that
// case so the caller can hand out the new id.
//
// A desk in use touches its persisted session at most once per
// storeTouchInterval so the session outlives the cleanup's retention.
func (s *DeskService) Resolve(ctx context.Context, id string) (*Desk, bool, error) {
	desk, created, err := s.resolve(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !created && desk.dueStoreTouch(time.Now()) {
		if err := desk.Session.Touch(ctx); err != nil {
			s.log.Warn().Err(err).Str("desk_id", desk.ID).Msg("failed to mark session as used")
		}
	}
	return desk, created, nil
}

func (s *DeskService) resolve(ctx context.Context, id string) (desk *Desk, created bool, err error) {
	if _, perr := uuid.Parse(id); perr != nil {
		id = ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if d, ok := s.desks[id]; ok && id != "" {
		d.Touch()
		return d, false, nil
	}

	if id == "" {
		id = uuid.New().String()
		created = true
	}

	sess, err := session.Open(ctx, id, s.store)
	if err != nil {
		return nil, false, err
	}
	backend, err := s.newBackend()
	if err != nil {
		return nil, false, fmt.Errorf("failed to create backend client: %w", err)
	}
	backend.RestoreAccessToken(sess.Token().Value)

	d := &Desk{
		ID:      id,
		Session: sess,
		Backend: backend,
		Uploads: NewUploadTracker(),
	}
	d.Touch()
	s.desks[id] = d

	s.log.Debug().Str("desk_id", id).Bool("created", created).Bool("authenticated", sess.IsAuthenticated()).Msg("desk session opened")
	return d, created, nil
}

// Get returns a live desk without creating or restoring one.
func (s *DeskService) Get(id string) (*Desk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.desks[id]
	if !ok {
		return nil, ErrDeskNotFound
	}
	return d, nil
}

// Forget drops a live desk. Its persisted state is kept.
func (s *DeskService) Forget(id string) {
	s.mu.Lock()
	d, ok := s.desks[id]
	delete(s.desks, id)
	s.mu.Unlock()

	if !ok {
		return
	}
	if err := d.Backend.Close(); err != nil {
		s.log.Warn().Err(err).Str("desk_id", id).Msg("failed to close backend client")
	}
	s.log.Debug().Str("desk_id", id).Msg("desk session forgotten")
}

// Idle returns the desks not used since threshold.
func (s *DeskService) Idle(threshold time.Time) []*Desk {
	s.mu.Lock()
	defer s.mu.Unlock()

	var idle []*Desk
	for _, d := range s.desks {
		if d.LastActive().Before(threshold) {
			idle = append(idle, d)
		}
	}
	return idle
}

// Count returns the number of live desks.
func (s *DeskService) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.desks)
}

type contextKey string

const deskContextKey contextKey = "desk"

// WithDesk stores the request's desk in ctx.
func WithDesk(ctx context.Context, d *Desk) context.Context {
	return context.WithValue(ctx, deskContextKey, d)
}

// DeskFromContext returns the desk stored by WithDesk.
func DeskFromContext(ctx context.Context) (*Desk, bool) {
	d, ok := ctx.Value(deskContextKey).(*Desk)
	return d, ok
}
