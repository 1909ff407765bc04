package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ragdesk/ragdesk/internal/metrics"
	"github.com/ragdesk/ragdesk/internal/transcript"
)

var ErrViewNotFound = errors.New("view not found")

// EventPublisher delivers thread events to whoever is watching a view.
type EventPublisher interface {
	Publish(viewID string, e transcript.Event)
	CloseView(viewID string)
}

// View is one open chat screen. Each view owns exactly one thread.
type View struct {
	ID     string
	DeskID string
	Thread *transcript.Thread

	mu         sync.Mutex
	lastActive time.Time
}

func (v *View) touch() {
	v.mu.Lock()
	v.lastActive = time.Now()
	v.mu.Unlock()
}

func (v *View) LastActive() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastActive
}

// ViewSnapshot is a view's thread state plus the render blocks of every
// message, index-aligned with Messages.
type ViewSnapshot struct {
	ViewID string `json:"view_id"`
	transcript.Snapshot
	Blocks [][]transcript.Block `json:"blocks"`
}

// ViewService keeps the open views in memory.
// Views are dropped when closed or when the cleanup sweeper finds them idle.
type ViewService struct {
	publisher EventPublisher
	log       zerolog.Logger

	mu    sync.RWMutex
	views map[string]*View

	// background tracks submissions and revalidations still running
	background sync.WaitGroup
}

// NewViewService creates a new ViewService instance. publisher may be nil.
func NewViewService(publisher EventPublisher, log zerolog.Logger) *ViewService {
	return &ViewService{
		publisher: publisher,
		log:       log.With().Str("component", "view").Logger(),
		views:     make(map[string]*View),
	}
}

// Open creates a view for desk. If chatID is set the view navigates to it
// before returning.
func (s *ViewService) Open(ctx context.Context, desk *Desk, chatID string, isNew bool) (*ViewSnapshot, error) {
	v := &View{
		ID:     uuid.New().String(),
		DeskID: desk.ID,
	}
	v.Thread = transcript.NewThread(desk.Backend, transcript.WithObserver(s.observer(v.ID)))
	v.touch()

	s.mu.Lock()
	s.views[v.ID] = v
	s.mu.Unlock()
	metrics.OpenViews.Inc()

	s.log.Debug().Str("view_id", v.ID).Str("desk_id", desk.ID).Msg("view opened")

	if chatID != "" {
		s.navigate(ctx, desk, v, chatID, isNew)
	}
	return s.snapshot(v), nil
}

func (s *ViewService) observer(viewID string) transcript.Observer {
	return transcript.ObserverFunc(func(e transcript.Event) {
		if s.publisher != nil {
			s.publisher.Publish(viewID, e)
		}
	})
}

// Get returns the desk's view with the given id.
func (s *ViewService) Get(desk *Desk, viewID string) (*View, error) {
	s.mu.RLock()
	v, ok := s.views[viewID]
	s.mu.RUnlock()
	if !ok || v.DeskID != desk.ID {
		return nil, ErrViewNotFound
	}
	v.touch()
	return v, nil
}

// Snapshot returns the current state of a view.
func (s *ViewService) Snapshot(desk *Desk, viewID string) (*ViewSnapshot, error) {
	v, err := s.Get(desk, viewID)
	if err != nil {
		return nil, err
	}
	return s.snapshot(v), nil
}

func (s *ViewService) snapshot(v *View) *ViewSnapshot {
	snap := &ViewSnapshot{ViewID: v.ID, Snapshot: v.Thread.Snapshot()}
	snap.Blocks = make([][]transcript.Block, len(snap.Messages))
	for i, m := range snap.Messages {
		snap.Blocks[i] = transcript.Blocks(m)
	}
	return snap
}

// Navigate points a view at another chat and waits for its history.
// A load failure is part of the returned state, not an error.
func (s *ViewService) Navigate(ctx context.Context, desk *Desk, viewID, chatID string, isNew bool) (*ViewSnapshot, error) {
	v, err := s.Get(desk, viewID)
	if err != nil {
		return nil, err
	}
	s.navigate(ctx, desk, v, chatID, isNew)
	return s.snapshot(v), nil
}

func (s *ViewService) navigate(ctx context.Context, desk *Desk, v *View, chatID string, isNew bool) {
	err := v.Thread.Navigate(ctx, chatID, isNew)
	switch {
	case err == nil:
	case errors.Is(err, transcript.ErrSuperseded), errors.Is(err, transcript.ErrClosed):
		s.log.Debug().Err(err).Str("view_id", v.ID).Str("chat_id", chatID).Msg("load discarded")
	default:
		s.log.Error().Err(err).Str("view_id", v.ID).Str("chat_id", chatID).Msg("failed to load chat history")
		noteBackendError(ctx, desk, err, s.log)
	}
}

// SetDraft replaces a view's input buffer.
func (s *ViewService) SetDraft(desk *Desk, viewID, text string) error {
	v, err := s.Get(desk, viewID)
	if err != nil {
		return err
	}
	v.Thread.SetDraft(text)
	return nil
}

// Submit sends query, or the view's draft if query is empty. It returns as
// soon as the user's message is on the transcript; the answer arrives in the
// background and is pushed to the view's watchers.
func (s *ViewService) Submit(ctx context.Context, desk *Desk, viewID, query string) (*ViewSnapshot, error) {
	v, err := s.Get(desk, viewID)
	if err != nil {
		return nil, err
	}
	if query == "" {
		query = v.Thread.Draft()
	}

	run, err := v.Thread.StartSubmit(query)
	if err != nil {
		return nil, err
	}
	snap := s.snapshot(v)

	s.runBackground(ctx, func(ctx context.Context) {
		err := run(ctx)
		if discarded(err) {
			s.log.Debug().Err(err).Str("view_id", v.ID).Msg("answer discarded")
			return
		}
		metrics.RecordSubmission(err)
		if err != nil {
			s.log.Error().Err(err).Str("view_id", v.ID).Msg("failed to get response")
			noteBackendError(ctx, desk, err, s.log)
		}
	})
	return snap, nil
}

// Revalidate asks for a regenerated answer to messageID in the background.
func (s *ViewService) Revalidate(ctx context.Context, desk *Desk, viewID, messageID string) (*ViewSnapshot, error) {
	v, err := s.Get(desk, viewID)
	if err != nil {
		return nil, err
	}

	run, err := v.Thread.StartRevalidate(messageID)
	if err != nil {
		return nil, err
	}
	snap := s.snapshot(v)

	s.runBackground(ctx, func(ctx context.Context) {
		err := run(ctx)
		if discarded(err) {
			return
		}
		metrics.RecordRevalidation(err)
		if err != nil {
			s.log.Error().Err(err).Str("view_id", v.ID).Str("message_id", messageID).Msg("failed to revalidate")
			noteBackendError(ctx, desk, err, s.log)
		}
	})
	return snap, nil
}

// runBackground runs fn detached from the request's cancellation but with
// its values, so request ids still show up in logs.
func (s *ViewService) runBackground(ctx context.Context, fn func(context.Context)) {
	bg := context.WithoutCancel(ctx)
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		fn(bg)
	}()
}

func discarded(err error) bool {
	return errors.Is(err, transcript.ErrSuperseded) || errors.Is(err, transcript.ErrClosed)
}

// Close tears a view down. Work still in flight finishes but its results are
// dropped.
func (s *ViewService) Close(desk *Desk, viewID string) error {
	v, err := s.Get(desk, viewID)
	if err != nil {
		return err
	}
	s.close(v)
	return nil
}

func (s *ViewService) close(v *View) {
	s.mu.Lock()
	_, ok := s.views[v.ID]
	delete(s.views, v.ID)
	s.mu.Unlock()
	if !ok {
		return
	}

	v.Thread.Close()
	if s.publisher != nil {
		s.publisher.CloseView(v.ID)
	}
	metrics.OpenViews.Dec()
	s.log.Debug().Str("view_id", v.ID).Msg("view closed")
}

// CloseIdle closes every view not used since threshold and returns how many
// were closed.
func (s *ViewService) CloseIdle(threshold time.Time) int {
	s.mu.RLock()
	var idle []*View
	for _, v := range s.views {
		if v.LastActive().Before(threshold) {
			idle = append(idle, v)
		}
	}
	s.mu.RUnlock()

	for _, v := range idle {
		s.close(v)
	}
	return len(idle)
}

// CountForDesk returns the number of open views owned by deskID.
func (s *ViewService) CountForDesk(deskID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, v := range s.views {
		if v.DeskID == deskID {
			n++
		}
	}
	return n
}

// Wait blocks until background work has finished or ctx is done.
func (s *ViewService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
