package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// SessionPurger deletes persisted sessions not touched since a cutoff.
type SessionPurger interface {
	DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupService closes idle views, forgets idle desks and purges stale
// persisted sessions. It runs as a background goroutine.
type CleanupService struct {
	views     *ViewService
	desks     *DeskService
	purger    SessionPurger
	interval  time.Duration
	timeout   time.Duration
	retention time.Duration
	log       zerolog.Logger
	stopChan  chan struct{}
}

// NewCleanupService creates a new cleanup service.
//   - interval: how often to sweep (e.g. 1 minute)
//   - timeout: how long a view or desk may sit unused (e.g. 30 minutes)
//   - retention: how long a persisted session is kept; purger may be nil
func NewCleanupService(views *ViewService, desks *DeskService, purger SessionPurger, interval, timeout, retention time.Duration, log zerolog.Logger) *CleanupService {
	return &CleanupService{
		views:     views,
		desks:     desks,
		purger:    purger,
		interval:  interval,
		timeout:   timeout,
		retention: retention,
		log:       log.With().Str("component", "cleanup").Logger(),
		stopChan:  make(chan struct{}),
	}
}

// Start runs the sweeper until Stop is called or ctx is done.
func (s *CleanupService) Start(ctx context.Context) {
	s.log.Info().Dur("interval", s.interval).Dur("timeout", s.timeout).Msg("cleanup service started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup(ctx, time.Now())
		case <-s.stopChan:
			s.log.Info().Msg("cleanup service stopped")
			return
		case <-ctx.Done():
			s.log.Info().Msg("cleanup service stopped")
			return
		}
	}
}

// Stop shuts the sweeper down.
func (s *CleanupService) Stop() {
	close(s.stopChan)
}

func (s *CleanupService) cleanup(ctx context.Context, now time.Time) {
	threshold := now.Add(-s.timeout)

	// Views first, so desks whose last view just went can go too
	if n := s.views.CloseIdle(threshold); n > 0 {
		s.log.Info().Int("count", n).Msg("closed idle views")
	}

	forgotten := 0
	for _, d := range s.desks.Idle(threshold) {
		if s.views.CountForDesk(d.ID) > 0 {
			continue
		}
		s.desks.Forget(d.ID)
		forgotten++
	}
	if forgotten > 0 {
		s.log.Info().Int("count", forgotten).Msg("forgot idle desk sessions")
	}

	if s.purger == nil {
		return
	}
	n, err := s.purger.DeleteSessionsBefore(ctx, now.Add(-s.retention))
	if err != nil {
		s.log.Error().Err(err).Msg("failed to purge stale sessions")
		return
	}
	if n > 0 {
		s.log.Info().Int64("count", n).Msg("purged stale sessions")
	}
}
