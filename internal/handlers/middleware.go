package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/ragdesk/ragdesk/internal/services"
)

// SessionCookie carries the desk session id.
const SessionCookie = "ragdesk_session"

// DeskSession resolves the request's desk session from its cookie, creating
// one if needed, and stores it in the request context.
func DeskSession(desks *services.DeskService, secure bool, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if c, err := r.Cookie(SessionCookie); err == nil {
				id = c.Value
			}

			desk, created, err := desks.Resolve(r.Context(), id)
			if err != nil {
				log.Error().Err(err).Msg("failed to resolve desk session")
				writeError(w, http.StatusInternalServerError, "session unavailable")
				return
			}
			if created {
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookie,
					Value:    desk.ID,
					Path:     "/",
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(services.WithDesk(r.Context(), desk)))
		})
	}
}

// RequireAuth rejects requests whose desk session is not logged in.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		desk, ok := services.DeskFromContext(r.Context())
		if !ok || !desk.Session.IsAuthenticated() {
			writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequestLogger writes one access log line per request.
func RequestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			reqLog := log.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
			r = r.WithContext(reqLog.WithContext(r.Context()))
			defer func() {
				ev := log.Info()
				if ww.Status() >= http.StatusInternalServerError {
					ev = log.Error()
				}
				ev.Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("latency", time.Since(start)).
					Msg("request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
