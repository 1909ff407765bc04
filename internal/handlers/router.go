package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ragdesk/ragdesk/internal/services"
)

// Routes bundles everything the HTTP surface is built from.
type Routes struct {
	Health    *HealthHandler
	Auth      *AuthHandler
	Chats     *ChatHandler
	Views     *ViewHandler
	Documents *DocumentHandler

	// Watch upgrades GET /api/views/{viewID}/ws
	Watch http.HandlerFunc

	Desks         *services.DeskService
	CORSOrigins   []string
	SecureCookies bool
	Log           zerolog.Logger
}

// NewRouter wires the middleware stack and every route.
func NewRouter(rt Routes) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(rt.Log))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", rt.Health.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(DeskSession(rt.Desks, rt.SecureCookies, rt.Log))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", rt.Auth.Login)
			r.Post("/register", rt.Auth.Register)
			r.Get("/me", rt.Auth.Me)
			r.With(RequireAuth).Post("/logout", rt.Auth.Logout)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth)

			r.Route("/chats", func(r chi.Router) {
				r.Get("/", rt.Chats.ListChats)
				r.Post("/", rt.Chats.NewChat)
			})

			r.Route("/views", func(r chi.Router) {
				r.Post("/", rt.Views.OpenView)
				r.Get("/{viewID}", rt.Views.GetView)
				r.Delete("/{viewID}", rt.Views.CloseView)
				r.Put("/{viewID}/chat", rt.Views.Navigate)
				r.Put("/{viewID}/draft", rt.Views.SetDraft)
				r.Post("/{viewID}/queries", rt.Views.Submit)
				r.Post("/{viewID}/messages/{messageID}/revalidate", rt.Views.Revalidate)
				r.Get("/{viewID}/ws", rt.Watch)
			})

			r.Route("/documents", func(r chi.Router) {
				r.Post("/", rt.Documents.Upload)
				r.Get("/", rt.Documents.Status)
				r.Get("/uploads", rt.Documents.ListUploads)
				r.Get("/{documentID}", rt.Documents.Document)
			})
		})
	})

	return r
}
