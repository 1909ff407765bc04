package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ragdesk/ragdesk/internal/config"
	"github.com/ragdesk/ragdesk/internal/handlers"
	"github.com/ragdesk/ragdesk/internal/logger"
	"github.com/ragdesk/ragdesk/internal/ragapi"
	"github.com/ragdesk/ragdesk/internal/services"
	"github.com/ragdesk/ragdesk/internal/store"
	"github.com/ragdesk/ragdesk/internal/websocket"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "ragdesk:", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	if !cfg.DotEnvLoaded {
		log.Debug().Msg("no .env file found, using process environment")
	}

	dbPath := cfg.DBPath
	if dbPath == "" {
		if dbPath, err = store.DBPath(); err != nil {
			return err
		}
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	queries := store.NewQueries(db)

	// Initialize services
	desks := services.NewDeskService(queries, func() (services.Backend, error) {
		return ragapi.NewClient(cfg.BackendURL, cfg.BackendTimeout, log)
	}, log)

	hub := websocket.NewHub(log)
	views := services.NewViewService(hub, log)
	cleanupService := services.NewCleanupService(
		views,
		desks,
		queries,
		cfg.CleanupInterval,
		cfg.ViewIdleTimeout,
		cfg.SessionRetention,
		log,
	)

	pinger, err := ragapi.NewClient(cfg.BackendURL, cfg.BackendTimeout, log)
	if err != nil {
		return err
	}
	defer pinger.Close()

	// Initialize handlers
	router := handlers.NewRouter(handlers.Routes{
		Health:        handlers.NewHealthHandler(pinger, cfg.BackendTimeout),
		Auth:          handlers.NewAuthHandler(services.NewAuthService(log)),
		Chats:         handlers.NewChatHandler(services.NewChatService(log)),
		Views:         handlers.NewViewHandler(views),
		Documents:     handlers.NewDocumentHandler(services.NewDocumentService(cfg.MaxUploadBytes, log), cfg.MaxUploadBytes),
		Watch:         websocket.NewHandler(hub, views, cfg.CORSOrigins).ServeWS,
		Desks:         desks,
		CORSOrigins:   cfg.CORSOrigins,
		SecureCookies: cfg.SecureCookies,
		Log:           log,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		cleanupService.Start(gctx)
		return nil
	})

	g.Go(func() error {
		log.Info().
			Str("addr", srv.Addr).
			Str("backend", cfg.BackendURL).
			Strs("cors_origins", cfg.CORSOrigins).
			Str("db", dbPath).
			Msg("ragdesk starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return shutdown(srv, views, cfg.ShutdownTimeout, log)
	})

	return g.Wait()
}

// shutdown stops accepting requests, then gives in-flight submissions the
// rest of the timeout to finish.
func shutdown(srv *http.Server, views *services.ViewService, timeout time.Duration, log zerolog.Logger) error {
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := views.Wait(ctx); err != nil {
		log.Warn().Err(err).Msg("background work still running at shutdown")
	}
	return nil
}
