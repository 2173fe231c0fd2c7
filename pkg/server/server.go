// Package server provides the public entry point for initializing the
// DevOS coordinator.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	srv.Start(ctx)
//	http.ListenAndServe(":3001", srv.Handler)
//	srv.Shutdown(ctx)
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/localconnect/devos/internal/api"
	"github.com/localconnect/devos/internal/api/handlers"
	"github.com/localconnect/devos/internal/broadcast"
	"github.com/localconnect/devos/internal/config"
	"github.com/localconnect/devos/internal/mcp"
	"github.com/localconnect/devos/internal/retention"
	"github.com/localconnect/devos/internal/store"
	"github.com/localconnect/devos/internal/telemetry"
	"github.com/localconnect/devos/internal/ws"
)

// Server holds the initialized coordinator.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Store persists agents, tasks, run plans and audit logs.
	Store store.Store

	// Hub tracks every open WebSocket connection.
	Hub *ws.Hub

	// Config is the resolved configuration.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	janitor           *retention.Janitor
	telemetryShutdown func(context.Context) error

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New loads configuration from the environment and builds the server.
func New(ctx context.Context) (*Server, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(ctx, cfg)
}

// NewWithConfig builds the server from an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(ctx, cfg.Telemetry, cfg.Server.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	dataStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		shutdown(ctx)
		return nil, fmt.Errorf("init store: %w", err)
	}

	hub := ws.NewHub(cfg.WebSocket.SendTimeout)
	bc := broadcast.New(hub)
	dir := mcp.NewDirectory()
	rv := mcp.NewRendezvous(bc, mcp.RetentionPolicy{
		PendingTTL:   cfg.Design.PendingTTL,
		CompletedTTL: cfg.Design.CompletedTTL,
	})
	janitor := retention.NewJanitor(cfg.Design.SweepInterval, rv)

	wsServer := ws.NewServer(hub, ws.Options{
		WriteWait:      cfg.WebSocket.SendTimeout,
		PongWait:       cfg.WebSocket.PongWait,
		PingInterval:   cfg.WebSocket.PingInterval,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		AllowedOrigins: cfg.WebSocket.AllowedOrigins,
	})

	h := handlers.New(dataStore, hub, bc, dir, rv, handlers.Info{
		Version:  cfg.Server.Version,
		RunnerID: cfg.Server.RunnerID,
	})
	router := api.NewRouter(cfg, h, wsServer)

	log.Info().
		Str("store", cfg.Store.Driver).
		Dur("send_timeout", cfg.WebSocket.SendTimeout).
		Msg("Coordinator initialized")

	return &Server{
		Handler:           router,
		Store:             dataStore,
		Hub:               hub,
		Config:            cfg,
		Port:              cfg.Server.Port,
		janitor:           janitor,
		telemetryShutdown: shutdown,
	}, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return store.NewSQLiteStore(ctx, cfg.Path)
	case "memory":
		s := store.NewMemoryStore(cfg.DataDir)
		log.Info().Str("data_dir", cfg.DataDir).Msg("In-memory store initialized")
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// Start launches background loops. They run until Shutdown.
func (s *Server) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.janitor.Start(ctx)
	}()
}

// Shutdown stops background loops, closes every WebSocket connection,
// flushes telemetry and closes the store. Call it after the HTTP server has
// stopped accepting requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	s.Hub.CloseAll()

	var firstErr error
	if err := s.telemetryShutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Telemetry shutdown failed")
		firstErr = err
	}
	if err := s.Store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
