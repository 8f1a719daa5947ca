// Package server exposes the wave planner over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/layerwave/layerwave/pkg/config"
	"github.com/layerwave/layerwave/pkg/engine"
	"github.com/layerwave/layerwave/pkg/policy"
	"github.com/layerwave/layerwave/pkg/stores"
	"github.com/layerwave/layerwave/pkg/telemetry"
)

// Defaults for Config.
const (
	DefaultAddr         = ":8080"
	DefaultCacheTTL     = 10 * time.Minute
	DefaultMaxBodyBytes = 1 << 20
)

// Config holds HTTP server settings.
type Config struct {
	Addr         string
	CacheTTL     time.Duration
	MaxBodyBytes int64

	// DefaultTarget is used when neither the request nor the catalog names
	// a target version.
	DefaultTarget string

	// EnforcePolicies rejects plans with blocking policy findings.
	EnforcePolicies bool

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Server serves planning requests against the currently loaded catalog.
type Server struct {
	cfg       Config
	parser    *config.Parser
	planner   *engine.Planner
	telemetry *telemetry.Telemetry
	policies  *policy.Engine
	archive   stores.ReportStore
	logger    zerolog.Logger

	// plans caches wave documents keyed by catalog revision, policy
	// revision and request hash.
	plans *cache.Cache

	mu       sync.RWMutex
	catalog  *config.Catalog
	revision uint64
}

// Option configures a Server.
type Option func(*Server)

// WithPolicies evaluates every computed plan against the policy engine.
func WithPolicies(eng *policy.Engine) Option {
	return func(s *Server) {
		s.policies = eng
	}
}

// WithArchive exposes archived reports under /api/v1/reports.
func WithArchive(archive stores.ReportStore) Option {
	return func(s *Server) {
		s.archive = archive
	}
}

// WithPlanner replaces the default planner.
func WithPlanner(p *engine.Planner) Option {
	return func(s *Server) {
		s.planner = p
	}
}

// New creates a server. It is not ready until a catalog is set.
func New(cfg Config, parser *config.Parser, tel *telemetry.Telemetry, opts ...Option) *Server {
	cfg.setDefaults()
	logger := tel.Logger.Component("server")

	s := &Server{
		cfg:       cfg,
		parser:    parser,
		telemetry: tel,
		logger:    logger,
		plans:     cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.planner == nil {
		s.planner = engine.NewPlanner(engine.WithLogger(tel.Logger.Component("engine")))
	}
	return s
}

// SetCatalog swaps in a new catalog and drops cached plans.
func (s *Server) SetCatalog(cat *config.Catalog) {
	s.mu.Lock()
	s.catalog = cat
	s.revision++
	rev := s.revision
	s.mu.Unlock()

	s.plans.Flush()
	s.logger.Info().
		Uint64("revision", rev).
		Str("source", cat.Source).
		Int("recipes", cat.Recipes.Len()).
		Int("buckets", cat.Buckets.Len()).
		Msg("catalog loaded")
}

// FlushPlans drops every cached plan.
func (s *Server) FlushPlans() {
	s.plans.Flush()
	s.logger.Debug().Msg("plan cache flushed")
}

// Catalog returns the current catalog and its revision.
func (s *Server) Catalog() (*config.Catalog, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog, s.revision
}

// WatchCatalog reloads the catalog at path whenever it changes. A catalog
// that fails to load is reported and the previous one keeps serving.
func (s *Server) WatchCatalog(ctx context.Context, path string, delay time.Duration) (*config.CatalogWatcher, error) {
	watcher := config.NewCatalogWatcher(s.parser, path, s.logger)
	if delay > 0 {
		watcher.SetDelay(delay)
	}

	onReload := func(cat *config.Catalog) {
		s.telemetry.Metrics.RecordCatalogReload(nil)
		s.SetCatalog(cat)
	}
	onError := func(err error) {
		s.telemetry.Metrics.RecordCatalogReload(err)
	}
	if err := watcher.Watch(ctx, onReload, onError); err != nil {
		return nil, err
	}
	return watcher, nil
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Routes(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info().Msg("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
