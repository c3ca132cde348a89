// Package server assembles the squad pipeline from configuration.
//
// Both entry points share it: `squad run` calls Squad.Execute once, and
// `squad serve` mounts Handler on an http.Server.
//
//	srv, err := server.New(ctx, cfg)
//	run, paths, err := srv.Squad.Execute(ctx, task, cfg.Pipeline.MaxReviewCycles)
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/squadworks/squad/internal/agents"
	"github.com/squadworks/squad/internal/api"
	"github.com/squadworks/squad/internal/artifacts"
	"github.com/squadworks/squad/internal/completion"
	"github.com/squadworks/squad/internal/config"
	"github.com/squadworks/squad/internal/guardrails"
	"github.com/squadworks/squad/internal/metrics"
	"github.com/squadworks/squad/internal/runs"
	"github.com/squadworks/squad/internal/telemetry"
	"github.com/squadworks/squad/internal/workflow"
	"github.com/squadworks/squad/pkg/models"
)

// Server holds the initialized pipeline and its HTTP surface.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Squad runs pipelines and persists their artifacts.
	Squad *Squad

	// Store keeps finished runs for the HTTP surface.
	Store runs.Store

	Metrics *metrics.Metrics
	Config  *config.Config

	// ShutdownFunc should be called on exit to flush telemetry.
	ShutdownFunc telemetry.ShutdownFunc
}

// Option overrides a component, mostly for tests.
type Option func(*options)

type options struct {
	fs        afero.Fs
	completer agents.Completer
}

// WithFs writes artifacts to fs instead of the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(o *options) { o.fs = fs }
}

// WithCompleter replaces the HTTP completion client.
func WithCompleter(c agents.Completer) Option {
	return func(o *options) { o.completer = c }
}

// New initializes every component from cfg.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Server, error) {
	o := &options{fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(o)
	}

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	catalog, err := loadCatalog(cfg.Pipeline.AgentsFile)
	if err != nil {
		return nil, err
	}
	drafting, err := catalog.ForRole(models.AgentRoleDrafting, cfg.Completion.Model)
	if err != nil {
		return nil, err
	}
	deployment, err := catalog.ForRole(models.AgentRoleDeployment, cfg.Completion.Model)
	if err != nil {
		return nil, err
	}

	completer := o.completer
	if completer == nil {
		completer = completion.NewClient(completion.Options{
			Endpoint: cfg.Completion.Endpoint,
			APIKey:   cfg.Completion.APIKey,
			Window:   cfg.Pipeline.HistoryWindow,
		})
	}

	m := metrics.New()
	engine := workflow.NewEngine(
		agents.New(drafting, completer, m),
		agents.New(deployment, completer, m),
		guardrails.NewQualityGate(),
		workflow.WithWindow(cfg.Pipeline.HistoryWindow),
		workflow.WithMetrics(m),
	)
	log.Debug().
		Str("drafter", drafting.Name).
		Str("deployer", deployment.Name).
		Str("model", cfg.Completion.Model).
		Msg("Pipeline engine initialized")

	store := runs.NewMemoryRunStore()
	squad := &Squad{
		engine: engine,
		writer: artifacts.NewWriter(o.fs, cfg.Pipeline.OutputDir),
		store:  store,
	}

	return &Server{
		Handler:      api.NewRouter(cfg, squad, store, m),
		Squad:        squad,
		Store:        store,
		Metrics:      m,
		Config:       cfg,
		ShutdownFunc: shutdown,
	}, nil
}

func loadCatalog(path string) (*agents.Catalog, error) {
	if path == "" {
		return agents.DefaultCatalog()
	}
	catalog, err := agents.LoadCatalog(path)
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", path).Msg("Loaded agent profiles")
	return catalog, nil
}

// ── Squad ───────────────────────────────────────────────────

// Squad runs a pipeline end to end: orchestrate, write artifacts, record.
type Squad struct {
	engine *workflow.Engine
	writer *artifacts.Writer
	store  runs.Store
}

// Execute runs one pipeline. Artifacts are written only for runs that
// reach the end; an aborted run leaves the output directory untouched.
func (s *Squad) Execute(ctx context.Context, task string, maxReviewCycles int) (*models.PipelineRun, *artifacts.Paths, error) {
	run, err := s.engine.Run(ctx, task, maxReviewCycles)
	if err != nil {
		return nil, nil, err
	}

	paths, err := s.writer.Write(ctx, run)
	if err != nil {
		return nil, nil, fmt.Errorf("write artifacts: %w", err)
	}

	if err := s.store.Create(ctx, run); err != nil {
		log.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to record run")
	}

	log.Info().
		Str("run_id", run.ID).
		Str("transcript", paths.Transcript).
		Str("infra", paths.Infra).
		Str("script", paths.Script).
		Msg("Artifacts saved")

	return run, paths, nil
}
