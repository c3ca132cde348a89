// Package workflow implements the pipeline orchestrator.
//
// A run moves through a small state machine:
//
//	drafting → validating → {revising → validating}* → {approved | best_effort} → deploying → done
//
// The drafting agent writes a script for the task. The Quality Gate checks
// it; on failure the ordered failure list goes back to the same agent as a
// new turn, at most maxReviewCycles times. Whatever script stands when the
// loop ends is handed to the deployment agent exactly once. The loop bound
// is hard: revising is only entered while cycle < maxReviewCycles and every
// revision increments cycle, so the machine always halts.
//
// Runs are strictly sequential: each completion call blocks the run until a
// reply or an error arrives, and any completion error aborts the run.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/squadworks/squad/internal/agents"
	"github.com/squadworks/squad/internal/guardrails"
	"github.com/squadworks/squad/internal/metrics"
	"github.com/squadworks/squad/internal/transcript"
	"github.com/squadworks/squad/pkg/models"
)

// DefaultMaxReviewCycles is the revision budget when none is given.
const DefaultMaxReviewCycles = 4

// AdminName labels the orchestrator's own turns in the transcript.
const AdminName = "Admin"

// DeploymentTarget is the preamble sent with the final script.
const DeploymentTarget = "AWS Glue & Azure Databricks"

// ErrEmptyTask is returned when Run is called without a task.
var ErrEmptyTask = errors.New("workflow: task is empty")

var tracer = otel.Tracer("squad/workflow")

// Engine drives the draft, review, and deploy stages.
type Engine struct {
	drafter  *agents.Agent
	deployer *agents.Agent
	gate     *guardrails.QualityGate
	window   int
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithWindow sets the per-request message window.
func WithWindow(n int) Option {
	return func(e *Engine) { e.window = n }
}

// WithMetrics records run outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an orchestrator. A nil gate uses the default rules.
func NewEngine(drafter, deployer *agents.Agent, gate *guardrails.QualityGate, opts ...Option) *Engine {
	if gate == nil {
		gate = guardrails.NewQualityGate()
	}
	e := &Engine{
		drafter:  drafter,
		deployer: deployer,
		gate:     gate,
		window:   agents.DefaultWindow,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Drafter returns the drafting agent.
func (e *Engine) Drafter() *agents.Agent { return e.drafter }

// Deployer returns the deployment agent.
func (e *Engine) Deployer() *agents.Agent { return e.deployer }

// Run executes one full pipeline for task. A negative maxReviewCycles is
// treated as 0. FinalScript is empty only when the drafting agent never
// produced attributable content; such a script fails review like any other.
func (e *Engine) Run(ctx context.Context, task string, maxReviewCycles int) (*models.PipelineRun, error) {
	if strings.TrimSpace(task) == "" {
		return nil, ErrEmptyTask
	}
	if maxReviewCycles < 0 {
		log.Warn().Int("max_review_cycles", maxReviewCycles).Msg("Negative review budget, using 0")
		maxReviewCycles = 0
	}

	run := &models.PipelineRun{
		ID:              uuid.New().String(),
		Task:            task,
		DraftingAgent:   e.drafter.Name(),
		DeploymentAgent: e.deployer.Name(),
		MaxReviewCycles: maxReviewCycles,
		Transcript:      models.ChatHistory{},
		Validations:     []models.ValidationResult{},
		StartedAt:       e.now(),
	}

	ctx, span := tracer.Start(ctx, "workflow.Run", trace.WithAttributes(
		attribute.String("squad.run_id", run.ID),
		attribute.Int("squad.max_review_cycles", maxReviewCycles),
	))
	defer span.End()

	log.Info().
		Str("run_id", run.ID).
		Str("drafter", run.DraftingAgent).
		Str("deployer", run.DeploymentAgent).
		Int("max_review_cycles", maxReviewCycles).
		Msg("Pipeline run started")

	m := &machine{
		engine: e,
		run:    run,
		span:   span,
		thread: e.drafter.NewThread(AdminName, e.window),
		stage:  models.StageDrafting,
	}
	if err := m.drive(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "run aborted")
		log.Error().Err(err).Str("run_id", run.ID).Str("stage", string(m.stage)).Msg("Pipeline run aborted")
		return nil, err
	}

	run.CompletedAt = e.now()
	e.metrics.ObserveRun(string(run.Status), run.CyclesExecuted)
	span.SetAttributes(
		attribute.String("squad.status", string(run.Status)),
		attribute.Int("squad.cycles_executed", run.CyclesExecuted),
	)

	log.Info().
		Str("run_id", run.ID).
		Str("status", string(run.Status)).
		Int("cycles", run.CyclesExecuted).
		Dur("duration", run.CompletedAt.Sub(run.StartedAt)).
		Msg("Pipeline run complete")

	return run, nil
}

// ── State Machine ───────────────────────────────────────────

type machine struct {
	engine *Engine
	run    *models.PipelineRun
	span   trace.Span
	thread *agents.Thread

	stage  models.Stage
	cycle  int
	script string
	last   models.ValidationResult
}

func (m *machine) drive(ctx context.Context) error {
	for m.stage != models.StageDone {
		m.enter(m.stage)
		next, err := m.step(ctx)
		if err != nil {
			return err
		}
		m.stage = next
	}
	m.enter(models.StageDone)
	return nil
}

// step performs the work of the current stage and returns the next one.
func (m *machine) step(ctx context.Context) (models.Stage, error) {
	switch m.stage {
	case models.StageDrafting:
		if err := m.draft(ctx, m.run.Task); err != nil {
			return m.stage, err
		}
		return models.StageValidating, nil

	case models.StageValidating:
		m.last = m.engine.gate.Check(m.script)
		m.run.Validations = append(m.run.Validations, m.last)
		switch {
		case m.last.Passed:
			return models.StageApproved, nil
		case m.cycle < m.run.MaxReviewCycles:
			return models.StageRevising, nil
		default:
			return models.StageBestEffort, nil
		}

	case models.StageRevising:
		if err := m.draft(ctx, RevisionRequest(m.last)); err != nil {
			return m.stage, err
		}
		m.cycle++
		m.run.CyclesExecuted = m.cycle
		return models.StageValidating, nil

	case models.StageApproved:
		m.run.Approved = true
		m.run.Status = models.RunStatusApproved
		return models.StageDeploying, nil

	case models.StageBestEffort:
		m.run.Approved = false
		m.run.Status = models.RunStatusBestEffort
		return models.StageDeploying, nil

	case models.StageDeploying:
		if err := m.deploy(ctx); err != nil {
			return m.stage, err
		}
		return models.StageDone, nil

	default:
		return m.stage, fmt.Errorf("workflow: unknown stage %q", m.stage)
	}
}

// draft sends content to the drafting agent and replaces the current
// script with the code extracted from its reply.
func (m *machine) draft(ctx context.Context, content string) error {
	exchange, err := m.thread.Send(ctx, content)
	if err != nil {
		return fmt.Errorf("%s: %w", m.stage, err)
	}
	m.run.Transcript = m.run.Transcript.Append(exchange...)

	m.script = transcript.ExtractCode(exchange, m.engine.drafter.Name())
	m.run.FinalScript = m.script
	if m.script == "" {
		log.Warn().
			Str("run_id", m.run.ID).
			Str("agent", m.engine.drafter.Name()).
			Int("cycle", m.cycle).
			Msg("Drafting agent produced no attributable content")
	}
	return nil
}

// deploy hands the final script to the deployment agent in a fresh thread.
func (m *machine) deploy(ctx context.Context) error {
	thread := m.engine.deployer.NewThread(AdminName, m.engine.window)
	exchange, err := thread.Send(ctx, DeploymentRequest(m.script))
	if err != nil {
		return fmt.Errorf("%s: %w", m.stage, err)
	}
	m.run.Transcript = m.run.Transcript.Append(exchange...)
	m.run.InfraText = transcript.ExtractText(exchange, m.engine.deployer.Name())
	if m.run.InfraText == "" {
		log.Warn().
			Str("run_id", m.run.ID).
			Str("agent", m.engine.deployer.Name()).
			Msg("Deployment agent produced no attributable content")
	}
	return nil
}

func (m *machine) enter(stage models.Stage) {
	m.run.Transitions = append(m.run.Transitions, models.Transition{
		Stage: stage,
		Cycle: m.cycle,
		At:    m.engine.now(),
	})
	m.span.AddEvent(string(stage), trace.WithAttributes(attribute.Int("squad.cycle", m.cycle)))

	event := log.Info().
		Str("run_id", m.run.ID).
		Str("stage", string(stage)).
		Int("cycle", m.cycle)
	if stage == models.StageRevising {
		event = event.Int("failures", len(m.last.Failures))
	}
	event.Msg("Pipeline stage")
}

// ── Agent Messages ──────────────────────────────────────────

// RevisionRequest formats a failed validation as one remediation
// instruction per line.
func RevisionRequest(result models.ValidationResult) string {
	var b strings.Builder
	b.WriteString("Failures detected. Fix these specific issues:\n\n")
	b.WriteString(strings.Join(guardrails.FailureLines(result), "\n"))
	b.WriteString("\n\nOutput the complete fixed script in ONE ```python ... ``` block.")
	return b.String()
}

// DeploymentRequest wraps the final script with the deployment preamble.
func DeploymentRequest(script string) string {
	return fmt.Sprintf("Deployment Target: %s\n\nApproved Script:\n```python\n%s\n```", DeploymentTarget, script)
}
