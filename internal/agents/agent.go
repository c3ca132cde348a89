// Package agents binds agent profiles to a completion backend.
//
// An Agent is stateless apart from its fixed profile. Conversational state
// lives in a Thread, an explicit accumulating request builder that resends
// the bounded trailing window on every turn instead of relying on any
// session kept by the completion service.
package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/squadworks/squad/internal/completion"
	"github.com/squadworks/squad/internal/metrics"
	"github.com/squadworks/squad/pkg/models"
)

// DefaultWindow is the number of messages sent per request, system
// instruction included.
const DefaultWindow = completion.MaxWindow

// Completer produces one reply per request.
type Completer interface {
	Complete(ctx context.Context, req models.GenerationRequest) (*models.GenerationReply, error)
}

// Agent is a named capability bound to a profile.
type Agent struct {
	profile   models.AgentProfile
	completer Completer
	metrics   *metrics.Metrics
}

// New creates an agent. m may be nil.
func New(profile models.AgentProfile, completer Completer, m *metrics.Metrics) *Agent {
	return &Agent{profile: profile, completer: completer, metrics: m}
}

// Name returns the agent identifier used to attribute its messages.
func (a *Agent) Name() string { return a.profile.Name }

// Profile returns the agent's profile.
func (a *Agent) Profile() models.AgentProfile { return a.profile }

// NewThread starts an empty conversation between sender and the agent.
// window bounds each request; values below 2 or above DefaultWindow fall
// back to DefaultWindow.
func (a *Agent) NewThread(sender string, window int) *Thread {
	if window < 2 || window > DefaultWindow {
		window = DefaultWindow
	}
	return &Thread{agent: a, sender: sender, window: window}
}

// ── Thread ──────────────────────────────────────────────────

// Thread is one agent's accumulating conversation. It is owned by a single
// caller and is not safe for concurrent use.
type Thread struct {
	agent  *Agent
	sender string
	window int
	turns  models.ChatHistory
}

// History returns a copy of every turn exchanged so far.
func (t *Thread) History() models.ChatHistory {
	out := make(models.ChatHistory, len(t.turns))
	copy(out, t.turns)
	return out
}

// Request builds the request that sending content would issue: the system
// instruction followed by the trailing window-1 turns, the new message last.
// Older turns are dropped from the request only, never from the thread.
func (t *Thread) Request(content string) models.GenerationRequest {
	pending := t.turns.Append(t.userMessage(content))

	msgs := make(models.ChatHistory, 0, t.window)
	msgs = append(msgs, models.Message{
		Role:    models.RoleSystem,
		Name:    t.agent.profile.Name,
		Content: t.agent.profile.SystemMessage,
	})
	msgs = append(msgs, pending.Tail(t.window-1)...)

	return models.GenerationRequest{
		Agent:       t.agent.profile.Name,
		Messages:    msgs,
		Model:       t.agent.profile.Model,
		MaxTokens:   t.agent.profile.EffectiveMaxTokens(),
		Temperature: 0,
	}
}

// Send delivers content as a new turn and waits for the agent's reply. On
// success both messages are appended to the thread and returned in order.
// On failure the thread is left unchanged.
func (t *Thread) Send(ctx context.Context, content string) (models.ChatHistory, error) {
	req := t.Request(content)

	start := time.Now()
	reply, err := t.agent.completer.Complete(ctx, req)
	t.agent.metrics.ObserveCompletion(t.agent.profile.Name, outcome(err), time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", t.agent.profile.Name, err)
	}

	exchange := models.ChatHistory{
		t.userMessage(content),
		{Role: models.RoleAssistant, Name: t.agent.profile.Name, Content: reply.Content},
	}
	t.turns = t.turns.Append(exchange...)

	log.Debug().
		Str("agent", t.agent.profile.Name).
		Int("turns", len(t.turns)).
		Int("sent", len(req.Messages)).
		Msg("Agent replied")

	return exchange, nil
}

func (t *Thread) userMessage(content string) models.Message {
	return models.Message{Role: models.RoleUser, Name: t.sender, Content: content}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case completion.IsTransport(err):
		return metrics.OutcomeTransport
	case completion.IsMalformed(err):
		return metrics.OutcomeMalformed
	default:
		return metrics.OutcomeError
	}
}
