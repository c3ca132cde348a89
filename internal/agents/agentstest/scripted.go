// Package agentstest provides a deterministic Completer for pipeline tests.
package agentstest

import (
	"context"
	"fmt"
	"sync"

	"github.com/squadworks/squad/internal/agents"
	"github.com/squadworks/squad/pkg/models"
)

// Response configures one scripted reply.
type Response struct {
	Content string
	Err     error
}

// ScriptedCompleter replays responses in order and records every request.
type ScriptedCompleter struct {
	mu        sync.Mutex
	index     int
	responses []Response
	requests  []models.GenerationRequest
}

var _ agents.Completer = (*ScriptedCompleter)(nil)

// NewScriptedCompleter creates a completer that returns responses in order.
func NewScriptedCompleter(responses ...Response) *ScriptedCompleter {
	cloned := make([]Response, len(responses))
	copy(cloned, responses)
	return &ScriptedCompleter{responses: cloned}
}

// Reply is shorthand for a successful response.
func Reply(content string) Response { return Response{Content: content} }

// Fail is shorthand for a failing response.
func Fail(err error) Response { return Response{Err: err} }

func (s *ScriptedCompleter) Complete(_ context.Context, req models.GenerationRequest) (*models.GenerationReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if s.index >= len(s.responses) {
		return nil, fmt.Errorf("script exhausted at step %d", s.index+1)
	}
	current := s.responses[s.index]
	s.index++
	if current.Err != nil {
		return nil, current.Err
	}
	return &models.GenerationReply{Content: current.Content, Model: req.Model}, nil
}

// Requests returns every request received so far.
func (s *ScriptedCompleter) Requests() []models.GenerationRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.GenerationRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// Calls returns the number of Complete invocations.
func (s *ScriptedCompleter) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}
