// Package runs keeps finished pipeline runs in memory for the HTTP surface.
package runs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/squadworks/squad/pkg/models"
)

// ErrNotFound is returned when a run ID is unknown.
var ErrNotFound = errors.New("run not found")

// Store records finished runs.
type Store interface {
	Create(ctx context.Context, run *models.PipelineRun) error
	Get(ctx context.Context, id string) (*models.PipelineRun, error)
	List(ctx context.Context) ([]models.RunSummary, error)
}

// MemoryRunStore is a thread-safe in-memory Store.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]*models.PipelineRun // key: run ID
}

var _ Store = (*MemoryRunStore)(nil)

// NewMemoryRunStore creates an empty store.
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{
		runs: make(map[string]*models.PipelineRun),
	}
}

// Create stores a finished run. IDs are unique.
func (s *MemoryRunStore) Create(_ context.Context, run *models.PipelineRun) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("run has no ID")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	s.runs[run.ID] = run
	return nil
}

// Get retrieves a run by ID.
func (s *MemoryRunStore) Get(_ context.Context, id string) (*models.PipelineRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return run, nil
}

// List returns summaries of every run, most recent first.
func (s *MemoryRunStore) List(_ context.Context) ([]models.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.RunSummary, 0, len(s.runs))
	for _, run := range s.runs {
		result = append(result, run.Summary())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].StartedAt.Equal(result[j].StartedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].StartedAt.After(result[j].StartedAt)
	})
	return result, nil
}
