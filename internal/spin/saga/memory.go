package saga

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps saga instances in memory. Used by tests and as the
// builder fallback when no database is configured.
type MemoryStore struct {
	mu        sync.Mutex
	instances map[string]Instance
}

// NewMemoryStore constructs an empty in-memory saga store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{instances: make(map[string]Instance)}
}

func (s *MemoryStore) Create(ctx context.Context, inst Instance) (Instance, bool, error) {
	if err := ctx.Err(); err != nil {
		return Instance{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.instances[inst.WorkflowID]; ok {
		if existing.PlayerID != inst.PlayerID || existing.BetAmount != inst.BetAmount {
			return Instance{}, false, ErrWorkflowConflict
		}
		return existing, false, nil
	}

	now := time.Now().UTC()
	inst.CreatedAt = now
	inst.UpdatedAt = now
	s.instances[inst.WorkflowID] = inst
	return inst, true, nil
}

func (s *MemoryStore) Checkpoint(ctx context.Context, workflowID string, state State, lastError string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[workflowID]
	if !ok {
		return ErrNotFound
	}
	inst.State = state
	inst.LastError = lastError
	inst.UpdatedAt = time.Now().UTC()
	s.instances[workflowID] = inst
	return nil
}

func (s *MemoryStore) SaveResult(ctx context.Context, workflowID string, state State, resultJSON string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[workflowID]
	if !ok {
		return ErrNotFound
	}
	inst.State = state
	inst.ResultJSON = resultJSON
	inst.UpdatedAt = time.Now().UTC()
	s.instances[workflowID] = inst
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, workflowID string) (Instance, error) {
	if err := ctx.Err(); err != nil {
		return Instance{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[workflowID]
	if !ok {
		return Instance{}, ErrNotFound
	}
	return inst, nil
}

func (s *MemoryStore) ListNonTerminal(ctx context.Context) ([]Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Instance
	for _, inst := range s.instances {
		if !inst.State.Terminal() {
			out = append(out, inst)
		}
	}
	return out, nil
}
