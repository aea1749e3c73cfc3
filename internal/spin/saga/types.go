package saga

import (
	"context"
	"errors"
	"time"
)

// State is the coordinator's checkpointed position in a spin saga.
type State string

const (
	StateCreated       State = "created"
	StateReserving     State = "reserving"
	StateReserved      State = "reserved"
	StateComputing     State = "computing"
	StateSettling      State = "settling"
	StateCompleted     State = "completed"
	StateReserveFailed State = "reserve_failed"
	StateAborted       State = "aborted"
	StateCompensating  State = "compensating"
	StateCompensated   State = "compensated"
)

// Terminal reports whether the saga has finished and may not transition again.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateAborted, StateCompensated:
		return true
	}
	return false
}

// Instance is one durable spin attempt. WorkflowID doubles as the referenceID
// for every ledger write belonging to the saga. ResultJSON carries the
// serialized caller-visible result once the saga is terminal, the serialized
// outcome while settling, and the failure cause while compensating.
type Instance struct {
	WorkflowID string
	PlayerID   string
	GameID     string
	BetAmount  int64
	State      State
	LastError  string
	ResultJSON string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Store persists saga instances. Create is idempotent on WorkflowID.
type Store interface {
	// Create inserts the instance or returns the existing one for the
	// workflow id. The bool reports whether a new row was created.
	Create(ctx context.Context, inst Instance) (Instance, bool, error)
	// Checkpoint records the saga's current state and last error.
	Checkpoint(ctx context.Context, workflowID string, state State, lastError string) error
	// SaveResult records the state together with the serialized result.
	SaveResult(ctx context.Context, workflowID string, state State, resultJSON string) error
	Get(ctx context.Context, workflowID string) (Instance, error)
	// ListNonTerminal returns sagas left mid-flight, for recovery.
	ListNonTerminal(ctx context.Context) ([]Instance, error)
}

// ErrWorkflowConflict signals a workflow id reused with a different request.
var ErrWorkflowConflict = errors.New("workflow id reused with different request")

// ErrNotFound signals an unknown workflow id.
var ErrNotFound = errors.New("saga not found")
