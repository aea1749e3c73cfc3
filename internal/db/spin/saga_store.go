package spindb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"spindle/internal/spin/saga"
)

// SagaStore persists spin saga instances in Postgres, keyed by workflow id.
type SagaStore struct {
	db *sql.DB
}

// NewSagaStore constructs a SagaStore backed by Postgres.
func NewSagaStore(db *sql.DB) *SagaStore {
	return &SagaStore{db: db}
}

// NewSagaStoreWithSchema initializes the schema then returns the store.
func NewSagaStoreWithSchema(ctx context.Context, db *sql.DB) (*SagaStore, error) {
	store := NewSagaStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates the saga table if it does not exist.
func (s *SagaStore) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS spin_sagas (
			workflow_id TEXT PRIMARY KEY,
			player_id TEXT NOT NULL,
			game_id TEXT NOT NULL,
			bet_amount BIGINT NOT NULL,
			state TEXT NOT NULL,
			last_error TEXT,
			result_json TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

// Create inserts a new saga or returns the existing one for the workflow id.
// Reusing a workflow id with a different player or bet is a conflict.
func (s *SagaStore) Create(ctx context.Context, inst saga.Instance) (saga.Instance, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO spin_sagas (workflow_id, player_id, game_id, bet_amount, state)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (workflow_id) DO NOTHING`,
		inst.WorkflowID, inst.PlayerID, inst.GameID, inst.BetAmount, inst.State,
	)
	if err != nil {
		return saga.Instance{}, false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return saga.Instance{}, false, err
	}

	stored, err := s.Get(ctx, inst.WorkflowID)
	if err != nil {
		if errors.Is(err, saga.ErrNotFound) {
			return saga.Instance{}, false, fmt.Errorf("saga not found after insert")
		}
		return saga.Instance{}, false, err
	}

	if stored.PlayerID != inst.PlayerID || stored.BetAmount != inst.BetAmount {
		return saga.Instance{}, false, saga.ErrWorkflowConflict
	}

	return stored, affected == 1, nil
}

// Checkpoint records the saga's state and last error.
func (s *SagaStore) Checkpoint(ctx context.Context, workflowID string, state saga.State, lastError string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE spin_sagas
		SET state = $2, last_error = NULLIF($3, ''), updated_at = NOW()
		WHERE workflow_id = $1`,
		workflowID, state, lastError,
	)
	return err
}

// SaveResult records the state together with the serialized result.
func (s *SagaStore) SaveResult(ctx context.Context, workflowID string, state saga.State, resultJSON string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE spin_sagas
		SET state = $2, result_json = $3, updated_at = NOW()
		WHERE workflow_id = $1`,
		workflowID, state, resultJSON,
	)
	return err
}

// Get retrieves a saga instance by workflow id.
func (s *SagaStore) Get(ctx context.Context, workflowID string) (saga.Instance, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT workflow_id, player_id, game_id, bet_amount, state,
		       COALESCE(last_error, ''), COALESCE(result_json, ''), created_at, updated_at
		FROM spin_sagas
		WHERE workflow_id = $1`,
		workflowID,
	)
	return scanInstance(row)
}

// ListNonTerminal returns sagas left mid-flight, oldest first.
func (s *SagaStore) ListNonTerminal(ctx context.Context) ([]saga.Instance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT workflow_id, player_id, game_id, bet_amount, state,
		       COALESCE(last_error, ''), COALESCE(result_json, ''), created_at, updated_at
		FROM spin_sagas
		WHERE state NOT IN ($1, $2, $3)
		ORDER BY created_at`,
		saga.StateCompleted, saga.StateAborted, saga.StateCompensated,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []saga.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(row rowScanner) (saga.Instance, error) {
	var inst saga.Instance
	var state string
	err := row.Scan(
		&inst.WorkflowID, &inst.PlayerID, &inst.GameID, &inst.BetAmount,
		&state, &inst.LastError, &inst.ResultJSON, &inst.CreatedAt, &inst.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return saga.Instance{}, saga.ErrNotFound
		}
		return saga.Instance{}, err
	}
	inst.State = saga.State(state)
	return inst, nil
}

var _ saga.Store = (*SagaStore)(nil)
