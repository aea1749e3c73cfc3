package spin

import (
	"context"
	"errors"

	"spindle/internal/spin/saga"

	"go.uber.org/zap"
)

// Recoverer re-drives sagas left in a non-terminal state by a crash or
// restart. Every step is idempotent against the ledger, so resuming a saga
// that in fact finished its in-flight write is harmless.
type Recoverer struct {
	sagas  saga.Store
	coord  *Coordinator
	logger *zap.Logger
}

// NewRecoverer constructs a Recoverer.
func NewRecoverer(sagas saga.Store, coord *Coordinator, logger *zap.Logger) *Recoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recoverer{sagas: sagas, coord: coord, logger: logger}
}

// Resume lists all non-terminal sagas and drives each to a terminal state.
// One saga failing to finish does not stop the sweep; the first error is
// reported after all sagas were attempted.
func (r *Recoverer) Resume(ctx context.Context) error {
	instances, err := r.sagas.ListNonTerminal(ctx)
	if err != nil {
		return err
	}
	if len(instances) == 0 {
		return nil
	}
	r.logger.Info("resuming interrupted sagas", zap.Int("count", len(instances)))

	var firstErr error
	for _, inst := range instances {
		if err := ctx.Err(); err != nil {
			return errors.Join(firstErr, err)
		}
		logger := r.logger.With(
			zap.String("workflowId", inst.WorkflowID),
			zap.String("state", string(inst.State)),
		)
		logger.Info("resuming saga")
		if _, err := r.coord.Resume(ctx, inst); err != nil {
			// A compensated saga returns its original failure cause here;
			// that is a successful resume, not a recovery error.
			var se *Error
			if errors.As(err, &se) && se.Kind != KindTransientStorage && se.Kind != KindRefundFailure && se.Kind != KindInternal {
				logger.Info("saga resumed to failure terminal", zap.String("kind", string(se.Kind)))
				continue
			}
			logger.Warn("saga resume failed", zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
