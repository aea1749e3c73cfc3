package spin

import (
	"context"
	"encoding/json"
	"errors"

	"spindle/internal/engine"
	"spindle/internal/spin/saga"
	"spindle/internal/wallet"

	"go.uber.org/zap"
)

// OutcomeGenerator computes a spin outcome. The call is pure: it has no
// ledger side effects, so a failure here never needs its own compensation.
type OutcomeGenerator interface {
	Generate(ctx context.Context, betAmount int64) (engine.Outcome, error)
}

// Escalator receives refunds whose retry budget is exhausted. Escalation is
// an operational alert, never a reason to drop the refund: the saga stays in
// the compensating state and the recovery pass retries it.
type Escalator interface {
	Escalate(ctx context.Context, workflowID string, err error)
}

// EscalateFunc adapts a function to the Escalator interface.
type EscalateFunc func(ctx context.Context, workflowID string, err error)

func (f EscalateFunc) Escalate(ctx context.Context, workflowID string, err error) {
	f(ctx, workflowID, err)
}

// Metrics is the subset of instrumentation the coordinator reports to.
type Metrics interface {
	SpinFinished(state string)
	RefundEscalated()
}

// CoordinatorConfig carries the coordinator's collaborators beyond the three
// required stores.
type CoordinatorConfig struct {
	Policies  Policies
	Escalator Escalator
	Metrics   Metrics
	Logger    *zap.Logger
}

// Coordinator drives the spin saga: reserve the bet, compute the outcome,
// settle the win or compensate with a refund. Every ledger write uses the
// saga's workflow id as its reference id, so re-running any step is absorbed
// by the ledger's (referenceId, kind) uniqueness guard. The coordinator
// checkpoints state before and after each step; recovery resumes a saga at
// exactly the step it was last known to be in.
type Coordinator struct {
	ledger   wallet.Ledger
	sagas    saga.Store
	outcomes OutcomeGenerator
	policies Policies
	escalate Escalator
	metrics  Metrics
	logger   *zap.Logger
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator(ledger wallet.Ledger, sagas saga.Store, outcomes OutcomeGenerator, cfg CoordinatorConfig) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	policies := cfg.Policies
	if policies.Reserve.MaxAttempts == 0 && policies.Settle.MaxAttempts == 0 && policies.Refund.MaxAttempts == 0 {
		policies = DefaultPolicies()
	}
	return &Coordinator{
		ledger:   ledger,
		sagas:    sagas,
		outcomes: outcomes,
		policies: policies,
		escalate: cfg.Escalator,
		metrics:  cfg.Metrics,
		logger:   logger,
	}
}

// Spin executes one spin attempt under workflowID. Submitting the same
// workflowID again is safe: a terminal saga replays its stored result, a
// mid-flight saga re-drives idempotent steps.
func (c *Coordinator) Spin(ctx context.Context, workflowID string, req Request) (Result, error) {
	if err := validateRequest(workflowID, req); err != nil {
		return Result{}, err
	}

	inst, created, err := c.sagas.Create(ctx, saga.Instance{
		WorkflowID: workflowID,
		PlayerID:   req.PlayerID,
		GameID:     req.GameID,
		BetAmount:  req.BetAmount,
		State:      saga.StateCreated,
	})
	if err != nil {
		if errors.Is(err, saga.ErrWorkflowConflict) {
			return Result{}, newError(KindWorkflowConflict, "workflow %s already exists with a different request", workflowID)
		}
		return Result{}, newError(KindTransientStorage, "create saga: %v", err)
	}

	if !created && inst.State.Terminal() {
		return c.replay(inst)
	}
	return c.run(ctx, inst)
}

// Resume re-drives a saga from its checkpointed state. Used by recovery.
func (c *Coordinator) Resume(ctx context.Context, inst saga.Instance) (Result, error) {
	if inst.State.Terminal() {
		return c.replay(inst)
	}
	return c.run(ctx, inst)
}

func validateRequest(workflowID string, req Request) error {
	if workflowID == "" {
		return newError(KindInvalidRequest, "workflow id required")
	}
	if req.PlayerID == "" {
		return newError(KindInvalidRequest, "player id required")
	}
	if req.GameID == "" {
		return newError(KindInvalidRequest, "game id required")
	}
	if req.BetAmount <= 0 {
		return newError(KindInvalidRequest, "bet amount must be positive, got %d", req.BetAmount)
	}
	return nil
}

func (c *Coordinator) run(ctx context.Context, inst saga.Instance) (Result, error) {
	logger := c.logger.With(
		zap.String("workflowId", inst.WorkflowID),
		zap.String("playerId", inst.PlayerID),
	)

	var (
		outcome     engine.Outcome
		haveOutcome bool
		cause       *Error
		balance     int64
		haveBalance bool
	)

	// Resuming mid-settle or mid-compensation: the checkpoint carries the
	// serialized outcome (settling) or the failure cause (compensating).
	switch inst.State {
	case saga.StateSettling:
		if inst.ResultJSON != "" && json.Unmarshal([]byte(inst.ResultJSON), &outcome) == nil {
			haveOutcome = true
		}
	case saga.StateCompensating:
		var stored Error
		if inst.ResultJSON != "" && json.Unmarshal([]byte(inst.ResultJSON), &stored) == nil && stored.Kind != "" {
			cause = &stored
		}
	}

	for {
		switch inst.State {
		case saga.StateCreated:
			if err := c.transition(ctx, &inst, saga.StateReserving, ""); err != nil {
				return Result{}, err
			}

		case saga.StateReserving:
			b, err := c.reserve(ctx, inst)
			if err != nil {
				if errors.Is(err, wallet.ErrInsufficientFunds) {
					logger.Info("reserve rejected", zap.Int64("betAmount", inst.BetAmount))
					return c.abort(ctx, inst, newError(KindInsufficientFunds, "balance below bet amount %d", inst.BetAmount))
				}
				logger.Error("reserve failed", zap.Error(err))
				return c.abort(ctx, inst, newError(KindTransientStorage, "reserve funds: %v", err))
			}
			balance, haveBalance = b, true
			logger.Info("funds reserved", zap.Int64("balance", balance))
			// The debit is durable now; the saga must reach a terminal state
			// even if the caller stops waiting.
			ctx = context.WithoutCancel(ctx)
			if err := c.transition(ctx, &inst, saga.StateReserved, ""); err != nil {
				return Result{}, err
			}

		case saga.StateReserved:
			if err := c.transition(ctx, &inst, saga.StateComputing, ""); err != nil {
				return Result{}, err
			}

		case saga.StateComputing:
			ctx = context.WithoutCancel(ctx)
			out, err := c.outcomes.Generate(ctx, inst.BetAmount)
			if err != nil {
				logger.Error("outcome generation failed", zap.Error(err))
				cause = newError(KindOutcomeFailure, "outcome generation: %v", err)
				if err := c.beginCompensation(ctx, &inst, cause); err != nil {
					return Result{}, err
				}
				continue
			}
			outcome, haveOutcome = out, true
			logger.Info("outcome computed", zap.Int64("winAmount", out.WinAmount), zap.Bool("isWin", out.IsWin))

			if out.WinAmount == 0 {
				// A zero-amount credit is never written.
				return c.complete(ctx, inst, outcome, balance, haveBalance, logger)
			}
			payload, err := json.Marshal(out)
			if err != nil {
				return Result{}, newError(KindInternal, "encode outcome: %v", err)
			}
			if err := c.sagas.SaveResult(ctx, inst.WorkflowID, saga.StateSettling, string(payload)); err != nil {
				return Result{}, newError(KindTransientStorage, "checkpoint settling: %v", err)
			}
			inst.State = saga.StateSettling
			inst.ResultJSON = string(payload)

		case saga.StateSettling:
			ctx = context.WithoutCancel(ctx)
			if !haveOutcome {
				cause = newError(KindInternal, "settling checkpoint for %s has no outcome", inst.WorkflowID)
				if err := c.beginCompensation(ctx, &inst, cause); err != nil {
					return Result{}, err
				}
				continue
			}
			b, err := c.settle(ctx, inst, outcome.WinAmount)
			if err != nil {
				logger.Error("settle failed", zap.Error(err))
				cause = newError(KindSettlementFailure, "settle win: %v", err)
				if err := c.beginCompensation(ctx, &inst, cause); err != nil {
					return Result{}, err
				}
				continue
			}
			balance, haveBalance = b, true
			logger.Info("win settled", zap.Int64("winAmount", outcome.WinAmount), zap.Int64("balance", balance))
			return c.complete(ctx, inst, outcome, balance, haveBalance, logger)

		case saga.StateCompensating:
			ctx = context.WithoutCancel(ctx)
			if cause == nil {
				cause = newError(KindInternal, "spin failed: %s", inst.LastError)
			}
			if err := c.refund(ctx, inst); err != nil {
				logger.Error("refund exhausted retry budget", zap.Error(err))
				if c.metrics != nil {
					c.metrics.RefundEscalated()
				}
				if c.escalate != nil {
					c.escalate.Escalate(ctx, inst.WorkflowID, err)
				}
				// State stays compensating; recovery retries the refund.
				if cpErr := c.sagas.Checkpoint(ctx, inst.WorkflowID, saga.StateCompensating, err.Error()); cpErr != nil {
					logger.Error("checkpoint after refund failure", zap.Error(cpErr))
				}
				return Result{}, newError(KindRefundFailure, "refund pending for %s: %v", inst.WorkflowID, err)
			}

			payload, err := json.Marshal(cause)
			if err != nil {
				return Result{}, newError(KindInternal, "encode failure cause: %v", err)
			}
			if err := c.sagas.SaveResult(ctx, inst.WorkflowID, saga.StateCompensated, string(payload)); err != nil {
				return Result{}, newError(KindTransientStorage, "checkpoint compensated: %v", err)
			}
			logger.Info("bet refunded", zap.String("cause", string(cause.Kind)))
			if c.metrics != nil {
				c.metrics.SpinFinished(string(saga.StateCompensated))
			}
			return Result{}, cause

		case saga.StateReserveFailed:
			// Crash window between the reserve_failed checkpoint and the
			// aborted terminal; finish the abort with the recorded message.
			return c.abort(ctx, inst, newError(KindInternal, "reserve failed: %s", inst.LastError))

		default:
			return c.replay(inst)
		}
	}
}

func (c *Coordinator) replay(inst saga.Instance) (Result, error) {
	switch inst.State {
	case saga.StateCompleted:
		var res Result
		if err := json.Unmarshal([]byte(inst.ResultJSON), &res); err != nil {
			return Result{}, newError(KindInternal, "decode stored result for %s: %v", inst.WorkflowID, err)
		}
		return res, nil
	default:
		var stored Error
		if inst.ResultJSON != "" && json.Unmarshal([]byte(inst.ResultJSON), &stored) == nil && stored.Kind != "" {
			return Result{}, &stored
		}
		return Result{}, newError(KindInternal, "spin %s failed: %s", inst.WorkflowID, inst.LastError)
	}
}

func (c *Coordinator) transition(ctx context.Context, inst *saga.Instance, next saga.State, lastError string) error {
	if err := c.sagas.Checkpoint(ctx, inst.WorkflowID, next, lastError); err != nil {
		return newError(KindTransientStorage, "checkpoint %s: %v", next, err)
	}
	inst.State = next
	inst.LastError = lastError
	return nil
}

// beginCompensation checkpoints the compensating state with the failure
// cause serialized, so a resumed saga reports the original failure.
func (c *Coordinator) beginCompensation(ctx context.Context, inst *saga.Instance, cause *Error) error {
	payload, err := json.Marshal(cause)
	if err != nil {
		return newError(KindInternal, "encode failure cause: %v", err)
	}
	if err := c.sagas.SaveResult(ctx, inst.WorkflowID, saga.StateCompensating, string(payload)); err != nil {
		return newError(KindTransientStorage, "checkpoint compensating: %v", err)
	}
	inst.State = saga.StateCompensating
	inst.ResultJSON = string(payload)
	return nil
}

func (c *Coordinator) abort(ctx context.Context, inst saga.Instance, cause *Error) (Result, error) {
	// The terminal must be recorded even when the caller already gave up.
	ctx = context.WithoutCancel(ctx)
	if err := c.sagas.Checkpoint(ctx, inst.WorkflowID, saga.StateReserveFailed, cause.Message); err != nil {
		return Result{}, newError(KindTransientStorage, "checkpoint reserve_failed: %v", err)
	}
	payload, err := json.Marshal(cause)
	if err != nil {
		return Result{}, newError(KindInternal, "encode failure cause: %v", err)
	}
	if err := c.sagas.SaveResult(ctx, inst.WorkflowID, saga.StateAborted, string(payload)); err != nil {
		return Result{}, newError(KindTransientStorage, "checkpoint aborted: %v", err)
	}
	if c.metrics != nil {
		c.metrics.SpinFinished(string(saga.StateAborted))
	}
	return Result{}, cause
}

func (c *Coordinator) complete(ctx context.Context, inst saga.Instance, outcome engine.Outcome, balance int64, haveBalance bool, logger *zap.Logger) (Result, error) {
	if !haveBalance {
		b, err := c.ledger.Balance(ctx, inst.PlayerID)
		if err != nil {
			return Result{}, newError(KindTransientStorage, "read balance: %v", err)
		}
		balance = b
	}

	res := Result{
		Grid:      outcome.Grid,
		WinAmount: outcome.WinAmount,
		IsWin:     outcome.IsWin,
		WinLines:  outcome.WinLines,
		Balance:   balance,
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return Result{}, newError(KindInternal, "encode result: %v", err)
	}
	if err := c.sagas.SaveResult(ctx, inst.WorkflowID, saga.StateCompleted, string(payload)); err != nil {
		return Result{}, newError(KindTransientStorage, "checkpoint completed: %v", err)
	}
	logger.Info("saga completed", zap.Int64("winAmount", res.WinAmount), zap.Int64("balance", res.Balance))
	if c.metrics != nil {
		c.metrics.SpinFinished(string(saga.StateCompleted))
	}
	return res, nil
}

func (c *Coordinator) reserve(ctx context.Context, inst saga.Instance) (int64, error) {
	policy := c.policies.Reserve
	policy.ShouldRetry = retryableLedger

	var balance int64
	err := policy.Do(ctx, func() error {
		b, err := c.ledger.Reserve(ctx, inst.PlayerID, inst.BetAmount, inst.WorkflowID)
		if errors.Is(err, wallet.ErrDuplicateOperation) {
			// Already applied by an earlier delivery of this step.
			balance = b
			return nil
		}
		if err != nil {
			return err
		}
		balance = b
		return nil
	})
	return balance, err
}

func (c *Coordinator) settle(ctx context.Context, inst saga.Instance, winAmount int64) (int64, error) {
	policy := c.policies.Settle
	policy.ShouldRetry = retryableLedger

	var balance int64
	err := policy.Do(ctx, func() error {
		b, err := c.ledger.Settle(ctx, inst.PlayerID, winAmount, inst.WorkflowID)
		if errors.Is(err, wallet.ErrDuplicateOperation) {
			balance = b
			return nil
		}
		if err != nil {
			return err
		}
		balance = b
		return nil
	})
	return balance, err
}

func (c *Coordinator) refund(ctx context.Context, inst saga.Instance) error {
	policy := c.policies.Refund
	policy.ShouldRetry = retryableLedger

	return policy.Do(ctx, func() error {
		err := c.ledger.Refund(ctx, inst.PlayerID, inst.BetAmount, inst.WorkflowID)
		if errors.Is(err, wallet.ErrDuplicateOperation) {
			return nil
		}
		return err
	})
}

// retryableLedger treats everything except the ledger's terminal sentinels
// and context ends as transient.
func retryableLedger(err error) bool {
	return !errors.Is(err, wallet.ErrInsufficientFunds) &&
		!errors.Is(err, wallet.ErrAmountNotPositive) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}
