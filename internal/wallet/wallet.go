package wallet

import (
	"context"
	"errors"
	"time"
)

// EntryKind classifies a ledger movement.
type EntryKind string

const (
	KindDeposit EntryKind = "deposit"
	KindBet     EntryKind = "bet"
	KindWin     EntryKind = "win"
	KindRefund  EntryKind = "refund"
)

// Entry is one immutable, append-only ledger row. Amounts are integer minor
// units; negative amounts are debits. No two entries ever share the same
// (ReferenceID, Kind) pair.
type Entry struct {
	ID          int64
	PlayerID    string
	AmountMinor int64
	Kind        EntryKind
	ReferenceID string
	CreatedAt   time.Time
}

// ErrInsufficientFunds signals the player's balance cannot cover a reserve.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrDuplicateOperation signals the (referenceID, kind) pair already exists.
// Callers treat it as "already applied", not as a failure; the balance
// returned alongside it is the current balance.
var ErrDuplicateOperation = errors.New("operation already applied")

// ErrAmountNotPositive signals a non-positive amount on a write operation.
var ErrAmountNotPositive = errors.New("amount must be positive")

// Ledger is the idempotent wallet store. Every write is guarded by the
// (referenceID, kind) uniqueness rule; a repeated write returns the current
// balance together with ErrDuplicateOperation. Any other error is transient
// and safe to retry.
type Ledger interface {
	// Reserve debits a bet. The balance check and the debit insert are one
	// atomic unit per player.
	Reserve(ctx context.Context, playerID string, amount int64, referenceID string) (int64, error)
	// Settle credits a win.
	Settle(ctx context.Context, playerID string, amount int64, referenceID string) (int64, error)
	// Refund reverses the bet recorded under referenceID. If no bet entry
	// exists for referenceID the refund is a no-op and returns nil.
	Refund(ctx context.Context, playerID string, amount int64, referenceID string) error
	// Deposit credits external funds.
	Deposit(ctx context.Context, playerID string, amount int64, referenceID string) (int64, error)
	// Balance is the signed sum over all of the player's entries.
	Balance(ctx context.Context, playerID string) (int64, error)
}
