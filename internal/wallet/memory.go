package wallet

import (
	"context"
	"sync"
	"time"
)

type refKey struct {
	referenceID string
	kind        EntryKind
}

// MemoryLedger keeps the ledger in memory. It is used by tests and as the
// builder fallback when no database is configured. A single mutex serializes
// the balance check and the insert, which is what makes concurrent reserves
// for the same player safe.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string][]Entry
	byRef   map[refKey]struct{}
	nextID  int64
}

// NewMemoryLedger constructs an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		entries: make(map[string][]Entry),
		byRef:   make(map[refKey]struct{}),
	}
}

func (l *MemoryLedger) Reserve(ctx context.Context, playerID string, amount int64, referenceID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, ErrAmountNotPositive
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.byRef[refKey{referenceID, KindBet}]; ok {
		return l.balanceLocked(playerID), ErrDuplicateOperation
	}
	balance := l.balanceLocked(playerID)
	if balance < amount {
		return balance, ErrInsufficientFunds
	}
	l.appendLocked(playerID, -amount, KindBet, referenceID)
	return balance - amount, nil
}

func (l *MemoryLedger) Settle(ctx context.Context, playerID string, amount int64, referenceID string) (int64, error) {
	return l.credit(ctx, playerID, amount, KindWin, referenceID)
}

func (l *MemoryLedger) Refund(ctx context.Context, playerID string, amount int64, referenceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount <= 0 {
		return ErrAmountNotPositive
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Nothing to undo unless the bet was actually recorded.
	if _, ok := l.byRef[refKey{referenceID, KindBet}]; !ok {
		return nil
	}
	if _, ok := l.byRef[refKey{referenceID, KindRefund}]; ok {
		return ErrDuplicateOperation
	}
	l.appendLocked(playerID, amount, KindRefund, referenceID)
	return nil
}

func (l *MemoryLedger) Deposit(ctx context.Context, playerID string, amount int64, referenceID string) (int64, error) {
	return l.credit(ctx, playerID, amount, KindDeposit, referenceID)
}

func (l *MemoryLedger) Balance(ctx context.Context, playerID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceLocked(playerID), nil
}

// Entries returns a copy of the player's entries in insertion order
// (for testing/inspection).
func (l *MemoryLedger) Entries(playerID string) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries[playerID]))
	copy(out, l.entries[playerID])
	return out
}

// EntriesByReference returns all entries recorded under referenceID
// (for testing/inspection).
func (l *MemoryLedger) EntriesByReference(referenceID string) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Entry
	for _, entries := range l.entries {
		for _, e := range entries {
			if e.ReferenceID == referenceID {
				out = append(out, e)
			}
		}
	}
	return out
}

func (l *MemoryLedger) credit(ctx context.Context, playerID string, amount int64, kind EntryKind, referenceID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, ErrAmountNotPositive
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.byRef[refKey{referenceID, kind}]; ok {
		return l.balanceLocked(playerID), ErrDuplicateOperation
	}
	l.appendLocked(playerID, amount, kind, referenceID)
	return l.balanceLocked(playerID), nil
}

func (l *MemoryLedger) balanceLocked(playerID string) int64 {
	var sum int64
	for _, e := range l.entries[playerID] {
		sum += e.AmountMinor
	}
	return sum
}

func (l *MemoryLedger) appendLocked(playerID string, amount int64, kind EntryKind, referenceID string) {
	l.nextID++
	l.entries[playerID] = append(l.entries[playerID], Entry{
		ID:          l.nextID,
		PlayerID:    playerID,
		AmountMinor: amount,
		Kind:        kind,
		ReferenceID: referenceID,
		CreatedAt:   time.Now().UTC(),
	})
	l.byRef[refKey{referenceID, kind}] = struct{}{}
}
