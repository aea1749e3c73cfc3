package walletdb

import (
	"context"
	"database/sql"
	"fmt"

	"spindle/internal/wallet"
)

// LedgerStore persists ledger entries in Postgres. Entries are append-only;
// UNIQUE (reference_id, kind) is the idempotency guard for every write.
type LedgerStore struct {
	db *sql.DB
}

// NewLedgerStore constructs a LedgerStore backed by Postgres.
func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// NewLedgerStoreWithSchema initializes the schema then returns the store.
func NewLedgerStoreWithSchema(ctx context.Context, db *sql.DB) (*LedgerStore, error) {
	store := NewLedgerStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates the ledger table if it does not exist.
func (s *LedgerStore) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id BIGSERIAL PRIMARY KEY,
			player_id TEXT NOT NULL,
			amount_minor BIGINT NOT NULL,
			kind TEXT NOT NULL,
			reference_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (reference_id, kind)
		)`,
		`CREATE INDEX IF NOT EXISTS ledger_entries_player_idx ON ledger_entries (player_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}

// Reserve debits a bet. The duplicate check, the balance check, and the
// insert run in one transaction holding a per-player advisory lock, so
// concurrent reserves for the same player serialize and can never overdraw.
func (s *LedgerStore) Reserve(ctx context.Context, playerID string, amount int64, referenceID string) (int64, error) {
	if amount <= 0 {
		return 0, wallet.ErrAmountNotPositive
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, playerID); err != nil {
		return 0, err
	}

	var exists bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM ledger_entries WHERE reference_id = $1 AND kind = $2
		)`,
		referenceID, wallet.KindBet,
	).Scan(&exists)
	if err != nil {
		return 0, err
	}

	var balance int64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_minor), 0) FROM ledger_entries WHERE player_id = $1`,
		playerID,
	).Scan(&balance)
	if err != nil {
		return 0, err
	}

	if exists {
		if err := tx.Commit(); err != nil {
			return 0, err
		}
		return balance, wallet.ErrDuplicateOperation
	}

	if balance < amount {
		return balance, wallet.ErrInsufficientFunds
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (player_id, amount_minor, kind, reference_id)
		VALUES ($1, $2, $3, $4)`,
		playerID, -amount, wallet.KindBet, referenceID,
	); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return balance - amount, nil
}

// Settle credits a win, idempotent on (referenceID, "win").
func (s *LedgerStore) Settle(ctx context.Context, playerID string, amount int64, referenceID string) (int64, error) {
	return s.credit(ctx, playerID, amount, wallet.KindWin, referenceID)
}

// Refund reverses a bet. A refund with no recorded bet is a no-op; a repeated
// refund returns ErrDuplicateOperation.
func (s *LedgerStore) Refund(ctx context.Context, playerID string, amount int64, referenceID string) error {
	if amount <= 0 {
		return wallet.ErrAmountNotPositive
	}

	var betExists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM ledger_entries WHERE reference_id = $1 AND kind = $2
		)`,
		referenceID, wallet.KindBet,
	).Scan(&betExists)
	if err != nil {
		return err
	}
	if !betExists {
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (player_id, amount_minor, kind, reference_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (reference_id, kind) DO NOTHING`,
		playerID, amount, wallet.KindRefund, referenceID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return wallet.ErrDuplicateOperation
	}
	return nil
}

// Deposit credits external funds, idempotent on (referenceID, "deposit").
func (s *LedgerStore) Deposit(ctx context.Context, playerID string, amount int64, referenceID string) (int64, error) {
	return s.credit(ctx, playerID, amount, wallet.KindDeposit, referenceID)
}

// Balance is the signed sum of the player's entries. It reflects every
// committed insert immediately.
func (s *LedgerStore) Balance(ctx context.Context, playerID string) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_minor), 0) FROM ledger_entries WHERE player_id = $1`,
		playerID,
	).Scan(&balance)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// EntriesByReference returns all entries recorded under referenceID,
// oldest first.
func (s *LedgerStore) EntriesByReference(ctx context.Context, referenceID string) ([]wallet.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, player_id, amount_minor, kind, reference_id, created_at
		FROM ledger_entries
		WHERE reference_id = $1
		ORDER BY id`,
		referenceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []wallet.Entry
	for rows.Next() {
		var e wallet.Entry
		var kind string
		if err := rows.Scan(&e.ID, &e.PlayerID, &e.AmountMinor, &kind, &e.ReferenceID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = wallet.EntryKind(kind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *LedgerStore) credit(ctx context.Context, playerID string, amount int64, kind wallet.EntryKind, referenceID string) (int64, error) {
	if amount <= 0 {
		return 0, wallet.ErrAmountNotPositive
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (player_id, amount_minor, kind, reference_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (reference_id, kind) DO NOTHING`,
		playerID, amount, kind, referenceID,
	)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	balance, err := s.Balance(ctx, playerID)
	if err != nil {
		return 0, fmt.Errorf("balance after %s: %w", kind, err)
	}
	if affected == 0 {
		return balance, wallet.ErrDuplicateOperation
	}
	return balance, nil
}

var _ wallet.Ledger = (*LedgerStore)(nil)
