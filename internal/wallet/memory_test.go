package wallet

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func seedPlayer(t *testing.T, l *MemoryLedger, playerID string, amount int64) {
	t.Helper()
	if _, err := l.Deposit(context.Background(), playerID, amount, "seed-"+playerID); err != nil {
		t.Fatalf("seed deposit: %v", err)
	}
}

func TestReserveDebitsBalance(t *testing.T) {
	ledger := NewMemoryLedger()
	seedPlayer(t, ledger, "p1", 1000)

	balance, err := ledger.Reserve(context.Background(), "p1", 300, "spin-1")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if balance != 700 {
		t.Fatalf("balance = %d, want 700", balance)
	}

	entries := ledger.EntriesByReference("spin-1")
	if len(entries) != 1 || entries[0].Kind != KindBet || entries[0].AmountMinor != -300 {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestReserveInsufficientFunds(t *testing.T) {
	ledger := NewMemoryLedger()
	seedPlayer(t, ledger, "p1", 100)

	_, err := ledger.Reserve(context.Background(), "p1", 300, "spin-1")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if entries := ledger.EntriesByReference("spin-1"); len(entries) != 0 {
		t.Fatalf("rejected reserve wrote entries: %+v", entries)
	}
}

func TestReserveDuplicateIsSingleDebit(t *testing.T) {
	ledger := NewMemoryLedger()
	seedPlayer(t, ledger, "p1", 1000)

	if _, err := ledger.Reserve(context.Background(), "p1", 300, "spin-1"); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	balance, err := ledger.Reserve(context.Background(), "p1", 300, "spin-1")
	if !errors.Is(err, ErrDuplicateOperation) {
		t.Fatalf("err = %v, want ErrDuplicateOperation", err)
	}
	if balance != 700 {
		t.Fatalf("balance = %d, want 700", balance)
	}
	if entries := ledger.EntriesByReference("spin-1"); len(entries) != 1 {
		t.Fatalf("duplicate reserve wrote extra entries: %+v", entries)
	}
}

func TestDuplicateReserveWinsOverInsufficientFunds(t *testing.T) {
	ledger := NewMemoryLedger()
	seedPlayer(t, ledger, "p1", 300)

	if _, err := ledger.Reserve(context.Background(), "p1", 300, "spin-1"); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	// Balance is now 0; the repeat must still classify as duplicate.
	_, err := ledger.Reserve(context.Background(), "p1", 300, "spin-1")
	if !errors.Is(err, ErrDuplicateOperation) {
		t.Fatalf("err = %v, want ErrDuplicateOperation", err)
	}
}

func TestConcurrentReservesNeverOverdraw(t *testing.T) {
	ledger := NewMemoryLedger()
	seedPlayer(t, ledger, "p1", 500)

	const workers = 20
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ledger.Reserve(context.Background(), "p1", 100, refForWorker(i))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, ErrInsufficientFunds) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 5 {
		t.Fatalf("%d reserves succeeded, want 5", succeeded)
	}
	balance, _ := ledger.Balance(context.Background(), "p1")
	if balance != 0 {
		t.Fatalf("balance = %d, want 0", balance)
	}
}

func refForWorker(i int) string {
	return "spin-" + string(rune('a'+i))
}

func TestConcurrentDuplicateReserveDebitsOnce(t *testing.T) {
	ledger := NewMemoryLedger()
	seedPlayer(t, ledger, "p1", 1000)

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = ledger.Reserve(context.Background(), "p1", 300, "spin-1")
		}()
	}
	wg.Wait()

	balance, _ := ledger.Balance(context.Background(), "p1")
	if balance != 700 {
		t.Fatalf("balance = %d, want 700", balance)
	}
}

func TestSettleAndDuplicateSettle(t *testing.T) {
	ledger := NewMemoryLedger()
	seedPlayer(t, ledger, "p1", 1000)

	balance, err := ledger.Settle(context.Background(), "p1", 250, "spin-1")
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if balance != 1250 {
		t.Fatalf("balance = %d, want 1250", balance)
	}

	balance, err = ledger.Settle(context.Background(), "p1", 250, "spin-1")
	if !errors.Is(err, ErrDuplicateOperation) {
		t.Fatalf("err = %v, want ErrDuplicateOperation", err)
	}
	if balance != 1250 {
		t.Fatalf("balance after duplicate = %d, want 1250", balance)
	}
}

func TestRefundRestoresBalanceOnce(t *testing.T) {
	ledger := NewMemoryLedger()
	seedPlayer(t, ledger, "p1", 1000)

	if _, err := ledger.Reserve(context.Background(), "p1", 300, "spin-1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := ledger.Refund(context.Background(), "p1", 300, "spin-1"); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if err := ledger.Refund(context.Background(), "p1", 300, "spin-1"); !errors.Is(err, ErrDuplicateOperation) {
		t.Fatalf("err = %v, want ErrDuplicateOperation", err)
	}

	balance, _ := ledger.Balance(context.Background(), "p1")
	if balance != 1000 {
		t.Fatalf("balance = %d, want 1000", balance)
	}
}

func TestRefundWithoutBetIsNoop(t *testing.T) {
	ledger := NewMemoryLedger()
	seedPlayer(t, ledger, "p1", 1000)

	if err := ledger.Refund(context.Background(), "p1", 300, "spin-never-reserved"); err != nil {
		t.Fatalf("refund: %v", err)
	}
	balance, _ := ledger.Balance(context.Background(), "p1")
	if balance != 1000 {
		t.Fatalf("balance = %d, want 1000", balance)
	}
	if entries := ledger.EntriesByReference("spin-never-reserved"); len(entries) != 0 {
		t.Fatalf("no-op refund wrote entries: %+v", entries)
	}
}

func TestNonPositiveAmountsRejected(t *testing.T) {
	ledger := NewMemoryLedger()

	if _, err := ledger.Reserve(context.Background(), "p1", 0, "r"); !errors.Is(err, ErrAmountNotPositive) {
		t.Fatalf("reserve zero: %v", err)
	}
	if _, err := ledger.Settle(context.Background(), "p1", -5, "r"); !errors.Is(err, ErrAmountNotPositive) {
		t.Fatalf("settle negative: %v", err)
	}
	if _, err := ledger.Deposit(context.Background(), "p1", 0, "r"); !errors.Is(err, ErrAmountNotPositive) {
		t.Fatalf("deposit zero: %v", err)
	}
}

func TestBalanceIsEntrySum(t *testing.T) {
	ledger := NewMemoryLedger()
	seedPlayer(t, ledger, "p1", 100000)

	if _, err := ledger.Reserve(context.Background(), "p1", 100, "spin-1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := ledger.Settle(context.Background(), "p1", 250, "spin-1"); err != nil {
		t.Fatalf("settle: %v", err)
	}

	balance, _ := ledger.Balance(context.Background(), "p1")
	if balance != 100150 {
		t.Fatalf("balance = %d, want 100150", balance)
	}

	var sum int64
	for _, e := range ledger.Entries("p1") {
		sum += e.AmountMinor
	}
	if sum != balance {
		t.Fatalf("entry sum %d != balance %d", sum, balance)
	}
}
