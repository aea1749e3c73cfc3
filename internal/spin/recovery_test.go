package spin

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"spindle/internal/spin/saga"
	"spindle/internal/wallet"
)

func createCheckpointed(t *testing.T, sagas saga.Store, inst saga.Instance) {
	t.Helper()
	ctx := context.Background()
	state := inst.State
	if _, created, err := sagas.Create(ctx, inst); err != nil || !created {
		t.Fatalf("create saga: created=%v err=%v", created, err)
	}
	if inst.ResultJSON != "" {
		if err := sagas.SaveResult(ctx, inst.WorkflowID, state, inst.ResultJSON); err != nil {
			t.Fatalf("save checkpoint: %v", err)
		}
	} else if err := sagas.Checkpoint(ctx, inst.WorkflowID, state, inst.LastError); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
}

func TestResumeFromReservingRunsFullSaga(t *testing.T) {
	memory := wallet.NewMemoryLedger()
	seedBalance(t, memory, "p1", 100000)
	f := newFixture(t, memory, memory, &stubGenerator{outcome: winOutcome(250)})
	createCheckpointed(t, f.sagas, saga.Instance{
		WorkflowID: "spin-1", PlayerID: "p1", GameID: "g1", BetAmount: 100,
		State: saga.StateReserving,
	})

	rec := NewRecoverer(f.sagas, f.coord, nil)
	if err := rec.Resume(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}

	mustState(t, f.sagas, "spin-1", saga.StateCompleted)
	balance, _ := memory.Balance(context.Background(), "p1")
	if balance != 100150 {
		t.Fatalf("balance = %d, want 100150", balance)
	}
}

func TestResumeFromSettlingDoesNotRecompute(t *testing.T) {
	memory := wallet.NewMemoryLedger()
	seedBalance(t, memory, "p1", 100000)
	// The bet landed before the crash.
	if _, err := memory.Reserve(context.Background(), "p1", 100, "spin-1"); err != nil {
		t.Fatalf("seed reserve: %v", err)
	}

	outcomeJSON, err := json.Marshal(winOutcome(250))
	if err != nil {
		t.Fatalf("marshal outcome: %v", err)
	}

	// The generator must not run again; the checkpointed outcome is binding.
	gen := &stubGenerator{err: errors.New("must not be called")}
	f := newFixture(t, memory, memory, gen)
	createCheckpointed(t, f.sagas, saga.Instance{
		WorkflowID: "spin-1", PlayerID: "p1", GameID: "g1", BetAmount: 100,
		State: saga.StateSettling, ResultJSON: string(outcomeJSON),
	})

	rec := NewRecoverer(f.sagas, f.coord, nil)
	if err := rec.Resume(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}

	if gen.calls != 0 {
		t.Fatalf("generator ran %d times during settle resume", gen.calls)
	}
	mustState(t, f.sagas, "spin-1", saga.StateCompleted)
	balance, _ := memory.Balance(context.Background(), "p1")
	if balance != 100150 {
		t.Fatalf("balance = %d, want 100150", balance)
	}
}

func TestResumeFromCompensatingRefundsAndKeepsCause(t *testing.T) {
	memory := wallet.NewMemoryLedger()
	seedBalance(t, memory, "p1", 100000)
	if _, err := memory.Reserve(context.Background(), "p1", 100, "spin-1"); err != nil {
		t.Fatalf("seed reserve: %v", err)
	}

	causeJSON, err := json.Marshal(&Error{Kind: KindSettlementFailure, Message: "settle win: storage offline"})
	if err != nil {
		t.Fatalf("marshal cause: %v", err)
	}

	f := newFixture(t, memory, memory, &stubGenerator{err: errors.New("must not be called")})
	createCheckpointed(t, f.sagas, saga.Instance{
		WorkflowID: "spin-1", PlayerID: "p1", GameID: "g1", BetAmount: 100,
		State: saga.StateCompensating, ResultJSON: string(causeJSON),
	})

	rec := NewRecoverer(f.sagas, f.coord, nil)
	if err := rec.Resume(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}

	inst := mustState(t, f.sagas, "spin-1", saga.StateCompensated)
	var stored Error
	if err := json.Unmarshal([]byte(inst.ResultJSON), &stored); err != nil || stored.Kind != KindSettlementFailure {
		t.Fatalf("stored cause = %q, want settlement_failure", inst.ResultJSON)
	}
	balance, _ := memory.Balance(context.Background(), "p1")
	if balance != 100000 {
		t.Fatalf("balance = %d, want restored 100000", balance)
	}
}

func TestResumeSkipsNothingWhenAllTerminal(t *testing.T) {
	memory := wallet.NewMemoryLedger()
	f := newFixture(t, memory, memory, &stubGenerator{outcome: winOutcome(250)})

	rec := NewRecoverer(f.sagas, f.coord, nil)
	if err := rec.Resume(context.Background()); err != nil {
		t.Fatalf("resume on empty store: %v", err)
	}
}

func TestResumeAppliedStepsNotRepeated(t *testing.T) {
	memory := wallet.NewMemoryLedger()
	seedBalance(t, memory, "p1", 100000)
	// The crash happened after the reserve landed but before the reserved
	// checkpoint; the resumed reserve is absorbed as a duplicate.
	if _, err := memory.Reserve(context.Background(), "p1", 100, "spin-1"); err != nil {
		t.Fatalf("seed reserve: %v", err)
	}

	f := newFixture(t, memory, memory, &stubGenerator{outcome: winOutcome(250)})
	createCheckpointed(t, f.sagas, saga.Instance{
		WorkflowID: "spin-1", PlayerID: "p1", GameID: "g1", BetAmount: 100,
		State: saga.StateReserving,
	})

	rec := NewRecoverer(f.sagas, f.coord, nil)
	if err := rec.Resume(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}

	bets := 0
	for _, e := range memory.EntriesByReference("spin-1") {
		if e.Kind == wallet.KindBet {
			bets++
		}
	}
	if bets != 1 {
		t.Fatalf("bet recorded %d times, want 1", bets)
	}
	balance, _ := memory.Balance(context.Background(), "p1")
	if balance != 100150 {
		t.Fatalf("balance = %d, want 100150", balance)
	}
}
