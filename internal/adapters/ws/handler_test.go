package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"spindle/internal/engine"
	"spindle/internal/spin"
	"spindle/internal/spin/saga"
	"spindle/internal/wallet"

	"github.com/gorilla/websocket"
)

type fixedGenerator struct {
	outcome engine.Outcome
}

func (g *fixedGenerator) Generate(context.Context, int64) (engine.Outcome, error) {
	return g.outcome, nil
}

func dialTestServer(t *testing.T, seed int64) *websocket.Conn {
	t.Helper()

	ledger := wallet.NewMemoryLedger()
	if seed > 0 {
		if _, err := ledger.Deposit(context.Background(), "p1", seed, "seed-p1"); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	gen := &fixedGenerator{outcome: engine.Outcome{
		Grid:      [][]int{{1, 1, 1}},
		WinAmount: 250,
		IsWin:     true,
		WinLines:  []engine.WinLine{{LineIndex: 0, Symbol: 1, Count: 3, Amount: 250}},
	}}
	noSleep := func(context.Context, time.Duration) error { return nil }
	policy := spin.RetryPolicy{MaxAttempts: 2, Sleep: noSleep}
	coord := spin.NewCoordinator(ledger, saga.NewMemoryStore(), gen, spin.CoordinatorConfig{
		Policies: spin.Policies{Reserve: policy, Settle: policy, Refund: policy},
	})

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil)
	go hub.Run(ctx)

	srv := httptest.NewServer(NewHandler(hub, coord, ledger, nil))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestSpinOverWebsocket(t *testing.T) {
	conn := dialTestServer(t, 100000)

	if err := conn.WriteJSON(clientFrame{Action: "SPIN", PlayerID: "p1", GameID: "g1", BetAmount: 100}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var frame serverFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	if frame.Type != "SPIN_RESULT" {
		t.Fatalf("frame = %+v, want SPIN_RESULT", frame)
	}
	if frame.Result == nil || frame.Result.WinAmount != 250 || frame.Result.Balance != 100150 {
		t.Fatalf("result = %+v", frame.Result)
	}
}

func TestSpinErrorOverWebsocket(t *testing.T) {
	conn := dialTestServer(t, 50)

	if err := conn.WriteJSON(clientFrame{Action: "SPIN", PlayerID: "p1", GameID: "g1", BetAmount: 100}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var frame serverFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	if frame.Type != "ERROR" || frame.Kind != string(spin.KindInsufficientFunds) {
		t.Fatalf("frame = %+v, want insufficient_funds error", frame)
	}
}

func TestBalanceOverWebsocket(t *testing.T) {
	conn := dialTestServer(t, 4200)

	if err := conn.WriteJSON(clientFrame{Action: "BALANCE", PlayerID: "p1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var frame serverFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	if frame.Type != "BALANCE" || frame.Balance == nil || *frame.Balance != 4200 {
		t.Fatalf("frame = %+v, want balance 4200", frame)
	}
}

func TestUnknownActionOverWebsocket(t *testing.T) {
	conn := dialTestServer(t, 0)

	if err := conn.WriteJSON(clientFrame{Action: "JACKPOT"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var frame serverFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	if frame.Type != "ERROR" || frame.Kind != string(spin.KindInvalidRequest) {
		t.Fatalf("frame = %+v, want invalid_request error", frame)
	}
}
