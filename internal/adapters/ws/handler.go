package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"spindle/internal/spin"
	"spindle/internal/wallet"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SpinService defines the behavior needed by the websocket adapter.
type SpinService interface {
	Spin(ctx context.Context, workflowID string, req spin.Request) (spin.Result, error)
}

// Handler upgrades game connections and serves the frame protocol: the
// client sends SPIN and BALANCE actions, the server answers on the same
// connection and announces large wins through the hub.
type Handler struct {
	hub      *Hub
	spins    SpinService
	ledger   wallet.Ledger
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHandler constructs a Handler.
func NewHandler(hub *Hub, spins SpinService, ledger wallet.Ledger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		hub:    hub,
		spins:  spins,
		ledger: ledger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

type clientFrame struct {
	Action      string `json:"action"`
	PlayerID    string `json:"playerId"`
	GameID      string `json:"gameId"`
	BetAmount   int64  `json:"betAmount"`
	ReferenceID string `json:"referenceId,omitempty"`
}

type serverFrame struct {
	Type    string       `json:"type"`
	Result  *spin.Result `json:"result,omitempty"`
	Balance *int64       `json:"balance,omitempty"`
	Kind    string       `json:"kind,omitempty"`
	Message string       `json:"message,omitempty"`
}

type winAnnouncement struct {
	Type      string `json:"type"`
	PlayerID  string `json:"playerId"`
	WinAmount int64  `json:"winAmount"`
}

// bigWinMultiplier is the win-to-bet ratio from which a win is announced to
// every connection.
const bigWinMultiplier = 20

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	h.hub.Register <- conn
	defer func() { h.hub.Unregister <- conn }()

	for {
		var frame clientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
		h.handleFrame(r.Context(), conn, frame)
	}
}

func (h *Handler) handleFrame(ctx context.Context, conn *websocket.Conn, frame clientFrame) {
	switch frame.Action {
	case "SPIN":
		workflowID := frame.ReferenceID
		if workflowID == "" {
			workflowID = "spin-" + frame.PlayerID + "-" + uuid.NewString()
		}
		result, err := h.spins.Spin(ctx, workflowID, spin.Request{
			PlayerID:  frame.PlayerID,
			GameID:    frame.GameID,
			BetAmount: frame.BetAmount,
		})
		if err != nil {
			se := spin.AsError(err)
			h.write(conn, serverFrame{Type: "ERROR", Kind: string(se.Kind), Message: se.Message})
			return
		}
		h.write(conn, serverFrame{Type: "SPIN_RESULT", Result: &result})
		if frame.BetAmount > 0 && result.WinAmount >= frame.BetAmount*bigWinMultiplier {
			h.announce(winAnnouncement{Type: "BIG_WIN", PlayerID: frame.PlayerID, WinAmount: result.WinAmount})
		}

	case "BALANCE":
		balance, err := h.ledger.Balance(ctx, frame.PlayerID)
		if err != nil {
			h.write(conn, serverFrame{Type: "ERROR", Kind: string(spin.KindTransientStorage), Message: "balance unavailable"})
			return
		}
		h.write(conn, serverFrame{Type: "BALANCE", Balance: &balance})

	default:
		h.write(conn, serverFrame{Type: "ERROR", Kind: string(spin.KindInvalidRequest), Message: "unknown action " + frame.Action})
	}
}

func (h *Handler) write(conn *websocket.Conn, frame serverFrame) {
	if err := conn.WriteJSON(frame); err != nil {
		h.logger.Debug("websocket write failed", zap.Error(err))
	}
}

func (h *Handler) announce(a winAnnouncement) {
	payload, err := json.Marshal(a)
	if err != nil {
		return
	}
	select {
	case h.hub.Broadcast <- payload:
	default:
	}
}
