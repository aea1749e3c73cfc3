package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"spindle/internal/observability"
	"spindle/internal/spin"
	"spindle/internal/wallet"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SpinService defines the behavior needed by the HTTP adapter.
type SpinService interface {
	Spin(ctx context.Context, workflowID string, req spin.Request) (spin.Result, error)
}

// Server adapts the spin coordinator and ledger to HTTP.
type Server struct {
	spins   SpinService
	ledger  wallet.Ledger
	limiter *spin.RateLimiter
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewServer constructs a Server. The limiter and metrics are optional.
func NewServer(spins SpinService, ledger wallet.Ledger, limiter *spin.RateLimiter, metrics *observability.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		spins:   spins,
		ledger:  ledger,
		limiter: limiter,
		metrics: metrics,
		logger:  logger,
	}
}

// Routes returns the HTTP mux for the game API.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /spin", s.handleSpin)
	mux.HandleFunc("POST /deposit", s.handleDeposit)
	mux.HandleFunc("GET /balance/{playerId}", s.handleBalance)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

type spinRequest struct {
	PlayerID  string `json:"playerId"`
	GameID    string `json:"gameId"`
	BetAmount int64  `json:"betAmount"`
	// ReferenceID lets a client retry a spin without double-charging.
	// Omitted, each submission is a fresh spin.
	ReferenceID string `json:"referenceId,omitempty"`
}

type depositRequest struct {
	PlayerID    string `json:"playerId"`
	Amount      int64  `json:"amount"`
	ReferenceID string `json:"referenceId,omitempty"`
}

type balanceResponse struct {
	PlayerID string `json:"playerId"`
	Balance  int64  `json:"balance"`
}

type errorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (s *Server) handleSpin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{
				Kind:    string(spin.KindInternal),
				Message: "request dropped while waiting for rate limit",
			})
			return
		}
	}

	var req spinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Kind:    string(spin.KindInvalidRequest),
			Message: "invalid json body",
		})
		return
	}

	workflowID := req.ReferenceID
	if workflowID == "" {
		workflowID = "spin-" + req.PlayerID + "-" + uuid.NewString()
	}

	start := time.Now()
	result, err := s.spins.Spin(ctx, workflowID, spin.Request{
		PlayerID:  req.PlayerID,
		GameID:    req.GameID,
		BetAmount: req.BetAmount,
	})
	s.metrics.ObserveSpin(time.Since(start))
	if err != nil {
		s.writeSpinError(w, workflowID, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Kind:    string(spin.KindInvalidRequest),
			Message: "invalid json body",
		})
		return
	}
	if req.PlayerID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Kind:    string(spin.KindInvalidRequest),
			Message: "player id required",
		})
		return
	}
	refID := req.ReferenceID
	if refID == "" {
		refID = "deposit-" + req.PlayerID + "-" + uuid.NewString()
	}

	balance, err := s.ledger.Deposit(r.Context(), req.PlayerID, req.Amount, refID)
	switch {
	case errors.Is(err, wallet.ErrDuplicateOperation):
		// Already applied; report the current balance.
	case errors.Is(err, wallet.ErrAmountNotPositive):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Kind:    string(spin.KindInvalidRequest),
			Message: err.Error(),
		})
		return
	case err != nil:
		s.logger.Error("deposit failed", zap.String("playerId", req.PlayerID), zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Kind:    string(spin.KindTransientStorage),
			Message: "deposit could not be recorded",
		})
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{PlayerID: req.PlayerID, Balance: balance})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	playerID := r.PathValue("playerId")
	if playerID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Kind:    string(spin.KindInvalidRequest),
			Message: "player id required",
		})
		return
	}
	balance, err := s.ledger.Balance(r.Context(), playerID)
	if err != nil {
		s.logger.Error("balance read failed", zap.String("playerId", playerID), zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Kind:    string(spin.KindTransientStorage),
			Message: "balance unavailable",
		})
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{PlayerID: playerID, Balance: balance})
}

func (s *Server) writeSpinError(w http.ResponseWriter, workflowID string, err error) {
	se := spin.AsError(err)
	status := statusForKind(se.Kind)
	if status >= http.StatusInternalServerError {
		s.logger.Error("spin failed", zap.String("workflowId", workflowID), zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Kind: string(se.Kind), Message: se.Message})
}

func statusForKind(kind spin.ErrorKind) int {
	switch kind {
	case spin.KindInvalidRequest:
		return http.StatusBadRequest
	case spin.KindInsufficientFunds:
		return http.StatusPaymentRequired
	case spin.KindWorkflowConflict:
		return http.StatusConflict
	case spin.KindTransientStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
