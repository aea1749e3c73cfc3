package spin

import "spindle/internal/engine"

// Request is a validated spin submission. BetAmount is integer minor units.
type Request struct {
	PlayerID  string `json:"playerId"`
	GameID    string `json:"gameId"`
	BetAmount int64  `json:"betAmount"`
}

// Result is the terminal success payload for one spin.
type Result struct {
	Grid      [][]int          `json:"grid"`
	WinAmount int64            `json:"winAmount"`
	IsWin     bool             `json:"isWin"`
	WinLines  []engine.WinLine `json:"winLines"`
	Balance   int64            `json:"balance"`
}
