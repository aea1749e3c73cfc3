package engine

import "fmt"

// WinLine describes one winning payline.
type WinLine struct {
	LineIndex int   `json:"lineIndex"`
	Symbol    int   `json:"symbol"`
	Count     int   `json:"count"`
	Amount    int64 `json:"amount"`
}

// Outcome is the result of a single spin. All amounts are integer minor units.
type Outcome struct {
	Grid      [][]int   `json:"grid"`
	WinAmount int64     `json:"winAmount"`
	IsWin     bool      `json:"isWin"`
	WinLines  []WinLine `json:"winLines"`
}

// Machine evaluates spins for one profile. Spin is pure given the random
// source: it has no side effects and no ledger knowledge.
type Machine struct {
	rng     RNG
	profile Profile
}

// NewMachine constructs a Machine after validating the profile.
func NewMachine(rng RNG, profile Profile) (*Machine, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return &Machine{rng: rng, profile: profile}, nil
}

// Spin draws one random strip offset per column, fills the visible grid by
// walking each strip circularly, and evaluates every payline.
func (m *Machine) Spin(betAmount int64) (Outcome, error) {
	if betAmount <= 0 {
		return Outcome{}, fmt.Errorf("invalid bet amount: %d", betAmount)
	}

	p := m.profile
	grid := make([][]int, p.Rows)
	for r := range grid {
		grid[r] = make([]int, p.Cols)
	}

	for c := 0; c < p.Cols; c++ {
		strip := p.ReelStrips[c]
		offset, err := m.rng.Intn(len(strip))
		if err != nil {
			return Outcome{}, fmt.Errorf("draw reel %d: %w", c, err)
		}
		for r := 0; r < p.Rows; r++ {
			grid[r][c] = strip[(offset+r)%len(strip)]
		}
	}

	out := Outcome{Grid: grid, WinLines: []WinLine{}}
	lineBet := betAmount / int64(len(p.Paylines))

	for lineIdx, coords := range p.Paylines {
		symbol, count := m.scanLine(grid, coords)
		mult, ok := p.PayTable[symbol][count]
		if !ok {
			continue
		}
		amount := mult * lineBet
		if amount <= 0 {
			continue
		}
		out.IsWin = true
		out.WinAmount += amount
		out.WinLines = append(out.WinLines, WinLine{
			LineIndex: lineIdx,
			Symbol:    symbol,
			Count:     count,
			Amount:    amount,
		})
	}

	return out, nil
}

// scanLine finds the line's target symbol and the contiguous match count from
// the left. The target is the first non-wild symbol; a line of nothing but
// wilds pays as the wild symbol. Wilds substitute for the target.
func (m *Machine) scanLine(grid [][]int, coords []int) (int, int) {
	wild := m.profile.WildSymbol

	target := wild
	for c, row := range coords {
		if sym := grid[row][c]; sym != wild {
			target = sym
			break
		}
	}

	count := 0
	for c, row := range coords {
		sym := grid[row][c]
		if sym != wild && sym != target {
			break
		}
		count++
	}

	return target, count
}
