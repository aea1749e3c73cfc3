package engine

import "fmt"

// Profile is the math model for one game: per-column reel strips, payline
// coordinates (one row index per column), the wild symbol, and a pay table
// mapping symbol -> contiguous match count -> payout multiplier.
type Profile struct {
	Name       string
	Rows       int
	Cols       int
	ReelStrips [][]int
	Paylines   [][]int
	WildSymbol int
	PayTable   map[int]map[int]int64
}

// Validate checks the profile is internally consistent.
func (p Profile) Validate() error {
	if p.Rows <= 0 || p.Cols <= 0 {
		return fmt.Errorf("profile %q: rows and cols must be positive", p.Name)
	}
	if len(p.ReelStrips) != p.Cols {
		return fmt.Errorf("profile %q: %d reel strips for %d columns", p.Name, len(p.ReelStrips), p.Cols)
	}
	for i, strip := range p.ReelStrips {
		if len(strip) == 0 {
			return fmt.Errorf("profile %q: reel strip %d is empty", p.Name, i)
		}
	}
	if len(p.Paylines) == 0 {
		return fmt.Errorf("profile %q: no paylines", p.Name)
	}
	for i, line := range p.Paylines {
		if len(line) != p.Cols {
			return fmt.Errorf("profile %q: payline %d has %d coordinates for %d columns", p.Name, i, len(line), p.Cols)
		}
		for _, row := range line {
			if row < 0 || row >= p.Rows {
				return fmt.Errorf("profile %q: payline %d row %d out of range", p.Name, i, row)
			}
		}
	}
	return nil
}

// Classic96 is the default 5x4, 10-line profile at roughly 96% RTP.
// Symbol 7 is wild.
func Classic96() Profile {
	return Profile{
		Name:       "classic-96",
		Rows:       4,
		Cols:       5,
		WildSymbol: 7,
		ReelStrips: [][]int{
			{1, 2, 3, 1, 4, 2, 5, 1, 3, 6, 2, 4, 1, 3, 5, 2, 6, 1, 4, 3, 7, 2, 5, 1, 3, 4, 2, 6, 1, 5},
			{2, 1, 4, 3, 1, 5, 2, 6, 3, 1, 4, 2, 7, 3, 5, 1, 2, 6, 4, 1, 3, 2, 5, 1, 6, 3, 4, 2, 1, 5},
			{3, 1, 2, 5, 4, 1, 6, 2, 3, 1, 5, 4, 2, 7, 1, 3, 6, 2, 4, 5, 1, 3, 2, 6, 1, 4, 3, 5, 2, 1},
			{1, 4, 2, 6, 3, 1, 5, 2, 4, 1, 3, 6, 2, 5, 1, 7, 4, 3, 2, 1, 6, 5, 3, 2, 4, 1, 5, 6, 2, 3},
			{5, 2, 1, 3, 6, 4, 1, 2, 5, 3, 1, 6, 2, 4, 7, 1, 3, 5, 2, 6, 1, 4, 2, 3, 5, 1, 6, 4, 3, 2},
		},
		Paylines: [][]int{
			{0, 0, 0, 0, 0},
			{1, 1, 1, 1, 1},
			{2, 2, 2, 2, 2},
			{3, 3, 3, 3, 3},
			{0, 1, 2, 1, 0},
			{3, 2, 1, 2, 3},
			{0, 0, 1, 0, 0},
			{3, 3, 2, 3, 3},
			{1, 2, 3, 2, 1},
			{2, 1, 0, 1, 2},
		},
		PayTable: map[int]map[int]int64{
			1: {3: 5, 4: 10, 5: 25},
			2: {3: 5, 4: 12, 5: 30},
			3: {3: 8, 4: 20, 5: 50},
			4: {3: 10, 4: 25, 5: 60},
			5: {3: 15, 4: 40, 5: 100},
			6: {3: 20, 4: 60, 5: 200},
			7: {3: 30, 4: 100, 5: 500},
		},
	}
}
