package engine

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// RNG supplies uniform random integers. The production implementation must be
// cryptographically secure; deterministic stand-ins are for tests only.
type RNG interface {
	// Intn returns a uniform integer in [0, n). n must be positive.
	Intn(n int) (int, error)
}

// CryptoRNG draws from crypto/rand.
type CryptoRNG struct{}

func (CryptoRNG) Intn(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("intn: n must be positive, got %d", n)
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("intn: %w", err)
	}
	return int(v.Int64()), nil
}
