package engine

import "context"

// Pool bounds concurrent outcome computation. Spins are CPU-bound; the pool
// keeps a burst of requests from starving the rest of the process. Execution
// is synchronous from the caller's view.
type Pool struct {
	slots chan struct{}
}

// NewPool constructs a pool with the given number of slots.
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{slots: make(chan struct{}, size)}
}

// Do runs fn once a slot is free, or returns the context error.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.slots }()
	return fn()
}

// PooledMachine runs a Machine's spins through a Pool.
type PooledMachine struct {
	machine *Machine
	pool    *Pool
}

// NewPooledMachine constructs a pool-bounded outcome generator.
func NewPooledMachine(machine *Machine, pool *Pool) *PooledMachine {
	return &PooledMachine{machine: machine, pool: pool}
}

// Generate computes a spin outcome inside the pool.
func (g *PooledMachine) Generate(ctx context.Context, betAmount int64) (Outcome, error) {
	var out Outcome
	err := g.pool.Do(ctx, func() error {
		var spinErr error
		out, spinErr = g.machine.Spin(betAmount)
		return spinErr
	})
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}
