package spin

import (
	"context"
	"database/sql"
	"time"

	spindb "spindle/internal/db/spin"
	walletdb "spindle/internal/db/wallet"
	"spindle/internal/engine"
	"spindle/internal/spin/saga"
	"spindle/internal/wallet"

	"go.uber.org/zap"
)

// BuildConfig carries everything Build needs to wire a Runtime.
type BuildConfig struct {
	// PostgresDSN selects the durable ledger and saga stores. Empty means
	// in-memory stores, which only suit local runs and tests.
	PostgresDSN string

	// BalanceCache, when set, wraps the ledger with a redis read cache.
	BalanceCache    wallet.RedisBalanceClient
	BalanceCacheTTL time.Duration

	// EngineProfile defaults to the classic 5x4 machine.
	EngineProfile      *engine.Profile
	MaxConcurrentSpins int

	Policies  Policies
	Escalator Escalator
	Metrics   Metrics
	Logger    *zap.Logger
}

// Runtime is the wired spin service.
type Runtime struct {
	Coordinator *Coordinator
	Ledger      wallet.Ledger
	Sagas       saga.Store
	Recoverer   *Recoverer
}

// Build wires a Runtime from config. If the DSN is empty or Postgres
// initialization fails, it falls back to in-memory stores. The returned
// cleanup closes any external resources.
func Build(ctx context.Context, cfg BuildConfig) (*Runtime, func()) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cleanup := func() {}
	var ledger wallet.Ledger = wallet.NewMemoryLedger()
	var sagas saga.Store = saga.NewMemoryStore()

	if cfg.PostgresDSN != "" {
		sqlDB, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			logger.Warn("postgres open failed, falling back to in-memory stores", zap.Error(err))
		} else {
			setupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			ledgerStore, err := walletdb.NewLedgerStoreWithSchema(setupCtx, sqlDB)
			if err == nil {
				var sagaStore *spindb.SagaStore
				sagaStore, err = spindb.NewSagaStoreWithSchema(setupCtx, sqlDB)
				if err == nil {
					logger.Info("postgres ledger and saga stores enabled")
					ledger = ledgerStore
					sagas = sagaStore
					cleanup = func() {
						if err := sqlDB.Close(); err != nil {
							logger.Warn("close postgres", zap.Error(err))
						}
					}
				}
			}
			if err != nil {
				logger.Warn("postgres init failed, falling back to in-memory stores", zap.Error(err))
				_ = sqlDB.Close()
			}
		}
	}

	if cfg.BalanceCache != nil {
		ttl := cfg.BalanceCacheTTL
		if ttl <= 0 {
			ttl = 30 * time.Second
		}
		ledger = wallet.NewCachedLedger(ledger, cfg.BalanceCache, ttl, logger)
	}

	outcomes := buildGenerator(cfg, logger)

	escalator := cfg.Escalator
	if escalator == nil {
		escalator = EscalateFunc(func(_ context.Context, workflowID string, err error) {
			logger.Error("refund requires manual intervention",
				zap.String("workflowId", workflowID),
				zap.Error(err),
			)
		})
	}

	coord := NewCoordinator(ledger, sagas, outcomes, CoordinatorConfig{
		Policies:  cfg.Policies,
		Escalator: escalator,
		Metrics:   cfg.Metrics,
		Logger:    logger,
	})

	return &Runtime{
		Coordinator: coord,
		Ledger:      ledger,
		Sagas:       sagas,
		Recoverer:   NewRecoverer(sagas, coord, logger),
	}, cleanup
}

func buildGenerator(cfg BuildConfig, logger *zap.Logger) OutcomeGenerator {
	profile := cfg.EngineProfile
	if profile == nil {
		p := engine.Classic96()
		profile = &p
	}
	machine, err := engine.NewMachine(engine.CryptoRNG{}, *profile)
	if err != nil {
		// Profiles are validated at startup; a broken built-in one is a bug.
		logger.Panic("invalid engine profile", zap.String("profile", profile.Name), zap.Error(err))
	}

	slots := cfg.MaxConcurrentSpins
	if slots <= 0 {
		slots = 64
	}
	pooled := engine.NewPooledMachine(machine, engine.NewPool(slots))

	return &guardedGenerator{
		inner: pooled,
		breaker: NewCircuitBreaker(CircuitBreakerConfig{
			MaxFailures:  5,
			ResetTimeout: 2 * time.Second,
		}),
	}
}

// guardedGenerator runs outcome generation behind a circuit breaker so a
// wedged engine fails fast instead of piling up reserved bets.
type guardedGenerator struct {
	inner   OutcomeGenerator
	breaker *CircuitBreaker
}

func (g *guardedGenerator) Generate(ctx context.Context, betAmount int64) (engine.Outcome, error) {
	var out engine.Outcome
	err := g.breaker.Execute(func() error {
		o, err := g.inner.Generate(ctx, betAmount)
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	return out, err
}
