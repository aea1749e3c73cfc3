package spin

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Policies holds the per-step retry policies. Reserve and settle are bounded.
// Refund is effectively unbounded with a capped interval: an un-refunded
// debit is money owed to a player, so exhaustion of one pass escalates and
// the recovery pass keeps retrying.
type Policies struct {
	Reserve RetryPolicy
	Settle  RetryPolicy
	Refund  RetryPolicy
}

// DefaultPolicies mirrors the production retry profile: settle backs off from
// one second toward a ten minute cap.
func DefaultPolicies() Policies {
	return Policies{
		Reserve: RetryPolicy{
			MaxAttempts:     5,
			InitialInterval: 100 * time.Millisecond,
			Multiplier:      2,
			MaxInterval:     5 * time.Second,
		},
		Settle: RetryPolicy{
			MaxAttempts:     8,
			InitialInterval: time.Second,
			Multiplier:      2,
			MaxInterval:     10 * time.Minute,
		},
		Refund: RetryPolicy{
			MaxAttempts:     12,
			InitialInterval: time.Second,
			Multiplier:      2,
			MaxInterval:     time.Minute,
		},
	}
}

// LoadPoliciesFromEnv starts from DefaultPolicies and applies any
// SPIN_{RESERVE,SETTLE,REFUND}_{MAX_ATTEMPTS,INITIAL_INTERVAL,MAX_INTERVAL}
// overrides present in the environment.
func LoadPoliciesFromEnv() (Policies, error) {
	policies := DefaultPolicies()

	steps := []struct {
		prefix string
		policy *RetryPolicy
	}{
		{"SPIN_RESERVE", &policies.Reserve},
		{"SPIN_SETTLE", &policies.Settle},
		{"SPIN_REFUND", &policies.Refund},
	}

	for _, step := range steps {
		if err := applyPolicyOverrides(step.prefix, step.policy); err != nil {
			return Policies{}, err
		}
	}

	return policies, nil
}

func applyPolicyOverrides(prefix string, policy *RetryPolicy) error {
	attempts, err := parseOptionalInt(prefix + "_MAX_ATTEMPTS")
	if err != nil {
		return err
	}
	if attempts != nil {
		policy.MaxAttempts = *attempts
	}

	initial, err := parseOptionalDuration(prefix + "_INITIAL_INTERVAL")
	if err != nil {
		return err
	}
	if initial != nil {
		policy.InitialInterval = *initial
	}

	max, err := parseOptionalDuration(prefix + "_MAX_INTERVAL")
	if err != nil {
		return err
	}
	if max != nil {
		policy.MaxInterval = *max
	}

	return nil
}

func parseOptionalDuration(name string) (*time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return nil, fmt.Errorf("%s must be >= 0", name)
	}
	return &val, nil
}

func parseOptionalInt(name string) (*int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if val < 1 {
		return nil, fmt.Errorf("%s must be >= 1", name)
	}
	return &val, nil
}
