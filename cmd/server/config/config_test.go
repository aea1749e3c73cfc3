package config

import (
	"testing"
	"time"
)

func TestLoadRedisDisabledWithoutURL(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	cfg, err := LoadRedis()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Enabled() {
		t.Fatal("cache enabled without REDIS_URL")
	}
}

func TestLoadRedisDefaults(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	cfg, err := LoadRedis()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Enabled() {
		t.Fatal("cache not enabled")
	}
	if cfg.HealthcheckTimeout != 3*time.Second {
		t.Fatalf("healthcheck timeout = %v, want 3s", cfg.HealthcheckTimeout)
	}
	if cfg.BalanceTTL != 30*time.Second {
		t.Fatalf("balance ttl = %v, want 30s", cfg.BalanceTTL)
	}
	if cfg.TLSConfig != nil {
		t.Fatal("tls config set without TLS env")
	}
}

func TestLoadRedisOverrides(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("REDIS_DIAL_TIMEOUT", "2s")
	t.Setenv("REDIS_POOL_SIZE", "16")
	t.Setenv("REDIS_BALANCE_TTL", "5s")
	t.Setenv("REDIS_OTEL", "true")

	cfg, err := LoadRedis()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DialTimeout == nil || *cfg.DialTimeout != 2*time.Second {
		t.Fatalf("dial timeout = %v", cfg.DialTimeout)
	}
	if cfg.PoolSize == nil || *cfg.PoolSize != 16 {
		t.Fatalf("pool size = %v", cfg.PoolSize)
	}
	if cfg.BalanceTTL != 5*time.Second {
		t.Fatalf("balance ttl = %v, want 5s", cfg.BalanceTTL)
	}
	if !cfg.EnableOTel {
		t.Fatal("otel not enabled")
	}
}

func TestLoadRedisRejectsBadDuration(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("REDIS_DIAL_TIMEOUT", "whenever")
	if _, err := LoadRedis(); err == nil {
		t.Fatal("expected error for unparsable duration")
	}
}

func TestLoadRedisTLSRequiresKeyPair(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("REDIS_TLS_CERT_FILE", "/tmp/cert.pem")
	t.Setenv("REDIS_TLS_KEY_FILE", "")
	if _, err := LoadRedis(); err == nil {
		t.Fatal("expected error for cert without key")
	}
}

func TestLoadHTTPDefaults(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("HTTP_RATE_LIMIT_INTERVAL", "")
	t.Setenv("HTTP_RATE_LIMIT_BURST", "")

	cfg, err := LoadHTTP()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("addr = %q, want :8080", cfg.Addr)
	}
	if cfg.RateLimitInterval != 0 || cfg.RateLimitBurst != 0 {
		t.Fatalf("rate limit = %v/%d, want disabled", cfg.RateLimitInterval, cfg.RateLimitBurst)
	}
}

func TestLoadHTTPRateLimit(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("HTTP_RATE_LIMIT_INTERVAL", "100ms")
	t.Setenv("HTTP_RATE_LIMIT_BURST", "20")

	cfg, err := LoadHTTP()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9999" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
	if cfg.RateLimitInterval != 100*time.Millisecond || cfg.RateLimitBurst != 20 {
		t.Fatalf("rate limit = %v/%d", cfg.RateLimitInterval, cfg.RateLimitBurst)
	}
}

func TestLoadGRPCAndObservabilityDefaults(t *testing.T) {
	t.Setenv("GRPC_ADDR", "")
	t.Setenv("OBS_ADDR", "")

	if addr := LoadGRPC().Addr; addr != ":50051" {
		t.Fatalf("grpc addr = %q, want :50051", addr)
	}
	if addr := LoadObservability().Addr; addr != ":9090" {
		t.Fatalf("obs addr = %q, want :9090", addr)
	}
}
