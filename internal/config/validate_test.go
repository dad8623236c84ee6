package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080, ShutdownTimeout: 30 * time.Second},
		DB: DBConfig{
			Host: "localhost", Port: 5432, User: "holdgate",
			Password: "secret", Name: "holdgate", SSLMode: "disable", MaxConns: 25,
		},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		JWT: JWTConfig{
			Secret: "session-secret-that-is-at-least-32-chars!",
			Expiry: 168 * time.Hour,
		},
		Keys: KeysConfig{HashSecret: "hash-secret-that-is-at-least-32-chars!!"},
		Upstream: UpstreamConfig{
			BaseURL: "https://openrouter.ai/api/v1",
			APIKey:  "or-key",
			Timeout: 5 * time.Minute,
		},
		Chain: ChainConfig{
			RPCURL:        "http://localhost:8545",
			TokenAddress:  "0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984",
			TokenDecimals: 18,
		},
		Credits:   CreditsConfig{MinHolding: 1000, DailyPool: 500, FallbackSupply: 1e9, CacheTTL: time.Hour},
		RateLimit: RateLimitConfig{APIMax: 60, APIWindow: time.Minute, AuthMax: 10, AuthWindow: time.Minute},
		NATS:      NATSConfig{URL: "nats://localhost:4222"},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

func TestValidate_JWTSecretTooShort(t *testing.T) {
	cfg := validConfig()
	cfg.JWT.Secret = "short"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Fatalf("expected JWT_SECRET error, got: %v", err)
	}
}

func TestValidate_HashSecretTooShort(t *testing.T) {
	cfg := validConfig()
	cfg.Keys.HashSecret = "short"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "KEYS_HASH_SECRET") {
		t.Fatalf("expected KEYS_HASH_SECRET error, got: %v", err)
	}
}

func TestValidate_SecretsMustDiffer(t *testing.T) {
	cfg := validConfig()
	cfg.JWT.Secret = "the-same-secret-that-is-at-least-32-chars!"
	cfg.Keys.HashSecret = "the-same-secret-that-is-at-least-32-chars!"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "must differ") {
		t.Fatalf("expected 'must differ' error, got: %v", err)
	}
}

func TestValidate_UpstreamURL(t *testing.T) {
	cfg := validConfig()
	cfg.Upstream.BaseURL = "openrouter.ai"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "UPSTREAM_BASE_URL") {
		t.Fatalf("expected UPSTREAM_BASE_URL error, got: %v", err)
	}
}

func TestValidate_TokenAddress(t *testing.T) {
	cfg := validConfig()
	cfg.Chain.TokenAddress = "not-an-address"
	cfg.Chain.ExcludedWallets = []string{"0x123"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected chain validation errors")
	}
	if !strings.Contains(err.Error(), "CHAIN_TOKEN_ADDRESS") {
		t.Errorf("expected CHAIN_TOKEN_ADDRESS error in: %v", err)
	}
	if !strings.Contains(err.Error(), "CHAIN_EXCLUDED_WALLETS") {
		t.Errorf("expected CHAIN_EXCLUDED_WALLETS error in: %v", err)
	}
}

func TestValidate_DBPasswordRequired(t *testing.T) {
	cfg := validConfig()
	cfg.DB.Password = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "DB_PASSWORD") {
		t.Fatalf("expected DB_PASSWORD error, got: %v", err)
	}
}

func TestValidate_InvalidPorts(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.DB.Port = 99999
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected port validation errors")
	}
	if !strings.Contains(err.Error(), "SERVER_PORT") {
		t.Errorf("expected SERVER_PORT error in: %v", err)
	}
	if !strings.Contains(err.Error(), "DB_PORT") {
		t.Errorf("expected DB_PORT error in: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{Port: 0},
		DB:     DBConfig{Port: 5432},
		Redis:  RedisConfig{Port: 6379},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected multiple validation errors")
	}
	errStr := err.Error()
	for _, substr := range []string{"JWT_SECRET", "KEYS_HASH_SECRET", "DB_PASSWORD", "UPSTREAM_API_KEY", "CHAIN_RPC_URL", "CREDITS_DAILY_POOL", "SERVER_PORT"} {
		if !strings.Contains(errStr, substr) {
			t.Errorf("expected %q in error: %s", substr, errStr)
		}
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" a, b ,,c ")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected split result: %#v", got)
	}
	if splitList("") != nil {
		t.Fatal("expected nil for empty input")
	}
}

func TestValidate_TrustedProxies(t *testing.T) {
	cfg := validConfig()
	cfg.Server.TrustedProxies = []string{"10.0.0.0/8", "192.168.1.7"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	cfg.Server.TrustedProxies = []string{"lb.internal"}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "SERVER_TRUSTED_PROXIES") {
		t.Fatalf("expected SERVER_TRUSTED_PROXIES error, got: %v", err)
	}
}
