package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// Secrets
	if len(c.JWT.Secret) < 32 {
		errs = append(errs, "JWT_SECRET must be at least 32 characters")
	}
	if len(c.Keys.HashSecret) < 32 {
		errs = append(errs, "KEYS_HASH_SECRET must be at least 32 characters")
	}
	if c.JWT.Secret != "" && c.JWT.Secret == c.Keys.HashSecret {
		errs = append(errs, "JWT_SECRET and KEYS_HASH_SECRET must differ")
	}
	if c.JWT.Expiry <= 0 {
		errs = append(errs, "JWT_EXPIRY must be positive")
	}

	// DB password
	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Upstream
	if u, err := url.Parse(c.Upstream.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("UPSTREAM_BASE_URL must be an absolute URL, got %q", c.Upstream.BaseURL))
	}
	if c.Upstream.APIKey == "" {
		errs = append(errs, "UPSTREAM_API_KEY is required")
	}
	for _, proxy := range c.Server.TrustedProxies {
		if _, err := netip.ParsePrefix(proxy); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(proxy); err != nil {
			errs = append(errs, fmt.Sprintf("SERVER_TRUSTED_PROXIES entry %q is not an address or CIDR", proxy))
		}
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Upstream.Timeout <= 0 {
		errs = append(errs, "UPSTREAM_TIMEOUT must be positive")
	}

	// Chain
	if c.Chain.RPCURL == "" {
		errs = append(errs, "CHAIN_RPC_URL is required")
	}
	if !common.IsHexAddress(c.Chain.TokenAddress) {
		errs = append(errs, "CHAIN_TOKEN_ADDRESS must be a hex address")
	}
	for _, w := range c.Chain.ExcludedWallets {
		if !common.IsHexAddress(w) {
			errs = append(errs, fmt.Sprintf("CHAIN_EXCLUDED_WALLETS contains invalid address %q", w))
		}
	}
	if c.Chain.TokenDecimals < 0 || c.Chain.TokenDecimals > 36 {
		errs = append(errs, fmt.Sprintf("CHAIN_TOKEN_DECIMALS must be 0–36, got %d", c.Chain.TokenDecimals))
	}

	// Credits
	if c.Credits.MinHolding < 0 {
		errs = append(errs, "CREDITS_MIN_HOLDING must not be negative")
	}
	if c.Credits.DailyPool <= 0 {
		errs = append(errs, "CREDITS_DAILY_POOL must be positive")
	}
	if c.Credits.FallbackSupply <= 0 {
		errs = append(errs, "CREDITS_FALLBACK_SUPPLY must be positive")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1–65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
	}

	// Rate limits
	if c.RateLimit.APIMax < 1 || c.RateLimit.AuthMax < 1 {
		errs = append(errs, "RATELIMIT_API_MAX and RATELIMIT_AUTH_MAX must be at least 1")
	}

	// NATS: warn only
	if c.NATS.URL == "" {
		slog.Warn("NATS_URL is empty; usage events and the holdings consumer are disabled")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
