package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Redis     RedisConfig
	NATS      NATSConfig
	JWT       JWTConfig
	Keys      KeysConfig
	Upstream  UpstreamConfig
	Chain     ChainConfig
	Credits   CreditsConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	MigrationsPath  string
	// ShutdownTimeout bounds how long in-flight streams may run after a stop signal.
	ShutdownTimeout time.Duration
	// TrustedProxies may report the client address via X-Forwarded-For or X-Real-IP.
	TrustedProxies  []string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NATSConfig is optional. An empty URL disables event publishing and the holdings consumer.
type NATSConfig struct {
	URL string
}

type JWTConfig struct {
	Secret string
	Expiry time.Duration
}

type KeysConfig struct {
	HashSecret string
}

type UpstreamConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type ChainConfig struct {
	RPCURL          string
	TokenAddress    string
	TokenDecimals   int
	ExcludedWallets []string
}

type CreditsConfig struct {
	MinHolding     float64
	DailyPool      float64
	FallbackSupply float64
	CacheTTL       time.Duration
}

type RateLimitConfig struct {
	APIMax     int
	APIWindow  time.Duration
	AuthMax    int
	AuthWindow time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
	File   string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           k.String("server.host"),
			Port:           k.Int("server.port"),
			MigrationsPath: k.String("migrations.path"),
			TrustedProxies: splitList(k.String("server.trusted.proxies")),
		},
		DB: DBConfig{
			Host:     k.String("db.host"),
			Port:     k.Int("db.port"),
			User:     k.String("db.user"),
			Password: k.String("db.password"),
			Name:     k.String("db.name"),
			SSLMode:  k.String("db.sslmode"),
			MaxConns: int32(k.Int("db.max.conns")),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		JWT: JWTConfig{
			Secret: k.String("jwt.secret"),
		},
		Keys: KeysConfig{
			HashSecret: k.String("keys.hash.secret"),
		},
		Upstream: UpstreamConfig{
			BaseURL: k.String("upstream.base.url"),
			APIKey:  k.String("upstream.api.key"),
		},
		Chain: ChainConfig{
			RPCURL:          k.String("chain.rpc.url"),
			TokenAddress:    k.String("chain.token.address"),
			TokenDecimals:   k.Int("chain.token.decimals"),
			ExcludedWallets: splitList(k.String("chain.excluded.wallets")),
		},
		Credits: CreditsConfig{
			MinHolding:     k.Float64("credits.min.holding"),
			DailyPool:      k.Float64("credits.daily.pool"),
			FallbackSupply: k.Float64("credits.fallback.supply"),
		},
		RateLimit: RateLimitConfig{
			APIMax:  k.Int("ratelimit.api.max"),
			AuthMax: k.Int("ratelimit.auth.max"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(k.String("cors.allowed.origins")),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
			File:   k.String("log.file"),
		},
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MigrationsPath == "" {
		cfg.Server.MigrationsPath = "migrations"
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "holdgate"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "holdgate"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Upstream.BaseURL == "" {
		cfg.Upstream.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.Chain.TokenDecimals == 0 {
		cfg.Chain.TokenDecimals = 18
	}
	if cfg.Credits.MinHolding == 0 {
		cfg.Credits.MinHolding = 1000
	}
	if cfg.Credits.DailyPool == 0 {
		cfg.Credits.DailyPool = 500
	}
	if cfg.Credits.FallbackSupply == 0 {
		cfg.Credits.FallbackSupply = 1_000_000_000
	}
	if cfg.RateLimit.APIMax == 0 {
		cfg.RateLimit.APIMax = 60
	}
	if cfg.RateLimit.AuthMax == 0 {
		cfg.RateLimit.AuthMax = 10
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Parse durations
	durations := []struct {
		key      string
		fallback string
		dst      *time.Duration
	}{
		{"server.shutdown.timeout", "30s", &cfg.Server.ShutdownTimeout},
		{"jwt.expiry", "168h", &cfg.JWT.Expiry},
		{"upstream.timeout", "5m", &cfg.Upstream.Timeout},
		{"credits.cache.ttl", "1h", &cfg.Credits.CacheTTL},
		{"ratelimit.api.window", "60s", &cfg.RateLimit.APIWindow},
		{"ratelimit.auth.window", "60s", &cfg.RateLimit.AuthWindow},
	}
	for _, d := range durations {
		raw := k.String(d.key)
		if raw == "" {
			raw = d.fallback
		}
		*d.dst, err = time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", d.key, err)
		}
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
