package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alitto/pond/v2"
	"github.com/urfave/cli/v2"

	"github.com/holdgate/holdgate/internal/auth"
	"github.com/holdgate/holdgate/internal/cache"
	"github.com/holdgate/holdgate/internal/chain"
	"github.com/holdgate/holdgate/internal/clock"
	"github.com/holdgate/holdgate/internal/config"
	"github.com/holdgate/holdgate/internal/credits"
	"github.com/holdgate/holdgate/internal/database"
	"github.com/holdgate/holdgate/internal/holdings"
	"github.com/holdgate/holdgate/internal/keys"
	mw "github.com/holdgate/holdgate/internal/middleware"
	inats "github.com/holdgate/holdgate/internal/nats"
	"github.com/holdgate/holdgate/internal/proxy"
	iredis "github.com/holdgate/holdgate/internal/redis"
	"github.com/holdgate/holdgate/internal/router"
	"github.com/holdgate/holdgate/internal/server"
	"github.com/holdgate/holdgate/internal/users"
)

const (
	cachePrefix = "holdgate:"

	touchWorkers   = 4
	touchQueueSize = 1024
)

func main() {
	app := &cli.App{
		Name:  "holdgate",
		Usage: "metered LLM gateway for token holders",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP gateway",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "skip-migrations", Usage: "do not apply pending migrations on start"},
					&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "override SERVER_PORT"},
				},
				Action: serve,
			},
			{
				Name:  "migrate",
				Usage: "apply pending database migrations and exit",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "down", Usage: "roll back this many migrations instead of applying"},
				},
				Action: migrate,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("holdgate exited", "error", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func migrate(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	closeLog := setupLogger(cfg.Log)
	defer closeLog()

	if n := c.Int("down"); n > 0 {
		return database.RollbackMigrations(cfg.DB.DSN(), cfg.Server.MigrationsPath, n)
	}
	return database.RunMigrations(cfg.DB.DSN(), cfg.Server.MigrationsPath)
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if c.IsSet("port") {
		cfg.Server.Port = c.Int("port")
	}

	closeLog := setupLogger(cfg.Log)
	defer closeLog()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.New()

	// PostgreSQL
	if !c.Bool("skip-migrations") {
		if err := database.RunMigrations(cfg.DB.DSN(), cfg.Server.MigrationsPath); err != nil {
			return err
		}
	}
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pool.Close()

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer redisClient.Close()
	store := cache.NewRedisStore(redisClient, cachePrefix)

	// Chain
	ethClient, err := chain.Dial(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return err
	}
	defer ethClient.Close()
	token, err := chain.NewTokenReader(ethClient, cfg.Chain)
	if err != nil {
		return fmt.Errorf("building token reader: %w", err)
	}

	// NATS (optional)
	var (
		natsClient *inats.Client
		publisher  proxy.UsagePublisher
	)
	if cfg.NATS.URL != "" {
		natsClient, err = inats.NewClient(ctx, cfg.NATS)
		if err != nil {
			return fmt.Errorf("connecting to nats: %w", err)
		}
		defer natsClient.Close()
		publisher = inats.NewPublisher(natsClient.JetStream())
	}

	// Users
	userSvc := users.NewService(users.NewRepository(pool), clk)

	// Credits
	supply := credits.NewSupplyCache(token, store, cfg.Credits.CacheTTL, cfg.Credits.FallbackSupply, cfg.Credits.DailyPool, clk)
	engine := credits.NewEngine(userSvc, token, supply, credits.NewRepository(pool), cfg.Credits.MinHolding, clk)
	creditsHandler := credits.NewHandler(engine, userSvc)

	// Keys
	hasher, err := keys.NewHasher(cfg.Keys.HashSecret)
	if err != nil {
		return err
	}
	touches := pond.NewPool(touchWorkers, pond.WithQueueSize(touchQueueSize))
	defer touches.StopAndWait()
	keyManager := keys.NewManager(keys.NewRepository(pool), hasher, touches, clk)
	keysHandler := keys.NewHandler(keyManager)

	// Auth
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiry, clk)
	authSvc := auth.NewService(jwtManager, userSvc, auth.EthereumVerifier{}, clk)
	authHandler := auth.NewHandler(authSvc)

	// Proxy
	controller := proxy.NewController(engine, userSvc, publisher, clk)
	proxyHandler := proxy.NewHandler(controller, proxy.NewClient(cfg.Upstream), store, cfg.Upstream.Timeout)

	// Holdings tracker
	consumerDone := make(chan struct{})
	if natsClient != nil {
		consumer := holdings.NewConsumer(userSvc, inats.NewConsumerManager(natsClient.JetStream()))
		go func() {
			defer close(consumerDone)
			if err := consumer.Start(ctx); err != nil {
				slog.Error("holdings consumer stopped", "error", err)
			}
		}()
	} else {
		close(consumerDone)
	}

	authLimiter := mw.NewRateLimiter(store, "auth", cfg.RateLimit.AuthMax, cfg.RateLimit.AuthWindow, nil)
	apiLimiter := mw.NewRateLimiter(store, "api", cfg.RateLimit.APIMax, cfg.RateLimit.APIWindow, auth.RequestIdentity)

	readiness := []router.Check{
		{Name: "database", Func: func(ctx context.Context) error { return database.HealthCheck(ctx, pool) }},
		{Name: "redis", Func: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
		{Name: "nats"},
	}
	if natsClient != nil {
		readiness[2].Func = func(context.Context) error {
			if !natsClient.Healthy() {
				return errors.New("nats disconnected")
			}
			return nil
		}
	}

	trustedProxies, err := mw.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}

	handler := router.New(router.Config{
		TrustedProxies:     trustedProxies,
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
		AuthRateLimiter:    authLimiter.Middleware,
		APIRateLimiter:     apiLimiter.Middleware,
		Readiness:          readiness,
	}, router.HandlerSet{
		Nonce:   authHandler.Nonce,
		Connect: authHandler.Connect,

		GetCredits: creditsHandler.GetCredits,
		ListUsage:  creditsHandler.ListUsage,
		GetKey:     keysHandler.Get,
		CreateKey:  keysHandler.Create,
		DeleteKey:  keysHandler.Delete,

		ChatCompletions: proxyHandler.ChatCompletions,
		Models:          proxyHandler.Models,

		SessionMiddleware:    auth.Middleware(authSvc),
		CredentialMiddleware: keys.Middleware(keyManager),
	})

	err = server.New(cfg.Server, handler).Run(ctx)
	stop()
	<-consumerDone
	return err
}
