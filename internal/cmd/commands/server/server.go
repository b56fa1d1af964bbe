package server

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"

	"github.com/rbxmod/banlist/internal/api"
	"github.com/rbxmod/banlist/internal/auth"
	"github.com/rbxmod/banlist/internal/cmd/base"
	"github.com/rbxmod/banlist/internal/config"
	"github.com/rbxmod/banlist/internal/server"
	"github.com/rbxmod/banlist/internal/store"
	"github.com/rbxmod/banlist/pkg/banlist"
	"github.com/rbxmod/banlist/pkg/docstore"
	"github.com/rbxmod/banlist/pkg/events"
	"github.com/rbxmod/banlist/pkg/ratelimit"
)

// storeWaitMaxElapsed bounds how long startup waits for the store.
const storeWaitMaxElapsed = 30 * time.Second

type Command struct {
	*base.Command

	flagConfig  string
	flagLogJSON bool
}

func (c *Command) Synopsis() string {
	return "Run the ban list API server"
}

func (c *Command) Help() string {
	return `Usage: banlist server [options]

  Run the ban list API server. Configuration is read from the optional
  config file and then from the environment (GITHUB_TOKEN, GITHUB_OWNER,
  GITHUB_REPO, FILE_PATH, ROBLOX_SECRET, PORT, ...).` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("server", flag.ContinueOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"Path to an HCL config file. Environment variables override it.",
	)
	f.BoolVar(
		&c.flagLogJSON, "log-json", false,
		"Write logs as JSON.",
	)

	return f
}

func (c *Command) Run(args []string) int {
	ui := c.UI

	f := c.Flags()
	if err := f.Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	cfg, err := config.Load(c.flagConfig)
	if err != nil {
		ui.Error(fmt.Sprintf("error loading config: %v", err))
		return 1
	}
	if err := cfg.Validate(); err != nil {
		ui.Error("invalid configuration:")
		for _, problem := range config.ErrorList(err) {
			ui.Error("  - " + problem)
		}
		return 1
	}

	log := c.logger(cfg)

	// Shut down on SIGINT/SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(cfg, log)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error("error closing store", "error", err)
		}
	}()

	if err := waitForStore(ctx, st, log); err != nil {
		ui.Error(fmt.Sprintf("error reaching %s store: %v", st.Name(), err))
		return 1
	}

	syncer, err := banlist.NewSyncer(banlist.SyncerConfig{
		Store:           st,
		Logger:          log,
		SerializeWrites: cfg.Server.SerializeWrites,
	})
	if err != nil {
		ui.Error(fmt.Sprintf("error initializing ban list: %v", err))
		return 1
	}

	limiter, closeLimiter, err := newLimiter(ctx, cfg, log)
	if err != nil {
		ui.Error(fmt.Sprintf("error initializing rate limiter: %v", err))
		return 1
	}
	defer closeLimiter()

	publisher, err := newPublisher(cfg, log)
	if err != nil {
		ui.Error(fmt.Sprintf("error initializing event publisher: %v", err))
		return 1
	}
	defer publisher.Close()

	srv := server.Server{
		Syncer: syncer,
		Gate: &auth.Gate{
			Secret:            cfg.Secret,
			Limiter:           limiter,
			TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
			Logger:            log.Named("auth"),
		},
		Events: publisher,
		Config: cfg,
		Logger: log.Named("api"),
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewHandler(srv),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening",
			"addr", cfg.Server.Addr,
			"store", st.Name(),
			"rate_limiter", cfg.RateLimit.Backend,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			ui.Error(fmt.Sprintf("error starting listener: %v", err))
			return 1
		}
	case <-ctx.Done():
	}

	log.Info("shutting down", "timeout", cfg.ShutdownTimeout())
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("error shutting down server", "error", err)
		return 1
	}

	log.Info("server stopped")
	return 0
}

func (c *Command) logger(cfg *config.Config) hclog.Logger {
	level := hclog.LevelFromString(cfg.LogLevel)
	if c.flagLogJSON {
		return hclog.New(&hclog.LoggerOptions{
			Name:       c.Log.Name(),
			Level:      level,
			JSONFormat: true,
		})
	}
	c.Log.SetLevel(level)
	return c.Log
}

// waitForStore reads the document until the store answers. A missing
// document counts as reachable.
func waitForStore(ctx context.Context, st docstore.Store, log hclog.Logger) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = storeWaitMaxElapsed

	return backoff.RetryNotify(
		func() error {
			_, err := st.Get(ctx)
			if err == nil || docstore.IsNotFound(err) {
				return nil
			}
			return err
		},
		backoff.WithContext(b, ctx),
		func(err error, next time.Duration) {
			log.Warn("store not reachable yet, retrying",
				"store", st.Name(),
				"error", err,
				"retry_in", next,
			)
		},
	)
}

func newLimiter(ctx context.Context, cfg *config.Config, log hclog.Logger) (ratelimit.Limiter, func(), error) {
	rlCfg := ratelimit.Config{
		Limit:  cfg.RateLimit.Limit,
		Window: cfg.RateLimitWindow(),
	}

	switch cfg.RateLimit.Backend {
	case config.LimiterRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("error connecting to redis: %w", err)
		}

		limiter, err := ratelimit.NewRedis(client, rlCfg, "")
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return limiter, func() { _ = client.Close() }, nil

	default:
		limiter, err := ratelimit.NewMemory(rlCfg, ratelimit.WithLogger(log))
		if err != nil {
			return nil, nil, err
		}
		go limiter.RunSweeper(ctx, rlCfg.Window)
		return limiter, func() {}, nil
	}
}

func newPublisher(cfg *config.Config, log hclog.Logger) (events.Publisher, error) {
	if len(cfg.Events.KafkaBrokers) == 0 {
		return events.Nop{}, nil
	}

	kafka, err := events.NewKafka(events.KafkaConfig{
		Brokers: cfg.Events.KafkaBrokers,
		Topic:   cfg.Events.KafkaTopic,
		Logger:  log.Named("events"),
	})
	if err != nil {
		return nil, err
	}
	log.Info("publishing ban events", "brokers", cfg.Events.KafkaBrokers, "topic", cfg.Events.KafkaTopic)
	return events.NewLogging(kafka, log), nil
}
