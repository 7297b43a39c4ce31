package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/redmonkez12/otp-accounts/internal/auth"
	"github.com/redmonkez12/otp-accounts/internal/config"
	"github.com/redmonkez12/otp-accounts/internal/database"
	"github.com/redmonkez12/otp-accounts/internal/email"
	httpServer "github.com/redmonkez12/otp-accounts/internal/http"
	"github.com/redmonkez12/otp-accounts/internal/logging"
	"github.com/redmonkez12/otp-accounts/internal/otp"
	"github.com/redmonkez12/otp-accounts/internal/profile"
	"github.com/redmonkez12/otp-accounts/internal/ratelimit"
	"github.com/redmonkez12/otp-accounts/internal/scheduler"
	"github.com/redmonkez12/otp-accounts/internal/user"
)

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(cfg.Server.IsDevelopment())
	logger.Info("starting application",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
		"rate_limit", cfg.RateLimit.Backend,
		"token_format", cfg.Auth.TokenFormat,
	)

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer closeStore()

	limiter, closeLimiter, err := newRateLimiter(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize rate limiter: %w", err)
	}
	defer closeLimiter()

	tokens, err := auth.NewTokenService(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialize token service: %w", err)
	}

	var sender email.Sender
	if cfg.Email.SMTPEnabled() {
		sender = email.NewSMTPSender(cfg.Email)
	} else {
		logger.Warn("SMTP_HOST not set, OTP emails will be logged instead of sent")
		sender = email.NewLogSender(logger)
	}
	dispatcher := email.NewDispatcher(sender, logger, email.DispatcherConfig{
		Workers:     cfg.Email.Workers,
		QueueSize:   cfg.Email.QueueSize,
		MaxAttempts: cfg.Email.MaxAttempts,
	})
	dispatcher.Start(context.WithoutCancel(ctx))

	authService := auth.NewService(
		store,
		otp.NewIssuer(cfg.OTP.Bytes),
		tokens,
		dispatcher,
		logger,
		cfg.OTP.TTL,
		cfg.Auth.TokenTTL,
	)

	jobs := scheduler.New(logger, time.Minute)
	if err := jobs.Add(cfg.OTP.CleanupSchedule, "otp-cleanup", scheduler.CleanupExpiredOTPs(store, logger, time.Now)); err != nil {
		return err
	}
	if mem, ok := limiter.(*ratelimit.MemoryLimiter); ok {
		if err := jobs.Add("@every 10m", "ratelimit-prune", func(context.Context) error {
			mem.Prune()
			return nil
		}); err != nil {
			return err
		}
	}
	jobs.Start()

	router := httpServer.NewRouter(cfg, httpServer.Handlers{
		Auth:           auth.NewHandler(authService, limiter),
		AuthMiddleware: auth.NewMiddleware(authService),
		Profile:        profile.NewHandler(profile.NewService(store)),
		Health:         store,
	}, logger)
	server := httpServer.NewServer(cfg.Server, router, logger)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case err := <-serverErrors:
		runErr = fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("received signal", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// stop taking requests first so nothing new reaches the email queue
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err.Error())
	}
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		logger.Error("email dispatcher did not drain", "error", err.Error())
	}
	if err := jobs.Stop(shutdownCtx); err != nil {
		logger.Error("scheduler did not stop", "error", err.Error())
	}

	return runErr
}

func migrate(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.NewLogger(cfg.Server.IsDevelopment())

	if cfg.Store.Driver != config.StoreDriverPostgres {
		logger.Info("nothing to migrate", "store", cfg.Store.Driver)
		return nil
	}

	sqlDB, err := database.OpenPostgres(ctx, cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := database.Migrate(ctx, sqlDB); err != nil {
		return err
	}
	logger.Info("migrations applied")
	return nil
}

// openStore builds the user store selected by STORE_DRIVER. The returned
// func releases its connections.
func openStore(ctx context.Context, cfg *config.Config, logger *logging.Logger) (user.Store, func(), error) {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		sqlDB, err := database.OpenPostgres(ctx, cfg.Database.ConnectionString())
		if err != nil {
			return nil, nil, err
		}
		if err := database.Migrate(ctx, sqlDB); err != nil {
			sqlDB.Close()
			return nil, nil, err
		}
		db := database.NewBunDB(sqlDB)
		return user.NewRepository(db), func() { db.Close() }, nil

	case config.StoreDriverSQLite:
		gdb, err := database.OpenSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get sqlite handle: %w", err)
		}
		return user.NewSQLiteStore(gdb), func() { sqlDB.Close() }, nil

	default:
		logger.Warn("using in-memory store, accounts are lost on restart")
		return user.NewMemoryStore(), func() {}, nil
	}
}

// newRateLimiter returns the limiter selected by RATE_LIMIT_BACKEND.
func newRateLimiter(ctx context.Context, cfg *config.Config) (auth.RateLimiter, func(), error) {
	rl := cfg.RateLimit

	if rl.Backend != config.RateLimitBackendRedis {
		return ratelimit.NewMemoryLimiter(rl.IPLimit, rl.IPWindow, rl.EmailCooldown), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return ratelimit.NewRedisLimiter(client, rl.IPLimit, rl.IPWindow, rl.EmailCooldown), func() { client.Close() }, nil
}
