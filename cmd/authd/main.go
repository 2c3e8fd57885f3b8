package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/reachend/auth-service/internal/api"
	"github.com/reachend/auth-service/internal/api/handler"
	"github.com/reachend/auth-service/internal/api/middleware"
	"github.com/reachend/auth-service/internal/core/service"
	rediscache "github.com/reachend/auth-service/internal/infrastructure/db/redis"
	"github.com/reachend/auth-service/internal/infrastructure/queue"
	"github.com/reachend/auth-service/internal/infrastructure/security"
	"github.com/reachend/auth-service/internal/pkg/config"
	"github.com/reachend/auth-service/pkg/logger"
)

const (
	notifyWorkers   = 4
	shutdownTimeout = 15 * time.Second
)

// @title                       Auth Service API
// @version                     1.0
// @description                 Authentication, password recovery and role-gated user administration.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 Type "Bearer" followed by a space and the session token.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty || !cfg.IsProduction(),
		Service: "auth-service",
		Env:     cfg.Env,
	})

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("auth-service stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	store, err := openStore(ctx, cfg, logger.Component("store"))
	if err != nil {
		return err
	}
	defer store.Close()

	notifier, err := openNotifier(cfg, logger.Component("notify"))
	if err != nil {
		return err
	}
	defer notifier.Close()

	dispatcher := queue.NewDispatcher(notifyWorkers, notifier, logger.Component("dispatcher"))
	// Workers outlive the signal so Stop can drain what is already queued.
	dispatcher.Start(context.WithoutCancel(ctx))
	defer dispatcher.Stop()

	hasher := security.NewBcryptHasher(cfg.Auth.BcryptCost)
	codec, err := security.NewJWTCodec(cfg.Auth.JWTSecret, nil)
	if err != nil {
		return fmt.Errorf("token codec: %w", err)
	}

	authSvc := service.NewAuthService(store.Users, hasher, codec, nil, cfg.Auth.SessionTTL, logger.Component("auth"))
	userSvc := service.NewUserService(store.Users, nil, logger.Component("users"))
	resetSvc := service.NewResetService(store.Users, hasher, codec, nil, nil, dispatcher, service.ResetConfig{
		ResetTTL: cfg.Auth.ResetTTL,
		OTPTTL:   cfg.Auth.OTPTTL,
		URLBase:  cfg.Auth.ResetURLBase,
	}, logger.Component("reset"))

	if cfg.Bootstrap.Enabled() {
		created, err := authSvc.EnsureAdmin(ctx, cfg.Bootstrap.AdminName, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminPassword)
		if err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
		log.Info().Bool("created", created).Str("email", cfg.Bootstrap.AdminEmail).Msg("bootstrap admin checked")
	}

	health := map[string]handler.PingFunc{cfg.StoreDriver: store.Users.Ping}

	var limiter middleware.Limiter
	if cfg.RateLimit.Enabled {
		client, err := rediscache.Connect(ctx, rediscache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, rate limiting per instance")
			limiter = middleware.NewMemoryLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
		} else {
			defer client.Close()
			limiter = rediscache.NewThrottle(client, "auth:ratelimit", cfg.RateLimit.Requests, cfg.RateLimit.Window)
			health["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		}
	}

	e := api.NewRouter(api.Deps{
		Auth:           authSvc,
		Users:          userSvc,
		Reset:          resetSvc,
		Limiter:        limiter,
		Health:         health,
		ConcealUnknown: cfg.Auth.ConcealUnknown,
		Log:            logger.Component("http"),
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("store", cfg.StoreDriver).Str("notifier", cfg.NotifierDriver).Msg("auth-service listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
