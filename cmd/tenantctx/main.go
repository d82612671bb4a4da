package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/tendant/tenantctx/internal/config"
	httpserver "github.com/tendant/tenantctx/internal/http"
	"github.com/tendant/tenantctx/internal/http/middleware"
	"github.com/tendant/tenantctx/internal/telemetry"
	"github.com/tendant/tenantctx/pkg/assistant"
	"github.com/tendant/tenantctx/pkg/auth"
	"github.com/tendant/tenantctx/pkg/cache"
	"github.com/tendant/tenantctx/pkg/ratelimit"
	"github.com/tendant/tenantctx/pkg/repository"
	"github.com/tendant/tenantctx/pkg/tenant"
)

const serviceName = "tenantctx"

func main() {
	// Load .env file if present
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdownTracer, err := telemetry.InitTracer(serviceName, os.Stdout, logger)
		if err != nil {
			logger.Error("failed to initialize tracing", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				logger.Error("tracer shutdown error", "error", err)
			}
		}()
	}

	db, err := repository.NewDB(ctx, repository.Config{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		RetryAttempts:   cfg.DBRetryAttempts,
		RetryInterval:   cfg.DBRetryInterval,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	logger.Info("connected to database")

	if cfg.AutoMigrate {
		if err := repository.Migrate(ctx, db, logger); err != nil {
			logger.Error("failed to apply migrations", "error", err)
			os.Exit(1)
		}
	}

	if err := repository.CheckRowSecurity(ctx, db); err != nil {
		logger.Warn("tenant row-level security is not enforced for this role", "error", err)
	}

	healthchecks := map[string]func(context.Context) error{
		"postgres": repository.Healthcheck(db),
	}

	var redisClient *redis.Client
	if cfg.UsesRedis() {
		redisClient, err = repository.ConnectRedis(ctx, repository.RedisConfig{
			URL:            cfg.RedisURL,
			RetryAttempts:  cfg.RedisRetryAttempts,
			RetryInterval:  cfg.RedisRetryInterval,
			ConnectTimeout: cfg.RedisConnectTimeout,
		})
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()

		healthchecks["redis"] = repository.RedisHealthcheck(redisClient)
		logger.Info("connected to redis")
	}

	var pruneTasks []repository.PruneTask
	pruneWindow := max(cfg.RateWindow, cfg.Assistant.RateWindow)

	limiter, task := newLimiter(cfg.RateLimitDriver, db, redisClient, pruneWindow)
	if task != nil {
		pruneTasks = append(pruneTasks, *task)
	}
	store, task := newCacheStore(cfg.CacheDriver, db, redisClient)
	if task != nil {
		pruneTasks = append(pruneTasks, *task)
	}
	logger.Info("storage configured",
		"rate_limit_driver", cfg.RateLimitDriver,
		"cache_driver", cfg.CacheDriver,
	)

	tenantService := tenant.NewService(
		tenant.Config{
			RateLimit:  cfg.RateLimit,
			RateWindow: cfg.RateWindow,
			CacheTTL:   cfg.CacheTTL,
		},
		newIdentityResolver(cfg),
		limiter,
		store,
		repository.NewTenantsRepository(db),
		logger,
	)

	routerCfg := httpserver.RouterConfig{
		Logger:        logger,
		TenantService: tenantService,
		AssistantLimit: middleware.TenantLimit{
			Limit:  cfg.Assistant.RateLimit,
			Window: cfg.Assistant.RateWindow,
		},
		CORS:           cfg.CORS,
		IPRateLimit:    cfg.IPRateLimit,
		MaxRequestBody: cfg.MaxRequestBody,
		TracingEnabled: cfg.TracingEnabled,
		Healthchecks:   healthchecks,
	}
	if cfg.HasAssistant() {
		routerCfg.Assistant = assistant.NewClient(assistant.Config{
			APIKey:       cfg.Assistant.APIKey,
			BaseURL:      cfg.Assistant.BaseURL,
			Model:        cfg.Assistant.Model,
			SystemPrompt: cfg.Assistant.SystemPrompt,
			MaxTokens:    cfg.Assistant.MaxTokens,
			Timeout:      cfg.Assistant.Timeout,
		})
		logger.Info("assistant chat enabled", "model", cfg.Assistant.Model)
	}

	janitor := repository.NewJanitor(logger, cfg.JanitorInterval, pruneTasks...)
	go janitor.Run(ctx)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      httpserver.NewRouter(routerCfg),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func newIdentityResolver(cfg *config.Config) auth.IdentityResolver {
	if cfg.IdentityMode == config.IdentityJWT {
		return auth.NewJWTResolver(auth.JWTConfig{
			Secret: []byte(cfg.JWTSecret),
			Issuer: cfg.JWTIssuer,
		})
	}
	return auth.NewRemoteResolver(auth.RemoteConfig{
		BaseURL: cfg.BackendURL,
		AnonKey: cfg.BackendAnonKey,
		Timeout: cfg.IdentityTimeout,
	})
}

func newLimiter(driver string, db *sql.DB, client *redis.Client, pruneWindow time.Duration) (ratelimit.Limiter, *repository.PruneTask) {
	switch driver {
	case config.DriverRedis:
		// Keys expire on their own.
		return ratelimit.NewRedisStore(client), nil
	case config.DriverMemory:
		store := ratelimit.NewMemoryStore()
		return store, &repository.PruneTask{
			Name: "memory_rate_limits",
			Run: func(context.Context) (int64, error) {
				return int64(store.PruneExpired(pruneWindow)), nil
			},
		}
	default:
		repo := repository.NewRateLimitsRepository(db)
		task := repo.PruneTask(pruneWindow)
		return repo, &task
	}
}

func newCacheStore(driver string, db *sql.DB, client *redis.Client) (cache.Store, *repository.PruneTask) {
	switch driver {
	case config.DriverRedis:
		return cache.NewRedisStore(client), nil
	case config.DriverMemory:
		store := cache.NewMemoryStore()
		return store, &repository.PruneTask{
			Name: "memory_tenant_cache",
			Run: func(context.Context) (int64, error) {
				return int64(store.Prune()), nil
			},
		}
	default:
		repo := repository.NewTenantCacheRepository(db)
		task := repo.PruneTask()
		return repo, &task
	}
}
