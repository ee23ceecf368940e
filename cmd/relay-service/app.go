package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"tgrelay/internal/config"
	"tgrelay/internal/constants"
	"tgrelay/internal/docsink"
	"tgrelay/internal/logger"
	"tgrelay/internal/media"
	"tgrelay/internal/mirror"
	"tgrelay/internal/relay"
	"tgrelay/internal/telegram"
	"tgrelay/internal/webhook"
	"tgrelay/pkg/bootstrap"
	"tgrelay/pkg/health"
	"tgrelay/pkg/logging"
	"tgrelay/pkg/metrics"
	"tgrelay/pkg/middleware"
	"tgrelay/pkg/ratelimit"
	"tgrelay/pkg/retry"
)

type App struct {
	*bootstrap.Base
	dbConnector *bootstrap.DatabaseConnector
	mongoClient *mongo.Client
	redisClient *redis.Client
	source      *telegram.Source
	pipeline    *relay.Pipeline
	mirror      *mirror.Producer
	server      *http.Server
	router      *gin.Engine
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("relay-service")
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initSource(); err != nil {
		return fmt.Errorf("failed to initialize telegram source: %w", err)
	}

	a.initDatabases(ctx)

	if err := a.initPipeline(ctx); err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	metrics.RegisterRelayMetrics()
	if a.mirror.Enabled() {
		metrics.RegisterMirrorMetrics()
	}
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}
	if a.Config.Server.RateLimit.Enabled {
		metrics.RegisterRateLimitMetrics()
	}

	if err := a.initHTTPServer(); err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	return nil
}

func (a *App) initSource() error {
	source, err := telegram.New(a.Config.Telegram, a.Logger)
	if err != nil {
		return err
	}
	a.source = source
	return nil
}

// initDatabases connects the optional stores. An unreachable store disables
// the corresponding sink instead of failing startup; the relay keeps
// forwarding to whatever remains.
func (a *App) initDatabases(ctx context.Context) {
	initCtx := logging.WithServiceName(ctx, "relay-service")

	err := retry.Retry(ctx, retry.ConnectPolicy(), func() error {
		client, err := a.dbConnector.InitMongoDB(ctx)
		if err != nil {
			return err
		}
		a.mongoClient = client
		return nil
	})
	if err != nil {
		a.Logger.WarnwCtx(initCtx, "MongoDB unavailable, document sink disabled", "error", err)
	}

	if rdb, err := a.dbConnector.InitRedis(ctx); err != nil {
		a.Logger.WarnwCtx(initCtx, "Redis unavailable, dedup cache disabled", "error", err)
	} else {
		a.redisClient = rdb
	}
}

func (a *App) initPipeline(ctx context.Context) error {
	docs := a.buildDocumentSink(ctx)
	hook := webhook.New(a.Config.Webhook, a.Logger)

	store, err := media.NewStore(a.Config.Media.Dir, a.Config.Media.MaxBytes, a.source, a.Logger)
	if err != nil {
		return err
	}

	a.mirror = mirror.New(a.Config.Broker.Kafka, a.Logger)

	pipe, err := relay.NewPipeline(a.Config.Relay, a.source.SelfID(), docs, hook, store, a.mirror, a.Logger)
	if err != nil {
		return err
	}
	a.pipeline = pipe
	return nil
}

func (a *App) buildDocumentSink(ctx context.Context) relay.DocumentSink {
	if a.mongoClient == nil {
		return docsink.NewDisabled(a.Logger)
	}

	dbName := a.Config.Database.MongoDB.Database
	if dbName == "" {
		dbName = constants.DefaultMongoDBName
	}
	db := a.mongoClient.Database(dbName)
	collection := a.Config.Database.MongoDB.Collection

	if err := docsink.EnsureIndexes(ctx, db, collection); err != nil {
		initCtx := logging.WithServiceName(ctx, "relay-service")
		a.Logger.WarnwCtx(initCtx, "Failed to ensure indexes, dedup relies on lookups only", "error", err)
	}

	var repo docsink.Repository = docsink.NewRepository(db, collection)
	if a.Config.CircuitBreaker.Enabled {
		repo = docsink.NewCircuitBreakerRepository(repo, a.Config.CircuitBreaker)
	}

	var cache *docsink.DedupCache
	if a.redisClient != nil {
		cache = docsink.NewDedupCache(a.redisClient, a.Config.Database.Redis.TTLSeconds)
	}

	return docsink.New(repo, cache, a.Logger)
}

func (a *App) initHTTPServer() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.Recovery(a.Logger))
	router.Use(middleware.RequestLogger(a.Logger))

	if a.Config.Server.RateLimit.Enabled {
		rateLimitConfig := ratelimit.Config{
			RPS:             a.Config.Server.RateLimit.RPS,
			Burst:           a.Config.Server.RateLimit.Burst,
			CleanupInterval: time.Duration(a.Config.Server.RateLimit.CleanupInterval) * time.Second,
			MaxAge:          time.Duration(a.Config.Server.RateLimit.MaxAge) * time.Second,
		}
		router.Use(ratelimit.Middleware(rateLimitConfig))
		a.Logger.Infow("Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	healthRegistry := health.NewRegistry()
	if a.mongoClient != nil {
		healthRegistry.Register(health.NewMongoProbe(a.mongoClient))
	}
	if a.redisClient != nil {
		// losing the dedup cache degrades the relay but does not stop it
		healthRegistry.RegisterOptional(health.NewRedisProbe(a.redisClient))
	}

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, a.pipeline.Stats())
	})

	a.router = router
	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(a.Config.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(a.Config.Server.WriteTimeoutSeconds) * time.Second,
	}
	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.source.Run(gCtx, a.pipeline)
	})

	// ListenAndServe only returns once the server is shut down; without
	// this the group would never finish after a signal.
	g.Go(func() error {
		<-gCtx.Done()
		srvCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(srvCtx)
	})

	err := g.Wait()

	if shutdownErr := a.Shutdown(context.Background()); shutdownErr != nil {
		a.Logger.Errorw("Shutdown finished with errors", "error", shutdownErr)
	}

	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, "relay-service")
	a.Logger.InfowCtx(shutdownCtx, "Shutting down relay service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			srvCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(srvCtx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		if a.pipeline != nil {
			drainCtx, cancel := context.WithTimeout(context.Background(), constants.DrainTimeout)
			defer cancel()
			if err := a.pipeline.Close(drainCtx); err != nil {
				errs = append(errs, fmt.Errorf("pipeline drain error: %w", err))
			}
		}

		if a.mirror != nil {
			if err := a.mirror.Close(); err != nil {
				errs = append(errs, fmt.Errorf("mirror close error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redisClient, a.mongoClient)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
