package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/Ramsey-B/holly/config"
	"github.com/Ramsey-B/holly/internal/handlers"
	"github.com/Ramsey-B/holly/internal/repositories/exclusion"
	"github.com/Ramsey-B/holly/internal/repositories/participant"
	"github.com/Ramsey-B/holly/internal/services/registry"
	"github.com/Ramsey-B/holly/pkg/assignment"
	"github.com/Ramsey-B/holly/pkg/database"
	"github.com/Ramsey-B/holly/pkg/events"
	"github.com/Ramsey-B/holly/pkg/health"
	"github.com/Ramsey-B/holly/pkg/kafka"
	"github.com/Ramsey-B/holly/pkg/middleware"
	"github.com/Ramsey-B/holly/pkg/redis"
	"github.com/Ramsey-B/holly/pkg/startup"
	"github.com/Ramsey-B/holly/pkg/tracing"
	"github.com/Ramsey-B/holly/pkg/tracing/exporters"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("Service exited with error")
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) ectologger.Logger {
	var zapLogger *zap.Logger
	if cfg.PrettyLogs {
		zapLogger, _ = zap.NewDevelopment()
	} else {
		zapLogger, _ = zap.NewProduction()
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func run(ctx context.Context, cfg *config.Config, logger ectologger.Logger) error {
	var (
		db              database.DB
		redisClient     *redis.Client
		producer        *kafka.Producer
		shutdownTracing func(context.Context) error
	)

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)

	boot.AddDependency(&startup.Func{
		Name: "database",
		StartFunc: func(ctx context.Context) error {
			sqlxDB, err := sqlx.ConnectContext(ctx, cfg.DatabaseDriver, cfg.DatabaseURL())
			if err != nil {
				return err
			}
			sqlxDB.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
			sqlxDB.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
			sqlxDB.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)
			db = database.NewDatabaseInstance(sqlxDB, logger)
			return nil
		},
		StopFunc: func(ctx context.Context) error {
			if db == nil {
				return nil
			}
			return db.Close()
		},
	})

	boot.AddDependency(&startup.Func{
		Name:  "migrations",
		Needs: []string{"database"},
		StartFunc: func(ctx context.Context) error {
			driver, err := migratepg.WithInstance(db.Unsafe().DB, &migratepg.Config{})
			if err != nil {
				return err
			}
			ms := database.NewMigrationService(logger, &database.MigrationConfig{
				MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
			})
			return ms.Migrate(cfg.DatabaseName, driver)
		},
	})

	if cfg.RedisHost != "" {
		boot.AddDependency(&startup.Func{
			Name: "redis",
			StartFunc: func(ctx context.Context) error {
				client, err := redis.NewClient(redis.Config{
					Host:     cfg.RedisHost,
					Port:     cfg.RedisPort,
					Password: cfg.RedisPassword,
					DB:       cfg.RedisDB,
				}, logger)
				if err != nil {
					return err
				}
				redisClient = client
				return nil
			},
			StopFunc: func(ctx context.Context) error {
				if redisClient == nil {
					return nil
				}
				return redisClient.Close()
			},
		})
	}

	if cfg.KafkaEnabled {
		boot.AddDependency(&startup.Func{
			Name: "kafka",
			StartFunc: func(ctx context.Context) error {
				producer = kafka.NewProducer(kafka.ProducerConfig{
					Brokers:      cfg.KafkaBrokers,
					Topic:        cfg.KafkaOutputTopic,
					BatchSize:    cfg.KafkaBatchSize,
					BatchTimeout: cfg.KafkaBatchTimeout,
					RequiredAcks: cfg.KafkaRequiredAcks,
					Compression:  cfg.KafkaCompression,
				}, logger)
				return nil
			},
			StopFunc: func(ctx context.Context) error {
				if producer == nil {
					return nil
				}
				return producer.Close()
			},
		})
	}

	if cfg.TracingEnabled {
		boot.AddDependency(&startup.Func{
			Name: "tracing",
			StartFunc: func(ctx context.Context) error {
				var exporter sdktrace.SpanExporter = &exporters.ConsoleExporter{}
				if cfg.TracingOTLPProtocol != "console" {
					otlp, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
						Endpoint: cfg.TracingOTLPEndpoint,
						Protocol: cfg.TracingOTLPProtocol,
						Insecure: cfg.TracingOTLPInsecure,
						Timeout:  cfg.TracingOTLPTimeout,
					})
					if err != nil {
						return err
					}
					exporter = otlp
				}
				shutdownTracing = tracing.Setup(cfg.AppName, exporter)
				return nil
			},
			StopFunc: func(ctx context.Context) error {
				if shutdownTracing == nil {
					return nil
				}
				return shutdownTracing(ctx)
			},
		})
	}

	if err := boot.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := boot.Stop(stopCtx); err != nil {
			logger.WithError(err).Error("Failed to stop dependencies")
		}
	}()

	emitter := events.NewEmitter(producer, logger)

	participantRepo := participant.NewRepository(db, logger)
	exclusionRepo := exclusion.NewRepository(db, logger)

	registryService := registry.NewService(db, participantRepo, exclusionRepo, emitter, logger)
	engine := assignment.NewEngine(db, participantRepo, exclusionRepo, emitter, logger)

	limiter := redis.NewRateLimiter(redisClient, "holly:ratelimit:", cfg.RateLimitCount, cfg.RateLimitWindow)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(echomiddleware.Recover())
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	if cfg.TracingEnabled {
		e.Use(otelecho.Middleware(cfg.AppName))
	}
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))

	checker := health.NewChecker(db, redisClient, cfg.Version)
	checker.RegisterRoutes(e)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	rateLimited := middleware.RateLimit(limiter, logger)

	adminHandler := handlers.NewAdminHandler(registryService, cfg.AdminPIN, logger)
	adminGroup := e.Group("/api/v1/admin", rateLimited)
	adminHandler.RegisterRoutes(adminGroup)

	playerHandler := handlers.NewPlayerHandler(registryService, engine, logger)
	playerGroup := e.Group("/api/v1/player", rateLimited)
	playerHandler.RegisterRoutes(playerGroup)

	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.ReadHeaderTimeout = time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("port", cfg.Port).Infof("Starting %s on port %d", cfg.AppName, cfg.Port)
		checker.SetReady(true)
		if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	checker.SetReady(false)
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
