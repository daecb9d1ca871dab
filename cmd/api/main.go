package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/mmtuentertainment/apmatch/config"
	"github.com/mmtuentertainment/apmatch/internal/handlers"
	"github.com/mmtuentertainment/apmatch/internal/repositories/auditevent"
	"github.com/mmtuentertainment/apmatch/internal/repositories/invoice"
	"github.com/mmtuentertainment/apmatch/internal/repositories/matchexception"
	"github.com/mmtuentertainment/apmatch/internal/repositories/matchingrule"
	"github.com/mmtuentertainment/apmatch/internal/repositories/matchjob"
	"github.com/mmtuentertainment/apmatch/internal/repositories/matchresult"
	"github.com/mmtuentertainment/apmatch/internal/repositories/purchaseorder"
	"github.com/mmtuentertainment/apmatch/internal/repositories/receipt"
	"github.com/mmtuentertainment/apmatch/internal/repositories/vendor"
	"github.com/mmtuentertainment/apmatch/internal/repositories/vendornormalization"
	"github.com/mmtuentertainment/apmatch/pkg/database"
	"github.com/mmtuentertainment/apmatch/pkg/events"
	"github.com/mmtuentertainment/apmatch/pkg/httpclient"
	"github.com/mmtuentertainment/apmatch/pkg/jobs"
	"github.com/mmtuentertainment/apmatch/pkg/kafka"
	"github.com/mmtuentertainment/apmatch/pkg/matching"
	"github.com/mmtuentertainment/apmatch/pkg/middleware"
	"github.com/mmtuentertainment/apmatch/pkg/normalizer"
	"github.com/mmtuentertainment/apmatch/pkg/redis"
	"github.com/mmtuentertainment/apmatch/pkg/routes/health"
	"github.com/mmtuentertainment/apmatch/pkg/startup"
	"github.com/mmtuentertainment/apmatch/pkg/tracing"
	"github.com/mmtuentertainment/apmatch/pkg/tracing/exporters"
)

var version = "dev"

// dependency adapts a start/stop closure pair to the startup orchestration
type dependency struct {
	name      string
	dependsOn []string
	start     func(ctx context.Context) error
	stop      func(ctx context.Context) error
}

func (d *dependency) GetName() string     { return d.name }
func (d *dependency) DependsOn() []string { return d.dependsOn }
func (d *dependency) Start(ctx context.Context) error {
	if d.start == nil {
		return nil
	}
	return d.start(ctx)
}
func (d *dependency) Stop(ctx context.Context) error {
	if d.stop == nil {
		return nil
	}
	return d.stop(ctx)
}

// redisPinger adapts the Redis client to the health checker
type redisPinger struct {
	client *redis.Client
}

func (p *redisPinger) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return p.client.Ping(ctx)
}

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Service exited with error")
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) ectologger.Logger {
	var zapLogger *zap.Logger
	if cfg.PrettyLogs {
		zapLogger, _ = zap.NewDevelopment()
	} else {
		zapLogger, _ = zap.NewProduction()
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func run(cfg config.Config, logger ectologger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(&exporters.ConsoleExporter{}),
	)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracerProvider.Shutdown(shutdownCtx)
	}()
	tracing.SetTracer(tracerProvider.Tracer(cfg.AppName))

	var (
		sqlxDB      *sqlx.DB
		db          database.DB
		redisClient *redis.Client
		producer    *kafka.Producer
	)

	startupService := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	startupService.AddDependency(&dependency{
		name: "postgres",
		start: func(ctx context.Context) error {
			connected, err := connectPostgres(cfg, logger)
			if err != nil {
				return err
			}
			sqlxDB = connected
			db = database.NewDatabaseInstance(sqlxDB, logger)
			return nil
		},
		stop: func(ctx context.Context) error {
			if sqlxDB == nil {
				return nil
			}
			return sqlxDB.Close()
		},
	})
	startupService.AddDependency(&dependency{
		name: "redis",
		start: func(ctx context.Context) error {
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
		stop: func(ctx context.Context) error {
			if redisClient == nil {
				return nil
			}
			return redisClient.Close()
		},
	})
	startupService.AddDependency(&dependency{
		name: "kafka",
		start: func(ctx context.Context) error {
			producer = kafka.NewProducer(kafka.ProducerConfig{
				Brokers:      cfg.KafkaBrokers,
				Topic:        cfg.KafkaOutputTopic,
				BatchSize:    cfg.KafkaBatchSize,
				BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
				RequiredAcks: cfg.KafkaRequiredAcks,
				Compression:  cfg.KafkaCompression,
			}, logger)
			return nil
		},
		stop: func(ctx context.Context) error {
			if producer == nil {
				return nil
			}
			return producer.Close()
		},
	})

	if err := startupService.Start(ctx); err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := startupService.Stop(stopCtx); err != nil {
			logger.WithError(err).Error("Failed to stop dependencies")
		}
	}()

	// Repositories
	vendorRepo := vendor.NewRepository(db, logger)
	normalizationRepo := vendornormalization.NewRepository(db, logger)
	invoiceRepo := invoice.NewRepository(db, logger)
	poRepo := purchaseorder.NewRepository(db, logger)
	receiptRepo := receipt.NewRepository(db, logger)
	resultRepo := matchresult.NewRepository(db, logger)
	exceptionRepo := matchexception.NewRepository(db, logger)
	ruleRepo := matchingrule.NewRepository(db, logger)
	jobRepo := matchjob.NewRepository(db, logger)
	auditRepo := auditevent.NewRepository(db, logger)

	// Queue, locks, events
	streams := redis.NewStreams(redisClient)
	locker := redis.NewLocker(redisClient, "")
	dlq := redis.NewDeadLetterQueue(redisClient, cfg.DLQStream, logger)
	emitter := events.NewEmitter(auditRepo, producer, logger)

	// Domain services
	normalizerService := normalizer.NewService(vendorRepo, normalizationRepo, normalizer.NewRedisMergeLocker(locker), emitter, normalizer.Options{
		SimilarityThreshold: cfg.VendorSimilarityThreshold,
		AutoMergeThreshold:  cfg.VendorAutoMergeThreshold,
		AutoMergeEnabled:    cfg.VendorAutoMergeEnabled,
	}, logger)

	finder := matching.NewCandidateFinder(poRepo, receiptRepo, cfg.MaxCandidates, logger)

	var enhancer matching.Enhancer
	if cfg.EnhancerEnabled {
		clientConfig := httpclient.DefaultConfig()
		clientConfig.Timeout = time.Duration(cfg.EnhancerTimeoutSeconds) * time.Second
		enhancer = matching.NewHTTPEnhancer(httpclient.NewClient(clientConfig, logger), cfg.EnhancerURL, logger)
	}

	engine := matching.NewEngine(invoiceRepo, vendorRepo, resultRepo, exceptionRepo, ruleRepo, finder, enhancer, emitter, logger)

	orchestrator := jobs.NewOrchestrator(jobRepo, invoiceRepo, engine, emitter, jobs.OrchestratorConfig{
		ProgressInterval: cfg.ProgressInterval,
		MaxErrors:        cfg.MaxJobErrors,
	}, logger)

	processorConfig := jobs.DefaultProcessorConfig()
	processorConfig.Stream = cfg.JobQueueStream
	processorConfig.ConsumerGroup = cfg.JobQueueConsumerGroup
	processorConfig.WorkerCount = cfg.JobQueueWorkerCount
	processorConfig.MaxRetries = cfg.JobQueueMaxRetries
	processor := jobs.NewProcessor(streams, dlq, orchestrator, normalizerService, processorConfig, logger)

	if err := processor.Start(context.Background()); err != nil {
		return fmt.Errorf("failed to start job processor: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = processor.Stop(stopCtx)
	}()

	// HTTP server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.HTTPErrorHandler = middleware.Error(logger)

	checker := health.NewChecker(sqlxDB, &redisPinger{client: redisClient}, version)
	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	handlers.NewVendorHandler(vendorRepo, normalizerService, logger).Register(api.Group("/vendors"))
	handlers.NewNormalizationHandler(normalizationRepo, normalizerService, streams, cfg.JobQueueStream, logger).Register(api.Group("/normalizations"))
	handlers.NewInvoiceHandler(invoiceRepo, resultRepo, exceptionRepo, engine, logger).Register(api.Group("/invoices"))
	handlers.NewPurchaseOrderHandler(poRepo, receiptRepo, logger).Register(api.Group("/purchase-orders"))
	handlers.NewReceiptHandler(receiptRepo, logger).Register(api.Group("/receipts"))
	handlers.NewMatchResultHandler(resultRepo, invoiceRepo, logger).Register(api.Group("/match-results"))
	handlers.NewExceptionHandler(exceptionRepo, emitter, logger).Register(api.Group("/exceptions"))
	handlers.NewMatchingRuleHandler(ruleRepo, logger).Register(api.Group("/matching-rules"))
	handlers.NewMatchJobHandler(jobRepo, streams, cfg.JobQueueStream, logger).Register(api.Group("/match-jobs"))
	handlers.NewAuditEventHandler(auditRepo, logger).Register(api.Group("/audit-events"))

	serverErr := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Infof("Starting %s on %s", cfg.AppName, addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	checker.SetReady(true)

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutdown signal received")
	checker.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}

	logger.Info("Shutdown complete")
	return nil
}

func connectPostgres(cfg config.Config, logger ectologger.Logger) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName, cfg.DatabasePassword,
		cfg.DatabaseName, cfg.DatabaseSSLMode)

	sqlxDB, err := sqlx.Connect(cfg.DatabaseDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlxDB.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	sqlxDB.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	sqlxDB.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

	driver, err := postgres.WithInstance(sqlxDB.DB, &postgres.Config{})
	if err != nil {
		sqlxDB.Close()
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	migrationService := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	if err := migrationService.Migrate(cfg.DatabaseName, driver); err != nil {
		sqlxDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Infof("Connected to PostgreSQL database %s", cfg.DatabaseName)
	return sqlxDB, nil
}
