package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/qtbui/notification-dispatch/internal/api/handler"
	"github.com/qtbui/notification-dispatch/internal/api/router"
	"github.com/qtbui/notification-dispatch/internal/config"
	"github.com/qtbui/notification-dispatch/internal/dispatch"
	"github.com/qtbui/notification-dispatch/internal/notification"
	"github.com/qtbui/notification-dispatch/internal/queue"
	queuestorage "github.com/qtbui/notification-dispatch/internal/queue/storage"
	"github.com/qtbui/notification-dispatch/internal/storage"
	"github.com/qtbui/notification-dispatch/internal/template"
	"github.com/qtbui/notification-dispatch/shared/logger"
	"github.com/qtbui/notification-dispatch/shared/postgresql"
	"github.com/qtbui/notification-dispatch/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	// Wire the dispatch front door: queue over Postgres, events over
	// RabbitMQ, notification records over the shared database.
	templateStore := storage.NewTemplateStorage(dbClient)
	notificationStore := storage.NewNotificationStorage(dbClient, appLogger.Logger)
	resolver := template.NewResolver(templateStore)
	notifications := notification.NewManager(notificationStore, resolver, appLogger.Logger)

	events := dispatch.NewEventPublisher(rabbitClient)
	jobStore := queuestorage.NewStorage(dbClient.GetDB(), appLogger.Logger)
	jobQueue := queue.New(cfg.Queue.Name, jobStore, events, appLogger.Logger)

	dispatcher := dispatch.NewDispatcher(&dispatch.Config{
		Logger:            appLogger.Logger,
		Queue:             jobQueue,
		Notifications:     notifications,
		DefaultJobOptions: defaultJobOptions(&cfg.Queue),
	})

	var limiter *router.RateLimiter
	var redisClient *redis.Client
	if cfg.Server.RateLimit.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		limiter = router.NewRateLimiter(redisClient, cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window, appLogger.Logger)
		appLogger.Info("Rate limiting enabled",
			slog.Int("requests", cfg.Server.RateLimit.Requests),
			slog.Duration("window", cfg.Server.RateLimit.Window),
		)
	}

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	r := router.SetupRouter(&handler.Dependencies{
		Logger:        appLogger.Logger,
		Dispatcher:    dispatcher,
		Notifications: notifications,
		Templates:     templateStore,
	}, limiter)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)

	cleanup := func() {
		cancel()
		dispatcher.Shutdown()
		if redisClient != nil {
			redisClient.Close()
		}
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}
	defer cleanup()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:              cfg.Host,
		Port:              cfg.Port,
		User:              cfg.User,
		Password:          cfg.Password,
		VHost:             cfg.VHost,
		ExchangeName:      cfg.Exchange.Name,
		ExchangeType:      cfg.Exchange.Type,
		QueueName:         cfg.Queue.Name,
		RoutingKey:        cfg.RoutingKey,
		RetryAttempts:     cfg.Connection.RetryAttempts,
		RetryInterval:     cfg.Connection.RetryInterval,
		Heartbeat:         cfg.Connection.Heartbeat,
		PublishRetries:    cfg.Publish.RetryAttempts,
		PublishRetryDelay: cfg.Publish.RetryInterval,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// defaultJobOptions maps the queue config section to job defaults
func defaultJobOptions(cfg *config.QueueConfig) queue.Options {
	return queue.Options{
		Attempts: cfg.Attempts,
		Backoff: queue.Backoff{
			Type:  cfg.BackoffType,
			Delay: cfg.BackoffDelay,
		},
		StallInterval: cfg.StallInterval,
		Timeout:       cfg.JobTimeout,
		RemoveOnComplete: queue.Retention{
			Count: cfg.KeepCompleted,
		},
		RemoveOnFail: queue.Retention{
			Age: cfg.KeepFailedAge,
		},
	}
}
