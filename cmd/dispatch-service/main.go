package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/joho/godotenv"

	"github.com/qtbui/notification-dispatch/internal/config"
	"github.com/qtbui/notification-dispatch/internal/delivery"
	"github.com/qtbui/notification-dispatch/internal/delivery/provider"
	"github.com/qtbui/notification-dispatch/internal/dispatch"
	"github.com/qtbui/notification-dispatch/internal/domain"
	"github.com/qtbui/notification-dispatch/internal/notification"
	"github.com/qtbui/notification-dispatch/internal/pool"
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

	defaultConfigPath := os.Getenv("DISPATCH_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/dispatch-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateDispatchConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting dispatch service",
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

	locator, err := initProviders(&cfg.Providers, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize delivery providers: %w", err)
	}

	templateStore := storage.NewTemplateStorage(dbClient)
	notificationStore := storage.NewNotificationStorage(dbClient, appLogger.Logger)
	resolver := template.NewResolver(templateStore)
	notifications := notification.NewManager(notificationStore, resolver, appLogger.Logger)

	events := dispatch.NewEventPublisher(rabbitClient)
	jobStore := queuestorage.NewStorage(dbClient.GetDB(), appLogger.Logger)
	jobQueue := queue.New(cfg.Queue.Name, jobStore, events, appLogger.Logger)

	deliveryHandler := dispatch.NewDeliveryHandler(locator, notifications, appLogger.Logger)

	manager := pool.NewManager(&pool.Config{
		Logger: appLogger.Logger,
		Queue:  jobQueue,
		Factory: func(id string) pool.Runner {
			return pool.NewWorker(id, jobQueue, deliveryHandler, cfg.Pool.PollInterval, appLogger.Logger)
		},
		MinWorkers:     cfg.Pool.MinWorkers,
		MaxWorkers:     cfg.Pool.MaxWorkers,
		ScaleThreshold: cfg.Pool.ScaleThreshold,
		CheckInterval:  cfg.Pool.CheckInterval,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager.Start(ctx)

	consumer := dispatch.NewEventConsumer(rabbitClient, manager, appLogger.Logger)
	if err := consumer.Start(ctx, cfg.App.Name); err != nil {
		return fmt.Errorf("failed to start event consumer: %w", err)
	}

	appLogger.Info("Dispatch service started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	appLogger.Info("Received signal, shutting down gracefully",
		slog.String("signal", sig.String()),
	)

	shutdownTimeout := cfg.Pool.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		manager.Shutdown()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker pool stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Pool shutdown timeout exceeded, forcing exit")
	}

	cancel()

	if dbClient != nil {
		dbClient.Close()
	}
	if rabbitClient != nil {
		rabbitClient.Close()
	}

	appLogger.Info("Dispatch service shutdown complete")
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

// initProviders builds and registers every configured delivery adapter
func initProviders(cfg *config.ProvidersConfig, logger *slog.Logger) (*delivery.Locator, error) {
	locator := delivery.NewLocator()

	if cfg.SendGrid.APIKey != "" {
		locator.Register(domain.ChannelEmail, provider.NewSendGridAdapter(provider.SendGridConfig{
			APIKey:    cfg.SendGrid.APIKey,
			FromEmail: cfg.SendGrid.FromEmail,
		}, logger))
	}

	if cfg.SES.Region != "" {
		sess, err := session.NewSession(&aws.Config{
			Region: aws.String(cfg.SES.Region),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create SES session: %w", err)
		}
		locator.Register(domain.ChannelEmail, provider.NewSESAdapter(sess, cfg.SES.FromEmail, logger))
	}

	if cfg.SMTP.Host != "" {
		locator.Register(domain.ChannelEmail, provider.NewSMTPAdapter(provider.SMTPConfig{
			Host:      cfg.SMTP.Host,
			Port:      cfg.SMTP.Port,
			User:      cfg.SMTP.User,
			Password:  cfg.SMTP.Password,
			FromEmail: cfg.SMTP.FromEmail,
		}, logger))
	}

	if cfg.Twilio.AccountSID != "" {
		locator.Register(domain.ChannelSMS, provider.NewTwilioAdapter(provider.TwilioConfig{
			AccountSID: cfg.Twilio.AccountSID,
			AuthToken:  cfg.Twilio.AuthToken,
			FromNumber: cfg.Twilio.FromNumber,
		}, logger))
	}

	if cfg.SNS.Region != "" {
		sess, err := session.NewSession(&aws.Config{
			Region: aws.String(cfg.SNS.Region),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create SNS session: %w", err)
		}
		locator.Register(domain.ChannelSMS, provider.NewSNSAdapter(sess, logger))
	}

	logger.Info("Delivery providers registered")

	return locator, nil
}
