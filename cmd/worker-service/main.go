package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/cuongbtq/connector-worker/internal/config"
	"github.com/cuongbtq/connector-worker/internal/connector"
	"github.com/cuongbtq/connector-worker/internal/connectors/echo"
	"github.com/cuongbtq/connector-worker/internal/expression"
	"github.com/cuongbtq/connector-worker/internal/secrets"
	"github.com/cuongbtq/connector-worker/internal/worker"
	"github.com/cuongbtq/connector-worker/internal/worker/storage"
	"github.com/cuongbtq/connector-worker/shared/logger"
	"github.com/cuongbtq/connector-worker/shared/postgresql"
	"github.com/cuongbtq/connector-worker/shared/rabbitmq"
	"github.com/cuongbtq/connector-worker/shared/redis"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
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

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.WithComponent("postgresql").Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	appLogger.Info("Database connection established")

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.WithComponent("rabbitmq").Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	appLogger.Info("RabbitMQ connection established")

	var redisClient *redis.Client
	if slices.Contains(cfg.Connector.Secrets.Sources, config.SecretSourceRedis) {
		redisClient, err = initRedis(&cfg.Redis, appLogger.WithComponent("redis").Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize Redis: %w", err)
		}
		defer redisClient.Close()

		appLogger.Info("Redis connection established")
	}

	secretProvider := initSecrets(&cfg.Connector.Secrets, appLogger.WithComponent("secrets").Logger, dbClient, redisClient)

	validate := validator.New()
	evaluator := expression.NewEvaluator()

	registry := worker.NewRegistry(&connector.HandlerConfig{
		Logger:                appLogger.WithComponent("connector").Logger,
		Secrets:               secretProvider,
		Evaluator:             evaluator,
		Predicate:             evaluator,
		Validate:              validate,
		DefaultBackoff:        cfg.Connector.DefaultRetryBackoff,
		MaxErrorMessageLength: cfg.Connector.MaxErrorMessageLength,
	})
	registry.Register(echo.JobType, echo.New())

	workerLogger := appLogger.WithComponent("worker").Logger
	workerInstance := worker.NewWorker(&worker.Config{
		Logger:             workerLogger,
		Store:              storage.NewStorage(dbClient.GetDB(), workerLogger),
		Broker:             rabbitClient,
		Registry:           registry,
		Validate:           validate,
		JobsQueue:          cfg.RabbitMQ.JobsQueue.Name,
		CommandsRoutingKey: cfg.RabbitMQ.CommandsQueue.RoutingKey,
		ConsumerTag:        cfg.RabbitMQ.Consumer.Tag,
		Concurrency:        cfg.Worker.Concurrency,
		BufferSize:         cfg.Worker.BufferSize,
		JobTimeout:         cfg.Worker.JobTimeout,
		CommitTimeout:      cfg.Worker.CommitTimeout,
		HeartbeatInterval:  cfg.Worker.HeartbeatInterval,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan error, 1)
	go func() {
		done <- workerInstance.Start(ctx)
	}()

	appLogger.Info("Worker service started successfully",
		slog.String("worker_id", workerInstance.ID()),
	)

	select {
	case err := <-done:
		if err != nil {
			appLogger.Error("Worker error", slog.Any("error", err))
			return err
		}
		appLogger.Info("Worker service shutdown complete")
		return nil
	case <-ctx.Done():
		appLogger.Info("Received signal, shutting down gracefully")
	}

	// in-flight jobs keep running; wait for their commits up to the shutdown timeout
	select {
	case err := <-done:
		if err != nil {
			appLogger.Error("Worker error", slog.Any("error", err))
		}
		appLogger.Info("Worker stopped gracefully")
	case <-time.After(cfg.Worker.ShutdownTimeout):
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableSource,
		TimeFormat:   time.RFC3339,
	})
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(&postgresql.Config{
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
	}, logger)
}

// initRabbitMQ declares both the jobs queue the worker consumes
// and the commands queue it reports outcomes to
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	queues := make([]rabbitmq.QueueConfig, 0, 2)
	for _, q := range []config.QueueConfig{cfg.JobsQueue, cfg.CommandsQueue} {
		queues = append(queues, rabbitmq.QueueConfig{
			Name:       q.Name,
			RoutingKey: q.RoutingKey,
			Durable:    q.Durable,
			AutoDelete: q.AutoDelete,
			Exclusive:  q.Exclusive,
		})
	}

	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		Queues:             queues,
		Prefetch:           cfg.Consumer.PrefetchCount,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}, logger)
}

// initRedis initializes the Redis client backing the redis secret source
func initRedis(cfg *config.RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	return redis.NewClient(&redis.Config{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}, logger)
}

// initSecrets builds the provider chain in the configured order
func initSecrets(cfg *config.SecretsConfig, logger *slog.Logger, dbClient *postgresql.Client, redisClient *redis.Client) connector.SecretProvider {
	providers := make([]connector.SecretProvider, 0, len(cfg.Sources))
	for _, source := range cfg.Sources {
		switch source {
		case config.SecretSourceEnv:
			providers = append(providers, secrets.NewEnvProvider(cfg.EnvPrefix))
		case config.SecretSourcePostgres:
			providers = append(providers, secrets.NewPostgresProvider(dbClient.GetDB()))
		case config.SecretSourceRedis:
			providers = append(providers, secrets.NewRedisProvider(redisClient.GetClient()))
		}
	}

	logger.Info("Secret providers configured", slog.Any("sources", cfg.Sources))
	return secrets.NewAggregator(logger, providers...)
}
