package config

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Secret source names accepted in connector.secrets.sources
const (
	SecretSourceEnv      = "env"
	SecretSourcePostgres = "postgres"
	SecretSourceRedis    = "redis"
)

// Config represents the complete application configuration.
// Values come from YAML first; environment variables override them.
type Config struct {
	App       AppConfig       `yaml:"app" envPrefix:"APP_"`
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Database  DatabaseConfig  `yaml:"database" envPrefix:"DATABASE_"`
	Redis     RedisConfig     `yaml:"redis" envPrefix:"REDIS_"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq" envPrefix:"RABBITMQ_"`
	Logging   LoggingConfig   `yaml:"logging" envPrefix:"LOG_"`
	Worker    WorkerConfig    `yaml:"worker" envPrefix:"WORKER_"`
	Connector ConnectorConfig `yaml:"connector" envPrefix:"CONNECTOR_"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name" env:"NAME"`
	Version     string `yaml:"version" env:"VERSION"`
	Environment string `yaml:"environment" env:"ENV"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" env:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Database        string        `yaml:"database" env:"NAME"`
	SSLMode         string        `yaml:"sslmode" env:"SSLMODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" env:"CONN_MAX_IDLE_TIME"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr         string        `yaml:"addr" env:"ADDR"`
	Password     string        `yaml:"password" env:"PASSWORD"`
	DB           int           `yaml:"db" env:"DB"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host          string           `yaml:"host" env:"HOST"`
	Port          int              `yaml:"port" env:"PORT"`
	User          string           `yaml:"user" env:"USER"`
	Password      string           `yaml:"password" env:"PASSWORD"`
	VHost         string           `yaml:"vhost" env:"VHOST"`
	Exchange      ExchangeConfig   `yaml:"exchange"`
	JobsQueue     QueueConfig      `yaml:"jobs_queue"`
	CommandsQueue QueueConfig      `yaml:"commands_queue"`
	Connection    ConnectionConfig `yaml:"connection"`
	Publish       PublishConfig    `yaml:"publish"`
	Consumer      ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	RoutingKey string `yaml:"routing_key"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int    `yaml:"prefetch_count"`
	Tag           string `yaml:"tag"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level" env:"LEVEL"`
	Format       string `yaml:"format" env:"FORMAT"`
	Output       string `yaml:"output" env:"OUTPUT"`
	EnableSource bool   `yaml:"enable_source" env:"ENABLE_SOURCE"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency       int           `yaml:"concurrency" env:"CONCURRENCY"`
	BufferSize        int           `yaml:"buffer_size" env:"BUFFER_SIZE"`
	JobTimeout        time.Duration `yaml:"job_timeout" env:"JOB_TIMEOUT"`
	CommitTimeout     time.Duration `yaml:"commit_timeout" env:"COMMIT_TIMEOUT"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" env:"HEARTBEAT_INTERVAL"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// ConnectorConfig controls how job outcomes are reported
type ConnectorConfig struct {
	MaxErrorMessageLength int           `yaml:"max_error_message_length" env:"MAX_ERROR_MESSAGE_LENGTH"`
	DefaultRetryBackoff   time.Duration `yaml:"default_retry_backoff" env:"DEFAULT_RETRY_BACKOFF"`
	Secrets               SecretsConfig `yaml:"secrets" envPrefix:"SECRETS_"`
}

// SecretsConfig selects the secret providers, queried in order
type SecretsConfig struct {
	Sources   []string `yaml:"sources" env:"SOURCES" envSeparator:","`
	EnvPrefix string   `yaml:"env_prefix" env:"ENV_PREFIX"`
}

// Load reads the configuration file and applies environment overrides
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Connector.MaxErrorMessageLength <= 0 {
		c.Connector.MaxErrorMessageLength = 6000
	}
	if c.Worker.BufferSize <= 0 {
		c.Worker.BufferSize = c.Worker.Concurrency
	}
	if c.RabbitMQ.Consumer.Tag == "" {
		c.RabbitMQ.Consumer.Tag = c.App.Name
	}
	if len(c.Connector.Secrets.Sources) == 0 {
		c.Connector.Secrets.Sources = []string{SecretSourceEnv}
	}
}

func validatePort(name string, port int) error {
	if port < MinPort || port > MaxPort {
		return fmt.Errorf("invalid %s port: %d (must be between %d and %d)", name, port, MinPort, MaxPort)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if err := validatePort("database", c.Database.Port); err != nil {
		return err
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}
	if err := validatePort("rabbitmq", c.RabbitMQ.Port); err != nil {
		return err
	}
	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}
	if c.RabbitMQ.JobsQueue.Name == "" || c.RabbitMQ.JobsQueue.RoutingKey == "" {
		return fmt.Errorf("rabbitmq jobs queue name and routing key are required")
	}
	return nil
}

// ValidateAPIConfig checks the settings the job API needs
func (c *Config) ValidateAPIConfig() error {
	if err := validatePort("server", c.Server.Port); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	return c.validateRabbitMQ()
}

// ValidateWorkerConfig checks the settings the worker needs
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateRabbitMQ(); err != nil {
		return err
	}
	if c.RabbitMQ.CommandsQueue.Name == "" || c.RabbitMQ.CommandsQueue.RoutingKey == "" {
		return fmt.Errorf("rabbitmq commands queue name and routing key are required")
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}
	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}
	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.Connector.DefaultRetryBackoff < 0 {
		return fmt.Errorf("connector default_retry_backoff must not be negative")
	}
	for _, source := range c.Connector.Secrets.Sources {
		if !slices.Contains([]string{SecretSourceEnv, SecretSourcePostgres, SecretSourceRedis}, source) {
			return fmt.Errorf("unknown secret source: %s", source)
		}
		if source == SecretSourceRedis && c.Redis.Addr == "" {
			return fmt.Errorf("redis addr is required for the redis secret source")
		}
	}

	return nil
}
