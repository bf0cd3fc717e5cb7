package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
	App       AppConfig       `yaml:"app"`
	Queue     QueueConfig     `yaml:"queue"`
	Pool      PoolConfig      `yaml:"pool"`
	Providers ProvidersConfig `yaml:"providers"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int             `yaml:"port"`
	ReadTimeout     time.Duration   `yaml:"read_timeout"`
	WriteTimeout    time.Duration   `yaml:"write_timeout"`
	IdleTimeout     time.Duration   `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig holds per-client request limiting settings
type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds connection and event exchange configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      EventQueueConfig `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// EventQueueConfig holds the RabbitMQ queue receiving job events
type EventQueueConfig struct {
	Name string `yaml:"name"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// RedisConfig holds Redis connection settings for rate limiting
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// QueueConfig holds the delivery queue name and default job policy
type QueueConfig struct {
	Name          string        `yaml:"name"`
	Attempts      int           `yaml:"attempts"`
	BackoffType   string        `yaml:"backoff_type"`
	BackoffDelay  time.Duration `yaml:"backoff_delay"`
	StallInterval time.Duration `yaml:"stall_interval"`
	JobTimeout    time.Duration `yaml:"job_timeout"`
	KeepCompleted int           `yaml:"keep_completed"`
	KeepFailedAge time.Duration `yaml:"keep_failed_age"`
}

// PoolConfig holds adaptive worker pool settings
type PoolConfig struct {
	MinWorkers      int           `yaml:"min_workers"`
	MaxWorkers      int           `yaml:"max_workers"`
	ScaleThreshold  int           `yaml:"scale_threshold"`
	CheckInterval   time.Duration `yaml:"check_interval"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ProvidersConfig holds delivery vendor settings. Secrets come from the
// environment, never from the config file.
type ProvidersConfig struct {
	SendGrid SendGridConfig `yaml:"sendgrid"`
	SES      SESConfig      `yaml:"ses"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Twilio   TwilioConfig   `yaml:"twilio"`
	SNS      SNSConfig      `yaml:"sns"`
}

// SendGridConfig holds SendGrid settings. APIKey comes from SENDGRID_API_KEY.
type SendGridConfig struct {
	FromEmail string `yaml:"from_email"`
	APIKey    string `yaml:"-"`
}

// SESConfig holds AWS SES settings
type SESConfig struct {
	Region    string `yaml:"region"`
	FromEmail string `yaml:"from_email"`
}

// SMTPConfig holds SMTP relay settings. Password comes from SMTP_PASSWORD.
type SMTPConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	User      string `yaml:"user"`
	FromEmail string `yaml:"from_email"`
	Password  string `yaml:"-"`
}

// TwilioConfig holds Twilio settings. Credentials come from
// TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN.
type TwilioConfig struct {
	FromNumber string `yaml:"from_number"`
	AccountSID string `yaml:"-"`
	AuthToken  string `yaml:"-"`
}

// SNSConfig holds AWS SNS settings
type SNSConfig struct {
	Region string `yaml:"region"`
}

// Load reads and parses the configuration file, then fills provider
// secrets from the environment.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.Providers.SendGrid.APIKey = os.Getenv("SENDGRID_API_KEY")
	config.Providers.SMTP.Password = os.Getenv("SMTP_PASSWORD")
	config.Providers.Twilio.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	config.Providers.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")

	return &config, nil
}

// ValidateAPIConfig checks the fields the API service depends on
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateShared(); err != nil {
		return err
	}

	if c.Server.RateLimit.Enabled {
		if c.Server.RateLimit.Requests <= 0 {
			return fmt.Errorf("rate limit requests must be greater than 0")
		}
		if c.Server.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit window must be greater than 0")
		}
		if c.Redis.Host == "" {
			return fmt.Errorf("redis host is required when rate limiting is enabled")
		}
	}

	return nil
}

// ValidateDispatchConfig checks the fields the dispatch service depends on
func (c *Config) ValidateDispatchConfig() error {
	if err := c.validateShared(); err != nil {
		return err
	}

	if c.Pool.MinWorkers <= 0 {
		return fmt.Errorf("pool min_workers must be greater than 0")
	}

	if c.Pool.MaxWorkers < c.Pool.MinWorkers {
		return fmt.Errorf("pool max_workers must be at least min_workers")
	}

	if c.Pool.ScaleThreshold <= 0 {
		return fmt.Errorf("pool scale_threshold must be greater than 0")
	}

	if c.Pool.CheckInterval <= 0 {
		return fmt.Errorf("pool check_interval must be greater than 0")
	}

	if c.Queue.JobTimeout <= 0 {
		return fmt.Errorf("queue job_timeout must be greater than 0")
	}

	return nil
}

// validateShared covers the sections both services need
func (c *Config) validateShared() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	if c.Queue.Name == "" {
		return fmt.Errorf("queue name is required")
	}

	return nil
}
