package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

// Transport modes
const (
	TransportMemory = "memory"
	TransportAWS    = "aws"
)

// Storage modes
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	ServiceName string    `mapstructure:"service_name"`
	Env         string    `mapstructure:"env"`
	Port        string    `mapstructure:"port"`
	Transport   string    `mapstructure:"transport"`
	Storage     string    `mapstructure:"storage"`
	Database    Database  `mapstructure:"database"`
	AWS         AWS       `mapstructure:"aws"`
	Saga        Saga      `mapstructure:"saga"`
	Scheduler   Scheduler `mapstructure:"scheduler"`
	Endpoints   Endpoints `mapstructure:"endpoints"`
	Telemetry   Telemetry `mapstructure:"telemetry"`
}

type Database struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

type AWS struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Region          string `mapstructure:"region"`
	SNSTopicArn     string `mapstructure:"sns_topic_arn"`
	SQSQueueURL     string `mapstructure:"sqs_queue_url"`
}

// Saga holds the orchestrator timeout durations
type Saga struct {
	PaymentTimeout  time.Duration `mapstructure:"payment_timeout"`
	OrderExpiration time.Duration `mapstructure:"order_expiration"`
}

// Scheduler holds the timer dispatcher settings
type Scheduler struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// Endpoint holds the resilience settings for one logical consumer
type Endpoint struct {
	RetryDelays          []time.Duration `mapstructure:"retry_delays"`
	BreakerTripThreshold uint32          `mapstructure:"breaker_trip_threshold"`
	BreakerWindow        time.Duration   `mapstructure:"breaker_window"`
	BreakerResetInterval time.Duration   `mapstructure:"breaker_reset_interval"`
	BreakerHalfOpenTrial uint32          `mapstructure:"breaker_half_open_trials"`
	RateLimitEvents      int             `mapstructure:"rate_limit_events"`
	RateLimitWindow      time.Duration   `mapstructure:"rate_limit_window"`
	MaxConcurrency       int64           `mapstructure:"max_concurrency"`
}

// Endpoints groups the per-consumer policies
type Endpoints struct {
	Saga    Endpoint `mapstructure:"saga"`
	Stock   Endpoint `mapstructure:"stock"`
	Payment Endpoint `mapstructure:"payment"`
}

type Telemetry struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

func ReadConfig() (*Config, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return nil, fmt.Errorf("unable to get current file")
	}

	configDir := filepath.Join(filepath.Dir(filename))
	viper.SetConfigName(getConfigName())
	viper.SetConfigType("json")
	viper.AddConfigPath(configDir)

	// Allow environment variables to override config
	viper.AutomaticEnv()
	viper.SetEnvPrefix("ORDERS")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

func getConfigName() string {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		return "local"
	}
	return env
}

func setDefaults() {
	// Service defaults
	viper.SetDefault("service_name", "orders-service")
	viper.SetDefault("env", getEnv("ENV", "local"))
	viper.SetDefault("port", getEnv("PORT", "8080"))
	viper.SetDefault("transport", getEnv("TRANSPORT", TransportMemory))
	viper.SetDefault("storage", getEnv("STORAGE", StorageMemory))

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "password")
	viper.SetDefault("database.database", "order_system")
	viper.SetDefault("database.ssl_mode", "disable")

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		viper.Set("database.url", dbURL)
	}

	// AWS defaults (LocalStack-friendly)
	viper.SetDefault("aws.access_key_id", getEnv("AWS_ACCESS_KEY_ID", "test"))
	viper.SetDefault("aws.secret_access_key", getEnv("AWS_SECRET_ACCESS_KEY", "test"))
	viper.SetDefault("aws.region", getEnv("AWS_DEFAULT_REGION", "us-east-1"))
	viper.SetDefault("aws.sns_topic_arn", getEnv("SNS_TOPIC_ARN", "arn:aws:sns:us-east-1:000000000000:order-events"))
	viper.SetDefault("aws.sqs_queue_url", getEnv("SQS_QUEUE_URL", "http://localhost:4566/000000000000/order-events"))

	// Saga timeouts
	viper.SetDefault("saga.payment_timeout", "30s")
	viper.SetDefault("saga.order_expiration", "60s")

	// Scheduler
	viper.SetDefault("scheduler.poll_interval", "100ms")

	// Endpoint policies
	for _, endpoint := range []string{"saga", "stock", "payment"} {
		prefix := "endpoints." + endpoint + "."
		viper.SetDefault(prefix+"retry_delays", []string{"1s", "5s", "10s"})
		viper.SetDefault(prefix+"breaker_trip_threshold", 5)
		viper.SetDefault(prefix+"breaker_window", "1m")
		viper.SetDefault(prefix+"breaker_reset_interval", "30s")
		viper.SetDefault(prefix+"breaker_half_open_trials", 1)
		viper.SetDefault(prefix+"rate_limit_events", 0)
		viper.SetDefault(prefix+"rate_limit_window", "1s")
		viper.SetDefault(prefix+"max_concurrency", 10)
	}

	// Telemetry
	viper.SetDefault("telemetry.otlp_endpoint", getEnv("OTLP_ENDPOINT", ""))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetDatabaseURL constructs database URL from config
func (c *Config) GetDatabaseURL() string {
	if url := viper.GetString("database.url"); url != "" {
		return url
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}
