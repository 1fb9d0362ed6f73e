package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Razorpay  RazorpayConfig
	Telemetry TelemetryConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port            string        `env:"SERVER_PORT" env-default:":8085"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" env-default:"15s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" env-default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"30s"`
	RateLimitRPS    float64       `env:"RATE_LIMIT_RPS" env-default:"100"`
	RateLimitBurst  int           `env:"RATE_LIMIT_BURST" env-default:"100"`
}

type DatabaseConfig struct {
	// Backend is "mysql" or "memory".
	Backend      string        `env:"STORAGE_BACKEND" env-default:"mysql"`
	Host         string        `env:"DB_HOST" env-default:"localhost"`
	Port         string        `env:"DB_PORT" env-default:"3306"`
	Username     string        `env:"DB_USER" env-default:"root"`
	Password     string        `env:"DB_PASS" env-default:"password"`
	Database     string        `env:"DB_NAME" env-default:"notary_payments"`
	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" env-default:"5"`
	MaxLifetime  time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"5m"`
	AutoMigrate  bool          `env:"DB_AUTO_MIGRATE" env-default:"true"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.Username, c.Password, c.Host, c.Port, c.Database)
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" env-default:"0"`
	// ReceiptDedup turns on the receipt claim cache for order creation.
	ReceiptDedup bool          `env:"ORDER_RECEIPT_DEDUP" env-default:"false"`
	ReceiptTTL   time.Duration `env:"ORDER_RECEIPT_TTL" env-default:"15m"`
}

type KafkaConfig struct {
	Brokers         []string `env:"KAFKA_BROKERS" env-default:"localhost:29092"`
	GroupID         string   `env:"KAFKA_GROUP_ID" env-default:"notary-payments"`
	MockMode        bool     `env:"KAFKA_MOCK_MODE" env-default:"true"`
	ConsumerEnabled bool     `env:"KAFKA_CONSUMER_ENABLED" env-default:"false"`
}

type RazorpayConfig struct {
	KeyID         string        `env:"RAZORPAY_KEY_ID"`
	KeySecret     string        `env:"RAZORPAY_KEY_SECRET"`
	WebhookSecret string        `env:"RAZORPAY_WEBHOOK_SECRET"`
	Timeout       time.Duration `env:"RAZORPAY_TIMEOUT" env-default:"10s"`
}

// String never includes the secrets.
func (c RazorpayConfig) String() string {
	return fmt.Sprintf("RazorpayConfig{KeyID:%s Timeout:%s WebhookConfigured:%t}", c.KeyID, c.Timeout, c.WebhookSecret != "")
}

type TelemetryConfig struct {
	Enabled        bool   `env:"OTEL_ENABLED" env-default:"false"`
	ServiceName    string `env:"OTEL_SERVICE_NAME" env-default:"notary-payments"`
	ServiceVersion string `env:"OTEL_SERVICE_VERSION" env-default:"1.0.0"`
	OTLPEndpoint   string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:"localhost:4318"`
	OTLPInsecure   bool   `env:"OTEL_EXPORTER_OTLP_INSECURE" env-default:"true"`
}

type LogConfig struct {
	Level string `env:"LOG_LEVEL" env-default:"info"`
}

var (
	ErrSharedGatewayKeys = errors.New("RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET must differ")
	ErrInvalidTimeout    = errors.New("RAZORPAY_TIMEOUT must be positive")
	ErrUnknownBackend    = errors.New("STORAGE_BACKEND must be mysql or memory")
)

// Load reads the configuration from the environment. Callers load .env first.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Razorpay.KeyID != "" && c.Razorpay.KeyID == c.Razorpay.KeySecret {
		return ErrSharedGatewayKeys
	}
	if c.Razorpay.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	switch c.Database.Backend {
	case "mysql", "memory":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Database.Backend)
	}
	return nil
}
