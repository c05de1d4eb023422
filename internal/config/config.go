package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Log      LogConfig
	Auth     AuthConfig
	Order    OrderConfig
	Payment  PaymentConfig
	MoMo     MoMoConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Stream   StreamConfig
}

type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrateOnStart  bool
}

type LogConfig struct {
	Level string
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

type OrderConfig struct {
	DeliveryFee      int64
	RefundMinAmount  int64
	MaxRetryAttempts int
	TxTimeout        time.Duration
	Currency         string
}

type PaymentConfig struct {
	Timeout         time.Duration
	PollInterval    time.Duration
	PollBatchSize   int
	PollConcurrency int
	VerifyWebhooks  bool
}

type MoMoConfig struct {
	BaseURL           string
	SubscriptionKey   string
	Environment       string
	TargetEnvironment string
	CallbackHost      string
	APIUser           string
	APIKey            string
	CountryCode       string
	RequestTimeout    time.Duration
	StatusRetries     int
}

// Sandbox reports whether API credentials must be provisioned at start.
func (c MoMoConfig) Sandbox() bool {
	return c.Environment != "production"
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	StatusTTL time.Duration
}

type KafkaConfig struct {
	Brokers     []string
	PushTopic   string
	EventsTopic string
	BufferSize  int
}

type StreamConfig struct {
	BufferSize      int
	MaxConnsPerUser int
	Heartbeat       time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	setDefaults(v)

	durations := map[string]time.Duration{}
	for _, key := range []string{
		"SERVER_SHUTDOWN_TIMEOUT",
		"DB_CONN_MAX_LIFETIME",
		"ORDER_TX_TIMEOUT",
		"PAYMENT_TIMEOUT",
		"PAYMENT_POLL_INTERVAL",
		"MOMO_REQUEST_TIMEOUT",
		"REDIS_STATUS_TTL",
		"STREAM_HEARTBEAT",
	} {
		d, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", key, err)
		}
		durations[key] = d
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetInt("SERVER_PORT"),
			ShutdownTimeout: durations["SERVER_SHUTDOWN_TIMEOUT"],
		},
		Database: DatabaseConfig{
			Host:            v.GetString("DB_HOST"),
			Port:            v.GetInt("DB_PORT"),
			User:            v.GetString("DB_USER"),
			Password:        v.GetString("DB_PASSWORD"),
			Name:            v.GetString("DB_NAME"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: durations["DB_CONN_MAX_LIFETIME"],
			MigrateOnStart:  v.GetBool("DB_MIGRATE_ON_START"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("JWT_SECRET"),
			Issuer:    v.GetString("JWT_ISSUER"),
		},
		Order: OrderConfig{
			DeliveryFee:      v.GetInt64("DELIVERY_FEE"),
			RefundMinAmount:  v.GetInt64("REFUND_MIN_AMOUNT"),
			MaxRetryAttempts: v.GetInt("ORDER_MAX_RETRY_ATTEMPTS"),
			TxTimeout:        durations["ORDER_TX_TIMEOUT"],
			Currency:         v.GetString("CURRENCY"),
		},
		Payment: PaymentConfig{
			Timeout:         durations["PAYMENT_TIMEOUT"],
			PollInterval:    durations["PAYMENT_POLL_INTERVAL"],
			PollBatchSize:   v.GetInt("PAYMENT_POLL_BATCH_SIZE"),
			PollConcurrency: v.GetInt("PAYMENT_POLL_CONCURRENCY"),
			VerifyWebhooks:  v.GetBool("PAYMENT_VERIFY_WEBHOOKS"),
		},
		MoMo: MoMoConfig{
			BaseURL:           strings.TrimRight(v.GetString("MTN_MOMO_BASE_URL"), "/"),
			SubscriptionKey:   v.GetString("MTN_MOMO_SUBSCRIPTION_KEY"),
			Environment:       v.GetString("MTN_MOMO_ENVIRONMENT"),
			TargetEnvironment: v.GetString("MTN_MOMO_TARGET_ENVIRONMENT"),
			CallbackHost:      v.GetString("MTN_MOMO_CALLBACK_HOST"),
			APIUser:           v.GetString("MTN_MOMO_API_USER"),
			APIKey:            v.GetString("MTN_MOMO_API_KEY"),
			CountryCode:       v.GetString("MTN_MOMO_COUNTRY_CODE"),
			RequestTimeout:    durations["MOMO_REQUEST_TIMEOUT"],
			StatusRetries:     v.GetInt("MTN_MOMO_STATUS_RETRIES"),
		},
		Redis: RedisConfig{
			Addr:      v.GetString("REDIS_ADDR"),
			Password:  v.GetString("REDIS_PASSWORD"),
			DB:        v.GetInt("REDIS_DB"),
			StatusTTL: durations["REDIS_STATUS_TTL"],
		},
		Kafka: KafkaConfig{
			Brokers:     splitList(v.GetString("KAFKA_BROKERS")),
			PushTopic:   v.GetString("KAFKA_PUSH_TOPIC"),
			EventsTopic: v.GetString("KAFKA_EVENTS_TOPIC"),
			BufferSize:  v.GetInt("KAFKA_BUFFER_SIZE"),
		},
		Stream: StreamConfig{
			BufferSize:      v.GetInt("STREAM_BUFFER_SIZE"),
			MaxConnsPerUser: v.GetInt("STREAM_MAX_CONNS_PER_USER"),
			Heartbeat:       durations["STREAM_HEARTBEAT"],
		},
	}

	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", "10s")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 3306)
	v.SetDefault("DB_USER", "foodmarket")
	v.SetDefault("DB_PASSWORD", "secret")
	v.SetDefault("DB_NAME", "foodmarket")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "5m")
	v.SetDefault("DB_MIGRATE_ON_START", true)

	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("DELIVERY_FEE", 500)
	v.SetDefault("REFUND_MIN_AMOUNT", 1000)
	v.SetDefault("ORDER_MAX_RETRY_ATTEMPTS", 3)
	v.SetDefault("ORDER_TX_TIMEOUT", "5s")
	v.SetDefault("CURRENCY", "XAF")

	v.SetDefault("PAYMENT_TIMEOUT", "5m")
	v.SetDefault("PAYMENT_POLL_INTERVAL", "15s")
	v.SetDefault("PAYMENT_POLL_BATCH_SIZE", 100)
	v.SetDefault("PAYMENT_POLL_CONCURRENCY", 8)
	v.SetDefault("PAYMENT_VERIFY_WEBHOOKS", true)

	v.SetDefault("MTN_MOMO_BASE_URL", "https://sandbox.momodeveloper.mtn.com")
	v.SetDefault("MTN_MOMO_ENVIRONMENT", "sandbox")
	v.SetDefault("MTN_MOMO_TARGET_ENVIRONMENT", "sandbox")
	v.SetDefault("MTN_MOMO_CALLBACK_HOST", "localhost")
	v.SetDefault("MTN_MOMO_COUNTRY_CODE", "242")
	v.SetDefault("MOMO_REQUEST_TIMEOUT", "15s")
	v.SetDefault("MTN_MOMO_STATUS_RETRIES", 3)

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_STATUS_TTL", "10m")

	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_PUSH_TOPIC", "notifications.push")
	v.SetDefault("KAFKA_EVENTS_TOPIC", "order.events")
	v.SetDefault("KAFKA_BUFFER_SIZE", 1024)

	v.SetDefault("STREAM_BUFFER_SIZE", 16)
	v.SetDefault("STREAM_MAX_CONNS_PER_USER", 5)
	v.SetDefault("STREAM_HEARTBEAT", "25s")
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
