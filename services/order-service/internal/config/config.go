package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	AppName    string `mapstructure:"APP_NAME"`
	ListenAddr string `mapstructure:"LISTEN_ADDR"`

	// PostgreSQL
	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     int    `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	DBSSLMode  string `mapstructure:"DB_SSL_MODE"`

	// Redis
	RedisAddr     string        `mapstructure:"REDIS_ADDR"`
	CacheTTL      time.Duration `mapstructure:"CACHE_TTL"`
	RateLimit     int           `mapstructure:"RATE_LIMIT"`
	RateLimitSpan time.Duration `mapstructure:"RATE_LIMIT_SPAN"`

	// Kafka
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`

	// Payment provider
	GatewayBaseURL     string        `mapstructure:"GATEWAY_BASE_URL"`
	GatewayAccessToken string        `mapstructure:"GATEWAY_ACCESS_TOKEN"`
	GatewayTimeout     time.Duration `mapstructure:"GATEWAY_TIMEOUT"`
	WebhookSecret      string        `mapstructure:"WEBHOOK_SECRET"`
	NotificationURL    string        `mapstructure:"NOTIFICATION_URL"`
	CheckoutSuccessURL string        `mapstructure:"CHECKOUT_SUCCESS_URL"`
	CheckoutFailureURL string        `mapstructure:"CHECKOUT_FAILURE_URL"`
	CheckoutPendingURL string        `mapstructure:"CHECKOUT_PENDING_URL"`
	Currency           string        `mapstructure:"CURRENCY"`
	ReconcilerWorkers  int           `mapstructure:"RECONCILER_WORKERS"`

	// Stale order sweeping
	PendingOrderTTL time.Duration `mapstructure:"PENDING_ORDER_TTL"`
	SweepInterval   time.Duration `mapstructure:"SWEEP_INTERVAL"`
}

func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("app")
	viper.SetConfigType("env")

	viper.AutomaticEnv()

	viper.SetDefault("APP_NAME", "order-service")
	viper.SetDefault("LISTEN_ADDR", ":8080")

	viper.SetDefault("DB_HOST", "postgres")
	viper.SetDefault("DB_PORT", 5432)
	viper.SetDefault("DB_USER", "admin")
	viper.SetDefault("DB_PASSWORD", "")
	viper.SetDefault("DB_NAME", "bakehouse")
	viper.SetDefault("DB_SSL_MODE", "disable")

	viper.SetDefault("REDIS_ADDR", "redis:6379")
	viper.SetDefault("CACHE_TTL", 5*time.Minute)
	viper.SetDefault("RATE_LIMIT", 60)
	viper.SetDefault("RATE_LIMIT_SPAN", time.Minute)

	viper.SetDefault("KAFKA_BROKERS", "kafka:9092")

	viper.SetDefault("GATEWAY_BASE_URL", "https://api.mercadopago.com")
	viper.SetDefault("GATEWAY_TIMEOUT", 10*time.Second)
	viper.SetDefault("CURRENCY", "ARS")
	viper.SetDefault("RECONCILER_WORKERS", 4)

	viper.SetDefault("PENDING_ORDER_TTL", 48*time.Hour)
	viper.SetDefault("SWEEP_INTERVAL", 5*time.Minute)

	if readErr := viper.ReadInConfig(); readErr != nil {
		// Env-only operation is fine; the config file is optional.
		if _, ok := readErr.(viper.ConfigFileNotFoundError); !ok {
			return config, readErr
		}
	}

	err = viper.Unmarshal(&config)
	return
}

// BrokerList splits the configured Kafka brokers.
func (c Config) BrokerList() []string {
	return strings.Split(c.KafkaBrokers, ",")
}
