package config

import (
	"fmt"

	"github.com/caarlos0/env/v9"
)

const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	Store     string `env:"STORE" envDefault:"mysql"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	GitSHA    string `env:"GIT_SHA" envDefault:"dev"`
	BuildTime string `env:"BUILD_TIME"`

	FirebaseProjectID  string `env:"FIREBASE_PROJECT_ID"`
	ServiceTokenSecret string `env:"SERVICE_TOKEN_SECRET"`

	PaymentWebhookSecret string `env:"PAYMENT_WEBHOOK_SECRET"`
	PaymentCheckoutURL   string `env:"PAYMENT_CHECKOUT_URL" envDefault:"https://checkout.sandbox.local/pay"`

	RedisAddr    string   `env:"REDIS_ADDR"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"order.lifecycle"`
	OTLPEndpoint string   `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	PODBucket          string `env:"POD_BUCKET"`
	GCSCredentialsFile string `env:"GCS_CREDENTIALS_FILE"`

	// CORSOriginSuffixes are host suffixes allowed besides localhost.
	CORSOriginSuffixes []string `env:"CORS_ORIGIN_SUFFIXES" envSeparator:"," envDefault:"vercel.app"`

	Pricing  PricingConfig
	Delivery DeliveryConfig
	DB       DBConfig
}

type PricingConfig struct {
	VATPercent           int64 `env:"VAT_PERCENT" envDefault:"5"`
	DefaultMarginPercent int64 `env:"DEFAULT_MARGIN_PERCENT" envDefault:"15"`
	UrgentFeePercent     int64 `env:"URGENT_FEE_PERCENT" envDefault:"25"`
	ExpressFeePercent    int64 `env:"EXPRESS_FEE_PERCENT" envDefault:"50"`
}

type DeliveryConfig struct {
	MaxAttempts int `env:"MAX_DELIVERY_ATTEMPTS" envDefault:"3"`
}

type DBConfig struct {
	User                   string `env:"DB_USER"`
	Password               string `env:"DB_PASSWORD"`
	Host                   string `env:"DB_HOST"` // e.g. tcp(host:3306) or unix(/cloudsql/instance)
	Name                   string `env:"DB_NAME"`
	Port                   string `env:"DB_PORT" envDefault:"3306"`
	InstanceConnectionName string `env:"INSTANCE_CONNECTION_NAME"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Store {
	case StoreMemory:
	case StoreMySQL:
		if c.DB.User == "" || c.DB.Name == "" || (c.DB.Host == "" && c.DB.InstanceConnectionName == "") {
			return fmt.Errorf("config: DB_USER, DB_NAME and DB_HOST (or INSTANCE_CONNECTION_NAME) are required when STORE=%s", StoreMySQL)
		}
	default:
		return fmt.Errorf("config: unknown STORE %q", c.Store)
	}
	if c.Delivery.MaxAttempts < 1 {
		return fmt.Errorf("config: MAX_DELIVERY_ATTEMPTS must be positive")
	}
	return nil
}
