package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	AppEnv string
	Host   string
	Port   string

	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string
	DBSSLMode     string
	DBAutoMigrate bool

	// Receiving account of the static QR. One of the two is required.
	PromptPayPhone      string
	PromptPayNationalID string
	PaymentTTL          time.Duration
	QRImageBaseURL      string
	WebhookSecret       string

	PlatformUserID        string
	DefaultCommissionRate decimal.Decimal
	LedgerMaxRetries      int

	NotifyDriver string
	RedisAddr    string
	RedisPass    string
	KafkaBrokers []string
	KafkaTopic   string

	CarrierName   string
	CarrierAPIURL string
	CarrierAPIKey string

	ExpireSweepInterval time.Duration
}

func Load() Config {
	return Config{
		AppEnv: getEnv("APP_ENV", "production"),
		Host:   getEnv("HOST", "127.0.0.1"),
		Port:   getEnv("PORT", "3000"),

		DBHost:        getEnv("DB_HOST", "localhost"),
		DBPort:        getEnv("DB_PORT", "5432"),
		DBUser:        getEnv("DB_USER", "postgres"),
		DBPassword:    os.Getenv("DB_PASSWORD"),
		DBName:        getEnv("DB_NAME", "marketpay"),
		DBSSLMode:     getEnv("DB_SSLMODE", "disable"),
		DBAutoMigrate: getEnvBool("DB_AUTO_MIGRATE", false),

		PromptPayPhone:      os.Getenv("PROMPTPAY_PHONE"),
		PromptPayNationalID: os.Getenv("PROMPTPAY_NATIONAL_ID"),
		PaymentTTL:          getEnvDuration("PAYMENT_TTL", 15*time.Minute),
		QRImageBaseURL:      getEnv("QR_IMAGE_BASE_URL", "https://api.qrserver.com/v1/create-qr-code/?size=300x300"),
		WebhookSecret:       os.Getenv("WEBHOOK_SECRET"),

		PlatformUserID:        getEnv("PLATFORM_USER_ID", "platform"),
		DefaultCommissionRate: getEnvDecimal("DEFAULT_COMMISSION_RATE", decimal.NewFromInt(5)),
		LedgerMaxRetries:      getEnvInt("LEDGER_MAX_RETRIES", 8),

		NotifyDriver: getEnv("NOTIFY_DRIVER", "log"),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPass:    os.Getenv("REDIS_PASS"),
		KafkaBrokers: getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "settlement-events"),

		CarrierName:   os.Getenv("CARRIER_NAME"),
		CarrierAPIURL: os.Getenv("CARRIER_API_URL"),
		CarrierAPIKey: os.Getenv("CARRIER_API_KEY"),

		ExpireSweepInterval: getEnvDuration("EXPIRE_SWEEP_INTERVAL", time.Minute),
	}
}

func (c Config) Development() bool {
	return c.AppEnv == "development"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		return strings.Split(v, ",")
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func getEnvDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	d, err := decimal.NewFromString(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return d
}
