package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	MaxRetries  int
	DialTimeout int
	Timeout     int
	Prefix      string
}

// ProcessorConfig carries payment processor credentials. Injected into the
// adapter at startup; nothing reads these globally.
type ProcessorConfig struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
	Timeout       time.Duration
	MaxRetries    int
}

type AppConfig struct {
	Port              string
	Postgres          PostgresConfig
	Redis             RedisConfig
	Processor         ProcessorConfig
	ReportDir         string
	FilesPublicPrefix string
	ExternalURL       string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func mustAtoi(s string) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int value %q: %v", s, err)
	}
	return i
}

func Load() AppConfig {
	return AppConfig{
		Port: getenv("APP_PORT", "8020"),
		Postgres: PostgresConfig{
			Host:     getenv("PG_HOST", "127.0.0.1"),
			Port:     mustAtoi(getenv("PG_PORT", "5432")),
			User:     getenv("PG_USER", "root"),
			Password: getenv("PG_PASSWORD", ""),
			DBName:   getenv("PG_DB", "expertpay"),
			SSLMode:  getenv("PG_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:        getenv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:    getenv("REDIS_PASSWORD", ""),
			DB:          mustAtoi(getenv("REDIS_DB", "0")),
			MaxRetries:  mustAtoi(getenv("REDIS_MAX_RETRIES", "5")),
			DialTimeout: mustAtoi(getenv("REDIS_DIAL_TIMEOUT", "10")),
			Timeout:     mustAtoi(getenv("REDIS_TIMEOUT", "5")),
			Prefix:      getenv("REDIS_PREFIX", "expertpay:"),
		},
		Processor: ProcessorConfig{
			BaseURL:       getenv("PROCESSOR_BASE_URL", "https://api.processor.example"),
			APIKey:        getenv("PROCESSOR_API_KEY", ""),
			WebhookSecret: getenv("PROCESSOR_WEBHOOK_SECRET", ""),
			Timeout:       time.Duration(mustAtoi(getenv("PROCESSOR_TIMEOUT", "10"))) * time.Second,
			MaxRetries:    mustAtoi(getenv("PROCESSOR_MAX_RETRIES", "3")),
		},
		ReportDir:         getenv("REPORT_DIR", "./reports"),
		FilesPublicPrefix: getenv("FILES_PUBLIC_PREFIX", "/files"),
		ExternalURL:       getenv("EXTERNAL_URL", ""),
	}
}
