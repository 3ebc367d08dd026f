package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the console agent settings.
type Config struct {
	Port        string
	Environment string
	ServiceName string

	APIBaseURL string
	APIToken   string
	APITimeout time.Duration
	AdminID    string

	ChatSocketURL         string
	NotificationSocketURL string
	RetryDelay            time.Duration

	RecencyWindow  time.Duration
	ReadFlushDelay time.Duration
	TypingTimeout  time.Duration
	TypingInterval time.Duration

	UIJWTSecret    string
	AllowedOrigins []string

	DBDSN           string
	RedisURL        string
	AMQPURL         string
	AMQPExchange    string
	AuditRoutingKey string
	OTLPEndpoint    string
}

// Load reads the environment, after an optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: .env not loaded: %v", err)
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("APP_ENV", "development"),
		ServiceName: getEnv("SERVICE_NAME", "support-console"),

		APIBaseURL: strings.TrimRight(getEnv("API_BASE_URL", ""), "/"),
		APIToken:   getEnv("API_TOKEN", ""),
		APITimeout: getDuration("API_TIMEOUT", 15*time.Second),
		AdminID:    getEnv("ADMIN_ID", ""),

		ChatSocketURL:         getEnv("CHAT_SOCKET_URL", ""),
		NotificationSocketURL: getEnv("NOTIFICATION_SOCKET_URL", ""),
		RetryDelay:            getDuration("SOCKET_RETRY_DELAY", 3*time.Second),

		RecencyWindow:  getDuration("RECONCILE_WINDOW", 60*time.Second),
		ReadFlushDelay: getDuration("READ_FLUSH_DELAY", 300*time.Millisecond),
		TypingTimeout:  getDuration("TYPING_TIMEOUT", 5*time.Second),
		TypingInterval: getDuration("TYPING_INTERVAL", 2*time.Second),

		UIJWTSecret:    getEnv("UI_JWT_SECRET", ""),
		AllowedOrigins: getList("UI_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),

		DBDSN:           getEnv("DB_DSN", ""),
		RedisURL:        getEnv("REDIS_URL", ""),
		AMQPURL:         getEnv("AMQP_URL", ""),
		AMQPExchange:    getEnv("AMQP_EXCHANGE", "console.audit"),
		AuditRoutingKey: getEnv("AUDIT_ROUTING_KEY", "audit.console"),
		OTLPEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.APIBaseURL == "" {
		missing = append(missing, "API_BASE_URL")
	}
	if c.APIToken == "" {
		missing = append(missing, "API_TOKEN")
	}
	if c.ChatSocketURL == "" {
		missing = append(missing, "CHAT_SOCKET_URL")
	}
	if c.UIJWTSecret == "" {
		missing = append(missing, "UI_JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Printf("config: invalid %s=%q, using %s", key, raw, fallback)
		return fallback
	}
	return d
}

func getList(key string, fallback []string) []string {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
