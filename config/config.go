package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultServerPort       = 8080
	defaultUpstreamTimeout  = 15 * time.Second
	defaultTimezoneOffset   = 1 // West Africa Time, UTC+1, без перехода на летнее время
	defaultTimezoneName     = "WAT"
	defaultRefreshSchedule  = "@every 30s"
	defaultVoteRateLimit    = 20
	defaultMaxVotes         = 100_000_000
	defaultRateLimitPrefix  = "talentvote:rate_limit"
	defaultGatewayBaseURL   = "https://api.fedapay.com"
	defaultEventsExchange   = "voting_events"
	defaultWebhookTolerance = 5 * time.Minute
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	ServerPort     int
	DatabaseURL    string
	JWTSecretKey   string
	AllowedOrigins []string

	BackendBaseURL  string
	BackendAPIToken string
	UpstreamTimeout time.Duration

	GatewayBaseURL          string
	GatewaySecretKey        string
	GatewayWebhookSecret    string
	GatewayWebhookTolerance time.Duration
	OperatorEmail           string

	TimezoneName   string
	TimezoneOffset int

	EventRefreshSchedule string

	RedisURL            string
	RateLimitPrefix     string
	VoteRateLimitPerMin int
	// MaxVotesPerSubmission - верхняя граница голосов в одной покупке.
	MaxVotesPerSubmission int64
	RabbitMQURL           string
	EventsExchange        string
	R2AccountID           string
	R2AccessKeyID         string
	R2SecretAccessKey     string
	R2BucketName          string
	R2PublicBaseURL       string
	SwaggerDocURL         string
}

// Location returns the fixed zone phase windows are evaluated in.
func (c *Config) Location() *time.Location {
	return time.FixedZone(c.TimezoneName, c.TimezoneOffset*3600)
}

// ArchiveEnabled reports whether the R2 credentials are complete.
func (c *Config) ArchiveEnabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != "" && c.R2BucketName != ""
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		JWTSecretKey:         os.Getenv("JWT_SECRET_KEY"),
		BackendBaseURL:       strings.TrimRight(os.Getenv("BACKEND_BASE_URL"), "/"),
		BackendAPIToken:      os.Getenv("BACKEND_API_TOKEN"),
		GatewayBaseURL:       strings.TrimRight(getEnvOrDefault("GATEWAY_BASE_URL", defaultGatewayBaseURL), "/"),
		GatewaySecretKey:     os.Getenv("GATEWAY_SECRET_KEY"),
		GatewayWebhookSecret: os.Getenv("GATEWAY_WEBHOOK_SECRET"),
		OperatorEmail:        os.Getenv("OPERATOR_EMAIL"),
		TimezoneName:         getEnvOrDefault("PHASE_TIMEZONE_NAME", defaultTimezoneName),
		EventRefreshSchedule: getEnvOrDefault("EVENT_REFRESH_SCHEDULE", defaultRefreshSchedule),
		RedisURL:             os.Getenv("REDIS_URL"),
		RateLimitPrefix:      getEnvOrDefault("REDIS_RATE_LIMIT_PREFIX", defaultRateLimitPrefix),
		RabbitMQURL:          os.Getenv("RABBITMQ_URL"),
		EventsExchange:       getEnvOrDefault("EVENTS_EXCHANGE", defaultEventsExchange),
		R2AccountID:          os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:        os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey:    os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:         os.Getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:      os.Getenv("R2_PUBLIC_BASE_URL"),
		SwaggerDocURL:        getEnvOrDefault("SWAGGER_DOC_URL", "/swagger/doc.json"),
	}

	required := []struct {
		name  string
		value string
	}{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"JWT_SECRET_KEY", cfg.JWTSecretKey},
		{"BACKEND_BASE_URL", cfg.BackendBaseURL},
		{"GATEWAY_SECRET_KEY", cfg.GatewaySecretKey},
		{"GATEWAY_WEBHOOK_SECRET", cfg.GatewayWebhookSecret},
		{"OPERATOR_EMAIL", cfg.OperatorEmail},
	}
	for _, r := range required {
		if r.value == "" {
			return nil, fmt.Errorf("%s environment variable is not set", r.name)
		}
	}

	port, err := getEnvInt("SERVER_PORT", defaultServerPort)
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}
	cfg.ServerPort = port

	cfg.UpstreamTimeout, err = getEnvDuration("UPSTREAM_TIMEOUT", defaultUpstreamTimeout)
	if err != nil {
		return nil, err
	}
	if cfg.UpstreamTimeout <= 0 {
		return nil, fmt.Errorf("UPSTREAM_TIMEOUT must be positive, got %s", cfg.UpstreamTimeout)
	}

	cfg.GatewayWebhookTolerance, err = getEnvDuration("GATEWAY_WEBHOOK_TOLERANCE", defaultWebhookTolerance)
	if err != nil {
		return nil, err
	}

	cfg.TimezoneOffset, err = getEnvInt("PHASE_TIMEZONE_OFFSET_HOURS", defaultTimezoneOffset)
	if err != nil {
		return nil, err
	}
	if cfg.TimezoneOffset < -12 || cfg.TimezoneOffset > 14 {
		return nil, fmt.Errorf("PHASE_TIMEZONE_OFFSET_HOURS must be between -12 and 14, got %d", cfg.TimezoneOffset)
	}

	cfg.VoteRateLimitPerMin, err = getEnvInt("VOTE_RATE_LIMIT_PER_MINUTE", defaultVoteRateLimit)
	if err != nil {
		return nil, err
	}

	cfg.MaxVotesPerSubmission, err = getEnvInt64("MAX_VOTES_PER_SUBMISSION", defaultMaxVotes)
	if err != nil {
		return nil, err
	}
	if cfg.MaxVotesPerSubmission < 1 {
		return nil, fmt.Errorf("MAX_VOTES_PER_SUBMISSION must be positive, got %d", cfg.MaxVotesPerSubmission)
	}

	cfg.AllowedOrigins = splitList(getEnvOrDefault("ALLOWED_ORIGINS", "https://*,http://*"))

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}

func getEnvInt64(key string, defaultValue int64) (int64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
