package config

import (
	"os"
	"strconv"
	"strings"
)

// Config centralizes runtime settings for the relay API and its event worker.
type Config struct {
	Port string

	LogLevel  string
	LogFormat string

	DatabaseURL   string
	DBAutoMigrate bool

	LineChannelAccessToken string
	LineChannelSecret      string
	LineAPIBaseURL         string
	LineTimeoutMS          int

	AdminUserID string

	PushMaxRetries     int
	PushRetryBackoffMS int
	PushProbeEnabled   bool
	ReporterAckEnabled bool

	KeywordsDone           []string
	KeywordsStatus         []string
	KeywordsHelp           []string
	CommandCaseInsensitive bool
	StatusRecentLimit      int
	DisplayTimezone        string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisStream   string
	RedisDLQ      string
	RedisGroup    string
	RedisConsumer string

	QueueMaxAttempts int
	EventConcurrency int

	EventDedupeTTLSeconds int
	EventDedupeMaxEntries int

	RateLimitRPS   float64
	RateLimitBurst int

	StaticDir string
}

func Load() Config {
	return Config{
		Port: getEnv("PORT", "8080"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		DBAutoMigrate: getEnvBool("DB_AUTO_MIGRATE", true),

		LineChannelAccessToken: getEnvFirst("", "LINE_CHANNEL_ACCESS_TOKEN", "CHANNEL_ACCESS_TOKEN"),
		LineChannelSecret:      getEnvFirst("", "LINE_CHANNEL_SECRET", "CHANNEL_SECRET"),
		LineAPIBaseURL:         getEnv("LINE_API_BASE_URL", "https://api.line.me"),
		LineTimeoutMS:          getEnvInt("LINE_TIMEOUT_MS", 10000),

		AdminUserID: strings.TrimSpace(getEnv("ADMIN_USER_ID", "")),

		PushMaxRetries:     getEnvInt("PUSH_MAX_RETRIES", 1),
		PushRetryBackoffMS: getEnvInt("PUSH_RETRY_BACKOFF_MS", 2000),
		PushProbeEnabled:   getEnvBool("PUSH_PROBE_ENABLED", true),
		ReporterAckEnabled: getEnvBool("REPORTER_ACK_ENABLED", true),

		KeywordsDone:           getEnvList("KEYWORDS_DONE", []string{"เรียบร้อย", "done"}),
		KeywordsStatus:         getEnvList("KEYWORDS_STATUS", []string{"รายงาน", "status"}),
		KeywordsHelp:           getEnvList("KEYWORDS_HELP", []string{"help", "ช่วยเหลือ"}),
		CommandCaseInsensitive: getEnvBool("COMMAND_CASE_INSENSITIVE", true),
		StatusRecentLimit:      getEnvInt("STATUS_RECENT_LIMIT", 5),
		DisplayTimezone:        getEnv("DISPLAY_TIMEZONE", "Asia/Bangkok"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisStream:   getEnv("REDIS_STREAM", "line_events"),
		RedisDLQ:      getEnv("REDIS_DLQ_STREAM", "line_events_dlq"),
		RedisGroup:    getEnv("REDIS_GROUP", "relay_workers"),
		RedisConsumer: getEnv("REDIS_CONSUMER", "relay-1"),

		QueueMaxAttempts: getEnvInt("QUEUE_MAX_ATTEMPTS", 3),
		EventConcurrency: getEnvInt("EVENT_CONCURRENCY", 8),

		EventDedupeTTLSeconds: getEnvInt("EVENT_DEDUPE_TTL_SECONDS", 600),
		EventDedupeMaxEntries: getEnvInt("EVENT_DEDUPE_MAX_ENTRIES", 10000),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 10),

		StaticDir: getEnv("STATIC_DIR", "public"),
	}
}

// AdminConfigured reports whether admin gating and admin alerts are active.
func (c Config) AdminConfigured() bool {
	return c.AdminUserID != ""
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

// getEnvFirst returns the first non-empty value among keys.
func getEnvFirst(fallback string, keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	items := make([]string, 0)
	for _, raw := range strings.Split(value, ",") {
		item := strings.TrimSpace(raw)
		if item == "" {
			continue
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}
