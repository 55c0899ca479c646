package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	JournalPath   string
	MetricsAddr   string
	APIAddr       string

	// Market data feed
	FeedWSURL string
	Pairs     string // comma-separated, e.g. "SOL/USDC,BONK/SOL"

	// Engine
	EvalMinInterval time.Duration

	// Queue
	QueueWorkers       int
	QueueRatePerSecond int
	QueueMaxAttempts   int

	// Execution
	SlippageBps float64

	// Notifications (empty disables the webhook)
	WebhookURL string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/bot.db"),
		JournalPath:   getEnv("JOURNAL_PATH", "data/journal.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		APIAddr:       getEnv("API_ADDR", ":8080"),

		FeedWSURL: mustEnv("FEED_WS_URL"),
		Pairs:     getEnv("PAIRS", "SOL/USDC"),

		EvalMinInterval: getEnvDuration("EVAL_MIN_INTERVAL", 5*time.Second),

		QueueWorkers:       getEnvInt("QUEUE_WORKERS", 5),
		QueueRatePerSecond: getEnvInt("QUEUE_RATE_PER_SECOND", 10),
		QueueMaxAttempts:   getEnvInt("QUEUE_MAX_ATTEMPTS", 3),

		SlippageBps: getEnvFloat("SLIPPAGE_BPS", 5),

		WebhookURL: getEnv("WEBHOOK_URL", ""),
	}
}

// ParsePairs splits the Pairs string into a clean slice.
func (c *Config) ParsePairs() []string {
	parts := strings.Split(c.Pairs, ",")
	pairs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		pairs = append(pairs, p)
	}
	return pairs
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %g", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return d
}
