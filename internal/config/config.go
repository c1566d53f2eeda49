package config

import (
	"errors"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenAddr string
	LogLevel   string
	LogFormat  string

	TelegramBotToken      string
	TelegramAPIURL        string
	TelegramWebhookURL    string
	TelegramWebhookSecret string
	TelegramPollTimeout   time.Duration
	ChannelID             string
	AccessURL             string
	AdminIDs              []int64

	OpenRouterAPIKey  string
	OpenRouterURL     string
	Model             string
	MaxTokens         int
	Temperature       float64
	CompletionTimeout time.Duration
	HistoryLimit      int
	HistoryMax        int

	KnowledgePaths   []string
	IllustrationFile string
	AssetDir         string

	RateLimitPerMin int
	MaxMessageLen   int
	SessionIdleTTL  time.Duration
	JanitorSchedule string

	AdminUsername string
	AdminPassword string
	JWTSecret     string
}

func Load() Config {
	return Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":"+getEnv("PORT", "10000")),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFormat:  getEnv("LOG_FORMAT", "json"),

		TelegramBotToken:      getEnv("BOT_TOKEN", ""),
		TelegramAPIURL:        getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
		TelegramWebhookURL:    getEnv("WEBHOOK_URL", ""),
		TelegramWebhookSecret: getEnv("TELEGRAM_WEBHOOK_SECRET", ""),
		TelegramPollTimeout:   getDuration("TELEGRAM_POLL_TIMEOUT", 30*time.Second),
		ChannelID:             getEnv("CHANNEL_ID", ""),
		AccessURL:             getEnv("ACCESS_URL", "https://t.me/tribute/app?startapp=sOg4"),
		AdminIDs:              getInt64List("ADMIN_IDS"),

		OpenRouterAPIKey:  getEnv("OPENROUTER_API_KEY", ""),
		OpenRouterURL:     getEnv("OPENROUTER_URL", "https://openrouter.ai/api/v1/chat/completions"),
		Model:             getEnv("MODEL", "anthropic/claude-3.5-haiku"),
		MaxTokens:         getInt("MAX_TOKENS", 1024),
		Temperature:       getFloat("TEMPERATURE", 0.7),
		CompletionTimeout: getDuration("COMPLETION_TIMEOUT", 60*time.Second),
		HistoryLimit:      getInt("HISTORY_LIMIT", 10),
		HistoryMax:        getInt("HISTORY_MAX", 20),

		KnowledgePaths:   getList("KNOWLEDGE_PATHS", []string{"strategy.docx", "strategy.txt"}),
		IllustrationFile: getEnv("ILLUSTRATION_FILE", ""),
		AssetDir:         getEnv("ASSET_DIR", "."),

		RateLimitPerMin: getInt("RATE_LIMIT_PER_MIN", 10),
		MaxMessageLen:   getInt("MAX_MESSAGE_LEN", 1000),
		SessionIdleTTL:  getDuration("SESSION_IDLE_TTL", 2*time.Hour),
		JanitorSchedule: getEnv("JANITOR_SCHEDULE", "@every 10m"),

		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		JWTSecret:     getEnv("JWT_SECRET", ""),
	}
}

// Validate checks the settings the bot cannot run without. Webhook mode
// additionally needs WEBHOOK_URL; that is checked by the serve command.
func (c Config) Validate() error {
	var errs []error
	if c.TelegramBotToken == "" {
		errs = append(errs, errors.New("BOT_TOKEN is required"))
	}
	if c.ChannelID == "" {
		errs = append(errs, errors.New("CHANNEL_ID is required"))
	}
	if c.OpenRouterAPIKey == "" {
		errs = append(errs, errors.New("OPENROUTER_API_KEY is required"))
	}
	if c.HistoryLimit < 0 || c.HistoryMax < c.HistoryLimit {
		errs = append(errs, errors.New("HISTORY_MAX must be at least HISTORY_LIMIT"))
	}
	if c.RateLimitPerMin <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_MIN must be positive"))
	}
	return errors.Join(errs...)
}

// IsAdmin reports whether userID may run admin commands. An empty admin list
// lets everyone through.
func (c Config) IsAdmin(userID int64) bool {
	return len(c.AdminIDs) == 0 || slices.Contains(c.AdminIDs, userID)
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getInt64List skips entries that are not integers.
func getInt64List(key string) []int64 {
	var out []int64
	for _, p := range getList(key, nil) {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}
