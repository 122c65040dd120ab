package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type ServerConfig struct {
	Port           int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	DSN string
}

type RedisConfig struct {
	URL string
}

type CRMConfig struct {
	WebhookURL string
}

type AIConfig struct {
	BaseURL string
	Token   string
}

type StorageConfig struct {
	EndpointURL string
	Bucket      string
	Region      string
	AccessKey   string
	SecretKey   string
}

type TelegramConfig struct {
	BotToken string
	ChatID   string
}

type ScraperConfig struct {
	// BrowserURL is the control URL of a remote browser. Empty means
	// rod launches its own local browser.
	BrowserURL  string
	DownloadDir string
}

type WorkerConfig struct {
	MaxConcurrentTenders int
	PollIntervalMs       int
}

type RateLimitConfig struct {
	DefaultPerMinute int
}

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	CRM         CRMConfig
	IntakeToken string
	AI          AIConfig
	Storage     StorageConfig
	Telegram    TelegramConfig
	Scraper     ScraperConfig
	Worker      WorkerConfig
	RateLimit   RateLimitConfig
	LogFile     string
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// Load reads configuration from the environment. Database settings may be
// given either as a full DATABASE_URL or as the individual POSTGRES_* parts.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           getenvInt("APP_PORT", 8000),
			AllowedOrigins: strings.Split(getenv("ALLOWED_ORIGINS", "http://localhost:5173"), ","),
		},
		Database:    DatabaseConfig{DSN: os.Getenv("DATABASE_URL")},
		Redis:       RedisConfig{URL: os.Getenv("REDIS_URL")},
		CRM:         CRMConfig{WebhookURL: os.Getenv("BITRIX_WEBHOOK_URL")},
		IntakeToken: os.Getenv("KEPLER_API_TOKEN"),
		AI: AIConfig{
			BaseURL: os.Getenv("AI_API_BASE_URL"),
			Token:   os.Getenv("AI_API_TOKEN"),
		},
		Storage: StorageConfig{
			EndpointURL: os.Getenv("S3_ENDPOINT_URL"),
			Bucket:      os.Getenv("S3_BUCKET_NAME"),
			Region:      os.Getenv("S3_REGION"),
			AccessKey:   os.Getenv("S3_ACCESS_KEY"),
			SecretKey:   os.Getenv("S3_SECRET_KEY"),
		},
		Telegram: TelegramConfig{
			BotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
			ChatID:   os.Getenv("TELEGRAM_CHAT_ID"),
		},
		Scraper: ScraperConfig{
			BrowserURL:  os.Getenv("BROWSER_URL"),
			DownloadDir: getenv("DOWNLOAD_DIR", os.TempDir()),
		},
		Worker: WorkerConfig{
			MaxConcurrentTenders: getenvInt("WORKER_MAX_CONCURRENT_TENDERS", 4),
			PollIntervalMs:       getenvInt("WORKER_POLL_INTERVAL_MS", 2000),
		},
		RateLimit: RateLimitConfig{
			DefaultPerMinute: getenvInt("RATE_LIMIT_PER_MINUTE", 0),
		},
		LogFile: os.Getenv("LOG_FILE"),
	}

	if cfg.Database.DSN == "" {
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		host := getenv("POSTGRES_HOST", "db")
		port := getenv("POSTGRES_PORT", "5432")
		name := os.Getenv("POSTGRES_DB")
		cfg.Database.DSN = fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
	}

	required := map[string]string{
		"BITRIX_WEBHOOK_URL": cfg.CRM.WebhookURL,
		"KEPLER_API_TOKEN":   cfg.IntakeToken,
		"S3_ACCESS_KEY":      cfg.Storage.AccessKey,
		"S3_SECRET_KEY":      cfg.Storage.SecretKey,
		"TELEGRAM_BOT_TOKEN": cfg.Telegram.BotToken,
		"TELEGRAM_CHAT_ID":   cfg.Telegram.ChatID,
	}
	var missing []string
	for key, value := range required {
		if value == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}
