package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// StoreConfig selects and locates the persistence backend.
type StoreConfig struct {
	Driver      string
	DatabaseURL string
	SQLitePath  string
}

type APIConfig struct {
	Addr            string
	Store           StoreConfig
	SupabaseURL     string
	SupabaseAnonKey string
	AccessCodes     string

	DiscordWebhookID    string
	DiscordWebhookToken string
	TelegramToken       string
	TelegramChatID      int64
}

type WorkerConfig struct {
	Store          StoreConfig
	IdempotencyTTL time.Duration
	Every          time.Duration
	RunOnce        bool
}

type CLIConfig struct {
	APIBaseURL string
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("FORGE_API_ADDR", ":8080")
	}

	store, err := loadStore()
	if err != nil {
		return APIConfig{}, err
	}
	cfg := APIConfig{
		Addr:                addr,
		Store:               store,
		SupabaseURL:         strings.TrimRight(strings.TrimSpace(os.Getenv("SUPABASE_URL")), "/"),
		SupabaseAnonKey:     strings.TrimSpace(os.Getenv("SUPABASE_ANON_KEY")),
		AccessCodes:         strings.TrimSpace(os.Getenv("FORGE_ACCESS_CODES")),
		DiscordWebhookID:    strings.TrimSpace(os.Getenv("FORGE_DISCORD_WEBHOOK_ID")),
		DiscordWebhookToken: strings.TrimSpace(os.Getenv("FORGE_DISCORD_WEBHOOK_TOKEN")),
		TelegramToken:       strings.TrimSpace(os.Getenv("FORGE_TELEGRAM_TOKEN")),
		TelegramChatID:      envInt64Default("FORGE_TELEGRAM_CHAT_ID", 0),
	}
	if cfg.SupabaseURL == "" {
		return cfg, fmt.Errorf("SUPABASE_URL is required")
	}
	if cfg.SupabaseAnonKey == "" {
		return cfg, fmt.Errorf("SUPABASE_ANON_KEY is required")
	}
	if (cfg.DiscordWebhookID == "") != (cfg.DiscordWebhookToken == "") {
		return cfg, fmt.Errorf("FORGE_DISCORD_WEBHOOK_ID and FORGE_DISCORD_WEBHOOK_TOKEN must be set together")
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID == 0 {
		return cfg, fmt.Errorf("FORGE_TELEGRAM_CHAT_ID is required with FORGE_TELEGRAM_TOKEN")
	}
	return cfg, nil
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	store, err := loadStore()
	if err != nil {
		return WorkerConfig{}, err
	}
	cfg := WorkerConfig{
		Store:          store,
		IdempotencyTTL: envDurationDefault("FORGE_IDEMPOTENCY_TTL", 72*time.Hour),
		Every:          envDurationDefault("FORGE_WORKER_EVERY", time.Hour),
		RunOnce:        envBoolDefault("FORGE_WORKER_RUN_ONCE", false),
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, fmt.Errorf("FORGE_IDEMPOTENCY_TTL must be positive")
	}
	if cfg.Every <= 0 {
		return cfg, fmt.Errorf("FORGE_WORKER_EVERY must be positive")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("FORGE_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

func loadStore() (StoreConfig, error) {
	cfg := StoreConfig{
		Driver:      strings.ToLower(envDefault("FORGE_STORE", StorePostgres)),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SQLitePath:  envDefault("FORGE_SQLITE_PATH", "forge.db"),
	}
	switch cfg.Driver {
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return cfg, fmt.Errorf("DATABASE_URL is required")
		}
	case StoreSQLite:
	default:
		return cfg, fmt.Errorf("FORGE_STORE must be %q or %q, got %q", StorePostgres, StoreSQLite, cfg.Driver)
	}
	return cfg, nil
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envInt64Default(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
