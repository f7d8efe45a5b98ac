package config

import (
	"testing"
	"time"
)

func TestLoadAPIFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("FORGE_STORE", "sqlite")
	t.Setenv("FORGE_SQLITE_PATH", "")
	t.Setenv("SUPABASE_URL", "https://example.supabase.co/")
	t.Setenv("SUPABASE_ANON_KEY", "anon")
	t.Setenv("FORGE_TELEGRAM_TOKEN", "")

	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("addr %q", cfg.Addr)
	}
	if cfg.Store.Driver != StoreSQLite || cfg.Store.SQLitePath != "forge.db" {
		t.Fatalf("store %+v", cfg.Store)
	}
	if cfg.SupabaseURL != "https://example.supabase.co" {
		t.Fatalf("supabase url %q", cfg.SupabaseURL)
	}
}

func TestLoadAPIFromEnvValidation(t *testing.T) {
	t.Setenv("SUPABASE_URL", "https://example.supabase.co")
	t.Setenv("SUPABASE_ANON_KEY", "anon")

	t.Setenv("FORGE_STORE", "postgres")
	t.Setenv("DATABASE_URL", "")
	if _, err := LoadAPIFromEnv(); err == nil {
		t.Fatal("postgres without DATABASE_URL accepted")
	}

	t.Setenv("FORGE_STORE", "mongo")
	if _, err := LoadAPIFromEnv(); err == nil {
		t.Fatal("unknown store accepted")
	}

	t.Setenv("FORGE_STORE", "sqlite")
	t.Setenv("FORGE_DISCORD_WEBHOOK_ID", "123")
	t.Setenv("FORGE_DISCORD_WEBHOOK_TOKEN", "")
	if _, err := LoadAPIFromEnv(); err == nil {
		t.Fatal("half-configured discord webhook accepted")
	}

	t.Setenv("FORGE_DISCORD_WEBHOOK_ID", "")
	t.Setenv("FORGE_TELEGRAM_TOKEN", "tok")
	t.Setenv("FORGE_TELEGRAM_CHAT_ID", "")
	if _, err := LoadAPIFromEnv(); err == nil {
		t.Fatal("telegram without chat id accepted")
	}
}

func TestLoadWorkerFromEnv(t *testing.T) {
	t.Setenv("FORGE_STORE", "sqlite")
	t.Setenv("FORGE_IDEMPOTENCY_TTL", "")
	t.Setenv("FORGE_WORKER_EVERY", "15m")
	t.Setenv("FORGE_WORKER_RUN_ONCE", "true")

	cfg, err := LoadWorkerFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.IdempotencyTTL != 72*time.Hour || cfg.Every != 15*time.Minute || !cfg.RunOnce {
		t.Fatalf("worker config %+v", cfg)
	}
}
