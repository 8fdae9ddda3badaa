package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
server:
  port: "9090"
redis:
  addr: localhost:6379
  ttl: 24h
quiz:
  ttl: 5m
  total_questions: 20
engine:
  countdown: 3s
  question: 15s
  explanation: 5s
  final: 5s
round:
  window: 10m
log:
  level: debug
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Quiz.TotalQuestions != 20 {
		t.Fatalf("expected 20 questions, got %d", cfg.Quiz.TotalQuestions)
	}
	if got := TTLDuration(cfg.Engine.Question, time.Second); got != 15*time.Second {
		t.Fatalf("expected 15s question, got %s", got)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("NATS_URL", "nats://nats:4222")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(writeConfig(t))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Redis.Addr != "redis:6380" || cfg.Redis.DB != 3 {
		t.Fatalf("redis overrides not applied: %+v", cfg.Redis)
	}
	if cfg.NATS.URL != "nats://nats:4222" || cfg.Log.Level != "warn" {
		t.Fatalf("overrides not applied: nats=%q level=%q", cfg.NATS.URL, cfg.Log.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestTTLDuration(t *testing.T) {
	if got := TTLDuration("", time.Minute); got != time.Minute {
		t.Fatalf("empty: got %s", got)
	}
	if got := TTLDuration("bogus", time.Minute); got != time.Minute {
		t.Fatalf("invalid: got %s", got)
	}
	if got := TTLDuration("90s", time.Minute); got != 90*time.Second {
		t.Fatalf("valid: got %s", got)
	}
}
