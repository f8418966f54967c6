package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("SQA_MAX_RECEIVES", "")
	t.Setenv("SQA_SQS_VISIBILITY_TIMEOUT_SECONDS", "")

	cfg := Load()
	if cfg.Env != "dev" {
		t.Fatalf("expected dev env, got %q", cfg.Env)
	}
	if cfg.MaxReceives != 4 {
		t.Fatalf("expected 4 receives, got %d", cfg.MaxReceives)
	}
	if cfg.VisibilitySeconds != 10 {
		t.Fatalf("expected 10s backoff, got %d", cfg.VisibilitySeconds)
	}
	if !cfg.IsDevLike() {
		t.Fatalf("dev config should be dev-like")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENV", "prod")
	t.Setenv("OBJECT_STORE", "S3")
	t.Setenv("OPENAI_TIMEOUT_SECONDS", "30")
	t.Setenv("SQA_BROWSER_HEADLESS", "false")
	t.Setenv("SQA_WORKER_CONCURRENCY", "not-a-number")

	cfg := Load()
	if cfg.Env != "production" {
		t.Fatalf("expected production, got %q", cfg.Env)
	}
	if cfg.ObjectStoreType != "s3" {
		t.Fatalf("expected s3 store, got %q", cfg.ObjectStoreType)
	}
	if cfg.OpenAITimeout != 30*time.Second {
		t.Fatalf("unexpected timeout %s", cfg.OpenAITimeout)
	}
	if cfg.BrowserHeadless {
		t.Fatalf("expected headful browser")
	}
	if cfg.WorkerConcurrency != 4 {
		t.Fatalf("invalid int should fall back to default, got %d", cfg.WorkerConcurrency)
	}
	if cfg.IsDevLike() {
		t.Fatalf("production must not be dev-like")
	}
}
