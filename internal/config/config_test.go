package config

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/mtiwari1/gophermedia/internal/media"
)

func TestLoadWith_Defaults(t *testing.T) {
	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{}))
	if err != nil {
		t.Fatalf("LoadWith() error = %v", err)
	}

	if cfg.Workers != 5 {
		t.Errorf("Workers = %d, want 5", cfg.Workers)
	}
	if cfg.Driver != "mysql" {
		t.Errorf("Driver = %q, want mysql", cfg.Driver)
	}
	if cfg.Backend != "memory" {
		t.Errorf("Backend = %q, want memory", cfg.Backend)
	}
	if cfg.CacheCfg.TTL != 24*time.Hour {
		t.Errorf("TTL = %v, want 24h", cfg.CacheCfg.TTL)
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.Multiplier != 2 || !cfg.Retry.UseJitter {
		t.Errorf("Retry = %+v", cfg.Retry)
	}
	if cfg.Breaker.FailureThreshold != 5 || cfg.Breaker.RecoveryTimeout != time.Minute {
		t.Errorf("Breaker = %+v", cfg.Breaker)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
	if cfg.MaxUpload != 2048<<20 {
		t.Errorf("MaxUpload = %d", cfg.MaxUpload)
	}
	for _, c := range []media.Category{media.CategoryImage, media.CategoryVideo, media.CategoryDocument, media.CategoryAudio} {
		if !cfg.InferenceCfg.Enabled(c) {
			t.Errorf("AI disabled by default for %s", c)
		}
	}
	if cfg.InferenceCfg.Enabled(media.CategoryArchive) {
		t.Error("archives must never be sent for AI analysis")
	}
}

func TestLoadWith_Overrides(t *testing.T) {
	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"AI_SERVICE_URL":        "http://ai:9000/",
		"CACHE_BACKEND":         "redis",
		"AI_USE_OLLAMA":         "true",
		"AI_IMAGE_LLM_TIMEOUT":  "7m",
		"AI_ANALYZE_AUDIO":      "false",
		"LOG_LEVEL":             "debug",
		"DB_DRIVER":             "sqlite3",
		"AI_RETRY_MAX_ATTEMPTS": "4",
	}))
	if err != nil {
		t.Fatalf("LoadWith() error = %v", err)
	}

	if cfg.BaseURL != "http://ai:9000" {
		t.Errorf("BaseURL = %q, trailing slash should be trimmed", cfg.BaseURL)
	}
	if got := cfg.Image.Timeout.Select(cfg.Image.UseOllama); got != 7*time.Minute {
		t.Errorf("image timeout = %v, want 7m", got)
	}
	if cfg.InferenceCfg.Enabled(media.CategoryAudio) {
		t.Error("audio analysis should be disabled")
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
	if cfg.Retry.MaxAttempts != 4 {
		t.Errorf("MaxAttempts = %d", cfg.Retry.MaxAttempts)
	}
}

func TestLoadWith_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"zero workers", map[string]string{"WORKERS": "0"}},
		{"unknown driver", map[string]string{"DB_DRIVER": "postgres"}},
		{"unknown cache", map[string]string{"CACHE_BACKEND": "memcached"}},
		{"relative url", map[string]string{"AI_SERVICE_URL": "ai-service"}},
		{"zero attempts", map[string]string{"AI_RETRY_MAX_ATTEMPTS": "0"}},
		{"shrinking backoff", map[string]string{"AI_RETRY_MULTIPLIER": "0.5"}},
		{"relative shared root", map[string]string{"AI_SHARED_ROOT": "shared"}},
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadWith(context.Background(), envconfig.MapLookuper(tt.env)); err == nil {
				t.Error("LoadWith() expected error")
			}
		})
	}
}

func TestTimeout_Select(t *testing.T) {
	tests := []struct {
		name string
		to   Timeout
		llm  bool
		want time.Duration
	}{
		{"standard", Timeout{Standard: time.Minute, WithLLM: 5 * time.Minute}, false, time.Minute},
		{"with llm", Timeout{Standard: time.Minute, WithLLM: 5 * time.Minute}, true, 5 * time.Minute},
		{"llm without extended value", Timeout{Standard: time.Minute}, true, time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.to.Select(tt.llm); got != tt.want {
				t.Errorf("Select(%v) = %v, want %v", tt.llm, got, tt.want)
			}
		})
	}
}
