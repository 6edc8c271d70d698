package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	t.Setenv("API_BASE_URL", "http://api.example:8080")
	t.Setenv("CREDENTIAL_BACKEND", "memory")

	var buf bytes.Buffer
	cfg, log, err := Init(&buf, "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg == nil || log == nil {
		t.Fatal("expected non-nil config and logger")
	}

	if cfg.APIBaseURL != "http://api.example:8080" {
		t.Errorf("APIBaseURL = %q, want %q", cfg.APIBaseURL, "http://api.example:8080")
	}

	// グローバルロガーがJSON出力に設定されていること
	slog.Default().Info("init test")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "init test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "init test")
	}
}

func TestInit_LevelOverridesEnv(t *testing.T) {
	t.Setenv("API_BASE_URL", "http://api.example:8080")
	t.Setenv("LOG_LEVEL", "info")

	var buf bytes.Buffer
	if _, _, err := Init(&buf, "error"); err != nil {
		t.Fatalf("Init error = %v", err)
	}

	slog.Default().Info("should be filtered")
	if buf.Len() != 0 {
		t.Errorf("info log should be filtered at error level, got %s", buf.String())
	}
}

func TestInit_WithMissingConfig_ReturnsError(t *testing.T) {
	t.Setenv("API_BASE_URL", "")

	var buf bytes.Buffer
	cfg, _, err := Init(&buf, "")
	if err == nil {
		t.Fatal("expected error for missing required env vars, got nil")
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}
}

func TestMaskDatabaseURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://backoffice:s3cret@db:5432/backoffice?sslmode=disable", "postgres://backoffice:xxxxx@db:5432/backoffice?sslmode=disable"},
		{"postgres://db:5432/backoffice", "postgres://db:5432/backoffice"},
		{"not a url", "***"},
	}
	for _, tt := range tests {
		if got := maskDatabaseURL(tt.in); got != tt.want {
			t.Errorf("maskDatabaseURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
