package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadWithNoPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.BaseURL != DefaultConfig().BaseURL {
		t.Errorf("expected default BaseURL, got %q", cfg.BaseURL)
	}
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	data, _ := json.Marshal(map[string]any{
		"baseUrl":  "https://notes.example.com/api",
		"pushHost": "push.example.com",
		"pushPort": 443,
	})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.BaseURL != "https://notes.example.com/api" {
		t.Errorf("expected baseUrl from file, got %q", cfg.BaseURL)
	}
	if cfg.PushPort != 443 {
		t.Errorf("expected pushPort from file, got %d", cfg.PushPort)
	}
	// Fields absent from the file should retain their defaults, since
	// loadFromFile unmarshals on top of DefaultConfig().
	if cfg.MaxRetries != 3 {
		t.Errorf("expected unset maxRetries to keep its default, got %d", cfg.MaxRetries)
	}
}

func TestLoadFromMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestEnvironmentOverridesTakePrecedenceOverFile(t *testing.T) {
	t.Setenv("NOTESYNC_BASE_URL", "https://env.example.com/api")
	t.Setenv("NOTESYNC_PUSH_PORT", "9443")
	t.Setenv("NOTESYNC_PUSH_TLS", "true")
	t.Setenv("NOTESYNC_MAX_RETRIES", "7")
	t.Setenv("NOTESYNC_RETRY_DELAYS_MS", "100, 200,300")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.BaseURL != "https://env.example.com/api" {
		t.Errorf("expected env override of baseUrl, got %q", cfg.BaseURL)
	}
	if cfg.PushPort != 9443 {
		t.Errorf("expected env override of pushPort, got %d", cfg.PushPort)
	}
	if !cfg.PushTLS {
		t.Error("expected env override to enable pushTls")
	}
	if cfg.MaxRetries != 7 {
		t.Errorf("expected env override of maxRetries, got %d", cfg.MaxRetries)
	}
	if len(cfg.RetryDelaysMs) != 3 || cfg.RetryDelaysMs[1] != 200 {
		t.Errorf("expected parsed+trimmed retryDelaysMs override, got %v", cfg.RetryDelaysMs)
	}
}

func TestEnvInvalidPushTLSLeavesDefaultFalse(t *testing.T) {
	t.Setenv("NOTESYNC_PUSH_TLS", "nope")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.PushTLS {
		t.Error("expected an unrecognized pushTls value to leave it false")
	}
}
