package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".notesync/db"
	}
	return filepath.Join(home, ".notesync", "db")
}

// Load loads configuration from a file path (if non-empty) and applies
// environment variable overrides, mirroring
// internal/mcpserver/config/loader.go's Load/loadFromFile/
// applyEnvironmentOverrides split. Validation is deferred to the caller so
// CLI flag overrides can be layered on top first.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		fileCfg, err := loadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("config: load from file: %w", err)
		}
		cfg = fileCfg
	}

	applyEnvironmentOverrides(cfg)
	return cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

func applyEnvironmentOverrides(cfg *Config) {
	if v := os.Getenv("NOTESYNC_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("NOTESYNC_PUSH_HOST"); v != "" {
		cfg.PushHost = v
	}
	if v := os.Getenv("NOTESYNC_PUSH_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PushPort = n
		}
	}
	if v := os.Getenv("NOTESYNC_PUSH_KEY"); v != "" {
		cfg.PushKey = v
	}
	if v := os.Getenv("NOTESYNC_PUSH_TLS"); v == "true" || v == "1" {
		cfg.PushTLS = true
	}
	if v := os.Getenv("NOTESYNC_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TimeoutMs = n
		}
	}
	if v := os.Getenv("NOTESYNC_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRetries = n
		}
	}
	if v := os.Getenv("NOTESYNC_RETRY_DELAYS_MS"); v != "" {
		parts := strings.Split(v, ",")
		delays := make([]int, 0, len(parts))
		for _, p := range parts {
			if n, err := strconv.Atoi(strings.TrimSpace(p)); err == nil {
				delays = append(delays, n)
			}
		}
		if len(delays) > 0 {
			cfg.RetryDelaysMs = delays
		}
	}
	if v := os.Getenv("NOTESYNC_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("NOTESYNC_STATUS_ADDR"); v != "" {
		cfg.StatusAddr = v
	}
}
