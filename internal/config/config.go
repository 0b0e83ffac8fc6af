// Package config defines the engine's single structured configuration
// value, with JSON-file loading, environment-variable overrides, and
// deferred validation, mirroring internal/mcpserver/config.
package config

import "errors"

// Sentinel validation errors, in the style of
// internal/mcpserver/config/errors.go.
var (
	ErrMissingBaseURL  = errors.New("baseUrl is required in configuration")
	ErrMissingPushHost = errors.New("pushHost is required in configuration")
)

// Config holds every option recognized by the engine.
type Config struct {
	BaseURL       string `json:"baseUrl"`
	PushHost      string `json:"pushHost"`
	PushPort      int    `json:"pushPort"`
	PushKey       string `json:"pushKey"`
	PushTLS       bool   `json:"pushTls"`
	TimeoutMs     int    `json:"timeoutMs"`
	MaxRetries    int    `json:"maxRetries"`
	RetryDelaysMs []int  `json:"retryDelaysMs"`

	// Ambient/storage concerns required to run the reference daemon.
	DataDir        string `json:"dataDir"`
	KeyringService string `json:"keyringService"`

	// StatusAddr is the local status control-plane's listen address.
	StatusAddr string `json:"statusAddr"`
}

// DefaultConfig returns a configuration with the engine's defaults:
// 60s timeout, 3 max retries, [1000,3000,10000]ms backoff schedule.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:        "http://localhost:8081/api",
		PushHost:       "localhost",
		PushPort:       6001,
		PushTLS:        false,
		TimeoutMs:      60000,
		MaxRetries:     3,
		RetryDelaysMs:  []int{1000, 3000, 10000},
		DataDir:        defaultDataDir(),
		KeyringService: "app.notesync.core",
		StatusAddr:     "127.0.0.1:8787",
	}
}

// Validate reports whether cfg is complete enough to run. Called after
// CLI/env overrides have been applied, deferring validation until the
// final configuration is assembled.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrMissingBaseURL
	}
	if c.PushHost == "" {
		return ErrMissingPushHost
	}
	if c.TimeoutMs <= 0 {
		c.TimeoutMs = 60000
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if len(c.RetryDelaysMs) == 0 {
		c.RetryDelaysMs = []int{1000, 3000, 10000}
	}
	return nil
}
