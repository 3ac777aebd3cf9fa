package app

import (
	"fmt"
	"time"
)

// Config holds all the settings an App instance needs to run.
type Config struct {
	// ManifestPath points at a manifest file or a directory of manifests.
	ManifestPath string
	// HealthcheckPort is the HTTP health endpoint port; 0 disables it.
	HealthcheckPort int

	LogFormat string
	LogLevel  string

	// LoadTimeout bounds a single module fetch/evaluate attempt.
	LoadTimeout time.Duration
	// MaxRetries bounds retryable failures per module.
	MaxRetries int
	// RecoveryDeadline is the watchdog deadline for the whole sequence;
	// 0 disables the watchdog.
	RecoveryDeadline time.Duration
	// SlowThreshold marks modules as slow in health reports.
	SlowThreshold time.Duration
}

// NewConfig validates and normalizes a Config.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ManifestPath == "" {
		return nil, fmt.Errorf("manifest path must not be empty")
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		return nil, fmt.Errorf("invalid healthcheck port %d", cfg.HealthcheckPort)
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must not be negative")
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 10 * time.Second
	}
	if cfg.RecoveryDeadline < 0 {
		return nil, fmt.Errorf("recovery deadline must not be negative")
	}
	if cfg.SlowThreshold <= 0 {
		cfg.SlowThreshold = 2 * time.Second
	}
	return &cfg, nil
}
