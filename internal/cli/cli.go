// Package cli parses command-line arguments and the optional TOML settings
// file into an app.Config.
package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vk/modboot/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// fileConfig mirrors the optional TOML settings file. Flags given on the
// command line take precedence over file values.
type fileConfig struct {
	Manifest         string `toml:"manifest"`
	HealthcheckPort  int    `toml:"healthcheck_port"`
	LogFormat        string `toml:"log_format"`
	LogLevel         string `toml:"log_level"`
	LoadTimeout      string `toml:"load_timeout"`
	MaxRetries       int    `toml:"max_retries"`
	RecoveryDeadline string `toml:"recovery_deadline"`
	SlowThreshold    string `toml:"slow_threshold"`
}

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("modboot", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
modboot - a staged module loading and initialization orchestrator.

Usage:
  modboot [options] [MANIFEST_PATH]

Arguments:
  MANIFEST_PATH
    Path to a single .hcl manifest or a directory containing manifests.

Options:
`)
		flagSet.PrintDefaults()
	}

	manifestFlag := flagSet.String("manifest", "", "Path to the manifest file or directory.")
	mFlag := flagSet.String("m", "", "Path to the manifest file or directory (shorthand).")
	configFlag := flagSet.String("config", "", "Path to an optional TOML settings file.")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health endpoint. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	loadTimeoutFlag := flagSet.Duration("load-timeout", 10*time.Second, "Timeout for a single module load attempt.")
	maxRetriesFlag := flagSet.Int("max-retries", 3, "Retry budget for retryable load failures.")
	recoveryFlag := flagSet.Duration("recovery-deadline", 60*time.Second, "Deadline for the whole load sequence before recovery mode engages. 0 disables the watchdog.")
	slowFlag := flagSet.Duration("slow-threshold", 2*time.Second, "Load duration above which a module is reported as slow.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	explicit := make(map[string]bool)
	flagSet.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	cfg := app.Config{
		HealthcheckPort:  *healthPortFlag,
		LogFormat:        strings.ToLower(*logFormatFlag),
		LogLevel:         strings.ToLower(*logLevelFlag),
		LoadTimeout:      *loadTimeoutFlag,
		MaxRetries:       *maxRetriesFlag,
		RecoveryDeadline: *recoveryFlag,
		SlowThreshold:    *slowFlag,
	}

	if *configFlag != "" {
		if err := applyFileConfig(*configFlag, explicit, &cfg); err != nil {
			return nil, false, &ExitError{Code: 2, Message: err.Error()}
		}
	}

	if *manifestFlag != "" {
		cfg.ManifestPath = *manifestFlag
	} else if *mFlag != "" {
		cfg.ManifestPath = *mFlag
	} else if flagSet.NArg() > 0 {
		cfg.ManifestPath = flagSet.Arg(0)
	}
	slog.Debug("Manifest path determined.", "path", cfg.ManifestPath)

	if cfg.ManifestPath == "" {
		slog.Debug("No manifest path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	validated, err := app.NewConfig(cfg)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.")
	return validated, false, nil
}

// applyFileConfig merges TOML settings beneath any flags the user set
// explicitly on the command line.
func applyFileConfig(path string, explicit map[string]bool, cfg *app.Config) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("failed to read settings file %s: %w", path, err)
	}

	if fc.Manifest != "" {
		cfg.ManifestPath = fc.Manifest
	}
	if fc.HealthcheckPort != 0 && !explicit["healthcheck-port"] {
		cfg.HealthcheckPort = fc.HealthcheckPort
	}
	if fc.LogFormat != "" && !explicit["log-format"] {
		cfg.LogFormat = strings.ToLower(fc.LogFormat)
	}
	if fc.LogLevel != "" && !explicit["log-level"] {
		cfg.LogLevel = strings.ToLower(fc.LogLevel)
	}
	if fc.MaxRetries != 0 && !explicit["max-retries"] {
		cfg.MaxRetries = fc.MaxRetries
	}

	durations := []struct {
		raw  string
		flag string
		dst  *time.Duration
	}{
		{fc.LoadTimeout, "load-timeout", &cfg.LoadTimeout},
		{fc.RecoveryDeadline, "recovery-deadline", &cfg.RecoveryDeadline},
		{fc.SlowThreshold, "slow-threshold", &cfg.SlowThreshold},
	}
	for _, d := range durations {
		if d.raw == "" || explicit[d.flag] {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("settings file %s: invalid %s: %w", path, d.flag, err)
		}
		*d.dst = parsed
	}
	return nil
}
