// Package config loads runtime configuration for the voipbridge server.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds all runtime configuration for the voipbridge server.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	DataDir          string
	HTTPPort         int
	LogLevel         string // debug, info, warn, error
	LogFormat        string // text or json
	JWTSecret        string // hex-encoded 32-byte secret for client JWT signing
	ArchiveDSN       string // optional PostgreSQL DSN for the event archive
	InstanceName     string // instance label written to archived events
	RecordingMaxDays int    // delete recordings older than this; 0 keeps forever
	MaxRecordingMB   int    // reject recording uploads larger than this
	AMIUsername      string // manager credentials for the AJAM connectivity probe
	AMIPassword      string
	CORSOrigins      string // comma-separated allowed origins for the browser client
}

// defaults
const (
	defaultDataDir          = "./data"
	defaultHTTPPort         = 8080
	defaultLogLevel         = "info"
	defaultLogFormat        = "text"
	defaultInstanceName     = "voipbridge"
	defaultRecordingMaxDays = 0
	defaultMaxRecordingMB   = 50
)

// envPrefix is the prefix for all voipbridge environment variables.
const envPrefix = "VOIPBRIDGE_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("voipbridge", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "data directory for the SQLite database")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "HTTP server listen port")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", "", "hex-encoded 32-byte secret for client JWT signing (auto-generated if empty)")
	fs.StringVar(&cfg.ArchiveDSN, "archive-dsn", "", "PostgreSQL DSN for the optional event archive")
	fs.StringVar(&cfg.InstanceName, "instance-name", defaultInstanceName, "instance label written to archived events")
	fs.IntVar(&cfg.RecordingMaxDays, "recording-max-days", defaultRecordingMaxDays, "delete recordings older than this many days (0 keeps forever)")
	fs.IntVar(&cfg.MaxRecordingMB, "max-recording-mb", defaultMaxRecordingMB, "reject recording uploads larger than this many megabytes")
	fs.StringVar(&cfg.AMIUsername, "ami-username", "", "Asterisk manager username for the connectivity probe")
	fs.StringVar(&cfg.AMIPassword, "ami-password", "", "Asterisk manager password for the connectivity probe")
	fs.StringVar(&cfg.CORSOrigins, "cors-origins", "", "comma-separated list of allowed CORS origins (use * for all)")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// Apply env var overrides for any flags not explicitly set on the
	// command line. CLI flags take precedence over env vars.
	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	envMap := map[string]string{
		"data-dir":           envPrefix + "DATA_DIR",
		"http-port":          envPrefix + "HTTP_PORT",
		"log-level":          envPrefix + "LOG_LEVEL",
		"log-format":         envPrefix + "LOG_FORMAT",
		"jwt-secret":         envPrefix + "JWT_SECRET",
		"archive-dsn":        envPrefix + "ARCHIVE_DSN",
		"instance-name":      envPrefix + "INSTANCE_NAME",
		"recording-max-days": envPrefix + "RECORDING_MAX_DAYS",
		"max-recording-mb":   envPrefix + "MAX_RECORDING_MB",
		"ami-username":       envPrefix + "AMI_USERNAME",
		"ami-password":       envPrefix + "AMI_PASSWORD",
		"cors-origins":       envPrefix + "CORS_ORIGINS",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "data-dir":
			cfg.DataDir = val
		case "http-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.HTTPPort = v
			}
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		case "jwt-secret":
			cfg.JWTSecret = val
		case "archive-dsn":
			cfg.ArchiveDSN = val
		case "instance-name":
			cfg.InstanceName = val
		case "recording-max-days":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.RecordingMaxDays = v
			}
		case "max-recording-mb":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.MaxRecordingMB = v
			}
		case "ami-username":
			cfg.AMIUsername = val
		case "ami-password":
			cfg.AMIPassword = val
		case "cors-origins":
			cfg.CORSOrigins = val
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	if c.RecordingMaxDays < 0 {
		return fmt.Errorf("recording-max-days must not be negative, got %d", c.RecordingMaxDays)
	}
	if c.MaxRecordingMB < 1 {
		return fmt.Errorf("max-recording-mb must be at least 1, got %d", c.MaxRecordingMB)
	}

	return nil
}

// JWTSecretBytes returns the decoded 32-byte JWT signing secret.
// If no secret is configured, it generates a random 32-byte key and stores
// the hex-encoded value back in the config for the process lifetime.
func (c *Config) JWTSecretBytes() ([]byte, error) {
	if c.JWTSecret == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating jwt secret: %w", err)
		}
		c.JWTSecret = hex.EncodeToString(key)
		slog.Warn("no jwt-secret configured, generated ephemeral key (tokens will not survive restart)")
		return key, nil
	}
	key, err := hex.DecodeString(c.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("decoding jwt secret: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("jwt secret must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// MaxRecordingBytes returns the upload size limit in bytes.
func (c *Config) MaxRecordingBytes() int64 {
	return int64(c.MaxRecordingMB) * 1024 * 1024
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
