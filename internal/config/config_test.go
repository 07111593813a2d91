package config

import (
	"log/slog"
	"os"
	"testing"
)

func TestDefaults(t *testing.T) {
	// Clear any env vars that might interfere.
	for _, env := range []string{
		"VOIPBRIDGE_DATA_DIR", "VOIPBRIDGE_HTTP_PORT", "VOIPBRIDGE_LOG_LEVEL",
		"VOIPBRIDGE_LOG_FORMAT", "VOIPBRIDGE_ARCHIVE_DSN",
		"VOIPBRIDGE_RECORDING_MAX_DAYS", "VOIPBRIDGE_MAX_RECORDING_MB",
	} {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}

	os.Args = []string{"voipbridge"}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DataDir != defaultDataDir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, defaultDataDir)
	}
	if cfg.HTTPPort != defaultHTTPPort {
		t.Errorf("HTTPPort = %d, want %d", cfg.HTTPPort, defaultHTTPPort)
	}
	if cfg.LogLevel != defaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, defaultLogLevel)
	}
	if cfg.RecordingMaxDays != defaultRecordingMaxDays {
		t.Errorf("RecordingMaxDays = %d, want %d", cfg.RecordingMaxDays, defaultRecordingMaxDays)
	}
	if cfg.MaxRecordingMB != defaultMaxRecordingMB {
		t.Errorf("MaxRecordingMB = %d, want %d", cfg.MaxRecordingMB, defaultMaxRecordingMB)
	}
}

func TestEnvVarOverride(t *testing.T) {
	os.Args = []string{"voipbridge"}
	t.Setenv("VOIPBRIDGE_HTTP_PORT", "9090")
	t.Setenv("VOIPBRIDGE_DATA_DIR", "/tmp/voipbridge-test")
	t.Setenv("VOIPBRIDGE_LOG_LEVEL", "debug")
	t.Setenv("VOIPBRIDGE_RECORDING_MAX_DAYS", "30")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 9090 {
		t.Errorf("HTTPPort = %d, want 9090", cfg.HTTPPort)
	}
	if cfg.DataDir != "/tmp/voipbridge-test" {
		t.Errorf("DataDir = %q, want /tmp/voipbridge-test", cfg.DataDir)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.RecordingMaxDays != 30 {
		t.Errorf("RecordingMaxDays = %d, want 30", cfg.RecordingMaxDays)
	}
}

func TestCLIFlagsPrecedence(t *testing.T) {
	// CLI flags should override env vars.
	os.Args = []string{"voipbridge", "--http-port", "3000", "--log-level", "warn"}
	t.Setenv("VOIPBRIDGE_HTTP_PORT", "9090")
	t.Setenv("VOIPBRIDGE_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 3000 {
		t.Errorf("HTTPPort = %d, want 3000 (CLI should override env)", cfg.HTTPPort)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn (CLI should override env)", cfg.LogLevel)
	}
}

func TestValidateInvalidPort(t *testing.T) {
	os.Args = []string{"voipbridge", "--http-port", "99999"}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid port, got nil")
	}
}

func TestValidateInvalidLogLevel(t *testing.T) {
	os.Args = []string{"voipbridge", "--log-level", "verbose"}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
}

func TestValidateNegativeRetention(t *testing.T) {
	os.Args = []string{"voipbridge", "--recording-max-days", "-1"}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for negative retention, got nil")
	}
}

func TestJWTSecretBytes(t *testing.T) {
	cfg := &Config{}
	key, err := cfg.JWTSecretBytes()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(key) != 32 {
		t.Errorf("generated key length = %d, want 32", len(key))
	}
	if cfg.JWTSecret == "" {
		t.Error("expected generated secret to be stored back in config")
	}

	cfg = &Config{JWTSecret: "zz"}
	if _, err := cfg.JWTSecretBytes(); err == nil {
		t.Error("expected error for non-hex secret")
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.level}
			if got := cfg.SlogLevel(); got != tt.want {
				t.Errorf("SlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}
