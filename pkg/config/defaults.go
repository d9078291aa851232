package config

import (
	"strings"
	"time"

	"github.com/nullboot/tftpd/internal/bytesize"
)

// ApplyDefaults fills any zero-valued field with its default, after decode
// and before validation.
func ApplyDefaults(cfg *Config) {
	if cfg.Listen.Address == "" {
		cfg.Listen.Address = ":69"
	}

	applyTransferDefaults(&cfg.Transfer)
	applyRateLimitDefaults(&cfg.RateLimit)
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
}

func applyTransferDefaults(cfg *TransferConfig) {
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = 100 * bytesize.MiB
	}
	if cfg.DefaultBlockSize == 0 {
		cfg.DefaultBlockSize = 512
	}
	if cfg.MaxBlockSize == 0 {
		cfg.MaxBlockSize = 65464
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = 5 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.MaxWindowSize == 0 {
		cfg.MaxWindowSize = 1
	}
}

func applyRateLimitDefaults(cfg *RateLimitConfig) {
	if cfg.Enabled && cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 20
	}
	if cfg.Enabled && cfg.Burst == 0 {
		cfg.Burst = 40
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// DefaultConfig returns a Config with every default applied, rooted at the
// current working directory — used when no config file is found.
func DefaultConfig() *Config {
	cfg := &Config{
		Root: RootConfig{Directory: "."},
	}
	ApplyDefaults(cfg)
	return cfg
}
