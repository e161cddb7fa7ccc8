package config

import (
	"strings"

	"github.com/nexfin/pesitd/internal/bytesize"
)

// DefaultConfig returns a Config populated with defaults sufficient to run
// standalone against the local filesystem with an in-memory tracker.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in every unspecified field with its documented
// default (spec §6), leaving explicitly-set values untouched.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyMetricsDefaults(&cfg.Metrics)
	applyServerDefaults(&cfg.Server)
	applyClientDefaults(&cfg.Client)
	applySecretsDefaults(&cfg.Secrets)
	applyTrackerDefaults(&cfg.Tracker)
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

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Bind == "" {
		cfg.Bind = "127.0.0.1:9090"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ID == "" {
		cfg.ID = "PESITD"
	}
	if cfg.Port == 0 {
		cfg.Port = 6219 // conventional PeSIT Hors-SIT port
	}
	if cfg.Bind == "" {
		cfg.Bind = "0.0.0.0"
	}
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = 100
	}
	if cfg.ReadTimeoutMS == 0 {
		cfg.ReadTimeoutMS = 30_000
	}
	if cfg.ProtocolVersion == 0 {
		cfg.ProtocolVersion = 2
	}
	if cfg.MaxEntitySize == 0 {
		cfg.MaxEntitySize = 8192 * bytesize.B
	}
	if cfg.SyncIntervalKB == 0 {
		cfg.SyncIntervalKB = 100 * bytesize.KiB
	}
	if cfg.StorageBackend == "" {
		cfg.StorageBackend = "local"
	}
	if cfg.ReceiveDirectory == "" {
		cfg.ReceiveDirectory = "/var/lib/pesitd/receive"
	}
	if cfg.SendDirectory == "" {
		cfg.SendDirectory = "/var/lib/pesitd/send"
	}
}

func applyClientDefaults(cfg *ClientConfig) {
	if cfg.ReadTimeoutMS == 0 {
		cfg.ReadTimeoutMS = 30_000
	}
	if cfg.RetryCount == 0 {
		cfg.RetryCount = 3
	}
	if cfg.RetryDelayMS == 0 {
		cfg.RetryDelayMS = 5_000
	}
}

// applySecretsDefaults intentionally sets nothing: a passphrase or salt
// left empty must fail validation rather than run with a guessable default.
func applySecretsDefaults(*SecretsConfig) {}

func applyTrackerDefaults(cfg *TrackerConfig) {
	if cfg.Backend == "" {
		cfg.Backend = "memory"
	}
	if cfg.Backend == "sqlite" && cfg.SQLitePath == "" {
		cfg.SQLitePath = "/var/lib/pesitd/transfers.db"
	}
}
