// Package config loads, validates, and supplies defaults for pesitd's
// configuration: viper-backed loading with precedence environment
// (PESIT_*) > YAML file > defaults, struct tags validated with
// go-playground/validator/v10. No command-line flag overrides individual
// keys.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/nexfin/pesitd/internal/bytesize"
)

// Config is the root pesitd configuration.
type Config struct {
	Logging      LoggingConfig        `mapstructure:"logging" yaml:"logging" validate:"required"`
	Metrics      MetricsConfig        `mapstructure:"metrics" yaml:"metrics"`
	Server       ServerConfig         `mapstructure:"server" yaml:"server" validate:"required"`
	Client       ClientConfig         `mapstructure:"client" yaml:"client"`
	Secrets      SecretsConfig        `mapstructure:"secrets" yaml:"secrets" validate:"required"`
	Tracker      TrackerConfig        `mapstructure:"tracker" yaml:"tracker"`
	Partners     []PartnerConfig      `mapstructure:"partners" yaml:"partners"`
	VirtualFiles []VirtualFileConfig  `mapstructure:"virtual_files" yaml:"virtual_files"`
}

// PartnerConfig is the on-disk form of a registry.PartnerRecord, loaded into
// the registry at startup (spec §6 "partners" list).
type PartnerConfig struct {
	ID       string `mapstructure:"id" yaml:"id" validate:"required"`
	Password string `mapstructure:"password" yaml:"password"`
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Access   string `mapstructure:"access" yaml:"access" validate:"omitempty,oneof=read write both"`
}

// VirtualFileConfig is the on-disk form of a registry.VirtualFileRecord.
type VirtualFileConfig struct {
	Name            string   `mapstructure:"name" yaml:"name" validate:"required"`
	Direction       string   `mapstructure:"direction" yaml:"direction" validate:"omitempty,oneof=read write both"`
	ReceiveDir      string   `mapstructure:"receive_directory" yaml:"receive_directory"`
	SendDir         string   `mapstructure:"send_directory" yaml:"send_directory"`
	FilenamePattern string   `mapstructure:"filename_pattern" yaml:"filename_pattern"`
	Enabled         bool     `mapstructure:"enabled" yaml:"enabled"`
	AllowedPartners []string `mapstructure:"allowed_partners" yaml:"allowed_partners"`
}

// LoggingConfig controls internal/logger behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Bind    string `mapstructure:"bind" yaml:"bind"`
}

// TLSConfig controls optional TLS termination on the PeSIT listener.
type TLSConfig struct {
	Enabled      bool   `mapstructure:"enabled" yaml:"enabled"`
	Keystore     string `mapstructure:"keystore" yaml:"keystore"`
	KeystoreKey  string `mapstructure:"keystore_key" yaml:"keystore_key"`
	Truststore   string `mapstructure:"truststore" yaml:"truststore"`
	RequireMutal bool   `mapstructure:"require_mutual" yaml:"require_mutual"`
}

// ServerConfig is the server-side protocol engine's static configuration,
// covering every spec §6 "server.*" key.
type ServerConfig struct {
	ID                string            `mapstructure:"id" yaml:"id" validate:"required"`
	Port              int               `mapstructure:"port" yaml:"port" validate:"required,gt=0,lte=65535"`
	Bind              string            `mapstructure:"bind" yaml:"bind"`
	MaxConnections     int               `mapstructure:"max_connections" yaml:"max_connections" validate:"gte=0"`
	ReadTimeoutMS      int               `mapstructure:"read_timeout_ms" yaml:"read_timeout_ms" validate:"gt=0"`
	TLS                TLSConfig         `mapstructure:"tls" yaml:"tls"`
	ProtocolVersion    int               `mapstructure:"protocol_version" yaml:"protocol_version" validate:"gte=1"`
	MaxEntitySize      bytesize.ByteSize `mapstructure:"max_entity_size" yaml:"max_entity_size"`
	SyncPointsEnabled  bool              `mapstructure:"sync_points_enabled" yaml:"sync_points_enabled"`
	SyncIntervalKB     bytesize.ByteSize `mapstructure:"sync_interval_kb" yaml:"sync_interval_kb"`
	StrictPartnerCheck bool              `mapstructure:"strict_partner_check" yaml:"strict_partner_check"`
	StrictFileCheck    bool              `mapstructure:"strict_file_check" yaml:"strict_file_check"`
	ReceiveDirectory   string            `mapstructure:"receive_directory" yaml:"receive_directory"`
	SendDirectory      string            `mapstructure:"send_directory" yaml:"send_directory"`
	StorageBackend     string            `mapstructure:"storage_backend" yaml:"storage_backend" validate:"omitempty,oneof=local s3"`
	S3                 S3Config          `mapstructure:"s3" yaml:"s3"`
}

// S3Config configures the S3-backed storage connector when
// server.storage_backend == "s3".
type S3Config struct {
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	Region          string `mapstructure:"region" yaml:"region"`
	KeyPrefix       string `mapstructure:"key_prefix" yaml:"key_prefix"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
}

// ClientConfig is the client driver's static configuration.
type ClientConfig struct {
	ReadTimeoutMS int `mapstructure:"read_timeout_ms" yaml:"read_timeout_ms" validate:"gt=0"`
	RetryCount    int `mapstructure:"retry_count" yaml:"retry_count" validate:"gte=0"`
	RetryDelayMS  int `mapstructure:"retry_delay_ms" yaml:"retry_delay_ms" validate:"gte=0"`
}

// SecretsConfig configures the AES-GCM secrets oracle.
type SecretsConfig struct {
	Passphrase string `mapstructure:"passphrase" yaml:"passphrase" validate:"required"`
	Salt       string `mapstructure:"salt" yaml:"salt" validate:"required"`
}

// TrackerConfig selects the transfer tracker backend.
type TrackerConfig struct {
	Backend    string `mapstructure:"backend" yaml:"backend" validate:"omitempty,oneof=memory sqlite"`
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
}

// Load loads configuration from defaults, file, and environment, in that
// ascending precedence, and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	// Unmarshal regardless of whether a config file was found: viper's
	// AutomaticEnv binding still surfaces PESIT_* environment overrides
	// even with no file on disk.
	cfg := &Config{}
	if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return cfg, nil
}

// Validate runs struct-tag validation over cfg.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

// SaveConfig writes cfg to path as YAML with restricted permissions, since
// it may carry the secrets-oracle passphrase.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("PESIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var bind func(t reflect.Type, prefix string)
	bind = func(t reflect.Type, prefix string) {
		for i := 0; i < t.NumField(); i++ {
			key := prefix + t.Field(i).Tag.Get("mapstructure")
			if t.Field(i).Type.Kind() == reflect.Struct {
				bind(t.Field(i).Type, key+".")
			} else {
				_ = v.BindEnv(key)
			}
		}
	}
	bind(reflect.TypeOf(Config{}), "")

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(defaultConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("config: read file: %w", err)
	}
	return true, nil
}

// decodeHooks composes the mapstructure hooks needed to unmarshal
// time.Duration strings and bytesize.ByteSize strings (the latter via its
// encoding.TextUnmarshaler implementation).
func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	)
}

func defaultConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "pesitd")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "pesitd")
}

// GetDefaultConfigPath returns the conventional config.yaml location.
func GetDefaultConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.yaml")
}
