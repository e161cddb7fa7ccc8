package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexfin/pesitd/pkg/config"
)

func TestDefaultConfigIsInvalidWithoutSecrets(t *testing.T) {
	cfg := config.DefaultConfig()
	// Secrets has no defaults by design: a freshly-defaulted config must
	// still fail validation until the operator supplies a passphrase/salt.
	err := config.Validate(cfg)
	require.Error(t, err)
}

func TestDefaultConfigValidAfterSecretsSet(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Secrets.Passphrase = "x"
	cfg.Secrets.Salt = "y"
	require.NoError(t, config.Validate(cfg))

	require.Equal(t, "PESITD", cfg.Server.ID)
	require.Equal(t, 6219, cfg.Server.Port)
	require.Equal(t, 100, cfg.Client.RetryDelayMS/50) // sanity: default 5000ms
	require.Equal(t, 3, cfg.Client.RetryCount)
	require.Equal(t, "memory", cfg.Tracker.Backend)
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := `
server:
  id: TESTSERVER
  port: 7000
  receive_directory: /tmp/recv
  send_directory: /tmp/send
secrets:
  passphrase: correct-horse
  salt: fixed-salt
logging:
  level: debug
  format: json
  output: stdout
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "TESTSERVER", cfg.Server.ID)
	require.Equal(t, 7000, cfg.Server.Port)
	require.Equal(t, "DEBUG", cfg.Logging.Level)
	require.Equal(t, "json", cfg.Logging.Format)
	require.Equal(t, "correct-horse", cfg.Secrets.Passphrase)
}

func TestLoadMissingFileWithoutSecretsFailsValidation(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}

func TestLoadMissingFileWithSecretsFromEnvSucceeds(t *testing.T) {
	t.Setenv("PESIT_SECRETS_PASSPHRASE", "env-passphrase")
	t.Setenv("PESIT_SECRETS_SALT", "env-salt")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, "PESITD", cfg.Server.ID)
	require.Equal(t, "env-passphrase", cfg.Secrets.Passphrase)
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Secrets.Passphrase = "x"
	cfg.Secrets.Salt = "y"
	cfg.Logging.Level = "VERBOSE"
	require.Error(t, config.Validate(cfg))
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Secrets.Passphrase = "x"
	cfg.Secrets.Salt = "y"
	cfg.Server.Port = 0
	require.Error(t, config.Validate(cfg))
}

func TestLoadPartnersAndVirtualFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := `
server:
  id: TESTSERVER
  port: 7000
secrets:
  passphrase: correct-horse
  salt: fixed-salt
partners:
  - id: ACME
    password: hunter2
    enabled: true
    access: both
virtual_files:
  - name: REPORTS.DAT
    direction: read
    send_directory: /srv/pesit/out
    enabled: true
    allowed_partners: [ACME]
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Partners, 1)
	require.Equal(t, "ACME", cfg.Partners[0].ID)
	require.Equal(t, "both", cfg.Partners[0].Access)
	require.Len(t, cfg.VirtualFiles, 1)
	require.Equal(t, "REPORTS.DAT", cfg.VirtualFiles[0].Name)
	require.Equal(t, []string{"ACME"}, cfg.VirtualFiles[0].AllowedPartners)
}
