package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/udisondev/bckup/internal/appdir"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Client.Name = "alice"
	cfg.Client.File = "/tmp/report.txt"
	return cfg
}

func TestDefault_NeedsClient(t *testing.T) {
	err := Default().Validate()
	require.ErrorContains(t, err, "client.name is required")
	require.ErrorContains(t, err, "client.file is required")

	require.NoError(t, validConfig().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"ipv6 host", func(c *Config) { c.Server.Host = "::1" }, "not an IPv4 address"},
		{"hostname", func(c *Config) { c.Server.Host = "localhost" }, "not an IPv4 address"},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"port too big", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"long name", func(c *Config) { c.Client.Name = string(make([]byte, 255)) }, "longer than 254"},
		{"patience", func(c *Config) { c.Transport.Patience = 0 }, "transport.patience"},
		{"poll interval", func(c *Config) { c.Transport.PollInterval = 0 }, "transport.poll_interval"},
		{"upload limit", func(c *Config) { c.Limits.UploadBytesPerSec = -1 }, "upload_bytes_per_sec"},
		{"nats without urls", func(c *Config) { c.NATS.Enabled = true; c.NATS.URLs = nil }, "nats.urls"},
		{"log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.Transport.Patience = 0

	err := cfg.Validate()
	require.ErrorContains(t, err, "invalid server port")
	require.ErrorContains(t, err, "transport.patience")
}

func TestServerAddr(t *testing.T) {
	require.Equal(t, "10.0.0.7:8080", ServerConfig{Host: "10.0.0.7", Port: 8080}.Addr())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
server:
  host: 192.168.1.10
  port: 4000
client:
  name: bob
  file: /data/db.sqlite
  identity: /etc/bckup/me.info
  work_dir: /var/tmp
transport:
  poll_interval: 250ms
  patience: 8
limits:
  upload_bytes_per_sec: 65536
log:
  level: debug
  format: json
  file: /var/log/bckup.log
`)
	require.NoError(t, os.WriteFile(path, data, 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "192.168.1.10:4000", cfg.Server.Addr())
	require.Equal(t, "bob", cfg.Client.Name)
	require.Equal(t, "/etc/bckup/me.info", cfg.Client.Identity)
	require.Equal(t, "/var/tmp", cfg.Client.WorkDir)
	require.Equal(t, 250*time.Millisecond, cfg.Transport.PollInterval)
	require.Equal(t, 8, cfg.Transport.Patience)
	// значения, которых нет в файле, берутся из Default
	require.Equal(t, 10*time.Second, cfg.Transport.DialTimeout)
	require.Equal(t, 65536, cfg.Limits.UploadBytesPerSec)
	require.False(t, cfg.NATS.Enabled)
}

func TestLoad_ResolvesPaths(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("client:\n  name: carol\n  file: /x\n"), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, appdir.IdentityPath(), cfg.Client.Identity)
	require.Equal(t, appdir.WorkDir(), cfg.Client.WorkDir)
	require.Equal(t, appdir.LogFilePath(), cfg.Log.File)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("server: [1, 2"), 0600))
	_, err = Load(bad)
	require.ErrorContains(t, err, "parse config")

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("server:\n  port: 0\n"), 0600))
	_, err = Load(invalid)
	require.ErrorContains(t, err, "validate config")
}

func TestDefaultConfigYAML(t *testing.T) {
	cfg := Default()
	require.NoError(t, yaml.Unmarshal(appdir.DefaultConfigYAML(), cfg))

	want := Default()
	want.Client = cfg.Client
	require.Equal(t, want, cfg)
}
