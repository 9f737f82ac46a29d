// Package config реализует загрузку конфигурации клиента.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/udisondev/bckup/pkg/protocol"
)

// Config конфигурация клиента резервного копирования.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Client    ClientConfig    `yaml:"client"`
	Transport TransportConfig `yaml:"transport"`
	Limits    LimitsConfig    `yaml:"limits"`
	NATS      NATSConfig      `yaml:"nats"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig адрес сервера резервного копирования.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr возвращает адрес сервера в формате host:port.
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ClientConfig идентичность клиента и файл для копирования.
type ClientConfig struct {
	Name     string `yaml:"name"`
	File     string `yaml:"file"`
	Identity string `yaml:"identity"` // путь к me.info
	WorkDir  string `yaml:"work_dir"` // каталог для зашифрованной копии
}

// TransportConfig таймауты соединения.
type TransportConfig struct {
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Patience     int           `yaml:"patience"`
}

// LimitsConfig конфигурация лимитов.
type LimitsConfig struct {
	UploadBytesPerSec int `yaml:"upload_bytes_per_sec"` // 0 = без ограничения
}

// NATSConfig конфигурация публикации отчётов.
type NATSConfig struct {
	Enabled       bool          `yaml:"enabled"`
	URLs          []string      `yaml:"urls"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
	MaxReconnects int           `yaml:"max_reconnects"`
}

// LogConfig конфигурация логирования.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"` // путь к файлу логов (пустой = stdout)
}

// Validate проверяет корректность конфигурации.
func (c *Config) Validate() error {
	var errs []error

	// Server
	if err := validateHost(c.Server.Host); err != nil {
		errs = append(errs, err)
	}
	if err := validatePort(c.Server.Port); err != nil {
		errs = append(errs, err)
	}

	// Client
	if err := validateName(c.Client.Name); err != nil {
		errs = append(errs, err)
	}
	if c.Client.File == "" {
		errs = append(errs, fmt.Errorf("client.file is required"))
	}

	// Transport
	if c.Transport.DialTimeout <= 0 {
		errs = append(errs, fmt.Errorf("transport.dial_timeout must be positive"))
	}
	if c.Transport.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("transport.write_timeout must be positive"))
	}
	if c.Transport.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("transport.poll_interval must be positive"))
	}
	if c.Transport.Patience < 1 {
		errs = append(errs, fmt.Errorf("transport.patience must be positive"))
	}

	// Limits
	if c.Limits.UploadBytesPerSec < 0 {
		errs = append(errs, fmt.Errorf("limits.upload_bytes_per_sec must not be negative"))
	}

	// NATS
	if c.NATS.Enabled && len(c.NATS.URLs) == 0 {
		errs = append(errs, fmt.Errorf("nats.urls is required when nats is enabled"))
	}

	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log.level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// Default возвращает конфигурацию по умолчанию.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 1234,
		},
		Transport: TransportConfig{
			DialTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			PollInterval: time.Second,
			Patience:     5,
		},
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			ReconnectWait: 2 * time.Second,
			MaxReconnects: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// сервер принимает только IPv4
func validateHost(host string) error {
	ip := net.ParseIP(host)
	if ip == nil || ip.To4() == nil {
		return fmt.Errorf("server.host %q is not an IPv4 address", host)
	}
	return nil
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid server port: %d", port)
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("client.name is required")
	}
	if len(name) > protocol.MaxNameLen {
		return fmt.Errorf("client.name is longer than %d bytes", protocol.MaxNameLen)
	}
	return nil
}
