package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/udisondev/bckup/internal/appdir"
)

// Load загружает и проверяет конфигурацию из файла.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// LoadFromAppDir загружает конфигурацию из XDG директории приложения.
func LoadFromAppDir() (*Config, error) {
	return Load(appdir.ConfigPath())
}

// Read загружает конфигурацию без проверки. Используется, когда часть
// значений приходит из других источников, например transfer.info.
func Read(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ResolvePaths(cfg)
	return cfg, nil
}

// ResolvePaths подставляет дефолтные пути для пустых значений.
func ResolvePaths(cfg *Config) {
	if cfg.Client.Identity == "" {
		cfg.Client.Identity = appdir.IdentityPath()
	}
	if cfg.Client.WorkDir == "" {
		cfg.Client.WorkDir = appdir.WorkDir()
	}
	if cfg.Log.File == "" {
		cfg.Log.File = appdir.LogFilePath()
	}
}
