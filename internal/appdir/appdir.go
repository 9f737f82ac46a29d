// Package appdir управляет директорией приложения с XDG-совместимыми путями.
package appdir

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const appName = "bckup"

// Dir возвращает путь к директории приложения.
// Linux: ~/.config/bckup
// macOS: ~/Library/Application Support/bckup
// Windows: %AppData%\bckup
func Dir() string {
	return filepath.Join(xdg.ConfigHome, appName)
}

// ConfigPath возвращает путь к файлу конфигурации.
func ConfigPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// IdentityPath возвращает путь к файлу идентичности клиента.
func IdentityPath() string {
	return filepath.Join(Dir(), "me.info")
}

// TransferInfoPath возвращает путь к файлу transfer.info.
func TransferInfoPath() string {
	return filepath.Join(Dir(), "transfer.info")
}

// LogsDir возвращает путь к директории логов.
func LogsDir() string {
	return filepath.Join(xdg.StateHome, appName, "logs")
}

// LogFilePath возвращает путь к файлу логов.
func LogFilePath() string {
	return filepath.Join(LogsDir(), "bckup.log")
}

// WorkDir возвращает директорию для зашифрованных копий файлов.
func WorkDir() string {
	return filepath.Join(xdg.CacheHome, appName)
}

// Init создаёт директории приложения и дефолтный конфиг.
func Init() error {
	for _, dir := range []string{Dir(), LogsDir(), WorkDir()} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	if err := ensureDefaultConfig(); err != nil {
		return fmt.Errorf("ensure default config: %w", err)
	}
	return nil
}

func ensureDefaultConfig() error {
	configPath := ConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		return nil
	}
	return writeDefaultConfig(configPath)
}
