// Package main запускает клиент резервного копирования.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/udisondev/bckup/internal/appdir"
	"github.com/udisondev/bckup/pkg/broker"
	"github.com/udisondev/bckup/pkg/client"
	"github.com/udisondev/bckup/pkg/config"
	"github.com/udisondev/bckup/pkg/transport"
)

// Коды завершения процесса.
const (
	exitOK     = 0
	exitLocal  = 1
	exitRemote = 2
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: XDG config dir)")
	transferPath := flag.String("transfer", "", "path to transfer.info (default: app dir, if present)")
	filePath := flag.String("file", "", "file to back up (overrides config)")
	initOnly := flag.Bool("init", false, "initialize app directory and exit")
	flag.Parse()

	if err := appdir.Init(); err != nil {
		slog.Error("init app directory", "error", err)
		os.Exit(exitLocal)
	}

	if *initOnly {
		fmt.Printf("Initialized: %s\n", appdir.Dir())
		fmt.Printf("Config: %s\n", appdir.ConfigPath())
		fmt.Printf("Identity: %s\n", appdir.IdentityPath())
		fmt.Printf("Logs: %s\n", appdir.LogsDir())
		return
	}

	cfg, err := loadConfig(*configPath, *transferPath, *filePath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(exitLocal)
	}

	setupLogging(cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, cfg)
	cancel()
	os.Exit(code)
}

// loadConfig читает конфиг и накладывает transfer.info и флаги.
func loadConfig(configPath, transferPath, filePath string) (*config.Config, error) {
	if configPath == "" {
		configPath = appdir.ConfigPath()
	}
	cfg, err := config.Read(configPath)
	if err != nil {
		return nil, err
	}

	explicit := transferPath != ""
	if !explicit {
		transferPath = appdir.TransferInfoPath()
	}
	info, err := config.LoadTransferInfo(transferPath)
	switch {
	case err == nil:
		info.Apply(cfg)
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, err
	}

	if filePath != "" {
		cfg.Client.File = filePath
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config) int {
	slog.Info("bckup starting",
		"config_dir", appdir.Dir(),
		"server", cfg.Server.Addr(),
		"client", cfg.Client.Name,
		"file", cfg.Client.File,
	)

	profile, err := config.NewProfile(cfg)
	if err != nil {
		slog.Error("load identity", "error", err)
		return exitLocal
	}

	opts := []client.Option{
		client.WithLogger(slog.Default()),
		client.WithWorkDir(cfg.Client.WorkDir),
		client.WithDialTimeout(cfg.Transport.DialTimeout),
		client.WithPollInterval(cfg.Transport.PollInterval),
		client.WithPatience(cfg.Transport.Patience),
		client.WithUploadLimit(cfg.Limits.UploadBytesPerSec),
		client.WithTransportOptions(transport.WithWriteTimeout(cfg.Transport.WriteTimeout)),
	}

	// отчёт в NATS необязателен: без брокера копирование всё равно выполняется
	if cfg.NATS.Enabled {
		b, err := broker.New(broker.Config{
			URLs:          cfg.NATS.URLs,
			ReconnectWait: cfg.NATS.ReconnectWait,
			MaxReconnects: cfg.NATS.MaxReconnects,
			Name:          "bckup-" + cfg.Client.Name,
		})
		if err != nil {
			slog.Warn("reports disabled", "error", err)
		} else {
			defer func() {
				if err := b.Close(); err != nil {
					slog.Warn("close broker", "error", err)
				}
			}()
			opts = append(opts, client.WithReporter(broker.NewPublisher(b)))
		}
	}

	rep, err := client.Run(ctx, profile, opts...)
	if err != nil {
		kind, _ := client.KindOf(err)
		slog.Error("backup failed", "kind", kind, "error", err)
		if kind.Local() {
			return exitLocal
		}
		return exitRemote
	}

	saved, err := profile.Save()
	if err != nil {
		slog.Warn("save identity", "path", cfg.Client.Identity, "error", err)
	} else if saved {
		slog.Info("identity saved", "path", cfg.Client.Identity, "uid", profile.UID())
	}

	slog.Info("backup complete",
		"uid", rep.UID,
		"file", rep.FileName,
		"size", rep.PlainSize,
		"crc", rep.Checksum,
		"duration", rep.Duration,
	)
	return exitOK
}

func setupLogging(cfg config.LogConfig) {
	var output io.Writer = os.Stdout

	if cfg.File != "" {
		output = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    10, // MB
			MaxAge:     30, // days
			MaxBackups: 3,
			Compress:   true,
			LocalTime:  true,
		}
	}

	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	slog.SetDefault(slog.New(handler))
}
