package transport

import (
	"log/slog"
	"time"
)

// Константы по умолчанию.
const (
	DefaultDialTimeout  = 10 * time.Second
	DefaultWriteTimeout = 30 * time.Second
	DefaultPollInterval = time.Second
	DefaultPatience     = 5
	DefaultDrainWait    = 50 * time.Millisecond
)

type config struct {
	dialTimeout  time.Duration
	writeTimeout time.Duration
	pollInterval time.Duration
	patience     int
	drainWait    time.Duration
	uploadLimit  int
	logger       *slog.Logger
}

// Option конфигурирует транспорт.
type Option func(*config)

// WithDialTimeout устанавливает таймаут подключения.
func WithDialTimeout(d time.Duration) Option {
	return func(c *config) {
		c.dialTimeout = d
	}
}

// WithWriteTimeout устанавливает таймаут записи. Ноль отключает таймаут.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *config) {
		c.writeTimeout = d
	}
}

// WithPollInterval устанавливает паузу между опросами сокета.
func WithPollInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithPatience устанавливает количество опросов перед таймаутом.
func WithPatience(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.patience = n
		}
	}
}

// WithDrainWait устанавливает, сколько Drain ждёт очередной порции данных.
func WithDrainWait(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.drainWait = d
		}
	}
}

// WithUploadLimit ограничивает скорость отправки файла (байт в секунду).
// Ноль снимает ограничение.
func WithUploadLimit(bytesPerSec int) Option {
	return func(c *config) {
		c.uploadLimit = bytesPerSec
	}
}

// WithLogger устанавливает логгер.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}
