package client

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/udisondev/bckup/pkg/transport"
)

// MaxRetries сколько раз пара запрос/ответ повторяется после первой
// неудачной попытки.
const MaxRetries = 3

// Reporter получает отчёт о каждом завершённом запуске.
type Reporter interface {
	Report(ctx context.Context, r *Report) error
}

// ReporterFunc адаптирует функцию к Reporter.
type ReporterFunc func(ctx context.Context, r *Report) error

func (f ReporterFunc) Report(ctx context.Context, r *Report) error {
	return f(ctx, r)
}

type runConfig struct {
	logger       *slog.Logger
	workDir      string
	reporter     Reporter
	transportOps []transport.Option
}

// Option конфигурирует запуск.
type Option func(*runConfig)

// WithLogger устанавливает логгер.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithWorkDir устанавливает каталог для зашифрованного файла.
// По умолчанию используется os.TempDir().
func WithWorkDir(dir string) Option {
	return func(c *runConfig) {
		c.workDir = dir
	}
}

// WithReporter устанавливает получателя отчёта о запуске.
// Ошибка отправки отчёта логируется и не влияет на результат запуска.
func WithReporter(r Reporter) Option {
	return func(c *runConfig) {
		c.reporter = r
	}
}

// WithDialTimeout устанавливает таймаут подключения.
func WithDialTimeout(d time.Duration) Option {
	return withTransport(transport.WithDialTimeout(d))
}

// WithPatience устанавливает количество опросов сокета перед таймаутом.
func WithPatience(n int) Option {
	return withTransport(transport.WithPatience(n))
}

// WithPollInterval устанавливает паузу между опросами сокета.
func WithPollInterval(d time.Duration) Option {
	return withTransport(transport.WithPollInterval(d))
}

// WithUploadLimit ограничивает скорость отправки файла (байт в секунду).
func WithUploadLimit(bytesPerSec int) Option {
	return withTransport(transport.WithUploadLimit(bytesPerSec))
}

// WithTransportOptions передаёт произвольные опции транспорту.
func WithTransportOptions(opts ...transport.Option) Option {
	return withTransport(opts...)
}

func withTransport(opts ...transport.Option) Option {
	return func(c *runConfig) {
		c.transportOps = append(c.transportOps, opts...)
	}
}

func newRunConfig(opts []Option) *runConfig {
	cfg := &runConfig{
		logger:  slog.Default(),
		workDir: os.TempDir(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
