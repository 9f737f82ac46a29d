// Package broker публикует отчёты о резервном копировании в NATS.
package broker

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Broker управляет соединением с NATS.
type Broker struct {
	conn *nats.Conn
}

// Config конфигурация NATS.
type Config struct {
	URLs          []string
	ReconnectWait time.Duration
	MaxReconnects int
	// Name имя соединения, видимое в мониторинге NATS.
	Name string
}

// New подключается к NATS.
func New(cfg Config) (*Broker, error) {
	opts := []nats.Option{
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("broker: NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("broker: NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			slog.Debug("broker: NATS connection closed")
		}),
	}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}

	// NATS поддерживает URL через запятую
	url := nats.DefaultURL
	if len(cfg.URLs) > 0 {
		url = strings.Join(cfg.URLs, ",")
	}

	slog.Debug("broker: connecting", "urls", url)

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	slog.Debug("broker: connection established", "server_id", conn.ConnectedServerId(), "url", conn.ConnectedUrl())

	return &Broker{conn: conn}, nil
}

// Conn возвращает соединение NATS.
func (b *Broker) Conn() *nats.Conn {
	return b.conn
}

// Close дожидается отправки буфера и закрывает соединение.
func (b *Broker) Close() error {
	slog.Debug("broker: closing connection")
	if err := b.conn.Drain(); err != nil {
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}

// SubjectPrefix префикс subject отчётов: bckup.report.<UID hex>.
const SubjectPrefix = "bckup.report."

// SubjectAll подписка на отчёты всех клиентов.
const SubjectAll = SubjectPrefix + "*"

func subjectForClient(uidHex string) string {
	return SubjectPrefix + uidHex
}
