package broker

import (
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/udisondev/bckup/pkg/client"
)

// ReportHandler получает разобранный отчёт.
type ReportHandler func(*client.Report)

// Subscriber подписка на отчёты.
type Subscriber struct {
	sub *nats.Subscription
}

// NewSubscriber подписывается на отчёты клиента uidHex.
// Пустой uidHex означает отчёты всех клиентов.
// Сообщения, которые не удалось разобрать, пропускаются.
func NewSubscriber(broker *Broker, uidHex string, handler ReportHandler) (*Subscriber, error) {
	subject := SubjectAll
	if uidHex != "" {
		subject = subjectForClient(uidHex)
	}
	slog.Debug("subscriber: creating", "subject", subject)

	sub, err := broker.conn.Subscribe(subject, func(msg *nats.Msg) {
		r, err := DecodeReport(msg.Data)
		if err != nil {
			slog.Warn("subscriber: bad report", "subject", msg.Subject, "error", err)
			return
		}
		handler(r)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", subject, err)
	}
	// подписка должна дойти до сервера раньше первой публикации
	if err := broker.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("flush subscription %s: %w", subject, err)
	}

	slog.Info("subscriber: subscribed", "subject", subject)
	return &Subscriber{sub: sub}, nil
}

// Unsubscribe отписывается от отчётов.
func (s *Subscriber) Unsubscribe() error {
	if err := s.sub.Unsubscribe(); err != nil {
		return fmt.Errorf("unsubscribe from %s: %w", s.sub.Subject, err)
	}
	return nil
}
