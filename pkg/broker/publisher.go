package broker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/udisondev/bckup/pkg/client"
)

// Publisher публикует отчёты о запусках. Реализует client.Reporter.
type Publisher struct {
	broker *Broker
}

var _ client.Reporter = (*Publisher)(nil)

// NewPublisher создаёт издателя.
func NewPublisher(broker *Broker) *Publisher {
	return &Publisher{broker: broker}
}

// Report публикует отчёт в subject клиента и ждёт подтверждения сервера NATS.
func (p *Publisher) Report(ctx context.Context, r *client.Report) error {
	data, err := EncodeReport(r)
	if err != nil {
		return err
	}

	subject := subjectForClient(r.UID.String())
	slog.Debug("publisher: publishing", "subject", subject, "size", len(data))
	if err := p.broker.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	if err := p.flush(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", subject, err)
	}
	return nil
}

// FlushWithContext требует дедлайн, без него используется таймаут nats.go.
func (p *Publisher) flush(ctx context.Context) error {
	if _, ok := ctx.Deadline(); ok {
		return p.broker.conn.FlushWithContext(ctx)
	}
	return p.broker.conn.Flush()
}
