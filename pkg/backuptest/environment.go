package backuptest

import (
	"context"
	"errors"
	"fmt"
)

// Environment сервер резервного копирования и NATS для интеграционных тестов.
type Environment struct {
	// NATSUrl URL для подключения к NATS.
	NATSUrl string
	// Addr адрес сервера резервного копирования (host:port).
	Addr string
	// Server сервер для проверки принятых файлов и запросов.
	Server *Server

	nats *natsContainer
}

// Start запускает NATS контейнер и сервер с опциями opts.
func Start(ctx context.Context, opts ...Option) (*Environment, error) {
	nats, err := startNATS(ctx)
	if err != nil {
		return nil, err
	}

	srv, err := NewServer(opts...)
	if err != nil {
		_ = nats.terminate(ctx)
		return nil, fmt.Errorf("start backup server: %w", err)
	}

	return &Environment{
		NATSUrl: nats.url,
		Addr:    srv.Addr,
		Server:  srv,
		nats:    nats,
	}, nil
}

// Close останавливает сервер и контейнер.
func (e *Environment) Close(ctx context.Context) error {
	var errs []error
	if e.Server != nil {
		if err := e.Server.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close backup server: %w", err))
		}
	}
	if err := e.nats.terminate(ctx); err != nil {
		errs = append(errs, fmt.Errorf("terminate NATS: %w", err))
	}
	return errors.Join(errs...)
}
