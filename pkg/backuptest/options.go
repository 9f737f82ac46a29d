package backuptest

import (
	"log/slog"

	"github.com/udisondev/bckup/pkg/protocol"
)

// Option конфигурирует поведение тестового сервера.
type Option func(*options)

type options struct {
	rejectRegister  bool
	rejectReconnect bool
	corruptCRC      int
	silent          map[protocol.Code]int
	genericError    map[protocol.Code]int
	wrongUID        map[protocol.Code]int
	version         byte
	logger          *slog.Logger
}

func defaultOptions() *options {
	return &options{
		silent:       make(map[protocol.Code]int),
		genericError: make(map[protocol.Code]int),
		wrongUID:     make(map[protocol.Code]int),
		version:      protocol.Version,
		logger:       slog.Default(),
	}
}

// WithRegisterReject отвечает REGISTER_BAD на каждую регистрацию.
func WithRegisterReject() Option {
	return func(o *options) { o.rejectRegister = true }
}

// WithReconnectReject отвечает RECONNECT_BAD на каждое повторное подключение.
func WithReconnectReject() Option {
	return func(o *options) { o.rejectReconnect = true }
}

// WithCorruptCRC портит контрольную сумму в первых n ответах GET_CRC.
func WithCorruptCRC(n int) Option {
	return func(o *options) { o.corruptCRC = n }
}

// WithSilence оставляет без ответа первые n запросов с кодом code.
func WithSilence(code protocol.Code, n int) Option {
	return func(o *options) { o.silent[code] = n }
}

// WithGenericError отвечает GENERIC_ERROR на первые n запросов с кодом code.
func WithGenericError(code protocol.Code, n int) Option {
	return func(o *options) { o.genericError[code] = n }
}

// WithWrongUID подставляет чужой UID в первые n ответов на запрос code.
func WithWrongUID(code protocol.Code, n int) Option {
	return func(o *options) { o.wrongUID[code] = n }
}

// WithServerVersion записывает v в поле версии каждого ответа.
func WithServerVersion(v byte) Option {
	return func(o *options) { o.version = v }
}

// WithLogger устанавливает логгер сервера.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
