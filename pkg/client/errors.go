package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/udisondev/bckup/pkg/identity"
	"github.com/udisondev/bckup/pkg/protocol"
	"github.com/udisondev/bckup/pkg/transport"
)

// Kind категория отказа.
type Kind int

const (
	// KindTimeout сервер не ответил за отведённое терпение.
	KindTimeout Kind = iota + 1
	// KindServerReject сервер отказал в регистрации.
	KindServerReject
	// KindProtocol неожиданный код, чужой UID, неверный размер.
	KindProtocol
	// KindDecryption не удалось расшифровать ключ сессии.
	KindDecryption
	// KindIntegrity контрольная сумма не совпала на всех попытках.
	KindIntegrity
	// KindLocalIO не удалось прочитать или подготовить локальный файл.
	KindLocalIO
	// KindUnreachable сервер недоступен.
	KindUnreachable
	// KindCanceled запуск прерван контекстом.
	KindCanceled
)

var kindNames = map[Kind]string{
	KindTimeout:      "timeout",
	KindServerReject: "server reject",
	KindProtocol:     "protocol mismatch",
	KindDecryption:   "decryption failure",
	KindIntegrity:    "integrity mismatch",
	KindLocalIO:      "local I/O",
	KindUnreachable:  "unreachable",
	KindCanceled:     "canceled",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Retryable сообщает, повторяется ли пара запрос/ответ при такой ошибке.
func (k Kind) Retryable() bool {
	return k == KindTimeout || k == KindProtocol
}

// Local сообщает, что причина отказа на стороне клиента.
func (k Kind) Local() bool {
	return k == KindLocalIO || k == KindCanceled
}

var (
	// ErrRegisterRejected сервер ответил REGISTER_BAD.
	ErrRegisterRejected = errors.New("registration rejected by server")

	// ErrChecksum контрольная сумма сервера не совпала с локальной.
	ErrChecksum = errors.New("checksum mismatch")

	// ErrFileTooLarge шифротекст не помещается в поле размера.
	ErrFileTooLarge = errors.New("file is larger than the allowed maximum")

	// errReconnectRejected сервер не узнал клиента, нужна регистрация.
	errReconnectRejected = errors.New("reconnect rejected by server")
)

// Error отказ запуска на шаге Step.
type Error struct {
	Kind Kind
	Step State
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Step, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf возвращает категорию ошибки, возвращённой Run.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

func localError(step State, err error) *Error {
	return &Error{Kind: KindLocalIO, Step: step, Err: err}
}

// classify определяет категорию ошибки шага.
func classify(err error) Kind {
	var e *Error
	switch {
	case errors.As(err, &e):
		return e.Kind
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, transport.ErrUnreachable):
		return KindUnreachable
	case errors.Is(err, transport.ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrRegisterRejected), errors.Is(err, errReconnectRejected):
		return KindServerReject
	case errors.Is(err, identity.ErrUnwrap):
		return KindDecryption
	case errors.Is(err, ErrChecksum):
		return KindIntegrity
	case errors.Is(err, protocol.ErrFraming),
		errors.Is(err, protocol.ErrUnexpectedCode),
		errors.Is(err, protocol.ErrGenericError),
		errors.Is(err, protocol.ErrUIDMismatch),
		errors.Is(err, protocol.ErrSizeMismatch),
		errors.Is(err, protocol.ErrNameMismatch):
		return KindProtocol
	default:
		// неклассифицированная ошибка сокета: считаем сервер недоступным
		return KindUnreachable
	}
}

func wrapError(step State, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: classify(err), Step: step, Err: err}
}
