// Package session хранит изменяемое состояние одного запуска клиента.
//
// Session создаётся на запуск и выбрасывается по его завершении.
// Не безопасна для конкурентного использования: протокол строго
// последовательный, одна пара запрос/ответ в каждый момент.
package session

import (
	"context"
	"fmt"
	"io"

	"github.com/udisondev/bckup/pkg/protocol"
	"github.com/udisondev/bckup/pkg/transport"
)

// CRCAttempts сколько раз сервер может прислать неверную контрольную сумму.
// На последнем несовпадении отправляется CRC_FAIL.
const CRCAttempts = 4

// Session состояние запуска: последние заголовки, payload последнего
// ответа, симметричный ключ, сведения о переданном файле и счётчики.
type Session struct {
	tr *transport.Transport

	uid      protocol.UID
	sent     protocol.ClientHeader
	received protocol.ServerHeader
	payload  []byte

	key      []byte
	fileSize uint32
	fileName string

	crcLeft int
	retry   bool
}

// New создаёт сессию поверх транспорта.
func New(tr *transport.Transport) *Session {
	return &Session{
		tr:      tr,
		crcLeft: CRCAttempts,
	}
}

// Transport возвращает транспорт сессии.
func (s *Session) Transport() *transport.Transport {
	return s.tr
}

func (s *Session) UID() protocol.UID       { return s.uid }
func (s *Session) SetUID(uid protocol.UID) { s.uid = uid }

// Key возвращает симметричный ключ или nil до обмена ключами.
func (s *Session) Key() []byte       { return s.key }
func (s *Session) SetKey(key []byte) { s.key = key }

// FileSize размер шифротекста последней передачи.
func (s *Session) FileSize() uint32        { return s.fileSize }
func (s *Session) SetFileSize(size uint32) { s.fileSize = size }

// FileName имя файла, под которым он передан серверу.
func (s *Session) FileName() string        { return s.fileName }
func (s *Session) SetFileName(name string) { s.fileName = name }

// Retry сообщает, что файл нужно отправить повторно.
func (s *Session) Retry() bool         { return s.retry }
func (s *Session) SetRetry(retry bool) { s.retry = retry }

// LastSent возвращает последний отправленный заголовок.
func (s *Session) LastSent() protocol.ClientHeader { return s.sent }

// LastReceived возвращает последний полученный заголовок.
func (s *Session) LastReceived() protocol.ServerHeader { return s.received }

// Payload возвращает payload последнего ответа.
func (s *Session) Payload() []byte { return s.payload }

// CRCLeft возвращает оставшийся запас несовпадений контрольной суммы.
func (s *Session) CRCLeft() int { return s.crcLeft }

// DecCRC уменьшает запас несовпадений и возвращает остаток.
func (s *Session) DecCRC() int {
	if s.crcLeft > 0 {
		s.crcLeft--
	}
	return s.crcLeft
}

// CRCMismatches возвращает количество несовпадений контрольной суммы.
func (s *Session) CRCMismatches() int {
	return CRCAttempts - s.crcLeft
}

// Send отправляет заголовок и фиксированную часть запроса одной записью.
func (s *Session) Send(ctx context.Context, req protocol.Request) error {
	h, payload := protocol.Frame(s.uid, req)
	s.sent = h

	var hdr [protocol.ClientHeaderSize]byte
	if err := s.tr.Write(ctx, h.AppendBinary(hdr[:0]), payload); err != nil {
		return fmt.Errorf("send %s: %w", req.Code(), err)
	}
	return nil
}

// SendFile отправляет запрос SEND_FILE и следом шифротекст из body.
func (s *Session) SendFile(ctx context.Context, req protocol.FileRequest, body io.Reader) error {
	if err := s.Send(ctx, req); err != nil {
		return err
	}
	if _, err := s.tr.WriteFrom(ctx, body, int64(req.Size)); err != nil {
		return fmt.Errorf("send file body: %w", err)
	}
	return nil
}

// ReceiveHeader читает только заголовок ответа.
func (s *Session) ReceiveHeader(ctx context.Context) (protocol.ServerHeader, error) {
	s.payload = nil

	h, err := s.tr.ReadHeader(ctx)
	if err != nil {
		return h, err
	}
	s.received = h
	return h, nil
}

// ReceivePayload дочитывает payload последнего заголовка.
func (s *Session) ReceivePayload(ctx context.Context) ([]byte, error) {
	if s.received.PayloadSize == 0 {
		return nil, nil
	}
	payload, err := s.tr.ReadPayload(ctx, s.received.PayloadSize)
	if err != nil {
		return nil, err
	}
	s.payload = payload
	return payload, nil
}

// Drain отбрасывает непрочитанные данные сокета.
func (s *Session) Drain() (int, error) {
	return s.tr.Drain()
}

// Close закрывает соединение сессии.
func (s *Session) Close() error {
	return s.tr.Close()
}
