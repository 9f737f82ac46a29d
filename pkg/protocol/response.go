package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Таблицы соответствия запрос → ответ. Заполняются один раз и не меняются.
var (
	expectedResponses = map[Code]Code{
		CodeRegister:  CodeRegisterGood,
		CodeReconnect: CodeReconnectGood,
		CodeSendKey:   CodeGoodKey,
		CodeSendFile:  CodeGetCRC,
		CodeCRCAck:    CodeAck,
		CodeCRCFail:   CodeAck,
	}

	rejectResponses = map[Code]Code{
		CodeRegister:  CodeRegisterBad,
		CodeReconnect: CodeReconnectBad,
		CodeSendKey:   CodeGenericError,
		CodeSendFile:  CodeGenericError,
	}
)

// ExpectedResponse возвращает успешный ответ на запрос.
// CRC_NACK ответа не получает: ok == false.
func ExpectedResponse(req Code) (Code, bool) {
	c, ok := expectedResponses[req]
	return c, ok
}

// RejectResponse возвращает код отказа для запроса.
func RejectResponse(req Code) (Code, bool) {
	c, ok := rejectResponses[req]
	return c, ok
}

// CheckResponse проверяет заголовок ответа на запрос sent:
// код и допустимый размер payload. Версию сервера клиент не проверяет.
// Код отказа, отличный от GENERIC_ERROR, вызывающий обрабатывает сам до вызова.
func CheckResponse(sent Code, h ServerHeader) error {
	if h.Code == CodeGenericError {
		return ErrGenericError
	}
	want, ok := ExpectedResponse(sent)
	if !ok || h.Code != want {
		return fmt.Errorf("%w: sent %s, got %s", ErrUnexpectedCode, sent, h.Code)
	}

	size := int(h.PayloadSize)
	switch h.Code {
	case CodeRegisterGood, CodeAck:
		if size != UIDSize {
			return fmt.Errorf("%w: %s payload %d bytes", ErrFraming, h.Code, size)
		}
	case CodeGetCRC:
		if size != GetCRCSize {
			return fmt.Errorf("%w: %s payload %d bytes", ErrFraming, h.Code, size)
		}
	case CodeGoodKey, CodeReconnectGood:
		if size <= UIDSize || size > MaxResponseSize {
			return fmt.Errorf("%w: %s payload %d bytes", ErrFraming, h.Code, size)
		}
	}
	return nil
}

// ParseUIDResponse извлекает UID из ответа REGISTER_GOOD или ACK.
func ParseUIDResponse(payload []byte) (UID, error) {
	var uid UID
	if len(payload) != UIDSize {
		return uid, fmt.Errorf("%w: uid payload %d bytes", ErrFraming, len(payload))
	}
	copy(uid[:], payload)
	return uid, nil
}

// KeyResponse ответ GOOD_KEY или RECONNECT_GOOD: UID и AES ключ,
// зашифрованный публичным RSA ключом клиента.
type KeyResponse struct {
	UID        UID
	WrappedKey []byte
}

// ParseKeyResponse разбирает payload GOOD_KEY / RECONNECT_GOOD.
func ParseKeyResponse(payload []byte) (*KeyResponse, error) {
	if len(payload) <= UIDSize {
		return nil, fmt.Errorf("%w: key payload %d bytes", ErrFraming, len(payload))
	}
	r := &KeyResponse{WrappedKey: bytes.Clone(payload[UIDSize:])}
	copy(r.UID[:], payload[:UIDSize])
	return r, nil
}

// AppendPayload дописывает ответ в wire формате.
func (r *KeyResponse) AppendPayload(buf []byte) []byte {
	buf = append(buf, r.UID[:]...)
	return append(buf, r.WrappedKey...)
}

// CRCResponse ответ GET_CRC: сервер подтверждает приём файла и
// сообщает контрольную сумму расшифрованного содержимого.
type CRCResponse struct {
	UID      UID
	Size     uint32
	FileName string
	Checksum uint32
}

// ParseCRCResponse разбирает payload GET_CRC.
//
//	[0:16]    UID
//	[16:20]   Size
//	[20:275]  FileName (NUL padded)
//	[275:279] Checksum
func ParseCRCResponse(payload []byte) (*CRCResponse, error) {
	if len(payload) != GetCRCSize {
		return nil, fmt.Errorf("%w: crc payload %d bytes", ErrFraming, len(payload))
	}
	r := &CRCResponse{}
	off := copy(r.UID[:], payload[:UIDSize])
	r.Size = binary.LittleEndian.Uint32(payload[off:])
	off += SizeSize
	r.FileName = TrimName(payload[off : off+NameSize])
	off += NameSize
	r.Checksum = binary.LittleEndian.Uint32(payload[off:])
	return r, nil
}

// AppendPayload дописывает ответ в wire формате.
func (r *CRCResponse) AppendPayload(buf []byte) []byte {
	buf = append(buf, r.UID[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, r.Size)
	buf = appendName(buf, r.FileName)
	return binary.LittleEndian.AppendUint32(buf, r.Checksum)
}

// TrimName возвращает строку до первого NUL.
func TrimName(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
