package protocol

import (
	"encoding/binary"
	"fmt"
)

// Request payload запроса клиента.
// Каждый вид запроса имеет фиксированную форму и свои типизированные поля.
type Request interface {
	// Code возвращает код запроса для заголовка.
	Code() Code
	// DeclaredSize возвращает payload_size для заголовка. Для SEND_FILE
	// включает шифротекст, который передаётся отдельно кусками.
	DeclaredSize() uint32
	// AppendPayload дописывает фиксированную часть payload в buf.
	AppendPayload(buf []byte) []byte
}

// RegisterRequest регистрация нового клиента (1100).
type RegisterRequest struct {
	Name string
}

func (RegisterRequest) Code() Code           { return CodeRegister }
func (RegisterRequest) DeclaredSize() uint32 { return NameSize }

// AppendPayload дописывает имя, дополненное NUL до 255 байт.
func (r RegisterRequest) AppendPayload(buf []byte) []byte {
	return appendName(buf, r.Name)
}

// ReconnectRequest повторное подключение зарегистрированного клиента (1102).
// Форма payload совпадает с регистрацией.
type ReconnectRequest struct {
	Name string
}

func (ReconnectRequest) Code() Code           { return CodeReconnect }
func (ReconnectRequest) DeclaredSize() uint32 { return NameSize }

func (r ReconnectRequest) AppendPayload(buf []byte) []byte {
	return appendName(buf, r.Name)
}

// KeyRequest отправка публичного RSA ключа (1101): имя + DER ключа.
type KeyRequest struct {
	Name      string
	PublicKey []byte
}

func (KeyRequest) Code() Code           { return CodeSendKey }
func (KeyRequest) DeclaredSize() uint32 { return NameSize + KeySize }

// AppendPayload дописывает имя (255) и ключ (160). Длинный ключ обрезается,
// короткий дополняется нулями.
func (r KeyRequest) AppendPayload(buf []byte) []byte {
	buf = appendName(buf, r.Name)
	return appendFixed(buf, r.PublicKey, KeySize)
}

// FileRequest заголовок передачи файла (1103): размер шифротекста + имя.
// Сам шифротекст идёт следом и не входит в AppendPayload.
type FileRequest struct {
	Size     uint32
	FileName string
}

func (FileRequest) Code() Code { return CodeSendFile }

func (r FileRequest) DeclaredSize() uint32 {
	return SizeSize + NameSize + r.Size
}

func (r FileRequest) AppendPayload(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, r.Size)
	return appendName(buf, r.FileName)
}

// CRCRequest ответ клиента на контрольную сумму: CRC_ACK, CRC_NACK или CRC_FAIL.
// Payload имя переданного файла (255 байт).
type CRCRequest struct {
	Verdict  Code
	FileName string
}

func (r CRCRequest) Code() Code           { return r.Verdict }
func (CRCRequest) DeclaredSize() uint32 { return NameSize }

func (r CRCRequest) AppendPayload(buf []byte) []byte {
	return appendName(buf, r.FileName)
}

// Frame собирает заголовок и фиксированную часть payload запроса.
func Frame(uid UID, req Request) (ClientHeader, []byte) {
	h := NewClientHeader(uid, req.Code(), req.DeclaredSize())
	return h, req.AppendPayload(nil)
}

// NewRequest строит запрос по коду и упорядоченному списку аргументов.
// Несовпадение количества или типов аргументов является ошибкой программиста и вызывает panic.
//
//	REGISTER, RECONNECT          name string
//	SEND_KEY                     name string, publicKey []byte
//	SEND_FILE                    size uint32, fileName string
//	CRC_ACK, CRC_NACK, CRC_FAIL  fileName string
func NewRequest(code Code, args ...any) Request {
	switch code {
	case CodeRegister:
		return RegisterRequest{Name: arg[string](code, args, 1, 0)}
	case CodeReconnect:
		return ReconnectRequest{Name: arg[string](code, args, 1, 0)}
	case CodeSendKey:
		return KeyRequest{
			Name:      arg[string](code, args, 2, 0),
			PublicKey: arg[[]byte](code, args, 2, 1),
		}
	case CodeSendFile:
		return FileRequest{
			Size:     arg[uint32](code, args, 2, 0),
			FileName: arg[string](code, args, 2, 1),
		}
	case CodeCRCAck, CodeCRCNack, CodeCRCFail:
		return CRCRequest{Verdict: code, FileName: arg[string](code, args, 1, 0)}
	default:
		panic(fmt.Sprintf("protocol: invalid request code %s", code))
	}
}

func arg[T any](code Code, args []any, want, i int) T {
	if len(args) != want {
		panic(fmt.Sprintf("protocol: %s takes %d arguments, got %d", code, want, len(args)))
	}
	v, ok := args[i].(T)
	if !ok {
		panic(fmt.Sprintf("protocol: %s argument %d has type %T", code, i, args[i]))
	}
	return v
}

// appendName дописывает строку фиксированной длины NameSize.
// Последний байт всегда NUL.
func appendName(buf []byte, name string) []byte {
	start := len(buf)
	buf = appendFixed(buf, []byte(name), NameSize)
	buf[start+NameSize-1] = 0
	return buf
}

func appendFixed(buf, data []byte, size int) []byte {
	if len(data) > size {
		data = data[:size]
	}
	buf = append(buf, data...)
	for range size - len(data) {
		buf = append(buf, 0)
	}
	return buf
}
