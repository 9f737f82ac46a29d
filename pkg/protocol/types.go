// Package protocol определяет wire protocol клиента резервного копирования.
//
// Все целые числа передаются в little-endian, заголовки не выровнены.
// Формат совпадает с сервером побайтно, менять его нельзя.
package protocol

import "fmt"

// Версия протокола, отправляется в каждом заголовке.
const Version byte = 3

// Code код запроса или ответа.
type Code uint16

// Коды запросов клиента
const (
	CodeRegister  Code = 1100
	CodeSendKey   Code = 1101
	CodeReconnect Code = 1102
	CodeSendFile  Code = 1103
	CodeCRCAck    Code = 1104
	CodeCRCNack   Code = 1105
	CodeCRCFail   Code = 1106
)

// Коды ответов сервера
const (
	CodeRegisterGood  Code = 2100
	CodeRegisterBad   Code = 2101
	CodeGoodKey       Code = 2102
	CodeGetCRC        Code = 2103
	CodeAck           Code = 2104
	CodeReconnectGood Code = 2105
	CodeReconnectBad  Code = 2106
	CodeGenericError  Code = 2107
)

// CodeEnd никогда не передаётся: означает закрытие соединения.
const CodeEnd Code = 0

// Размеры полей
const (
	UIDSize          = 16
	VersionSize      = 1
	CodeSize         = 2
	SizeSize         = 4
	CRCSize          = 4
	NameSize         = 255
	KeySize          = 160
	ClientHeaderSize = UIDSize + VersionSize + CodeSize + SizeSize // 23
	ServerHeaderSize = VersionSize + CodeSize + SizeSize           // 7
)

// Максимальные размеры
const (
	// MaxChunkSize максимальный размер одного куска при передаче файла.
	MaxChunkSize = 1024
	// MaxFileSize протокол допускает не более 4 GiB на полезную нагрузку.
	MaxFileSize uint64 = 1<<32 - NameSize - SizeSize
	// MaxNameLen длина имени без завершающего NUL.
	MaxNameLen = NameSize - 1
	// MaxResponseSize ограничивает payload ответа сервера.
	MaxResponseSize = UIDSize + SizeSize + NameSize + CRCSize + KeySize
)

// Фиксированные размеры payload ответов
const (
	RegisterGoodSize = UIDSize
	GetCRCSize       = UIDSize + SizeSize + NameSize + CRCSize
	AckSize          = UIDSize
)

// UID идентификатор клиента, выданный сервером при регистрации.
type UID [UIDSize]byte

// IsZero сообщает, что UID ещё не назначен.
func (u UID) IsZero() bool {
	return u == UID{}
}

// String возвращает UID в hex (верхний регистр, как в файле идентичности).
func (u UID) String() string {
	return fmt.Sprintf("%X", u[:])
}

var codeNames = map[Code]string{
	CodeRegister:      "REGISTER",
	CodeSendKey:       "SEND_KEY",
	CodeReconnect:     "RECONNECT",
	CodeSendFile:      "SEND_FILE",
	CodeCRCAck:        "CRC_ACK",
	CodeCRCNack:       "CRC_NACK",
	CodeCRCFail:       "CRC_FAIL",
	CodeRegisterGood:  "REGISTER_GOOD",
	CodeRegisterBad:   "REGISTER_BAD",
	CodeGoodKey:       "GOOD_KEY",
	CodeGetCRC:        "GET_CRC",
	CodeAck:           "ACK",
	CodeReconnectGood: "RECONNECT_GOOD",
	CodeReconnectBad:  "RECONNECT_BAD",
	CodeGenericError:  "GENERIC_ERROR",
	CodeEnd:           "END",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CODE(%d)", uint16(c))
}
