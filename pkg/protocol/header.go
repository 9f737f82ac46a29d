package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ClientHeader заголовок каждого запроса клиента (23 байта).
//
//	[0:16]  UID
//	[16]    Version
//	[17:19] Code
//	[19:23] PayloadSize
type ClientHeader struct {
	UID         UID
	Version     byte
	Code        Code
	PayloadSize uint32
}

// NewClientHeader создаёт заголовок текущей версии протокола.
func NewClientHeader(uid UID, code Code, size uint32) ClientHeader {
	return ClientHeader{
		UID:         uid,
		Version:     Version,
		Code:        code,
		PayloadSize: size,
	}
}

// AppendBinary дописывает заголовок в buf.
func (h ClientHeader) AppendBinary(buf []byte) []byte {
	buf = append(buf, h.UID[:]...)
	buf = append(buf, h.Version)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(h.Code))
	buf = binary.LittleEndian.AppendUint32(buf, h.PayloadSize)
	return buf
}

// MarshalBinary возвращает заголовок в wire формате.
func (h ClientHeader) MarshalBinary() ([]byte, error) {
	return h.AppendBinary(make([]byte, 0, ClientHeaderSize)), nil
}

// Encode записывает ClientHeader в writer.
func (h ClientHeader) Encode(w io.Writer) error {
	var buf [ClientHeaderSize]byte
	if _, err := w.Write(h.AppendBinary(buf[:0])); err != nil {
		return fmt.Errorf("write client header: %w", err)
	}
	return nil
}

// UnmarshalBinary разбирает заголовок из data.
func (h *ClientHeader) UnmarshalBinary(data []byte) error {
	if len(data) != ClientHeaderSize {
		return fmt.Errorf("%w: client header is %d bytes, want %d", ErrFraming, len(data), ClientHeaderSize)
	}
	copy(h.UID[:], data[:UIDSize])
	h.Version = data[UIDSize]
	h.Code = Code(binary.LittleEndian.Uint16(data[UIDSize+VersionSize:]))
	h.PayloadSize = binary.LittleEndian.Uint32(data[UIDSize+VersionSize+CodeSize:])
	return nil
}

// DecodeClientHeader читает ClientHeader из reader.
func DecodeClientHeader(r io.Reader) (ClientHeader, error) {
	var buf [ClientHeaderSize]byte
	var h ClientHeader
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return h, fmt.Errorf("read client header: %w", err)
	}
	err := h.UnmarshalBinary(buf[:])
	return h, err
}

// ServerHeader заголовок каждого ответа сервера (7 байт).
//
//	[0]   Version
//	[1:3] Code
//	[3:7] PayloadSize
type ServerHeader struct {
	Version     byte
	Code        Code
	PayloadSize uint32
}

// NewServerHeader создаёт заголовок ответа текущей версии.
func NewServerHeader(code Code, size uint32) ServerHeader {
	return ServerHeader{Version: Version, Code: code, PayloadSize: size}
}

// AppendBinary дописывает заголовок в buf.
func (h ServerHeader) AppendBinary(buf []byte) []byte {
	buf = append(buf, h.Version)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(h.Code))
	buf = binary.LittleEndian.AppendUint32(buf, h.PayloadSize)
	return buf
}

// MarshalBinary возвращает заголовок в wire формате.
func (h ServerHeader) MarshalBinary() ([]byte, error) {
	return h.AppendBinary(make([]byte, 0, ServerHeaderSize)), nil
}

// Encode записывает ServerHeader в writer.
func (h ServerHeader) Encode(w io.Writer) error {
	var buf [ServerHeaderSize]byte
	if _, err := w.Write(h.AppendBinary(buf[:0])); err != nil {
		return fmt.Errorf("write server header: %w", err)
	}
	return nil
}

// UnmarshalBinary разбирает заголовок из data.
func (h *ServerHeader) UnmarshalBinary(data []byte) error {
	if len(data) != ServerHeaderSize {
		return fmt.Errorf("%w: server header is %d bytes, want %d", ErrFraming, len(data), ServerHeaderSize)
	}
	h.Version = data[0]
	h.Code = Code(binary.LittleEndian.Uint16(data[VersionSize:]))
	h.PayloadSize = binary.LittleEndian.Uint32(data[VersionSize+CodeSize:])
	return nil
}

// DecodeServerHeader читает ServerHeader из reader.
func DecodeServerHeader(r io.Reader) (ServerHeader, error) {
	var buf [ServerHeaderSize]byte
	var h ServerHeader
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return h, fmt.Errorf("read server header: %w", err)
	}
	err := h.UnmarshalBinary(buf[:])
	return h, err
}
