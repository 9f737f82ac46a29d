package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestClientHeaderLayout(t *testing.T) {
	var uid UID
	for i := range UIDSize {
		uid[i] = byte(i + 1)
	}
	h := NewClientHeader(uid, CodeSendFile, 0x01020304)

	data, err := h.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(data) != ClientHeaderSize {
		t.Fatalf("length: got %d, want %d", len(data), ClientHeaderSize)
	}
	if !bytes.Equal(data[:UIDSize], uid[:]) {
		t.Errorf("uid prefix mismatch")
	}
	if data[16] != Version {
		t.Errorf("version: got %d, want %d", data[16], Version)
	}
	// 1103 = 0x044F, little-endian
	if data[17] != 0x4F || data[18] != 0x04 {
		t.Errorf("code bytes: got % x", data[17:19])
	}
	if !bytes.Equal(data[19:], []byte{0x04, 0x03, 0x02, 0x01}) {
		t.Errorf("size bytes: got % x", data[19:])
	}
}

func TestClientHeaderEncodeDecode(t *testing.T) {
	original := NewClientHeader(UID{0xAA, 0xBB}, CodeSendKey, NameSize+KeySize)

	var buf bytes.Buffer
	if err := original.Encode(&buf); err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := DecodeClientHeader(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != original {
		t.Errorf("got %+v, want %+v", decoded, original)
	}
}

func TestServerHeaderLayout(t *testing.T) {
	h := NewServerHeader(CodeGetCRC, GetCRCSize)

	data, err := h.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := []byte{Version, 0x37, 0x08, 0x17, 0x01, 0x00, 0x00} // 2103, 279
	if !bytes.Equal(data, want) {
		t.Errorf("got % x, want % x", data, want)
	}
}

func TestServerHeaderEncodeDecode(t *testing.T) {
	tests := []struct {
		name string
		h    ServerHeader
	}{
		{"register good", NewServerHeader(CodeRegisterGood, UIDSize)},
		{"generic error", NewServerHeader(CodeGenericError, 0)},
		{"key", NewServerHeader(CodeGoodKey, UIDSize+128)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := tt.h.Encode(&buf); err != nil {
				t.Fatalf("encode: %v", err)
			}
			if buf.Len() != ServerHeaderSize {
				t.Fatalf("length: got %d, want %d", buf.Len(), ServerHeaderSize)
			}
			decoded, err := DecodeServerHeader(&buf)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if decoded != tt.h {
				t.Errorf("got %+v, want %+v", decoded, tt.h)
			}
		})
	}
}

func TestHeaderUnmarshalWrongSize(t *testing.T) {
	var sh ServerHeader
	if err := sh.UnmarshalBinary(make([]byte, ServerHeaderSize-1)); !errors.Is(err, ErrFraming) {
		t.Errorf("server header: got %v, want ErrFraming", err)
	}

	var ch ClientHeader
	if err := ch.UnmarshalBinary(make([]byte, ClientHeaderSize+1)); !errors.Is(err, ErrFraming) {
		t.Errorf("client header: got %v, want ErrFraming", err)
	}
}

func TestDecodeServerHeaderShort(t *testing.T) {
	_, err := DecodeServerHeader(bytes.NewReader([]byte{Version, 0x34}))
	if err == nil {
		t.Error("expected error for truncated header")
	}
}

func TestUID(t *testing.T) {
	var uid UID
	if !uid.IsZero() {
		t.Error("zero uid should report IsZero")
	}
	uid[15] = 0xAB
	if uid.IsZero() {
		t.Error("non-zero uid reported IsZero")
	}
	if got, want := uid.String(), "000000000000000000000000000000AB"; got != want {
		t.Errorf("string: got %s, want %s", got, want)
	}
}

func TestCodeString(t *testing.T) {
	if got := CodeReconnectBad.String(); got != "RECONNECT_BAD" {
		t.Errorf("got %s", got)
	}
	if got := Code(42).String(); got != "CODE(42)" {
		t.Errorf("got %s", got)
	}
}
