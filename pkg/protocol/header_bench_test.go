package protocol

import (
	"bytes"
	"testing"
)

func BenchmarkClientHeaderAppend(b *testing.B) {
	h := NewClientHeader(UID{1, 2, 3, 4}, CodeSendFile, 4096)
	var buf [ClientHeaderSize]byte

	b.ReportAllocs()
	b.ResetTimer()

	for b.Loop() {
		_ = h.AppendBinary(buf[:0])
	}
}

func BenchmarkDecodeServerHeader(b *testing.B) {
	data, _ := NewServerHeader(CodeGetCRC, GetCRCSize).MarshalBinary()
	r := bytes.NewReader(data)

	b.ReportAllocs()
	b.ResetTimer()

	for b.Loop() {
		r.Reset(data)
		_, _ = DecodeServerHeader(r)
	}
}

func BenchmarkFrameRegister(b *testing.B) {
	req := RegisterRequest{Name: "bench-client"}

	b.ReportAllocs()
	b.ResetTimer()

	for b.Loop() {
		_, _ = Frame(UID{}, req)
	}
}
