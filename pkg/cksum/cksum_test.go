package cksum

import (
	"bytes"
	"crypto/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Эталонные значения получены утилитой cksum(1).
func TestKnownValues(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  uint32
	}{
		{"empty", "", 4294967295},
		{"single byte", "a", 1220704766},
		{"digits", "123456789", 930766865},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Bytes([]byte(tt.input)); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTable(t *testing.T) {
	if table[1] != 0x04c11db7 {
		t.Errorf("table[1]: got %#x", table[1])
	}
	if table[255] != 0xb1f740b4 {
		t.Errorf("table[255]: got %#x", table[255])
	}
}

func TestDeterministic(t *testing.T) {
	data := make([]byte, 4096)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("rand: %v", err)
	}

	first := Bytes(data)
	for range 5 {
		if got := Bytes(data); got != first {
			t.Fatalf("got %d, want %d", got, first)
		}
	}
}

func TestBitSensitivity(t *testing.T) {
	data := []byte(strings.Repeat("backup payload ", 64))
	base := Bytes(data)

	for _, pos := range []int{0, 1, len(data) / 2, len(data) - 1} {
		for bit := range 8 {
			mutated := bytes.Clone(data)
			mutated[pos] ^= 1 << bit
			if Bytes(mutated) == base {
				t.Errorf("flipping bit %d of byte %d did not change checksum", bit, pos)
			}
		}
	}
}

func TestLengthFolded(t *testing.T) {
	// Нулевые байты не меняют CRC регистр, различие даёт только длина.
	if Bytes([]byte{0}) == Bytes([]byte{0, 0}) {
		t.Error("length must be folded into checksum")
	}
}

func TestStreamingMatchesBytes(t *testing.T) {
	data := []byte(strings.Repeat("0123456789abcdef", 300))

	d := New()
	for off := 0; off < len(data); off += 7 {
		_, _ = d.Write(data[off:min(off+7, len(data))])
	}
	if d.Len() != uint64(len(data)) {
		t.Errorf("len: got %d", d.Len())
	}
	if d.Sum32() != Bytes(data) {
		t.Error("streaming sum differs")
	}

	sum, err := Sum(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if sum != Bytes(data) {
		t.Error("reader sum differs")
	}

	d.Reset()
	if d.Sum32() != Bytes(nil) {
		t.Error("reset should clear state")
	}
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(path, []byte("123456789"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	sum, err := File(path)
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	if sum != 930766865 {
		t.Errorf("got %d", sum)
	}

	if _, err := File(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}
