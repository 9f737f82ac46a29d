package identity

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/udisondev/bckup/pkg/protocol"
)

func TestGenerate(t *testing.T) {
	kp, err := Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if got := kp.PrivateKey.N.BitLen(); got != Bits {
		t.Errorf("modulus size: got %d, want %d", got, Bits)
	}
	der := kp.PublicKeyDER()
	if len(der) > protocol.KeySize {
		t.Errorf("public key DER %d bytes does not fit %d-byte field", len(der), protocol.KeySize)
	}
	// остаток поля заполняется нулями
	if len(der) != 140 {
		t.Errorf("public key DER: got %d bytes, want 140", len(der))
	}
}

func TestWrapUnwrap(t *testing.T) {
	kp, err := Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	secret := []byte("0123456789abcdef")

	// ключ приходит в поле фиксированной длины с нулями в конце
	field := make([]byte, protocol.KeySize)
	copy(field, kp.PublicKeyDER())

	wrapped, err := Wrap(field, secret)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if len(wrapped) != Bits/8 {
		t.Errorf("wrapped size: got %d, want %d", len(wrapped), Bits/8)
	}

	got, err := kp.Unwrap(wrapped)
	if err != nil {
		t.Fatalf("unwrap: %v", err)
	}
	if !bytes.Equal(got, secret) {
		t.Errorf("got %x, want %x", got, secret)
	}
}

func TestUnwrapForeignKey(t *testing.T) {
	a, err := Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, err := Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	wrapped, err := Wrap(a.PublicKeyDER(), []byte("0123456789abcdef"))
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}

	if _, err := b.Unwrap(wrapped); !errors.Is(err, ErrUnwrap) {
		t.Errorf("expected ErrUnwrap, got %v", err)
	}
	if _, err := a.Unwrap([]byte("garbage")); !errors.Is(err, ErrUnwrap) {
		t.Errorf("expected ErrUnwrap, got %v", err)
	}
}

func TestWrapInvalidKey(t *testing.T) {
	if _, err := Wrap(make([]byte, protocol.KeySize), []byte("x")); err == nil {
		t.Error("expected error for zero key field")
	}
}

func TestPrivateKeyRoundTrip(t *testing.T) {
	kp, err := Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	der, err := kp.MarshalPrivateKey()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	loaded, err := ParsePrivateKey(der)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !kp.PrivateKey.Equal(loaded.PrivateKey) {
		t.Error("private keys don't match")
	}
}

func TestFileSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "me.info")

	kp, err := Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	original := &File{
		Name: "Michael Jackson",
		UID:  protocol.UID{0xde, 0xad, 0xbe, 0xef, 15: 0x01},
		Keys: kp,
	}

	if err := original.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Name != original.Name {
		t.Errorf("name: got %q", loaded.Name)
	}
	if loaded.UID != original.UID {
		t.Errorf("uid: got %s", loaded.UID)
	}
	if !loaded.Keys.PrivateKey.Equal(kp.PrivateKey) {
		t.Error("private keys don't match")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := bytes.Split(data, []byte("\n"))
	if string(lines[1]) != "DEADBEEF000000000000000000000001" {
		t.Errorf("uid line: got %q", lines[1])
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "me.info"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestParseFileInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"name only", "alice\n"},
		{"short uid", "alice\nABCD\nAAAA\n"},
		{"bad hex", "alice\nZZ000000000000000000000000000000\nAAAA\n"},
		{"bad base64", "alice\n00000000000000000000000000000000\n!!!\n"},
		{"bad key", "alice\n00000000000000000000000000000000\nAAAA\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseFile([]byte(tt.data)); !errors.Is(err, ErrFormat) {
				t.Errorf("expected ErrFormat, got %v", err)
			}
		})
	}
}
