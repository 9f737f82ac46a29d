package identity

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/udisondev/bckup/pkg/protocol"
)

// ErrFormat файл идентичности повреждён.
var ErrFormat = errors.New("bad identity file format")

// base64LineLen длина строки base64 при записи ключа.
const base64LineLen = 64

// File содержимое файла идентичности (me.info).
//
// Формат: имя клиента, UID в hex, приватный ключ PKCS#8 в base64
// (может занимать несколько строк).
type File struct {
	Name string
	UID  protocol.UID
	Keys *KeyPair
}

// LoadFile читает файл идентичности.
// Отсутствие файла возвращается как os.ErrNotExist, повреждение как ErrFormat.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read identity file: %w", err)
	}
	return ParseFile(data)
}

// ParseFile разбирает содержимое файла идентичности.
func ParseFile(data []byte) (*File, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))

	var lines []string
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if len(lines) < 3 {
		return nil, fmt.Errorf("%w: expected name, uid and key", ErrFormat)
	}

	var f File
	f.Name = lines[0]

	uid, err := hex.DecodeString(lines[1])
	if err != nil || len(uid) != protocol.UIDSize {
		return nil, fmt.Errorf("%w: bad uid %q", ErrFormat, lines[1])
	}
	copy(f.UID[:], uid)

	der, err := base64.StdEncoding.DecodeString(strings.Join(lines[2:], ""))
	if err != nil {
		return nil, fmt.Errorf("%w: bad key encoding: %v", ErrFormat, err)
	}
	f.Keys, err = ParsePrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return &f, nil
}

// MarshalText возвращает содержимое файла идентичности.
func (f *File) MarshalText() ([]byte, error) {
	if f.Keys == nil {
		return nil, errors.New("identity has no keys")
	}
	der, err := f.Keys.MarshalPrivateKey()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(f.Name)
	buf.WriteByte('\n')
	buf.WriteString(f.UID.String())
	buf.WriteByte('\n')

	enc := base64.StdEncoding.EncodeToString(der)
	for len(enc) > 0 {
		n := min(base64LineLen, len(enc))
		buf.WriteString(enc[:n])
		buf.WriteByte('\n')
		enc = enc[n:]
	}
	return buf.Bytes(), nil
}

// Save атомарно записывает файл идентичности.
// При ошибке частично записанный файл удаляется.
func (f *File) Save(path string) error {
	data, err := f.MarshalText()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create identity directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".identity-*")
	if err != nil {
		return fmt.Errorf("create identity file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write identity file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close identity file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename identity file: %w", err)
	}
	return nil
}
