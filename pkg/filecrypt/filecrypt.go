// Package filecrypt шифрует передаваемый файл симметричным ключом сессии.
//
// AES-CBC с PKCS#7 padding и нулевым IV. Нулевой IV является известной слабостью
// протокола: одинаковые файлы дают одинаковый шифротекст. Сервер ожидает
// именно его, замена IV ломает совместимость.
package filecrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"io"
	"os"
)

// KeySize размер AES ключа, выдаваемого сервером.
const KeySize = 16

// BlockSize размер блока AES.
const BlockSize = aes.BlockSize

// chunkSize размер буфера потокового шифрования (кратен блоку).
const chunkSize = 32 * 1024

var (
	// ErrKeySize ключ не подходит для AES.
	ErrKeySize = errors.New("invalid AES key size")

	// ErrPadding некорректный PKCS#7 padding или длина шифротекста.
	ErrPadding = errors.New("invalid padding")
)

var zeroIV [BlockSize]byte

func newBlock(key []byte) (cipher.Block, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d", ErrKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return block, nil
}

// CiphertextSize возвращает размер шифротекста для n байт открытого текста.
func CiphertextSize(n int64) int64 {
	return n + BlockSize - n%BlockSize
}

// EncryptStream шифрует src в dst до EOF. Возвращает размер шифротекста.
func EncryptStream(key []byte, dst io.Writer, src io.Reader) (int64, error) {
	block, err := newBlock(key)
	if err != nil {
		return 0, err
	}
	mode := cipher.NewCBCEncrypter(block, zeroIV[:])

	// запас на блок padding, чтобы pad не перевыделял память
	buf := make([]byte, chunkSize, chunkSize+BlockSize)
	var written int64

	for {
		n, err := io.ReadFull(src, buf[:chunkSize])
		last := false
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			last = true
		default:
			return written, fmt.Errorf("read plaintext: %w", err)
		}

		out := buf[:n]
		if last {
			out = pad(out)
		}
		mode.CryptBlocks(out, out)

		m, err := dst.Write(out)
		written += int64(m)
		if err != nil {
			return written, fmt.Errorf("write ciphertext: %w", err)
		}
		if last {
			return written, nil
		}
	}
}

// EncryptFile шифрует файл src в файл dst (побочный артефакт для отправки).
// Возвращает размер шифротекста.
func EncryptFile(key []byte, src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("open source file: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return 0, fmt.Errorf("create output file: %w", err)
	}

	n, err := EncryptStream(key, out, in)
	if err != nil {
		_ = out.Close()
		return n, err
	}
	if err := out.Close(); err != nil {
		return n, fmt.Errorf("close output file: %w", err)
	}
	return n, nil
}

// Encrypt шифрует буфер целиком.
func Encrypt(key, plaintext []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(int(CiphertextSize(int64(len(plaintext)))))
	if _, err := EncryptStream(key, &buf, bytes.NewReader(plaintext)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decrypt расшифровывает буфер целиком и снимает padding.
func Decrypt(key, ciphertext []byte) ([]byte, error) {
	var buf bytes.Buffer
	d, err := NewDecrypter(key, &buf)
	if err != nil {
		return nil, err
	}
	if _, err := d.Write(ciphertext); err != nil {
		return nil, err
	}
	if err := d.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decrypter потоковая расшифровка для приёма файла кусками.
// Последний блок удерживается до Close, где снимается padding.
type Decrypter struct {
	mode cipher.BlockMode
	w    io.Writer
	buf  []byte
}

// NewDecrypter создаёт Decrypter, пишущий открытый текст в w.
func NewDecrypter(key []byte, w io.Writer) (*Decrypter, error) {
	block, err := newBlock(key)
	if err != nil {
		return nil, err
	}
	return &Decrypter{
		mode: cipher.NewCBCDecrypter(block, zeroIV[:]),
		w:    w,
	}, nil
}

// Write принимает очередной кусок шифротекста произвольной длины.
func (d *Decrypter) Write(p []byte) (int, error) {
	d.buf = append(d.buf, p...)

	n := len(d.buf) / BlockSize * BlockSize
	if n == len(d.buf) {
		n -= BlockSize
	}
	if n <= 0 {
		return len(p), nil
	}

	d.mode.CryptBlocks(d.buf[:n], d.buf[:n])
	if _, err := d.w.Write(d.buf[:n]); err != nil {
		return 0, fmt.Errorf("write plaintext: %w", err)
	}
	d.buf = append(d.buf[:0], d.buf[n:]...)
	return len(p), nil
}

// Close расшифровывает последний блок и снимает padding.
func (d *Decrypter) Close() error {
	if len(d.buf) != BlockSize {
		return fmt.Errorf("%w: ciphertext is not a multiple of the block size", ErrPadding)
	}
	d.mode.CryptBlocks(d.buf, d.buf)
	last, err := unpad(d.buf)
	if err != nil {
		return err
	}
	if _, err := d.w.Write(last); err != nil {
		return fmt.Errorf("write plaintext: %w", err)
	}
	d.buf = d.buf[:0]
	return nil
}

func pad(b []byte) []byte {
	p := BlockSize - len(b)%BlockSize
	for range p {
		b = append(b, byte(p))
	}
	return b
}

func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, ErrPadding
	}
	p := int(b[len(b)-1])
	if p == 0 || p > BlockSize || p > len(b) {
		return nil, ErrPadding
	}
	for _, c := range b[len(b)-p:] {
		if int(c) != p {
			return nil, ErrPadding
		}
	}
	return b[:len(b)-p], nil
}
