// Package cksum реализует контрольную сумму POSIX cksum.
//
// CRC-32 с полиномом 0x04C11DB7 (MSB-first), после данных в сумму
// добавляется длина сообщения, результат инвертируется. Сервер считает
// сумму тем же алгоритмом по расшифрованному файлу.
package cksum

import (
	"fmt"
	"io"
	"os"
)

const poly = 0x04C11DB7

var table = makeTable(poly)

func makeTable(poly uint32) *[256]uint32 {
	var t [256]uint32
	for i := range t {
		c := uint32(i) << 24
		for range 8 {
			if c&0x80000000 != 0 {
				c = c<<1 ^ poly
			} else {
				c <<= 1
			}
		}
		t[i] = c
	}
	return &t
}

// Digest накапливает cksum. Нулевое значение готово к использованию.
type Digest struct {
	crc uint32
	n   uint64
}

// New возвращает пустой Digest.
func New() *Digest {
	return &Digest{}
}

// Write добавляет данные в сумму. Никогда не возвращает ошибку.
func (d *Digest) Write(p []byte) (int, error) {
	crc := d.crc
	for _, b := range p {
		crc = crc<<8 ^ table[byte(crc>>24)^b]
	}
	d.crc = crc
	d.n += uint64(len(p))
	return len(p), nil
}

// Sum32 возвращает cksum записанных данных. Состояние не меняется.
func (d *Digest) Sum32() uint32 {
	crc := d.crc
	for n := d.n; n != 0; n >>= 8 {
		crc = crc<<8 ^ table[byte(crc>>24)^byte(n)]
	}
	return ^crc
}

// Len возвращает количество учтённых байт.
func (d *Digest) Len() uint64 {
	return d.n
}

// Reset сбрасывает состояние.
func (d *Digest) Reset() {
	d.crc, d.n = 0, 0
}

// Bytes считает cksum буфера.
func Bytes(b []byte) uint32 {
	var d Digest
	_, _ = d.Write(b)
	return d.Sum32()
}

// Sum считает cksum потока до EOF.
func Sum(r io.Reader) (uint32, error) {
	var d Digest
	if _, err := io.Copy(&d, r); err != nil {
		return 0, fmt.Errorf("read input: %w", err)
	}
	return d.Sum32(), nil
}

// File считает cksum файла по пути.
func File(path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	return Sum(f)
}
