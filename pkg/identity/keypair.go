// Package identity предоставляет RSA ключи клиента и файл идентичности.
package identity

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"errors"
	"fmt"
)

// Bits размер RSA модуля. Сервер рассчитан на 1024 бита:
// DER публичного ключа должен поместиться в 160-байтовое поле.
const Bits = 1024

// ErrUnwrap не удалось расшифровать AES ключ, выданный сервером.
var ErrUnwrap = errors.New("unwrap symmetric key")

// KeyPair содержит RSA ключ клиента.
type KeyPair struct {
	PrivateKey *rsa.PrivateKey
}

// Generate создаёт новую пару ключей.
func Generate() (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, Bits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	return &KeyPair{PrivateKey: priv}, nil
}

// ParsePrivateKey восстанавливает ключ из PKCS#8 DER.
func ParsePrivateKey(der []byte) (*KeyPair, error) {
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("parse private key: not an RSA key (%T)", key)
	}
	return &KeyPair{PrivateKey: priv}, nil
}

// MarshalPrivateKey возвращает приватный ключ в PKCS#8 DER.
func (k *KeyPair) MarshalPrivateKey() ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(k.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	return der, nil
}

// PublicKeyDER возвращает публичный ключ в PKCS#1 DER для отправки серверу.
// DER занимает 140 байт и дополняется нулями до поля в 160 байт, поэтому
// сервер должен допускать нули после DER при импорте ключа.
func (k *KeyPair) PublicKeyDER() []byte {
	return x509.MarshalPKCS1PublicKey(&k.PrivateKey.PublicKey)
}

// Unwrap расшифровывает AES ключ (RSA-OAEP, SHA-1).
func (k *KeyPair) Unwrap(wrapped []byte) ([]byte, error) {
	key, err := rsa.DecryptOAEP(sha1.New(), nil, k.PrivateKey, wrapped, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnwrap, err)
	}
	return key, nil
}

// Wrap шифрует secret публичным ключом из PKCS#1 DER (сторона сервера).
// Нули в конце поля ключа отбрасываются.
func Wrap(publicDER, secret []byte) ([]byte, error) {
	pub, err := parsePublicKey(publicDER)
	if err != nil {
		return nil, err
	}
	wrapped, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, pub, secret, nil)
	if err != nil {
		return nil, fmt.Errorf("wrap symmetric key: %w", err)
	}
	return wrapped, nil
}

func parsePublicKey(der []byte) (*rsa.PublicKey, error) {
	// Поле ключа фиксированной длины: DER короче и дополнен нулями.
	for len(der) > 0 && der[len(der)-1] == 0 {
		if pub, err := x509.ParsePKCS1PublicKey(der); err == nil {
			return pub, nil
		}
		der = der[:len(der)-1]
	}
	pub, err := x509.ParsePKCS1PublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return pub, nil
}
