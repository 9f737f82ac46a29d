package client

import (
	"github.com/udisondev/bckup/pkg/identity"
	"github.com/udisondev/bckup/pkg/protocol"
)

// Profile настройки и идентичность клиента.
//
// Run меняет только UID, ключи и два флага: после регистрации,
// после обмена ключами и при отказе в повторном подключении.
type Profile interface {
	// ServerAddr возвращает адрес сервера host:port.
	ServerAddr() string
	// Name возвращает имя клиента (не более 254 байт).
	Name() string
	// FilePath возвращает путь к файлу для резервного копирования.
	FilePath() string

	UID() protocol.UID
	SetUID(protocol.UID)

	// Keys возвращает RSA ключ или nil, если обмена ключами не было.
	Keys() *identity.KeyPair
	SetKeys(*identity.KeyPair)

	// Registered сообщает, что клиент считает себя зарегистрированным.
	Registered() bool
	SetRegistered(bool)

	// KeyExchanged сообщает, что за запуск выдан новый ключ и
	// идентичность нужно сохранить.
	KeyExchanged() bool
	SetKeyExchanged(bool)
}
