package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/udisondev/bckup/pkg/client"
	"github.com/udisondev/bckup/pkg/identity"
	"github.com/udisondev/bckup/pkg/protocol"
)

// Profile настройки клиента вместе с идентичностью из me.info.
type Profile struct {
	addr         string
	name         string
	file         string
	identityPath string

	uid          protocol.UID
	keys         *identity.KeyPair
	registered   bool
	keyExchanged bool
}

var _ client.Profile = (*Profile)(nil)

// NewProfile собирает профиль из конфигурации и файла идентичности.
// Отсутствующий или повреждённый файл означает незарегистрированного
// клиента, как и файл с другим именем.
func NewProfile(cfg *Config) (*Profile, error) {
	p := &Profile{
		addr:         cfg.Server.Addr(),
		name:         cfg.Client.Name,
		file:         cfg.Client.File,
		identityPath: cfg.Client.Identity,
	}
	if p.identityPath == "" {
		return p, nil
	}

	f, err := identity.LoadFile(p.identityPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return p, nil
	case errors.Is(err, identity.ErrFormat):
		slog.Warn("identity file is damaged, registering again", "path", p.identityPath, "error", err)
		return p, nil
	case err != nil:
		return nil, err
	}

	if f.Name != p.name {
		slog.Warn("identity file belongs to another client, registering again",
			"path", p.identityPath,
			"file_name", f.Name,
			"name", p.name,
		)
		return p, nil
	}

	p.uid = f.UID
	p.keys = f.Keys
	p.registered = true
	return p, nil
}

func (p *Profile) ServerAddr() string { return p.addr }
func (p *Profile) Name() string       { return p.name }
func (p *Profile) FilePath() string   { return p.file }

func (p *Profile) UID() protocol.UID       { return p.uid }
func (p *Profile) SetUID(uid protocol.UID) { p.uid = uid }

func (p *Profile) Keys() *identity.KeyPair     { return p.keys }
func (p *Profile) SetKeys(k *identity.KeyPair) { p.keys = k }

func (p *Profile) Registered() bool     { return p.registered }
func (p *Profile) SetRegistered(v bool) { p.registered = v }

func (p *Profile) KeyExchanged() bool     { return p.keyExchanged }
func (p *Profile) SetKeyExchanged(v bool) { p.keyExchanged = v }

// Save записывает идентичность в me.info, если за запуск был выдан новый ключ.
// Возвращает false, если сохранять нечего.
func (p *Profile) Save() (bool, error) {
	if !p.keyExchanged || p.keys == nil {
		return false, nil
	}
	if p.identityPath == "" {
		return false, fmt.Errorf("identity path is not set")
	}
	f := &identity.File{Name: p.name, UID: p.uid, Keys: p.keys}
	if err := f.Save(p.identityPath); err != nil {
		return false, err
	}
	return true, nil
}
