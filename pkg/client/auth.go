package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/udisondev/bckup/pkg/filecrypt"
	"github.com/udisondev/bckup/pkg/identity"
	"github.com/udisondev/bckup/pkg/protocol"
)

// reconnect подключается заново с сохранённым UID и получает новый ключ
// сессии, зашифрованный сохранённым RSA ключом.
func (r *runner) reconnect(ctx context.Context) (Event, error) {
	keys := r.profile.Keys()
	r.sess.SetUID(r.profile.UID())
	r.log.Info("reconnecting", "uid", r.profile.UID())

	err := r.exchange(ctx, StateReconnect,
		func(ctx context.Context) error {
			if err := r.sess.Transport().Connect(ctx); err != nil {
				return err
			}
			return r.sess.Send(ctx, protocol.ReconnectRequest{Name: r.profile.Name()})
		},
		func(ctx context.Context) error {
			h, err := r.sess.ReceiveHeader(ctx)
			if err != nil {
				return err
			}
			if rejected(protocol.CodeReconnect, h) {
				return errReconnectRejected
			}
			return r.receiveKey(ctx, protocol.CodeReconnect, h, keys)
		},
	)
	switch {
	case errors.Is(err, errReconnectRejected):
		return EventReconnectRejected, nil
	case err != nil:
		return EventFatal, err
	}

	r.report.Reconnected = true
	r.log.Info("reconnected")
	return EventOK, nil
}

// register регистрирует клиента по имени и сохраняет выданный UID.
func (r *runner) register(ctx context.Context) (Event, error) {
	r.sess.SetUID(protocol.UID{})
	r.log.Info("registering", "client", r.profile.Name())

	err := r.exchange(ctx, StateRegister,
		func(ctx context.Context) error {
			if err := r.sess.Transport().Connect(ctx); err != nil {
				return err
			}
			return r.sess.Send(ctx, protocol.RegisterRequest{Name: r.profile.Name()})
		},
		func(ctx context.Context) error {
			h, err := r.sess.ReceiveHeader(ctx)
			if err != nil {
				return err
			}
			if rejected(protocol.CodeRegister, h) {
				return ErrRegisterRejected
			}
			if err := r.checkResponse(ctx, protocol.CodeRegister, h); err != nil {
				return err
			}
			payload, err := r.sess.ReceivePayload(ctx)
			if err != nil {
				return err
			}
			uid, err := protocol.ParseUIDResponse(payload)
			if err != nil {
				return err
			}
			r.sess.SetUID(uid)
			return nil
		},
	)
	if err != nil {
		return EventFatal, err
	}

	r.profile.SetUID(r.sess.UID())
	r.profile.SetRegistered(true)
	r.report.Registered = true
	r.log.Info("registered", "uid", r.sess.UID())
	return EventOK, nil
}

// sendKey генерирует RSA ключ, отправляет публичную часть и получает
// зашифрованный ею ключ сессии.
func (r *runner) sendKey(ctx context.Context) (Event, error) {
	keys, err := identity.Generate()
	if err != nil {
		return EventFatal, localError(StateSendKey, err)
	}
	der := keys.PublicKeyDER()
	if len(der) > protocol.KeySize {
		return EventFatal, localError(StateSendKey,
			fmt.Errorf("public key is %d bytes, field holds %d", len(der), protocol.KeySize))
	}
	r.log.Info("sending public key", "size", len(der))

	err = r.exchange(ctx, StateSendKey,
		func(ctx context.Context) error {
			return r.sess.Send(ctx, protocol.KeyRequest{Name: r.profile.Name(), PublicKey: der})
		},
		func(ctx context.Context) error {
			h, err := r.sess.ReceiveHeader(ctx)
			if err != nil {
				return err
			}
			return r.receiveKey(ctx, protocol.CodeSendKey, h, keys)
		},
	)
	if err != nil {
		return EventFatal, err
	}

	r.profile.SetKeys(keys)
	r.profile.SetKeyExchanged(true)
	r.log.Info("session key received")
	return EventOK, nil
}

// receiveKey разбирает GOOD_KEY / RECONNECT_GOOD и расшифровывает ключ сессии.
func (r *runner) receiveKey(ctx context.Context, sent protocol.Code, h protocol.ServerHeader, keys *identity.KeyPair) error {
	if err := r.checkResponse(ctx, sent, h); err != nil {
		return err
	}
	payload, err := r.sess.ReceivePayload(ctx)
	if err != nil {
		return err
	}
	resp, err := protocol.ParseKeyResponse(payload)
	if err != nil {
		return err
	}
	if resp.UID != r.sess.UID() {
		return fmt.Errorf("%w: got %s, want %s", protocol.ErrUIDMismatch, resp.UID, r.sess.UID())
	}

	key, err := keys.Unwrap(resp.WrappedKey)
	if err != nil {
		return err
	}
	if len(key) != filecrypt.KeySize {
		return fmt.Errorf("%w: session key is %d bytes", identity.ErrUnwrap, len(key))
	}
	r.sess.SetKey(key)
	return nil
}

// rejected сообщает, что сервер ответил отказом на запрос sent.
// GENERIC_ERROR отказом не считается: это повторяемая ошибка протокола.
func rejected(sent protocol.Code, h protocol.ServerHeader) bool {
	code, ok := protocol.RejectResponse(sent)
	return ok && code != protocol.CodeGenericError && h.Code == code
}
