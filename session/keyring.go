package session

import (
	"context"
	"errors"

	"github.com/zalando/go-keyring"
)

// KeyringBackend stores values in the OS credential store.
type KeyringBackend struct {
	service string
}

func NewKeyringBackend(service string) *KeyringBackend {
	return &KeyringBackend{service: service}
}

func (k *KeyringBackend) Get(_ context.Context, key string) (string, bool, error) {
	v, err := keyring.Get(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (k *KeyringBackend) Set(_ context.Context, key, value string) error {
	return keyring.Set(k.service, key, value)
}

func (k *KeyringBackend) Delete(_ context.Context, key string) error {
	err := keyring.Delete(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
