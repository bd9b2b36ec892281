package credentials

import (
	"context"

	"github.com/pkg/errors"
	"github.com/zalando/go-keyring"
)

// KeyringStore files secrets in the operating system keychain (Keychain,
// wincred, Secret Service). Any platform error is returned to the caller;
// the composite store decides whether to fall back.
type KeyringStore struct {
	service string
}

func NewKeyringStore(service string) *KeyringStore {
	return &KeyringStore{service: service}
}

func (s *KeyringStore) Get(_ context.Context, key string) (string, bool, error) {
	value, err := keyring.Get(s.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "[KeyringStore.Get]")
	}
	return value, true, nil
}

func (s *KeyringStore) Set(_ context.Context, key, value string) error {
	if err := keyring.Set(s.service, key, value); err != nil {
		return errors.Wrap(err, "[KeyringStore.Set]")
	}
	return nil
}

func (s *KeyringStore) Delete(_ context.Context, key string) error {
	err := keyring.Delete(s.service, key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return errors.Wrap(err, "[KeyringStore.Delete]")
	}
	return nil
}
