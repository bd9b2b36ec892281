package credentials

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/revisely/go-study-client/internal/config"
)

// Well-known keys. The access and refresh tokens are the only secrets this
// module persists; both are opaque strings minted by the backend.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
)

// Store is durable key/value storage for credentials. Get reports absence
// via ok=false, never via an error; Delete of an absent key is a no-op.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// fallbackStore tries the operating system keychain first and falls back to
// the generic file store on any error from the secure path. Secure storage
// is a best-effort optimization: only a failure of both backends surfaces,
// and only to the operation that attempted it.
type fallbackStore struct {
	secure   Store
	fallback Store
	log      zerolog.Logger
}

// NewStore composes the keychain-backed store with the file store under the
// configured data folder.
func NewStore(cfg config.StorageConfig, log zerolog.Logger) (Store, error) {
	fileStore, err := NewFileStore(cfg.GetDataFolder())
	if err != nil {
		return nil, errors.Wrap(err, "[credentials.NewStore] file store")
	}
	return &fallbackStore{
		secure:   NewKeyringStore(cfg.GetKeyringService()),
		fallback: fileStore,
		log:      log,
	}, nil
}

func (s *fallbackStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, ok, err := s.secure.Get(ctx, key)
	if err == nil && ok {
		return value, true, nil
	}
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("secure storage read failed, using fallback store")
	}
	// A secure-path miss still consults the fallback: an earlier Set may
	// have landed there while the keychain was unavailable.
	return s.fallback.Get(ctx, key)
}

func (s *fallbackStore) Set(ctx context.Context, key, value string) error {
	if err := s.secure.Set(ctx, key, value); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("secure storage write failed, using fallback store")
		return s.fallback.Set(ctx, key, value)
	}
	// Drop any stale fallback copy so it cannot shadow a later secure delete.
	if err := s.fallback.Delete(ctx, key); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("could not remove fallback copy")
	}
	return nil
}

func (s *fallbackStore) Delete(ctx context.Context, key string) error {
	secureErr := s.secure.Delete(ctx, key)
	fallbackErr := s.fallback.Delete(ctx, key)
	if secureErr != nil && fallbackErr != nil {
		return errors.Wrap(fallbackErr, "[fallbackStore.Delete] both backends failed")
	}
	return nil
}
