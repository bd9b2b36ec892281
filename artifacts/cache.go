package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/revisely/go-study-client/internal/metrics"
)

// Kind discriminates the artifact families cached per resource.
type Kind string

const (
	KindFlashcards Kind = "flashcards"
	KindQuiz       Kind = "quiz"

	// kindChat holds per-resource chat transcripts. Not part of the
	// generation cache proper, but stored and cleared the same way.
	kindChat Kind = "chat"
)

const lastResourceFile = "last_resource"

// Cache persists generated study artifacts keyed by (kind, resourceID).
// Values are ordered sequences of opaque items whose shape belongs to the
// caller. Entries have no expiry: they are overwritten on regeneration and
// removed when the owning resource is deleted. A corrupt entry reads as a
// miss, never as an error.
type Cache struct {
	dir string
	log zerolog.Logger
}

type Option func(*Cache)

func WithLogger(log zerolog.Logger) Option {
	return func(c *Cache) {
		c.log = log
	}
}

func New(dataFolder string, options ...Option) (*Cache, error) {
	dir := filepath.Join(dataFolder, "artifacts")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "[artifacts.New] create cache folder")
	}

	c := &Cache{dir: dir, log: zerolog.Nop()}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Get returns the cached items for (kind, resourceID), or nil when the
// entry is absent or unreadable. Whether a hit is fresh enough to skip
// regeneration is the caller's call; the cache has no expiry policy.
func (c *Cache) Get(ctx context.Context, kind Kind, resourceID string) ([]json.RawMessage, error) {
	items := c.read(kind, resourceID)
	result := "hit"
	if items == nil {
		result = "miss"
	}
	metrics.ArtifactCacheTotal.WithLabelValues(string(kind), result).Inc()
	c.log.Debug().Str("kind", string(kind)).Str("resource", resourceID).Str("result", result).Msg("artifact cache lookup")
	return items, ctx.Err()
}

// Set stores items for (kind, resourceID), replacing any previous entry
// atomically. Callers invoke it only after a successful generation.
func (c *Cache) Set(ctx context.Context, kind Kind, resourceID string, items []json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(items)
	if err != nil {
		return errors.Wrap(err, "[Cache.Set] marshal items")
	}
	return c.write(c.entryPath(kind, resourceID), data)
}

// Clear removes every cached kind for resourceID, including its chat
// transcript. The resource-deletion flow calls this before announcing the
// deletion, so a stale entry can never race a concurrent load.
func (c *Cache) Clear(ctx context.Context, resourceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var firstErr error
	for _, kind := range []Kind{KindFlashcards, KindQuiz, kindChat} {
		if err := os.Remove(c.entryPath(kind, resourceID)); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "[Cache.Clear] remove %s", kind)
			}
		}
	}
	return firstErr
}

// SetLastResource records the most recently used resource so tool screens
// can reopen where the user left off.
func (c *Cache) SetLastResource(ctx context.Context, resourceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.write(filepath.Join(c.dir, lastResourceFile), []byte(resourceID))
}

// LastResource returns the recorded pointer, or ok=false when none exists.
func (c *Cache) LastResource(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(filepath.Join(c.dir, lastResourceFile))
	if err != nil {
		return "", false, nil
	}
	id := strings.TrimSpace(string(data))
	return id, id != "", nil
}

// SaveTranscript persists the chat history for a resource.
func (c *Cache) SaveTranscript(ctx context.Context, resourceID string, messages []json.RawMessage) error {
	return c.Set(ctx, kindChat, resourceID, messages)
}

// Transcript returns the persisted chat history, nil when absent or corrupt.
func (c *Cache) Transcript(ctx context.Context, resourceID string) ([]json.RawMessage, error) {
	return c.Get(ctx, kindChat, resourceID)
}

func (c *Cache) read(kind Kind, resourceID string) []json.RawMessage {
	data, err := os.ReadFile(c.entryPath(kind, resourceID))
	if err != nil {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		// Corrupt entries are misses; pre-existing unversioned values must
		// never surface as errors.
		c.log.Debug().Str("kind", string(kind)).Str("resource", resourceID).Msg("discarding unparseable cache entry")
		return nil
	}
	return items
}

func (c *Cache) write(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "[Cache.write]")
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrap(err, "[Cache.write] rename")
	}
	return nil
}

func (c *Cache) entryPath(kind Kind, resourceID string) string {
	// Resource IDs are backend-issued but must not be trusted as path
	// components.
	return filepath.Join(c.dir, fmt.Sprintf("%s-%s.json", kind, url.PathEscape(resourceID)))
}
