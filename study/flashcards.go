package study

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/revisely/go-study-client/artifacts"
	"github.com/revisely/go-study-client/gateway"
)

// Flashcard is one generated card.
type Flashcard struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

type flashcardsResponse struct {
	Flashcards []Flashcard `json:"flashcards"`
}

// FlashcardsClient requests flashcard generation for a note, consulting the
// artifact cache first. The cache is written only after a successful
// generation, never partially.
type FlashcardsClient struct {
	api   *gateway.Client
	cache *artifacts.Cache
	log   zerolog.Logger
}

func NewFlashcardsClient(api *gateway.Client, cache *artifacts.Cache, log zerolog.Logger) (*FlashcardsClient, error) {
	if api == nil {
		return nil, errors.New("[NewFlashcardsClient] gateway client is required")
	}
	if cache == nil {
		return nil, errors.New("[NewFlashcardsClient] artifact cache is required")
	}
	return &FlashcardsClient{api: api, cache: cache, log: log}, nil
}

// Generate returns the flashcard set for noteID. Unless force is set, a
// cached set is returned without a backend call.
func (f *FlashcardsClient) Generate(ctx context.Context, noteID string, force bool) ([]Flashcard, error) {
	if !force {
		if cards, ok := decodeItems[Flashcard](mustGet(ctx, f.cache, artifacts.KindFlashcards, noteID)); ok {
			f.rememberResource(ctx, noteID)
			return cards, nil
		}
	}

	resp, err := gateway.Call[flashcardsResponse](ctx, f.api, gateway.Request{
		Method: http.MethodPost,
		Path:   notePath(noteID) + "/flashcards",
	})
	if err != nil {
		return nil, err
	}

	if items, err := encodeItems(resp.Flashcards); err == nil {
		if err := f.cache.Set(ctx, artifacts.KindFlashcards, noteID, items); err != nil {
			f.log.Warn().Err(err).Str("note", noteID).Msg("could not cache flashcards")
		}
	}
	f.rememberResource(ctx, noteID)
	return resp.Flashcards, nil
}

func (f *FlashcardsClient) rememberResource(ctx context.Context, noteID string) {
	if err := f.cache.SetLastResource(ctx, noteID); err != nil {
		f.log.Warn().Err(err).Str("note", noteID).Msg("could not record last resource")
	}
}

// mustGet reads a cache entry, folding lookup errors into a miss: the cache
// is an optimization and must never fail a generation flow.
func mustGet(ctx context.Context, cache *artifacts.Cache, kind artifacts.Kind, resourceID string) []json.RawMessage {
	items, err := cache.Get(ctx, kind, resourceID)
	if err != nil {
		return nil
	}
	return items
}

// decodeItems converts opaque cached items back to their caller-defined
// shape. A failure to decode any item is treated as a miss, like any other
// cache corruption.
func decodeItems[T any](items []json.RawMessage) ([]T, bool) {
	if items == nil {
		return nil, false
	}
	decoded := make([]T, 0, len(items))
	for _, item := range items {
		var v T
		if err := json.Unmarshal(item, &v); err != nil {
			return nil, false
		}
		decoded = append(decoded, v)
	}
	return decoded, true
}

func encodeItems[T any](values []T) ([]json.RawMessage, error) {
	items := make([]json.RawMessage, 0, len(values))
	for _, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		items = append(items, data)
	}
	return items, nil
}
