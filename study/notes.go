package study

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/revisely/go-study-client/artifacts"
	"github.com/revisely/go-study-client/events"
	"github.com/revisely/go-study-client/gateway"
)

// Note is a user note as stored by the backend.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type NoteInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// NoteUpdate carries a partial update; nil fields are left unchanged.
type NoteUpdate struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

type notesResponse struct {
	Notes []Note `json:"notes"`
}

type noteResponse struct {
	Note *Note `json:"note"`
}

// NotesClient performs note CRUD over the gateway. Mutations publish
// resource-changed so unrelated screens can re-run their own loads; a
// deletion clears the note's cached artifacts before it is announced.
type NotesClient struct {
	api   *gateway.Client
	cache *artifacts.Cache
	bus   *events.Bus
	log   zerolog.Logger
}

func NewNotesClient(api *gateway.Client, cache *artifacts.Cache, bus *events.Bus, log zerolog.Logger) (*NotesClient, error) {
	if api == nil {
		return nil, errors.New("[NewNotesClient] gateway client is required")
	}
	if cache == nil {
		return nil, errors.New("[NewNotesClient] artifact cache is required")
	}
	if bus == nil {
		return nil, errors.New("[NewNotesClient] event bus is required")
	}
	return &NotesClient{api: api, cache: cache, bus: bus, log: log}, nil
}

func (n *NotesClient) List(ctx context.Context) ([]Note, error) {
	resp, err := gateway.Call[notesResponse](ctx, n.api, gateway.Request{
		Method: http.MethodGet,
		Path:   "/api/notes",
	})
	if err != nil {
		return nil, err
	}
	return resp.Notes, nil
}

func (n *NotesClient) Get(ctx context.Context, id string) (*Note, error) {
	resp, err := gateway.Call[noteResponse](ctx, n.api, gateway.Request{
		Method: http.MethodGet,
		Path:   notePath(id),
	})
	if err != nil {
		return nil, err
	}
	return resp.Note, nil
}

func (n *NotesClient) Create(ctx context.Context, input NoteInput) (*Note, error) {
	resp, err := gateway.Call[noteResponse](ctx, n.api, gateway.Request{
		Method: http.MethodPost,
		Path:   "/api/notes",
		Body:   input,
	})
	if err != nil {
		return nil, err
	}
	if resp.Note == nil {
		return nil, errors.New("[NotesClient.Create] backend returned no note")
	}
	n.bus.Publish(events.TopicResourceChanged, events.ResourceChanged{ResourceID: resp.Note.ID})
	return resp.Note, nil
}

func (n *NotesClient) Update(ctx context.Context, id string, update NoteUpdate) (*Note, error) {
	resp, err := gateway.Call[noteResponse](ctx, n.api, gateway.Request{
		Method: http.MethodPut,
		Path:   notePath(id),
		Body:   update,
	})
	if err != nil {
		return nil, err
	}
	n.bus.Publish(events.TopicResourceChanged, events.ResourceChanged{ResourceID: id})
	return resp.Note, nil
}

// Delete removes the note. Cached artifacts for it are cleared before the
// deletion is published, so no subscriber can observe a stale entry while
// re-loading.
func (n *NotesClient) Delete(ctx context.Context, id string) error {
	if _, err := gateway.Call[struct{}](ctx, n.api, gateway.Request{
		Method: http.MethodDelete,
		Path:   notePath(id),
	}); err != nil {
		return err
	}

	if err := n.cache.Clear(ctx, id); err != nil {
		n.log.Warn().Err(err).Str("note", id).Msg("could not clear cached artifacts")
	}
	n.bus.Publish(events.TopicResourceChanged, events.ResourceChanged{ResourceID: id})
	return nil
}

func notePath(id string) string {
	return fmt.Sprintf("/api/notes/%s", id)
}
