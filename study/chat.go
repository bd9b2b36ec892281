package study

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/revisely/go-study-client/artifacts"
	"github.com/revisely/go-study-client/gateway"
)

// ChatMessage is one turn of a note-scoped conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type chatRequest struct {
	Message string        `json:"message"`
	History []ChatMessage `json:"history,omitempty"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

// ChatClient runs the per-note AI chat. The transcript persists locally so
// a conversation survives process restarts; the backend stays stateless.
type ChatClient struct {
	api   *gateway.Client
	cache *artifacts.Cache
	log   zerolog.Logger
}

func NewChatClient(api *gateway.Client, cache *artifacts.Cache, log zerolog.Logger) (*ChatClient, error) {
	if api == nil {
		return nil, errors.New("[NewChatClient] gateway client is required")
	}
	if cache == nil {
		return nil, errors.New("[NewChatClient] artifact cache is required")
	}
	return &ChatClient{api: api, cache: cache, log: log}, nil
}

// Send posts message with the stored history attached and returns the
// assistant's reply. Both turns are appended to the transcript only after
// the backend call succeeds.
func (c *ChatClient) Send(ctx context.Context, noteID, message string) (ChatMessage, error) {
	history, err := c.History(ctx, noteID)
	if err != nil {
		return ChatMessage{}, err
	}

	resp, err := gateway.Call[chatResponse](ctx, c.api, gateway.Request{
		Method: http.MethodPost,
		Path:   notePath(noteID) + "/chat",
		Body:   chatRequest{Message: message, History: history},
	})
	if err != nil {
		return ChatMessage{}, err
	}

	reply := ChatMessage{Role: RoleAssistant, Content: resp.Reply}
	history = append(history, ChatMessage{Role: RoleUser, Content: message}, reply)
	if items, err := encodeItems(history); err == nil {
		if err := c.cache.SaveTranscript(ctx, noteID, items); err != nil {
			c.log.Warn().Err(err).Str("note", noteID).Msg("could not persist transcript")
		}
	}
	return reply, nil
}

// History returns the persisted transcript for noteID, empty when none
// exists or the stored transcript is unreadable.
func (c *ChatClient) History(ctx context.Context, noteID string) ([]ChatMessage, error) {
	items, err := c.cache.Transcript(ctx, noteID)
	if err != nil {
		return nil, errors.Wrap(err, "[ChatClient.History]")
	}
	messages, ok := decodeItems[ChatMessage](items)
	if !ok {
		return nil, nil
	}
	return messages, nil
}

// Reset discards the transcript for noteID.
func (c *ChatClient) Reset(ctx context.Context, noteID string) error {
	return c.cache.SaveTranscript(ctx, noteID, nil)
}
