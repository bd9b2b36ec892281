// Package studyclient assembles the Revisely client core: session
// coordination, the authenticated request gateway, the local artifact
// cache, and the cross-screen event bus. UI layers embed a Client and call
// into its parts; every substantive computation happens on the backend.
package studyclient

import (
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/revisely/go-study-client/artifacts"
	"github.com/revisely/go-study-client/credentials"
	"github.com/revisely/go-study-client/events"
	"github.com/revisely/go-study-client/gateway"
	"github.com/revisely/go-study-client/internal/config"
	"github.com/revisely/go-study-client/session"
	"github.com/revisely/go-study-client/study"
)

// Client is the fully wired client core.
type Client struct {
	Session    *session.Coordinator
	API        *gateway.Client
	Cache      *artifacts.Cache
	Bus        *events.Bus
	Notes      *study.NotesClient
	Flashcards *study.FlashcardsClient
	Quiz       *study.QuizClient
	Chat       *study.ChatClient
}

type Option func(*builder)

type builder struct {
	log  zerolog.Logger
	http *http.Client
}

func WithLogger(log zerolog.Logger) Option {
	return func(b *builder) {
		b.log = log
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(b *builder) {
		b.http = httpClient
	}
}

// New builds a Client from environment configuration. Credentials live in
// the OS keychain with a file fallback under the data folder; the artifact
// cache shares that folder.
func New(options ...Option) (*Client, error) {
	cfg := config.New()

	b := &builder{
		log:  zerolog.Nop(),
		http: &http.Client{Timeout: cfg.GetHTTPTimeout()},
	}
	for _, opt := range options {
		opt(b)
	}

	store, err := credentials.NewStore(cfg, b.log)
	if err != nil {
		return nil, errors.Wrap(err, "[studyclient.New] credential store")
	}

	coordinator, err := session.New(cfg.GetAPIBaseURL(), store,
		session.WithHTTPClient(b.http),
		session.WithLogger(b.log),
	)
	if err != nil {
		return nil, errors.Wrap(err, "[studyclient.New] session coordinator")
	}

	api, err := gateway.New(cfg.GetAPIBaseURL(), coordinator,
		gateway.WithHTTPClient(b.http),
		gateway.WithLogger(b.log),
	)
	if err != nil {
		return nil, errors.Wrap(err, "[studyclient.New] gateway")
	}

	cache, err := artifacts.New(cfg.GetDataFolder(), artifacts.WithLogger(b.log))
	if err != nil {
		return nil, errors.Wrap(err, "[studyclient.New] artifact cache")
	}

	bus := events.New()

	notes, err := study.NewNotesClient(api, cache, bus, b.log)
	if err != nil {
		return nil, errors.Wrap(err, "[studyclient.New] notes client")
	}
	flashcards, err := study.NewFlashcardsClient(api, cache, b.log)
	if err != nil {
		return nil, errors.Wrap(err, "[studyclient.New] flashcards client")
	}
	quiz, err := study.NewQuizClient(api, cache, b.log)
	if err != nil {
		return nil, errors.Wrap(err, "[studyclient.New] quiz client")
	}
	chat, err := study.NewChatClient(api, cache, b.log)
	if err != nil {
		return nil, errors.Wrap(err, "[studyclient.New] chat client")
	}

	return &Client{
		Session:    coordinator,
		API:        api,
		Cache:      cache,
		Bus:        bus,
		Notes:      notes,
		Flashcards: flashcards,
		Quiz:       quiz,
		Chat:       chat,
	}, nil
}
