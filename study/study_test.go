package study_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/revisely/go-study-client/artifacts"
	"github.com/revisely/go-study-client/credentials"
	"github.com/revisely/go-study-client/events"
	"github.com/revisely/go-study-client/gateway"
	"github.com/revisely/go-study-client/session"
	"github.com/revisely/go-study-client/study"
)

const (
	testEmail    = "jane.doe@example.com"
	testPassword = "password123"
	testNoteID   = "note-1"
)

// studyBackend fakes the full backend surface the study clients touch, with
// bearer validation so token expiry can be simulated.
type studyBackend struct {
	mu           sync.Mutex
	validAccess  string
	validRefresh string

	refreshCalls    atomic.Int32
	flashcardCalls  atomic.Int32
	quizCalls       atomic.Int32
	chatHistorySeen atomic.Int32

	server *httptest.Server
}

func newStudyBackend(t *testing.T) *studyBackend {
	t.Helper()

	b := &studyBackend{validAccess: "access-0", validRefresh: "refresh-1"}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", b.handleLogin)
	mux.HandleFunc("POST /api/auth/refresh", b.handleRefresh)
	mux.HandleFunc("GET /api/notes", b.authenticated(b.handleList))
	mux.HandleFunc("POST /api/notes", b.authenticated(b.handleCreate))
	mux.HandleFunc("PUT /api/notes/{id}", b.authenticated(b.handleUpdate))
	mux.HandleFunc("DELETE /api/notes/{id}", b.authenticated(b.handleDelete))
	mux.HandleFunc("POST /api/notes/{id}/flashcards", b.handleFlashcards)
	mux.HandleFunc("POST /api/notes/{id}/quiz", b.handleQuiz)
	mux.HandleFunc("POST /api/notes/{id}/chat", b.authenticated(b.handleChat))
	b.server = httptest.NewServer(mux)
	t.Cleanup(b.server.Close)
	return b
}

// expireAccess invalidates the token clients currently hold.
func (b *studyBackend) expireAccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.validAccess = "rotated-away"
}

func (b *studyBackend) authorized(r *http.Request) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return r.Header.Get("Authorization") == "Bearer "+b.validAccess
}

func (b *studyBackend) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !b.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":"unauthorized"}`)
			return
		}
		next(w, r)
	}
}

func (b *studyBackend) handleLogin(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	access, refresh := b.validAccess, b.validRefresh
	b.mu.Unlock()
	json.NewEncoder(w).Encode(map[string]any{
		"accessToken":  access,
		"refreshToken": refresh,
		"user":         map[string]string{"id": "user-1", "email": testEmail, "role": "student"},
	})
}

func (b *studyBackend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	n := b.refreshCalls.Add(1)

	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	b.mu.Lock()
	defer b.mu.Unlock()
	if req.RefreshToken != b.validRefresh {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"invalid refresh token"}`)
		return
	}
	b.validAccess = fmt.Sprintf("access-%d", n)
	json.NewEncoder(w).Encode(map[string]string{"accessToken": b.validAccess})
}

func (b *studyBackend) handleList(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]any{"notes": []study.Note{{ID: testNoteID, Title: "Go"}}})
}

func (b *studyBackend) handleCreate(w http.ResponseWriter, r *http.Request) {
	var input study.NoteInput
	_ = json.NewDecoder(r.Body).Decode(&input)
	json.NewEncoder(w).Encode(map[string]any{"note": study.Note{
		ID:        "note-new",
		Title:     input.Title,
		Content:   input.Content,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}})
}

func (b *studyBackend) handleUpdate(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]any{"note": study.Note{ID: r.PathValue("id"), Title: "Updated"}})
}

func (b *studyBackend) handleDelete(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (b *studyBackend) handleFlashcards(w http.ResponseWriter, r *http.Request) {
	b.flashcardCalls.Add(1)
	if !b.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"unauthorized"}`)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"flashcards": []study.Flashcard{
		{Front: "What is a goroutine?", Back: "A lightweight thread"},
		{Front: "What is a channel?", Back: "A typed conduit"},
	}})
}

func (b *studyBackend) handleQuiz(w http.ResponseWriter, r *http.Request) {
	b.quizCalls.Add(1)
	if !b.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"unauthorized"}`)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"questions": []study.QuizQuestion{
		{Question: "Which keyword starts a goroutine?", Options: []string{"go", "run", "spawn"}, Answer: 0},
	}})
}

func (b *studyBackend) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string              `json:"message"`
		History []study.ChatMessage `json:"history"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	b.chatHistorySeen.Store(int32(len(req.History)))
	json.NewEncoder(w).Encode(map[string]string{"reply": "echo: " + req.Message})
}

type fixture struct {
	backend    *studyBackend
	session    *session.Coordinator
	cache      *artifacts.Cache
	bus        *events.Bus
	notes      *study.NotesClient
	flashcards *study.FlashcardsClient
	quiz       *study.QuizClient
	chat       *study.ChatClient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	backend := newStudyBackend(t)

	store, err := credentials.NewFileStore(t.TempDir())
	require.NoError(t, err)

	coordinator, err := session.New(backend.server.URL, store)
	require.NoError(t, err)

	api, err := gateway.New(backend.server.URL, coordinator)
	require.NoError(t, err)

	cache, err := artifacts.New(t.TempDir())
	require.NoError(t, err)

	bus := events.New()
	log := zerolog.Nop()

	notes, err := study.NewNotesClient(api, cache, bus, log)
	require.NoError(t, err)
	flashcards, err := study.NewFlashcardsClient(api, cache, log)
	require.NoError(t, err)
	quiz, err := study.NewQuizClient(api, cache, log)
	require.NoError(t, err)
	chat, err := study.NewChatClient(api, cache, log)
	require.NoError(t, err)

	return &fixture{
		backend:    backend,
		session:    coordinator,
		cache:      cache,
		bus:        bus,
		notes:      notes,
		flashcards: flashcards,
		quiz:       quiz,
		chat:       chat,
	}
}

func (f *fixture) signIn(t *testing.T) {
	t.Helper()
	_, err := f.session.SignIn(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
}

func TestExpiredTokenScenario(t *testing.T) {
	// Login, expire the access token behind the client's back, then make an
	// authenticated call: exactly one refresh and one retried request, and
	// the caller sees nothing but success.
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t)
	f.backend.expireAccess()

	cards, err := f.flashcards.Generate(ctx, testNoteID, false)
	require.NoError(t, err)
	require.Len(t, cards, 2)

	require.EqualValues(t, 1, f.backend.refreshCalls.Load())
	require.EqualValues(t, 2, f.backend.flashcardCalls.Load())
}

func TestFlashcardsGeneration(t *testing.T) {
	ctx := context.Background()

	t.Run("cache hit skips the backend", func(t *testing.T) {
		f := newFixture(t)
		f.signIn(t)

		first, err := f.flashcards.Generate(ctx, testNoteID, false)
		require.NoError(t, err)
		require.EqualValues(t, 1, f.backend.flashcardCalls.Load())

		second, err := f.flashcards.Generate(ctx, testNoteID, false)
		require.NoError(t, err)
		require.Equal(t, first, second)
		require.EqualValues(t, 1, f.backend.flashcardCalls.Load())
	})

	t.Run("force bypasses the cache", func(t *testing.T) {
		f := newFixture(t)
		f.signIn(t)

		_, err := f.flashcards.Generate(ctx, testNoteID, false)
		require.NoError(t, err)
		_, err = f.flashcards.Generate(ctx, testNoteID, true)
		require.NoError(t, err)
		require.EqualValues(t, 2, f.backend.flashcardCalls.Load())
	})

	t.Run("generation records the last-used resource", func(t *testing.T) {
		f := newFixture(t)
		f.signIn(t)

		_, err := f.flashcards.Generate(ctx, testNoteID, false)
		require.NoError(t, err)

		id, ok, err := f.cache.LastResource(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, testNoteID, id)
	})
}

func TestQuizGeneration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signIn(t)

	questions, err := f.quiz.Generate(ctx, testNoteID, false)
	require.NoError(t, err)
	require.Len(t, questions, 1)
	require.Equal(t, 0, questions[0].Answer)

	_, err = f.quiz.Generate(ctx, testNoteID, false)
	require.NoError(t, err)
	require.EqualValues(t, 1, f.backend.quizCalls.Load())
}

func TestNotesMutationsPublish(t *testing.T) {
	ctx := context.Background()

	t.Run("create publishes resource-changed", func(t *testing.T) {
		f := newFixture(t)
		f.signIn(t)

		var published []events.ResourceChanged
		f.bus.Subscribe(events.TopicResourceChanged, func(payload any) {
			published = append(published, payload.(events.ResourceChanged))
		})

		note, err := f.notes.Create(ctx, study.NoteInput{Title: "New", Content: "Body"})
		require.NoError(t, err)
		require.Equal(t, []events.ResourceChanged{{ResourceID: note.ID}}, published)
	})

	t.Run("delete clears cached artifacts before announcing", func(t *testing.T) {
		f := newFixture(t)
		f.signIn(t)

		_, err := f.flashcards.Generate(ctx, testNoteID, false)
		require.NoError(t, err)

		sawStaleEntry := false
		f.bus.Subscribe(events.TopicResourceChanged, func(payload any) {
			items, err := f.cache.Get(ctx, artifacts.KindFlashcards, testNoteID)
			require.NoError(t, err)
			if items != nil {
				sawStaleEntry = true
			}
		})

		require.NoError(t, f.notes.Delete(ctx, testNoteID))
		require.False(t, sawStaleEntry)
	})

	t.Run("list and update round trip", func(t *testing.T) {
		f := newFixture(t)
		f.signIn(t)

		notes, err := f.notes.List(ctx)
		require.NoError(t, err)
		require.Len(t, notes, 1)

		title := "Updated"
		note, err := f.notes.Update(ctx, testNoteID, study.NoteUpdate{Title: &title})
		require.NoError(t, err)
		require.Equal(t, "Updated", note.Title)
	})
}

func TestChat(t *testing.T) {
	ctx := context.Background()

	t.Run("transcript persists across turns", func(t *testing.T) {
		f := newFixture(t)
		f.signIn(t)

		reply, err := f.chat.Send(ctx, testNoteID, "explain goroutines")
		require.NoError(t, err)
		require.Equal(t, study.RoleAssistant, reply.Role)
		require.True(t, strings.HasPrefix(reply.Content, "echo:"))

		history, err := f.chat.History(ctx, testNoteID)
		require.NoError(t, err)
		require.Len(t, history, 2)
		require.Equal(t, study.RoleUser, history[0].Role)

		// The second turn carries the stored history to the backend.
		_, err = f.chat.Send(ctx, testNoteID, "and channels?")
		require.NoError(t, err)
		require.EqualValues(t, 2, f.backend.chatHistorySeen.Load())

		history, err = f.chat.History(ctx, testNoteID)
		require.NoError(t, err)
		require.Len(t, history, 4)
	})

	t.Run("reset discards the transcript", func(t *testing.T) {
		f := newFixture(t)
		f.signIn(t)

		_, err := f.chat.Send(ctx, testNoteID, "hello")
		require.NoError(t, err)
		require.NoError(t, f.chat.Reset(ctx, testNoteID))

		history, err := f.chat.History(ctx, testNoteID)
		require.NoError(t, err)
		require.Empty(t, history)
	})
}
