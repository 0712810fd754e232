package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"rulebookai/internal/storage"
	"rulebookai/internal/store"
	"rulebookai/pkg/domain"
	"rulebookai/pkg/queue"
)

type fakeObjectStore struct {
	blobs map[string][]byte
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{blobs: make(map[string][]byte)}
}

func (f *fakeObjectStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.blobs[key] = data
	return nil
}

func (f *fakeObjectStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := f.blobs[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeObjectStore) Delete(_ context.Context, key string) error {
	delete(f.blobs, key)
	return nil
}

type fakeQueue struct {
	enqueued []string
}

func (f *fakeQueue) Enqueue(_ context.Context, rulebookID string) (queue.JobStatus, error) {
	f.enqueued = append(f.enqueued, rulebookID)
	return queue.JobStatus{ID: "job-1", RulebookID: rulebookID, Status: queue.StatusQueued}, nil
}

type fakeGenerator struct {
	reply      string
	err        error
	lastSystem string
	lastUser   string
}

func (f *fakeGenerator) GenerateText(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	f.lastSystem = systemPrompt
	f.lastUser = userPrompt
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fixture struct {
	app   *App
	store *store.MemoryStore
	files *fakeObjectStore
	queue *fakeQueue
	gen   *fakeGenerator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	files := newFakeObjectStore()
	q := &fakeQueue{}
	gen := &fakeGenerator{reply: "You can play with up to 4 players."}
	a, err := New(Config{Store: st, Files: files, Queue: q, Generator: gen})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return &fixture{app: a, store: st, files: files, queue: q, gen: gen}
}

func (f *fixture) readyGame(t *testing.T, name, rules string) domain.Game {
	t.Helper()
	rb, err := f.app.UploadRulebook(context.Background(), name, "en", "manual.pdf", strings.NewReader("%PDF fake"), 9)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := f.store.SetRulebookText(rb.ID, rules); err != nil {
		t.Fatalf("mark ready: %v", err)
	}
	game, ok, _ := f.store.GetGame(rb.GameID)
	if !ok {
		t.Fatal("game missing after upload")
	}
	return game
}

func TestUploadRulebookCreatesGameAndEnqueues(t *testing.T) {
	f := newFixture(t)
	rb, err := f.app.UploadRulebook(context.Background(), "Catan", "", "catan-rules.pdf", strings.NewReader("%PDF fake"), 9)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if rb.Status != domain.StatusPending {
		t.Fatalf("status = %s, want pending", rb.Status)
	}
	if rb.Language != "en" {
		t.Fatalf("language = %q, want default en", rb.Language)
	}
	if len(f.queue.enqueued) != 1 || f.queue.enqueued[0] != rb.ID {
		t.Fatalf("expected one enqueued job for %s, got %v", rb.ID, f.queue.enqueued)
	}
	if _, ok := f.files.blobs[rb.FilePath]; !ok {
		t.Fatalf("blob not stored at %s", rb.FilePath)
	}

	// Second upload for the same name reuses the game.
	rb2, err := f.app.UploadRulebook(context.Background(), "Catan", "de", "catan-de.pdf", strings.NewReader("%PDF fake"), 9)
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}
	if rb2.GameID != rb.GameID {
		t.Fatalf("expected same game, got %s and %s", rb.GameID, rb2.GameID)
	}
}

func TestUploadRulebookValidation(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name     string
		gameName string
		filename string
		size     int64
	}{
		{"empty game name", "  ", "rules.pdf", 9},
		{"long game name", strings.Repeat("x", 256), "rules.pdf", 9},
		{"not a pdf", "Catan", "rules.docx", 9},
		{"empty file", "Catan", "rules.pdf", 0},
		{"oversized file", "Catan", "rules.pdf", 11 << 20},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.app.UploadRulebook(context.Background(), tc.gameName, "en", tc.filename, strings.NewReader("x"), tc.size)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
	if len(f.queue.enqueued) != 0 {
		t.Fatalf("invalid uploads must not enqueue jobs: %v", f.queue.enqueued)
	}
}

func TestAskWithoutReadyRulebook(t *testing.T) {
	f := newFixture(t)
	rb, err := f.app.UploadRulebook(context.Background(), "Catan", "en", "rules.pdf", strings.NewReader("%PDF"), 4)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	_, err = f.app.Ask(context.Background(), "user-1", rb.GameID, "How many players?")
	if !errors.Is(err, ErrRulebookUnavailable) {
		t.Fatalf("expected ErrRulebookUnavailable, got %v", err)
	}

	conv, _ := f.store.GetOrCreateConversation(rb.GameID, "user-1")
	msgs, _ := f.store.ListMessages(conv.ID)
	if len(msgs) != 0 {
		t.Fatalf("no message may be persisted without a ready rulebook, got %d", len(msgs))
	}
}

func TestAskPersistsBothTurns(t *testing.T) {
	f := newFixture(t)
	game := f.readyGame(t, "Catan", "The game supports 4 players maximum.")

	aiMsg, err := f.app.Ask(context.Background(), "user-1", game.ID, "What is the max number of players?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if aiMsg.Role != domain.RoleAI || aiMsg.Content == "" {
		t.Fatalf("unexpected ai message: %+v", aiMsg)
	}

	conv, _ := f.store.GetOrCreateConversation(game.ID, "user-1")
	msgs, _ := f.store.ListMessages(conv.ID)
	if len(msgs) != 2 {
		t.Fatalf("expected user+ai messages, got %d", len(msgs))
	}
	if msgs[0].Role != domain.RoleUser || msgs[0].Content != "What is the max number of players?" {
		t.Fatalf("first message should be the user turn: %+v", msgs[0])
	}
	if msgs[1].Role != domain.RoleAI || !msgs[1].CreatedAt.After(msgs[0].CreatedAt) {
		t.Fatalf("second message should be the later ai turn: %+v", msgs[1])
	}

	if !strings.Contains(f.gen.lastSystem, "4 players maximum") {
		t.Fatalf("rulebook text missing from system prompt: %q", f.gen.lastSystem)
	}
	if !strings.Contains(f.gen.lastSystem, "'Catan'") {
		t.Fatalf("game name missing from system prompt: %q", f.gen.lastSystem)
	}
}

func TestAskUpstreamFailureKeepsUserMessage(t *testing.T) {
	f := newFixture(t)
	game := f.readyGame(t, "Catan", "rules text")
	f.gen.err = errors.New("quota exceeded")

	_, err := f.app.Ask(context.Background(), "user-1", game.ID, "How do I trade?")
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected generic ErrUpstream, got %v", err)
	}
	if err != nil && strings.Contains(err.Error(), "quota") {
		t.Fatalf("upstream details must not leak to callers: %v", err)
	}

	conv, _ := f.store.GetOrCreateConversation(game.ID, "user-1")
	msgs, _ := f.store.ListMessages(conv.ID)
	if len(msgs) != 1 {
		t.Fatalf("expected only the user message, got %d", len(msgs))
	}
	if msgs[0].Role != domain.RoleUser {
		t.Fatalf("surviving message should be the user turn: %+v", msgs[0])
	}
}

func TestAskValidation(t *testing.T) {
	f := newFixture(t)
	game := f.readyGame(t, "Catan", "rules text")

	for _, promptText := range []string{"", "   ", strings.Repeat("x", 1001)} {
		_, err := f.app.Ask(context.Background(), "user-1", game.ID, promptText)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("prompt %q: expected ValidationError, got %v", promptText, err)
		}
	}

	// A prompt exactly at the bound passes validation.
	if _, err := f.app.Ask(context.Background(), "user-1", game.ID, strings.Repeat("x", 1000)); err != nil {
		t.Fatalf("1000-rune prompt should be accepted: %v", err)
	}
}

func TestAskUnknownGame(t *testing.T) {
	f := newFixture(t)
	_, err := f.app.Ask(context.Background(), "user-1", "missing-game", "hello")
	if !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}
}

func TestViewGameCreatesConversationLazily(t *testing.T) {
	f := newFixture(t)
	game := f.readyGame(t, "Azul", "tile rules")

	view, err := f.app.ViewGame("user-1", game.ID)
	if err != nil {
		t.Fatalf("view game: %v", err)
	}
	if view.Conversation.GameID != game.ID || view.Conversation.UserID != "user-1" {
		t.Fatalf("unexpected conversation: %+v", view.Conversation)
	}
	if len(view.Messages) != 0 {
		t.Fatalf("fresh conversation should be empty, got %d messages", len(view.Messages))
	}

	again, err := f.app.ViewGame("user-1", game.ID)
	if err != nil {
		t.Fatalf("second view: %v", err)
	}
	if again.Conversation.ID != view.Conversation.ID {
		t.Fatal("view must reuse the existing conversation")
	}
}
