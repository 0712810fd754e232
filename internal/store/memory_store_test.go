package store

import (
	"sync"
	"testing"
	"time"

	"rulebookai/internal/util"
	"rulebookai/pkg/domain"
)

func TestGetOrCreateGameReusesByName(t *testing.T) {
	s := NewMemoryStore()
	first, err := s.GetOrCreateGame("Catan")
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	second, err := s.GetOrCreateGame("Catan")
	if err != nil {
		t.Fatalf("reuse game: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same game, got %q and %q", first.ID, second.ID)
	}
	other, err := s.GetOrCreateGame("Carcassonne")
	if err != nil {
		t.Fatalf("create other game: %v", err)
	}
	if other.ID == first.ID {
		t.Fatal("distinct names must produce distinct games")
	}
}

func TestGetOrCreateConversationConcurrent(t *testing.T) {
	s := NewMemoryStore()
	game, _ := s.GetOrCreateGame("Azul")

	const callers = 32
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv, err := s.GetOrCreateConversation(game.ID, "user-1")
			if err != nil {
				t.Errorf("get or create conversation: %v", err)
				return
			}
			ids[i] = conv.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("concurrent calls created multiple conversations: %q vs %q", ids[0], id)
		}
	}
}

func TestAppendMessageStrictOrdering(t *testing.T) {
	s := NewMemoryStore()
	game, _ := s.GetOrCreateGame("Root")
	conv, _ := s.GetOrCreateConversation(game.ID, "user-1")

	// Same wall-clock instant for every append; the store must still order them.
	at := time.Now().UTC()
	for i := 0; i < 10; i++ {
		_, err := s.AppendMessage(conv.ID, domain.Message{
			ID:        util.NewID(),
			Role:      domain.RoleUser,
			Content:   "turn",
			CreatedAt: at,
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	msgs, err := s.ListMessages(conv.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 10 {
		t.Fatalf("expected 10 messages, got %d", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if !msgs[i].CreatedAt.After(msgs[i-1].CreatedAt) {
			t.Fatalf("message %d not strictly after %d: %v vs %v", i, i-1, msgs[i].CreatedAt, msgs[i-1].CreatedAt)
		}
	}
}

func TestRulebookStatusTextInvariant(t *testing.T) {
	s := NewMemoryStore()
	game, _ := s.GetOrCreateGame("Wingspan")
	rb := domain.Rulebook{
		ID:       util.NewID(),
		GameID:   game.ID,
		Language: "en",
		Status:   domain.StatusPending,
		FilePath: "rulebooks/x.pdf",
	}
	if err := s.SaveRulebook(rb); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, ok, _ := s.GetReadyRulebook(game.ID); ok {
		t.Fatal("pending rulebook must not be returned as ready")
	}

	if err := s.SetRulebookText(rb.ID, "4 players maximum"); err != nil {
		t.Fatalf("set text: %v", err)
	}
	got, ok, _ := s.GetReadyRulebook(game.ID)
	if !ok {
		t.Fatal("expected ready rulebook")
	}
	if got.Status != domain.StatusReady || got.FullText == "" {
		t.Fatalf("ready rulebook must carry text: %+v", got)
	}

	if err := s.SetRulebookStatus(rb.ID, domain.StatusFailed, "corrupt pdf"); err != nil {
		t.Fatalf("set status: %v", err)
	}
	failed, _, _ := s.GetRulebook(rb.ID)
	if failed.FullText != "" {
		t.Fatal("failed rulebook must not keep text")
	}
	if _, ok, _ := s.GetReadyRulebook(game.ID); ok {
		t.Fatal("failed rulebook must not be returned as ready")
	}
}

func TestListGamesWithReadyRulebook(t *testing.T) {
	s := NewMemoryStore()
	withBook, _ := s.GetOrCreateGame("Scythe")
	without, _ := s.GetOrCreateGame("Unpublished Prototype")

	rb := domain.Rulebook{ID: util.NewID(), GameID: withBook.ID, Language: "en", Status: domain.StatusPending, FilePath: "rulebooks/s.pdf"}
	if err := s.SaveRulebook(rb); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SetRulebookText(rb.ID, "rules text"); err != nil {
		t.Fatalf("set text: %v", err)
	}

	games, err := s.ListGamesWithReadyRulebook()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(games) != 1 || games[0].ID != withBook.ID {
		t.Fatalf("expected only %q, got %+v", withBook.Name, games)
	}
	_ = without
}
