package store

import (
	"sync"
	"time"

	"rulebookai/internal/util"
	"rulebookai/pkg/domain"
)

// MemoryStore keeps everything in-process. It mirrors the Postgres store's
// guarantees (unique game names, one conversation per (game, user) pair,
// strictly increasing message times) and backs tests.
type MemoryStore struct {
	mu            sync.Mutex
	games         map[string]domain.Game
	gamesByName   map[string]string
	gameOrder     []string
	rulebooks     map[string]domain.Rulebook
	rulebookOrder []string
	conversations map[string]domain.Conversation
	convByPair    map[[2]string]string
	messages      map[string][]domain.Message
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		games:         make(map[string]domain.Game),
		gamesByName:   make(map[string]string),
		rulebooks:     make(map[string]domain.Rulebook),
		conversations: make(map[string]domain.Conversation),
		convByPair:    make(map[[2]string]string),
		messages:      make(map[string][]domain.Message),
	}
}

// GetOrCreateGame returns the game with the given name, creating it when absent.
func (m *MemoryStore) GetOrCreateGame(name string) (domain.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.gamesByName[name]; ok {
		return m.games[id], nil
	}
	now := time.Now().UTC()
	game := domain.Game{
		ID:        util.NewID(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.games[game.ID] = game
	m.gamesByName[name] = game.ID
	m.gameOrder = append(m.gameOrder, game.ID)
	return game, nil
}

// GetGame retrieves a game by ID.
func (m *MemoryStore) GetGame(id string) (domain.Game, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[id]
	return g, ok, nil
}

// ListGamesWithReadyRulebook returns games having a ready rulebook, newest first.
func (m *MemoryStore) ListGamesWithReadyRulebook() ([]domain.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ready := make(map[string]bool)
	for _, r := range m.rulebooks {
		if r.Status == domain.StatusReady {
			ready[r.GameID] = true
		}
	}
	var res []domain.Game
	for i := len(m.gameOrder) - 1; i >= 0; i-- {
		id := m.gameOrder[i]
		if ready[id] {
			res = append(res, m.games[id])
		}
	}
	return res, nil
}

// SaveRulebook stores or replaces a rulebook.
func (m *MemoryStore) SaveRulebook(r domain.Rulebook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rulebooks[r.ID]; !exists {
		m.rulebookOrder = append(m.rulebookOrder, r.ID)
	}
	m.rulebooks[r.ID] = r
	return nil
}

// GetRulebook retrieves a rulebook by ID.
func (m *MemoryStore) GetRulebook(id string) (domain.Rulebook, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rulebooks[id]
	return r, ok, nil
}

// GetReadyRulebook returns the newest ready rulebook for a game.
func (m *MemoryStore) GetReadyRulebook(gameID string) (domain.Rulebook, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.rulebookOrder) - 1; i >= 0; i-- {
		r := m.rulebooks[m.rulebookOrder[i]]
		if r.GameID == gameID && r.Ready() {
			return r, true, nil
		}
	}
	return domain.Rulebook{}, false, nil
}

// SetRulebookStatus updates status and error message; non-ready statuses
// clear the text.
func (m *MemoryStore) SetRulebookStatus(id string, status domain.RulebookStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rulebooks[id]
	if !ok {
		return nil
	}
	r.Status = status
	r.ErrorMessage = errMsg
	if status != domain.StatusReady {
		r.FullText = ""
	}
	r.UpdatedAt = time.Now().UTC()
	m.rulebooks[id] = r
	return nil
}

// SetRulebookText stores text and marks the rulebook ready.
func (m *MemoryStore) SetRulebookText(id string, fullText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rulebooks[id]
	if !ok {
		return nil
	}
	r.FullText = fullText
	r.Status = domain.StatusReady
	r.ErrorMessage = ""
	r.UpdatedAt = time.Now().UTC()
	m.rulebooks[id] = r
	return nil
}

// GetOrCreateConversation returns the conversation for a (game, user) pair.
func (m *MemoryStore) GetOrCreateConversation(gameID, userID string) (domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]string{gameID, userID}
	if id, ok := m.convByPair[key]; ok {
		return m.conversations[id], nil
	}
	now := time.Now().UTC()
	conv := domain.Conversation{
		ID:        util.NewID(),
		GameID:    gameID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.conversations[conv.ID] = conv
	m.convByPair[key] = conv.ID
	return conv, nil
}

// AppendMessage records a message with a strictly increasing creation time.
func (m *MemoryStore) AppendMessage(conversationID string, msg domain.Message) (domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.ConversationID = conversationID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if prior := m.messages[conversationID]; len(prior) > 0 {
		last := prior[len(prior)-1].CreatedAt
		if !msg.CreatedAt.After(last) {
			msg.CreatedAt = last.Add(time.Microsecond)
		}
	}
	m.messages[conversationID] = append(m.messages[conversationID], msg)
	if conv, ok := m.conversations[conversationID]; ok {
		conv.UpdatedAt = msg.CreatedAt
		m.conversations[conversationID] = conv
	}
	return msg, nil
}

// ListMessages returns the conversation history in creation order.
func (m *MemoryStore) ListMessages(conversationID string) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages[conversationID]
	res := make([]domain.Message, len(msgs))
	copy(res, msgs)
	return res, nil
}
