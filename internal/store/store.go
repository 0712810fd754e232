package store

import "rulebookai/pkg/domain"

// Store defines persistence operations for games, rulebooks, conversations,
// and messages.
type Store interface {
	// games
	GetOrCreateGame(name string) (domain.Game, error)
	GetGame(id string) (domain.Game, bool, error)
	ListGamesWithReadyRulebook() ([]domain.Game, error)

	// rulebooks
	SaveRulebook(domain.Rulebook) error
	GetRulebook(id string) (domain.Rulebook, bool, error)
	GetReadyRulebook(gameID string) (domain.Rulebook, bool, error)
	SetRulebookStatus(id string, status domain.RulebookStatus, errMsg string) error
	SetRulebookText(id string, fullText string) error

	// conversations
	GetOrCreateConversation(gameID, userID string) (domain.Conversation, error)
	AppendMessage(conversationID string, msg domain.Message) (domain.Message, error)
	ListMessages(conversationID string) ([]domain.Message, error)
}
