package domain

import "time"

type RulebookStatus string

const (
	StatusPending    RulebookStatus = "pending"
	StatusProcessing RulebookStatus = "processing"
	StatusReady      RulebookStatus = "ready"
	StatusFailed     RulebookStatus = "failed"
)

// Roles a Message may carry. Stores do not enforce alternation.
const (
	RoleUser = "user"
	RoleAI   = "ai"
)

type Game struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	CoverImageURL string    `json:"coverImageUrl,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type Rulebook struct {
	ID           string         `json:"id"`
	GameID       string         `json:"gameId"`
	Language     string         `json:"language"`
	FullText     string         `json:"-"`
	Status       RulebookStatus `json:"status"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	FilePath     string         `json:"-"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// Ready reports whether the rulebook can back a chat: processed and with text.
func (r Rulebook) Ready() bool {
	return r.Status == StatusReady && r.FullText != ""
}

type Conversation struct {
	ID        string    `json:"id"`
	GameID    string    `json:"gameId"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}
