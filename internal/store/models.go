package store

import "time"

// GORM models used for persistence.
type GameModel struct {
	ID            string `gorm:"primaryKey"`
	Name          string `gorm:"uniqueIndex;not null"`
	CoverImageURL string
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

type RulebookModel struct {
	ID           string    `gorm:"primaryKey"`
	GameID       string    `gorm:"not null;index"`
	Language     string    `gorm:"type:char(2);not null"`
	FullText     string    `gorm:"type:text"`
	Status       string    `gorm:"not null"`
	ErrorMessage string
	FilePath     string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

type ConversationModel struct {
	ID        string    `gorm:"primaryKey"`
	GameID    string    `gorm:"not null;uniqueIndex:idx_conversations_game_user"`
	UserID    string    `gorm:"not null;uniqueIndex:idx_conversations_game_user"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

type MessageModel struct {
	ID             string    `gorm:"primaryKey"`
	ConversationID string    `gorm:"not null;index"`
	Role           string    `gorm:"not null"`
	Content        string    `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null;index"`
}
