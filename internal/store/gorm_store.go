package store

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"rulebookai/internal/util"
	"rulebookai/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&GameModel{}, &RulebookModel{}, &ConversationModel{}, &MessageModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// GetOrCreateGame returns the game with the given name, creating it when
// absent. The unique index on name keeps concurrent callers from creating
// duplicates; losers of the insert race re-read the winner's row.
func (s *GormStore) GetOrCreateGame(name string) (domain.Game, error) {
	now := time.Now().UTC()
	model := GameModel{
		ID:        util.NewID(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&model).Error; err != nil {
		return domain.Game{}, fmt.Errorf("create game: %w", err)
	}
	var existing GameModel
	if err := s.db.First(&existing, "name = ?", name).Error; err != nil {
		return domain.Game{}, fmt.Errorf("fetch game: %w", err)
	}
	return gameFromModel(existing), nil
}

// GetGame retrieves a game by ID.
func (s *GormStore) GetGame(id string) (domain.Game, bool, error) {
	var model GameModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Game{}, false, nil
		}
		return domain.Game{}, false, err
	}
	return gameFromModel(model), true, nil
}

// ListGamesWithReadyRulebook returns games that have at least one ready
// rulebook, newest first.
func (s *GormStore) ListGamesWithReadyRulebook() ([]domain.Game, error) {
	var models []GameModel
	err := s.db.
		Where("EXISTS (SELECT 1 FROM rulebook_models r WHERE r.game_id = game_models.id AND r.status = ?)", string(domain.StatusReady)).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	res := make([]domain.Game, 0, len(models))
	for _, m := range models {
		res = append(res, gameFromModel(m))
	}
	return res, nil
}

// SaveRulebook stores or updates a rulebook.
func (s *GormStore) SaveRulebook(r domain.Rulebook) error {
	model := rulebookToModel(r)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"language", "full_text", "status", "error_message", "file_path", "updated_at"}),
	}).Create(&model).Error
}

// GetRulebook retrieves a rulebook by ID.
func (s *GormStore) GetRulebook(id string) (domain.Rulebook, bool, error) {
	var model RulebookModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Rulebook{}, false, nil
		}
		return domain.Rulebook{}, false, err
	}
	return rulebookFromModel(model), true, nil
}

// GetReadyRulebook returns the newest ready rulebook for a game.
func (s *GormStore) GetReadyRulebook(gameID string) (domain.Rulebook, bool, error) {
	var model RulebookModel
	err := s.db.
		Where("game_id = ? AND status = ? AND full_text <> ''", gameID, string(domain.StatusReady)).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Rulebook{}, false, nil
		}
		return domain.Rulebook{}, false, err
	}
	return rulebookFromModel(model), true, nil
}

// SetRulebookStatus updates status and error message. Any status other than
// ready also clears full_text so that ready remains equivalent to "has text".
func (s *GormStore) SetRulebookStatus(id string, status domain.RulebookStatus, errMsg string) error {
	updates := map[string]any{
		"status":        string(status),
		"error_message": errMsg,
		"updated_at":    time.Now().UTC(),
	}
	if status != domain.StatusReady {
		updates["full_text"] = ""
	}
	return s.db.Model(&RulebookModel{}).Where("id = ?", id).Updates(updates).Error
}

// SetRulebookText stores the extracted text and marks the rulebook ready in
// a single update.
func (s *GormStore) SetRulebookText(id string, fullText string) error {
	if fullText == "" {
		return fmt.Errorf("rulebook %s: refusing to mark ready with empty text", id)
	}
	return s.db.Model(&RulebookModel{}).Where("id = ?", id).Updates(map[string]any{
		"full_text":     fullText,
		"status":        string(domain.StatusReady),
		"error_message": "",
		"updated_at":    time.Now().UTC(),
	}).Error
}

// GetOrCreateConversation returns the conversation for a (game, user) pair,
// creating an empty one when absent. The composite unique index serializes
// concurrent creators.
func (s *GormStore) GetOrCreateConversation(gameID, userID string) (domain.Conversation, error) {
	now := time.Now().UTC()
	model := ConversationModel{
		ID:        util.NewID(),
		GameID:    gameID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "game_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(&model).Error; err != nil {
		return domain.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	var existing ConversationModel
	if err := s.db.First(&existing, "game_id = ? AND user_id = ?", gameID, userID).Error; err != nil {
		return domain.Conversation{}, fmt.Errorf("fetch conversation: %w", err)
	}
	return conversationFromModel(existing), nil
}

// AppendMessage records a message with a creation time strictly greater than
// any prior message in the conversation. Appends for the same conversation
// serialize on the conversation row lock.
func (s *GormStore) AppendMessage(conversationID string, msg domain.Message) (domain.Message, error) {
	model := messageToModel(msg)
	model.ConversationID = conversationID
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var conv ConversationModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&conv, "id = ?", conversationID).Error; err != nil {
			return fmt.Errorf("lock conversation: %w", err)
		}
		var last time.Time
		row := tx.Model(&MessageModel{}).
			Where("conversation_id = ?", conversationID).
			Select("COALESCE(MAX(created_at), 'epoch'::timestamptz)").
			Row()
		if err := row.Scan(&last); err != nil {
			return fmt.Errorf("read last message time: %w", err)
		}
		if !model.CreatedAt.After(last) {
			model.CreatedAt = last.Add(time.Microsecond)
		}
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		return tx.Model(&ConversationModel{}).
			Where("id = ?", conversationID).
			Update("updated_at", model.CreatedAt).Error
	})
	if err != nil {
		return domain.Message{}, err
	}
	return messageFromModel(model), nil
}

// ListMessages returns the full conversation history in creation order.
func (s *GormStore) ListMessages(conversationID string) ([]domain.Message, error) {
	var models []MessageModel
	if err := s.db.
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Message, 0, len(models))
	for _, m := range models {
		res = append(res, messageFromModel(m))
	}
	return res, nil
}

func gameFromModel(m GameModel) domain.Game {
	return domain.Game{
		ID:            m.ID,
		Name:          m.Name,
		CoverImageURL: m.CoverImageURL,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func rulebookToModel(r domain.Rulebook) RulebookModel {
	return RulebookModel{
		ID:           r.ID,
		GameID:       r.GameID,
		Language:     r.Language,
		FullText:     r.FullText,
		Status:       string(r.Status),
		ErrorMessage: r.ErrorMessage,
		FilePath:     r.FilePath,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func rulebookFromModel(m RulebookModel) domain.Rulebook {
	return domain.Rulebook{
		ID:           m.ID,
		GameID:       m.GameID,
		Language:     m.Language,
		FullText:     m.FullText,
		Status:       domain.RulebookStatus(m.Status),
		ErrorMessage: m.ErrorMessage,
		FilePath:     m.FilePath,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func conversationFromModel(m ConversationModel) domain.Conversation {
	return domain.Conversation{
		ID:        m.ID,
		GameID:    m.GameID,
		UserID:    m.UserID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func messageToModel(msg domain.Message) MessageModel {
	return MessageModel{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Role:           msg.Role,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt,
	}
}

func messageFromModel(m MessageModel) domain.Message {
	return domain.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Role:           m.Role,
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
	}
}
