package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"rulebookai/internal/prompt"
	"rulebookai/internal/storage"
	"rulebookai/internal/store"
	"rulebookai/internal/util"
	"rulebookai/pkg/ai"
	"rulebookai/pkg/domain"
	"rulebookai/pkg/queue"
)

const (
	defaultMaxPromptRunes = 1000
	defaultMaxUploadBytes = 10 << 20
	defaultAskTimeout     = 60 * time.Second
	defaultLanguage       = "en"
	maxGameNameLen        = 255
)

// IngestQueue dispatches background ingestion jobs keyed by rulebook ID.
type IngestQueue interface {
	Enqueue(ctx context.Context, rulebookID string) (queue.JobStatus, error)
}

// Config holds runtime configuration for the core application.
type Config struct {
	Store          store.Store
	Files          storage.ObjectStore
	Queue          IngestQueue
	Generator      ai.TextGenerator
	Prompts        prompt.Builder
	MaxPromptRunes int
	MaxUploadBytes int64
	AskTimeout     time.Duration
}

// App is the core application service wiring together storage, ingestion
// dispatch, and chat logic.
type App struct {
	store          store.Store
	files          storage.ObjectStore
	queue          IngestQueue
	generator      ai.TextGenerator
	prompts        prompt.Builder
	maxPromptRunes int
	maxUploadBytes int64
	askTimeout     time.Duration
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	if cfg.Files == nil {
		return nil, fmt.Errorf("object store required")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("ingest queue required")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("text generator required")
	}
	prompts := cfg.Prompts
	if prompts == nil {
		prompts = prompt.TranscriptBuilder{}
	}
	maxPromptRunes := cfg.MaxPromptRunes
	if maxPromptRunes <= 0 {
		maxPromptRunes = defaultMaxPromptRunes
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	askTimeout := cfg.AskTimeout
	if askTimeout <= 0 {
		askTimeout = defaultAskTimeout
	}
	return &App{
		store:          cfg.Store,
		files:          cfg.Files,
		queue:          cfg.Queue,
		generator:      cfg.Generator,
		prompts:        prompts,
		maxPromptRunes: maxPromptRunes,
		maxUploadBytes: maxUploadBytes,
		askTimeout:     askTimeout,
	}, nil
}

// UploadRulebook stores the PDF blob, creates the rulebook record, and
// enqueues background ingestion. The game is created on first upload.
func (a *App) UploadRulebook(ctx context.Context, gameName, language, filename string, r io.Reader, size int64) (domain.Rulebook, error) {
	gameName = strings.TrimSpace(gameName)
	if gameName == "" {
		return domain.Rulebook{}, validationErr("game_name", "game name is required")
	}
	if utf8.RuneCountInString(gameName) > maxGameNameLen {
		return domain.Rulebook{}, validationErr("game_name", fmt.Sprintf("game name must be at most %d characters", maxGameNameLen))
	}
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return domain.Rulebook{}, validationErr("rulebook_pdf", "file must be a PDF")
	}
	if size <= 0 {
		return domain.Rulebook{}, validationErr("rulebook_pdf", "file is empty")
	}
	if size > a.maxUploadBytes {
		return domain.Rulebook{}, validationErr("rulebook_pdf", fmt.Sprintf("file exceeds %d MB", a.maxUploadBytes>>20))
	}
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" {
		language = defaultLanguage
	}
	if len(language) != 2 {
		return domain.Rulebook{}, validationErr("language", "language must be a 2-letter code")
	}

	game, err := a.store.GetOrCreateGame(gameName)
	if err != nil {
		return domain.Rulebook{}, fmt.Errorf("get or create game: %w", err)
	}

	now := time.Now().UTC()
	rulebook := domain.Rulebook{
		ID:        util.NewID(),
		GameID:    game.ID,
		Language:  language,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	rulebook.FilePath = "rulebooks/" + rulebook.ID + ".pdf"

	if err := a.files.Put(ctx, rulebook.FilePath, r, size, "application/pdf"); err != nil {
		return domain.Rulebook{}, fmt.Errorf("store pdf: %w", err)
	}
	if err := a.store.SaveRulebook(rulebook); err != nil {
		return domain.Rulebook{}, fmt.Errorf("save rulebook: %w", err)
	}
	if _, err := a.queue.Enqueue(ctx, rulebook.ID); err != nil {
		return domain.Rulebook{}, fmt.Errorf("enqueue ingestion: %w", err)
	}
	slog.Info("rulebook uploaded", "rulebook_id", rulebook.ID, "game_id", game.ID, "game", game.Name, "size_bytes", size)
	return rulebook, nil
}

// ListGames returns games that have at least one ready rulebook.
func (a *App) ListGames() ([]domain.Game, error) {
	return a.store.ListGamesWithReadyRulebook()
}

// GameView is the chat page payload: the game plus the caller's conversation
// and its full history. The conversation is created lazily on first view.
type GameView struct {
	Game         domain.Game         `json:"game"`
	Conversation domain.Conversation `json:"conversation"`
	Messages     []domain.Message    `json:"messages"`
}

// ViewGame loads a game together with the user's conversation history.
func (a *App) ViewGame(userID, gameID string) (GameView, error) {
	game, ok, err := a.store.GetGame(gameID)
	if err != nil {
		return GameView{}, fmt.Errorf("get game: %w", err)
	}
	if !ok {
		return GameView{}, ErrGameNotFound
	}
	conv, err := a.store.GetOrCreateConversation(game.ID, userID)
	if err != nil {
		return GameView{}, fmt.Errorf("get or create conversation: %w", err)
	}
	msgs, err := a.store.ListMessages(conv.ID)
	if err != nil {
		return GameView{}, fmt.Errorf("list messages: %w", err)
	}
	return GameView{Game: game, Conversation: conv, Messages: msgs}, nil
}

// Ask answers a question grounded in the game's ready rulebook. The user's
// message is persisted before the model call so it survives upstream
// failures; the AI message is only persisted on success.
func (a *App) Ask(ctx context.Context, userID, gameID, promptText string) (domain.Message, error) {
	promptText = strings.TrimSpace(promptText)
	if promptText == "" {
		return domain.Message{}, validationErr("prompt", "prompt is required")
	}
	if utf8.RuneCountInString(promptText) > a.maxPromptRunes {
		return domain.Message{}, validationErr("prompt", fmt.Sprintf("prompt must be at most %d characters", a.maxPromptRunes))
	}

	game, ok, err := a.store.GetGame(gameID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("get game: %w", err)
	}
	if !ok {
		return domain.Message{}, ErrGameNotFound
	}
	rulebook, ok, err := a.store.GetReadyRulebook(game.ID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("get ready rulebook: %w", err)
	}
	if !ok || !rulebook.Ready() {
		return domain.Message{}, ErrRulebookUnavailable
	}

	conv, err := a.store.GetOrCreateConversation(game.ID, userID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("get or create conversation: %w", err)
	}
	history, err := a.store.ListMessages(conv.ID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("list messages: %w", err)
	}

	if _, err := a.store.AppendMessage(conv.ID, domain.Message{
		ID:      util.NewID(),
		Role:    domain.RoleUser,
		Content: promptText,
	}); err != nil {
		return domain.Message{}, fmt.Errorf("save user message: %w", err)
	}

	systemPrompt, userPrompt := a.prompts.Build(game.Name, rulebook.FullText, history, promptText)

	callCtx, cancel := context.WithTimeout(ctx, a.askTimeout)
	defer cancel()
	reply, err := a.generator.GenerateText(callCtx, systemPrompt, userPrompt)
	if err != nil {
		util.LoggerFromContext(ctx).Error("language model call failed",
			"game_id", game.ID,
			"user_id", userID,
			"conversation_id", conv.ID,
			"prompt", promptText,
			"err", err,
		)
		return domain.Message{}, ErrUpstream
	}

	aiMsg, err := a.store.AppendMessage(conv.ID, domain.Message{
		ID:      util.NewID(),
		Role:    domain.RoleAI,
		Content: reply,
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("save ai message: %w", err)
	}
	return aiMsg, nil
}
