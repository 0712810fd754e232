package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"rulebookai/internal/app"
	"rulebookai/internal/usertoken"
	"rulebookai/internal/util"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	TokenVerifier  *usertoken.Verifier
	ChatLimiter    Limiter
	MaxUploadBytes int64
}

// Limiter throttles requests per key. A nil limiter disables throttling.
type Limiter interface {
	Allow(key string) bool
}

// Server exposes the HTTP API: rulebook upload, game listing, and chat.
type Server struct {
	app            *app.App
	tokenVerifier  *usertoken.Verifier
	chatLimiter    Limiter
	mux            *http.ServeMux
	maxUploadBytes int64
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 * 1024 * 1024
	}
	s := &Server{
		app:            cfg.App,
		tokenVerifier:  cfg.TokenVerifier,
		chatLimiter:    cfg.ChatLimiter,
		mux:            http.NewServeMux(),
		maxUploadBytes: maxUploadBytes,
	}
	s.routes()
	return s
}

// Router returns the configured handler behind the standard middleware chain.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(util.WithRequestLog(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.Handle("/rulebooks", s.withUser(s.handleRulebooks))
	s.mux.Handle("/games", s.withUser(s.handleGames))
	s.mux.Handle("/games/", s.withUser(s.handleGameByID))
	s.mux.Handle("/chat/", s.withUser(s.handleChat))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, string)

// withUser resolves the caller's identity. When a JWKS verifier is
// configured the bearer token's subject is used; otherwise the trusted
// X-User-Id header set by an upstream proxy.
func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.tokenVerifier != nil {
			token, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			userID, err := s.tokenVerifier.VerifySubject(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next(w, r, userID)
			return
		}
		userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, userID)
	})
}

func (s *Server) handleRulebooks(w http.ResponseWriter, r *http.Request, _ string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.maxUploadBytes > 0 {
		// Leave headroom for the multipart framing around the file part.
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+(1<<20))
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	file, header, err := r.FormFile("rulebook_pdf")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: rulebook_pdf)")
		return
	}
	defer file.Close()

	rulebook, err := s.app.UploadRulebook(
		r.Context(),
		r.FormValue("game_name"),
		r.FormValue("language"),
		header.Filename,
		file,
		header.Size,
	)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, rulebook)
}

func (s *Server) handleGames(w http.ResponseWriter, r *http.Request, _ string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	games, err := s.app.ListGames()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": games,
		"count": len(games),
	})
}

// /games/{id}
func (s *Server) handleGameByID(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/games/")
	if id == "" || strings.Contains(id, "/") {
		notFound(w, "not found")
		return
	}
	view, err := s.app.ViewGame(userID, id)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// /chat/{gameID}
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	gameID := strings.TrimPrefix(r.URL.Path, "/chat/")
	if gameID == "" || strings.Contains(gameID, "/") {
		notFound(w, "not found")
		return
	}
	if s.chatLimiter != nil && !s.chatLimiter.Allow(userID) {
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	msg, err := s.app.Ask(r.Context(), userID, gameID, req.Prompt)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// writeAppError maps application errors onto HTTP responses. Validation
// and availability problems surface as 422 so the caller can act on
// them; upstream model failures stay generic.
func (s *Server) writeAppError(w http.ResponseWriter, err error) {
	var verr *app.ValidationError
	switch {
	case errors.As(err, &verr):
		writeFieldError(w, http.StatusUnprocessableEntity, verr.Message, verr.Field)
	case errors.Is(err, app.ErrRulebookUnavailable):
		writeError(w, http.StatusUnprocessableEntity, "rulebook is not ready for this game")
	case errors.Is(err, app.ErrGameNotFound):
		notFound(w, "game not found")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeFieldError(w, status, msg, "")
}

func writeFieldError(w http.ResponseWriter, status int, msg, field string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Field:     field,
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

type chatRequest struct {
	Prompt string `json:"prompt"`
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
