package app

import (
	"errors"
	"fmt"
)

var (
	// ErrRulebookUnavailable is a user-facing condition, not a server fault:
	// the game has no processed rulebook to answer from.
	ErrRulebookUnavailable = errors.New("the manual for this game is not available or has not been processed")

	ErrGameNotFound = errors.New("game not found")

	// ErrUpstream hides language-model failures behind a generic message;
	// diagnostics go to the log, never to the caller.
	ErrUpstream = errors.New("there was a problem communicating with the AI service")
)

// ValidationError reports malformed input tied to a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func validationErr(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
