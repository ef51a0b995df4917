package services

import (
	"errors"
	"fmt"

	"devnewz/internal/repository"
)

var (
	ErrUnauthenticated   = errors.New("authentication required")
	ErrUnauthorized      = errors.New("not allowed to modify this resource")
	ErrNotFound          = errors.New("not found")
	ErrParentNotFound    = fmt.Errorf("parent comment %w", ErrNotFound)
	ErrInsufficientKarma = errors.New("insufficient karma to downvote")
	ErrMaxDepthExceeded  = errors.New("max comment depth reached")
	ErrValidation        = errors.New("validation failed")
)

// ValidationError reports malformed input on a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// notFound maps a repository miss onto ErrNotFound (or a more specific
// sentinel) and passes everything else through.
func notFound(err error, sentinel error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return sentinel
	}
	return err
}
