package domain

import "errors"

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidInput = errors.New("invalid input")
	ErrNoIdentity   = errors.New("no active identity")
	ErrClosed       = errors.New("closed")

	// ErrSessionChanging means the session moved to another identity and
	// the synchronizer has not been rescoped yet. Retrying shortly succeeds.
	ErrSessionChanging = errors.New("session is changing identity")
)
