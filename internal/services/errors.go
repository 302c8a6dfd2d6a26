// Package services holds the business logic of the CBO Bro backend: session
// lifecycle, the chat orchestrator, the conversation history store and the
// analytics recorder. This file centralizes the service-level error values so
// that handlers can map them to HTTP results with errors.Is.
package services

import "errors"

// Input errors.
var (
	// ErrEmptyPrompt is returned when a chat message is blank after trimming.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrTooLong is returned when a chat message exceeds MaxPromptRunes.
	ErrTooLong = errors.New("prompt too long")

	// ErrInvalidStatus is returned for a status outside the allowed set.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidInput is returned when a recorder request misses a required
	// field or carries a value outside its enumeration.
	ErrInvalidInput = errors.New("invalid input")
)

// Lookup and availability errors.
var (
	// ErrUserNotFound indicates the user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrConversationNotFound indicates the conversation does not exist or
	// belongs to somebody else.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrInsightNotFound indicates the insight does not exist.
	ErrInsightNotFound = errors.New("insight not found")

	// ErrPersistenceDisabled is returned by explicit analytics operations
	// when the service runs without a database.
	ErrPersistenceDisabled = errors.New("persistence disabled")
)
