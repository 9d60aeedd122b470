package domain

import "errors"

// Sentinel errors for the application.
var (
	ErrNotFound             = errors.New("resource not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrConversationLocked   = errors.New("conversation is handled by another operator")
	ErrPlatformDisconnected = errors.New("platform integration is disconnected")
	ErrImageTooLarge        = errors.New("image must be less than 1MB")
	ErrSessionClosed        = errors.New("session closed")
	ErrDatabaseConnection   = errors.New("database connection error")
)
