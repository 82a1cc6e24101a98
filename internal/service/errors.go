package service

import "errors"

// Common service errors
var (
	ErrInvalidInput = errors.New("invalid input")
)

// Directory errors
var (
	ErrUserNotFound = errors.New("user not found")
)

// Mystery match errors
var (
	ErrMatchNotFound   = errors.New("match not found")
	ErrMatchExpired    = errors.New("match expired")
	ErrNotAParticipant = errors.New("not a participant of this match")
	ErrInvalidMessage  = errors.New("invalid message")
	ErrRateLimited     = errors.New("too many messages")
)
