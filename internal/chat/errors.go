package chat

import (
	"errors"

	"chat-backend/internal/repositories"
)

var (
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrInvalidContent    = errors.New("invalid message content")
	ErrInvalidPayload    = errors.New("invalid event payload")
	ErrRateLimited       = errors.New("rate limit exceeded")
)

var clientReasons = []struct {
	err    error
	reason string
}{
	{ErrInvalidPayload, "invalid payload"},
	{ErrInvalidContent, "message content must be between 1 and 4000 characters"},
	{ErrRecipientNotFound, "recipient not found"},
	{repositories.ErrSelfChat, "cannot message yourself"},
	{ErrRateLimited, "rate limit exceeded"},
	{repositories.ErrUserNotFound, "user not found"},
}

// Reason maps a send failure to the short text shown to clients.
func Reason(err error) string {
	for _, r := range clientReasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "failed to send message"
}

// IsClientError reports whether err was caused by the request rather than the server.
func IsClientError(err error) bool {
	for _, r := range clientReasons {
		if errors.Is(err, r.err) {
			return true
		}
	}
	return false
}
