package domain

import (
	"errors"
	"fmt"
)

// Categories. Every error returned by the coordinator wraps one of these.
var (
	ErrUnauthenticated = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("invalid request")
	ErrUnavailable     = errors.New("store unavailable")
	ErrConflict        = errors.New("concurrent modification")
)

var (
	ErrProfileNotFound  = fmt.Errorf("%w: profile", ErrNotFound)
	ErrMessageNotFound  = fmt.Errorf("%w: message", ErrNotFound)
	ErrStreamNotFound   = fmt.Errorf("%w: stream", ErrNotFound)
	ErrSettingsNotFound = fmt.Errorf("%w: chat settings", ErrNotFound)
	ErrKeyNotFound      = fmt.Errorf("%w: key", ErrNotFound)
	ErrNotLive          = fmt.Errorf("%w: no live stream", ErrNotFound)
	ErrCommandNotFound  = fmt.Errorf("%w: command", ErrNotFound)

	ErrInsufficientPermissions = fmt.Errorf("%w: insufficient permissions", ErrForbidden)
	ErrProtectedTarget         = fmt.Errorf("%w: administrators cannot be sanctioned", ErrForbidden)
	ErrHigherAuthority         = fmt.Errorf("%w: target has more authority than the actor", ErrForbidden)
	ErrCredentialRejected      = fmt.Errorf("%w: unknown stream key", ErrForbidden)

	ErrEmptyContent       = fmt.Errorf("%w: message content is empty", ErrValidation)
	ErrContentTooLong     = fmt.Errorf("%w: message content is too long", ErrValidation)
	ErrChatDisabled       = fmt.Errorf("%w: the chat was disabled by an administrator", ErrValidation)
	ErrBlacklistedContent = fmt.Errorf("%w: message contains blacklisted content", ErrValidation)
	ErrInvalidMessageType = fmt.Errorf("%w: invalid message type", ErrValidation)
	ErrAlreadyJoined      = fmt.Errorf("%w: user already joined", ErrValidation)
	ErrInvalidEmoji       = fmt.Errorf("%w: invalid emoji", ErrValidation)
	ErrDeadlineExceeded   = fmt.Errorf("%w: request deadline exceeded", ErrUnavailable)
	ErrDuplicateCommand   = errors.New("command already registered")
)

// Unavailable tags a store or bus failure as transient.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
