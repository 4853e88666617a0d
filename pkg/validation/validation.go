package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	// UserIDRegex matches identity-provider subjects: opaque, printable, no whitespace.
	UserIDRegex = regexp.MustCompile(`^[A-Za-z0-9._:|@-]+$`)

	// ChannelRegex matches bus channel names, optionally prefixed with "presence-".
	ChannelRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

	// CommandNameRegex matches slash command names.
	CommandNameRegex = regexp.MustCompile(`^[a-z0-9_-]{1,32}$`)
)

// ValidateUserID validates a stable user id
func ValidateUserID(id string) error {
	if id == "" {
		return fmt.Errorf("user ID is required")
	}
	if len(id) > 128 {
		return fmt.Errorf("user ID is too long (max 128 characters)")
	}
	if !UserIDRegex.MatchString(id) {
		return fmt.Errorf("invalid user ID format")
	}
	return nil
}

// ValidateMessageID validates a timeline message id (ULID)
func ValidateMessageID(id string) error {
	if id == "" {
		return fmt.Errorf("message ID is required")
	}
	if _, err := ulid.ParseStrict(id); err != nil {
		return fmt.Errorf("invalid message ID format")
	}
	return nil
}

// ValidateStreamKey validates a publish credential (UUID)
func ValidateStreamKey(key string) error {
	if key == "" {
		return fmt.Errorf("stream key is required")
	}
	if _, err := uuid.Parse(key); err != nil {
		return fmt.Errorf("invalid stream key format")
	}
	return nil
}

// ValidateChannel validates a bus channel name
func ValidateChannel(channel string) error {
	if channel == "" {
		return fmt.Errorf("channel is required")
	}
	if len(channel) > 64 {
		return fmt.Errorf("channel is too long (max 64 characters)")
	}
	if !ChannelRegex.MatchString(channel) {
		return fmt.Errorf("invalid channel name")
	}
	return nil
}

func ValidateCommandName(name string) error {
	if !CommandNameRegex.MatchString(name) {
		return fmt.Errorf("command name must be 1-32 lowercase letters, digits, _ or -")
	}
	return nil
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateStringLength validates string length in runes
func ValidateStringLength(s string, min, max int, fieldName string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
