package validation

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

func TestValidateUserID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"provider subject", "google-oauth2|10452", false},
		{"email-like", "viewer@example.com", false},
		{"empty", "", true},
		{"whitespace", "user 1", true},
		{"too long", strings.Repeat("a", 129), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUserID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUserID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestValidateMessageID(t *testing.T) {
	if err := ValidateMessageID(ulid.Make().String()); err != nil {
		t.Errorf("expected valid ULID, got %v", err)
	}
	for _, id := range []string{"", "not-a-ulid", strings.Repeat("Z", 26)} {
		if err := ValidateMessageID(id); err == nil {
			t.Errorf("ValidateMessageID(%q) expected error", id)
		}
	}
}

func TestValidateStreamKey(t *testing.T) {
	if err := ValidateStreamKey(uuid.NewString()); err != nil {
		t.Errorf("expected valid key, got %v", err)
	}
	if err := ValidateStreamKey("live_123"); err == nil {
		t.Error("expected error for non-uuid key")
	}
	if err := ValidateStreamKey(""); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestValidateChannel(t *testing.T) {
	tests := []struct {
		channel string
		wantErr bool
	}{
		{"chat", false},
		{"presence-chat", false},
		{"platform", false},
		{"", true},
		{"Chat", true},
		{"-chat", true},
		{"chat room", true},
		{strings.Repeat("c", 65), true},
	}

	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			err := ValidateChannel(tt.channel)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateChannel(%q) error = %v, wantErr %v", tt.channel, err, tt.wantErr)
			}
		})
	}
}

func TestValidateCommandName(t *testing.T) {
	if err := ValidateCommandName("viewers"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateCommandName("Help"); err == nil {
		t.Error("expected error for uppercase name")
	}
	if err := ValidateCommandName(strings.Repeat("a", 33)); err == nil {
		t.Error("expected error for long name")
	}
}

func TestValidateStringLength(t *testing.T) {
	// runes, not bytes
	if err := ValidateStringLength("héllo", 1, 5, "title"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateStringLength("", 1, 5, "title"); err == nil {
		t.Error("expected error for short string")
	}
	if err := ValidateStringLength("toolong", 1, 5, "title"); err == nil {
		t.Error("expected error for long string")
	}
	if err := ValidateStringLength(string([]byte{0xff}), 0, 5, "title"); err == nil {
		t.Error("expected error for invalid utf-8")
	}
}

func TestValidateNonEmptyString(t *testing.T) {
	if err := ValidateNonEmptyString("   ", "reason"); err == nil {
		t.Error("expected error for blank string")
	}
	if err := ValidateNonEmptyString("spam", "reason"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
