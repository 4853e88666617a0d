package domain

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	// ChatChannel carries chat and moderation events. It is a presence channel.
	ChatChannel = "presence-chat-channel"
	// PlatformChannel carries broadcast start/end notifications.
	PlatformChannel = "stream-channel"

	presencePrefix = "presence-"
)

// IsPresenceChannel reports whether membership is tracked on channel.
func IsPresenceChannel(channel string) bool {
	return strings.HasPrefix(channel, presencePrefix)
}

const (
	EventNewMessage        = "new-message"
	EventReply             = "reply"
	EventDeleteMessage     = "delete-message"
	EventMessageReaction   = "message-reaction"
	EventUserMuted         = "user-muted"
	EventUserBanned        = "user-banned"
	EventBannedUser        = "banned-user"
	EventPermissionChanged = "permission_changed"
	EventStartBroadcast    = "start-broadcast"
	EventEndBroadcast      = "end-broadcast"

	EventSubscriptionSucceeded = "subscription-succeeded"
	EventMemberAdded           = "member-added"
	EventMemberRemoved         = "member-removed"
)

// Event is one delivery on a channel.
type Event struct {
	Channel   string          `json:"channel"`
	Name      string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Publisher string          `json:"publisher,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Member is a presence-channel participant.
type Member struct {
	ID   UserID   `json:"user_id"`
	Info Identity `json:"user_info"`
}

type IDPayload struct {
	ID string `json:"id"`
}

type ReactionPayload struct {
	ID        MessageID  `json:"id"`
	Reactions []Reaction `json:"reactions"`
}

type PermissionChangedPayload struct {
	ID          UserID     `json:"id"`
	Permissions Permission `json:"permissions"`
}

type BroadcastPayload struct {
	Profile *Profile `json:"profile"`
}

type PresenceSnapshot struct {
	Count   int      `json:"count"`
	Members []Member `json:"members"`
}
