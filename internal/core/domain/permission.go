package domain

// Permission is a capability bitfield. Its numeric value doubles as the
// holder's authority when two profiles are ranked against each other.
type Permission uint64

const (
	PermSendMessage Permission = 1 << iota
	PermDeleteMessage
	PermBanUser
	PermMuteUser
	PermBroadcast
	PermModerationDashboard
	PermModView
	PermReadMessageHistory
	PermAdministrator
	PermMessageReaction
	PermSendEmojis
	PermReplyMessage
	PermPublishStream
	PermJoinPresence
	PermUseSlashCommand
	PermSendGIF
	PermSendLink
)

// DefaultPermissions is granted to a profile on first verified identity.
const DefaultPermissions = PermSendMessage | PermReadMessageHistory | PermMessageReaction |
	PermSendEmojis | PermReplyMessage

// MutedPermissions are revoked by a mute.
const MutedPermissions = PermSendMessage | PermSendEmojis | PermReplyMessage |
	PermMessageReaction | PermReadMessageHistory

var permissionNames = []struct {
	bit  Permission
	name string
}{
	{PermSendMessage, "send_message"},
	{PermDeleteMessage, "delete_message"},
	{PermBanUser, "ban_user"},
	{PermMuteUser, "mute_user"},
	{PermBroadcast, "broadcast"},
	{PermModerationDashboard, "moderation_dashboard"},
	{PermModView, "mod_view"},
	{PermReadMessageHistory, "read_message_history"},
	{PermAdministrator, "administrator"},
	{PermMessageReaction, "message_reaction"},
	{PermSendEmojis, "send_emojis"},
	{PermReplyMessage, "reply_message"},
	{PermPublishStream, "publish_stream"},
	{PermJoinPresence, "join_presence"},
	{PermUseSlashCommand, "use_slash_command"},
	{PermSendGIF, "send_gif"},
	{PermSendLink, "send_link"},
}

// Grant sets every bit of flags.
func Grant(bits, flags Permission) Permission {
	return bits | flags
}

// Revoke clears every bit of flags.
func Revoke(bits, flags Permission) Permission {
	return bits &^ flags
}

// Has reports whether all required bits are present. A zero requirement is
// always satisfied.
func Has(bits, required Permission) bool {
	return bits&required == required
}

// IsAuthorized is Has with the administrator override applied.
func IsAuthorized(bits, required Permission) bool {
	return Has(bits, PermAdministrator) || Has(bits, required)
}

// Names lists the capability names set in p, lowest bit first.
func (p Permission) Names() []string {
	names := make([]string, 0, len(permissionNames))
	for _, pn := range permissionNames {
		if p&pn.bit != 0 {
			names = append(names, pn.name)
		}
	}
	return names
}

// UserFlag is the profile status bitfield.
type UserFlag uint32

const (
	FlagViewer UserFlag = 1 << iota
	FlagModerator
	FlagHost
	_
	_
	FlagBot
)

// DefaultFlags is the status of a freshly provisioned profile.
const DefaultFlags = FlagViewer

// Has reports whether every bit in f is set.
func (u UserFlag) Has(f UserFlag) bool {
	return u&f == f
}

// AsHost swaps the viewer bit for the host bit, keeping any other status.
func (u UserFlag) AsHost() UserFlag {
	return (u &^ FlagViewer) | FlagHost
}

// AsViewer reverts a host back to a viewer.
func (u UserFlag) AsViewer() UserFlag {
	return (u &^ FlagHost) | FlagViewer
}
