package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPermissions(t *testing.T) {
	assert.Equal(t, Permission(3713), DefaultPermissions)
	assert.Equal(t, Permission(1<<13), PermJoinPresence)
	assert.False(t, Has(DefaultPermissions, PermJoinPresence))
}

func TestIsAuthorized(t *testing.T) {
	assert.True(t, IsAuthorized(DefaultPermissions, PermSendMessage|PermReplyMessage))
	assert.False(t, IsAuthorized(DefaultPermissions, PermBanUser))
	assert.True(t, IsAuthorized(PermAdministrator, PermBanUser|PermSendLink))
	assert.True(t, IsAuthorized(0, 0))
	assert.False(t, IsAuthorized(0, PermSendMessage))
}

func TestGrantRevoke(t *testing.T) {
	muted := Revoke(DefaultPermissions, MutedPermissions)
	assert.Equal(t, Permission(0), muted)

	p := Grant(muted, PermSendGIF|PermSendLink)
	assert.True(t, Has(p, PermSendGIF))
	assert.True(t, Has(p, PermSendLink))
	assert.False(t, Has(p, PermSendMessage))
}

func TestPermissionNames(t *testing.T) {
	assert.Equal(t, []string{"send_message", "ban_user"}, (PermSendMessage | PermBanUser).Names())
	assert.Empty(t, Permission(0).Names())
}

func TestUserFlags(t *testing.T) {
	f := DefaultFlags | FlagModerator
	host := f.AsHost()
	assert.True(t, host.Has(FlagHost))
	assert.True(t, host.Has(FlagModerator))
	assert.False(t, host.Has(FlagViewer))

	assert.Equal(t, f, host.AsViewer())
}

func TestProfilePublic(t *testing.T) {
	p := &Profile{
		ID:          "u1",
		Permissions: DefaultPermissions,
		StreamKey:   "secret",
		Sanction:    Sanction{Ban: &BanSanction{Reason: "spam"}},
	}
	pub := p.Public()

	assert.Empty(t, pub.StreamKey)
	assert.Equal(t, StreamKey("secret"), p.StreamKey)

	pub.Sanction.Ban.Reason = "changed"
	assert.Equal(t, "spam", p.Sanction.Ban.Reason)
}

func TestProfileBanned(t *testing.T) {
	p := NewProfile("u1", timeZero)
	assert.False(t, p.IsBanned())
	p.Permissions = 0
	assert.True(t, p.IsBanned())
}
