package domain

import "time"

type UserID string
type StreamKey string

// Identity is what the identity collaborator yields for an authenticated
// request.
type Identity struct {
	ID    UserID `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

type Profile struct {
	ID          UserID     `json:"discord_id"`
	Permissions Permission `json:"permissions"`
	Flags       UserFlag   `json:"flags"`
	Sanction    Sanction   `json:"sanction"`
	StreamKey   StreamKey  `json:"stream_key,omitempty"`
	Version     int64      `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Sanction holds at most one mute and one ban.
type Sanction struct {
	Mute *MuteSanction `json:"mute,omitempty"`
	Ban  *BanSanction  `json:"ban,omitempty"`
}

type MuteSanction struct {
	SessionID SessionID `json:"stream_id"`
	Issuer    UserID    `json:"issuer"`
	Reason    string    `json:"reason,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
}

type BanSanction struct {
	Issuer   string    `json:"issuer"`
	IssuerID UserID    `json:"issuer_id"`
	Reason   string    `json:"reason,omitempty"`
	IssuedAt time.Time `json:"issued_at"`
}

// NewProfile returns the unprivileged profile created on first sign-in.
func NewProfile(id UserID, now time.Time) *Profile {
	return &Profile{
		ID:          id,
		Permissions: DefaultPermissions,
		Flags:       DefaultFlags,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Authority is the numeric rank used in moderation comparisons.
func (p *Profile) Authority() Permission {
	return p.Permissions
}

func (p *Profile) IsAdministrator() bool {
	return Has(p.Permissions, PermAdministrator)
}

// IsBanned reports the zeroed-bitfield state a ban leaves behind.
func (p *Profile) IsBanned() bool {
	return p.Permissions == 0
}

func (p *Profile) Can(required Permission) bool {
	return IsAuthorized(p.Permissions, required)
}

// Clone returns a deep copy safe to mutate.
func (p *Profile) Clone() *Profile {
	c := *p
	if p.Sanction.Mute != nil {
		m := *p.Sanction.Mute
		c.Sanction.Mute = &m
	}
	if p.Sanction.Ban != nil {
		b := *p.Sanction.Ban
		c.Sanction.Ban = &b
	}
	return &c
}

// Public strips the publish credential before the profile leaves the process.
func (p *Profile) Public() *Profile {
	c := p.Clone()
	c.StreamKey = ""
	return c
}
