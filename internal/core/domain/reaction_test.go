package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToggleReaction(t *testing.T) {
	var reactions []Reaction

	reactions = ToggleReaction(reactions, "🔥", "bob")
	reactions = ToggleReaction(reactions, "👍", "carol")
	reactions = ToggleReaction(reactions, "🔥", "alice")

	require.Len(t, reactions, 2)
	assert.True(t, HasReacted(reactions, "🔥", "alice"))
	assert.True(t, HasReacted(reactions, "🔥", "bob"))
	assert.False(t, HasReacted(reactions, "👍", "alice"))

	for _, r := range reactions {
		if r.Emoji == "🔥" {
			assert.Equal(t, []UserID{"alice", "bob"}, r.Users)
		}
	}
}

func TestToggleReaction_TwiceRestoresInput(t *testing.T) {
	before := []Reaction{
		{Emoji: "a", Users: []UserID{"u1", "u3"}},
		{Emoji: "b", Users: []UserID{"u2"}},
	}

	for _, tc := range []struct {
		emoji string
		user  UserID
	}{
		{"a", "u1"},
		{"a", "u2"},
		{"b", "u2"},
		{"c", "u9"},
	} {
		after := ToggleReaction(ToggleReaction(before, tc.emoji, tc.user), tc.emoji, tc.user)
		assert.Equal(t, before, after, "%s/%s", tc.emoji, tc.user)
	}
}

func TestToggleReaction_DoesNotMutateInput(t *testing.T) {
	in := []Reaction{{Emoji: "a", Users: []UserID{"u1"}}}
	_ = ToggleReaction(in, "a", "u2")
	assert.Equal(t, []UserID{"u1"}, in[0].Users)
}

func TestToggleReaction_DropsEmptyEntry(t *testing.T) {
	out := ToggleReaction([]Reaction{{Emoji: "a", Users: []UserID{"u1"}}}, "a", "u1")
	assert.Empty(t, out)
}

func TestNormalizeReactions(t *testing.T) {
	out := NormalizeReactions([]Reaction{
		{Emoji: "b", Users: []UserID{"u2", "u1"}},
		{Emoji: "a", Users: []UserID{"u1"}},
		{Emoji: "b", Users: []UserID{"u1"}},
		{Emoji: "", Users: []UserID{"u1"}},
		{Emoji: "c"},
	})

	assert.Equal(t, []Reaction{
		{Emoji: "a", Users: []UserID{"u1"}},
		{Emoji: "b", Users: []UserID{"u1", "u2"}},
	}, out)
}
