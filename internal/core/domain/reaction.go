package domain

import (
	"slices"
	"sort"
)

// Reaction is one emoji and the set of users who reacted with it.
type Reaction struct {
	Emoji string   `json:"emoji"`
	Users []UserID `json:"users"`
}

// ToggleReaction adds user to emoji, or removes them if already present.
// The list is kept canonical (emoji ascending, users ascending, no empty
// entries) so toggling the same triple twice restores the input exactly.
func ToggleReaction(reactions []Reaction, emoji string, user UserID) []Reaction {
	out := CloneReactions(reactions)

	i := sort.Search(len(out), func(i int) bool { return out[i].Emoji >= emoji })
	if i == len(out) || out[i].Emoji != emoji {
		out = slices.Insert(out, i, Reaction{Emoji: emoji, Users: []UserID{user}})
		return out
	}

	users := out[i].Users
	j := sort.Search(len(users), func(j int) bool { return users[j] >= user })
	if j < len(users) && users[j] == user {
		users = slices.Delete(users, j, j+1)
	} else {
		users = slices.Insert(users, j, user)
	}

	if len(users) == 0 {
		return slices.Delete(out, i, i+1)
	}
	out[i].Users = users
	return out
}

// HasReacted reports whether user is in the set for emoji.
func HasReacted(reactions []Reaction, emoji string, user UserID) bool {
	for _, r := range reactions {
		if r.Emoji == emoji {
			return slices.Contains(r.Users, user)
		}
	}
	return false
}

// NormalizeReactions brings an arbitrary list into canonical form, merging
// duplicate emoji and dropping duplicate users.
func NormalizeReactions(reactions []Reaction) []Reaction {
	merged := make(map[string]map[UserID]struct{})
	for _, r := range reactions {
		if r.Emoji == "" {
			continue
		}
		set, ok := merged[r.Emoji]
		if !ok {
			set = make(map[UserID]struct{})
			merged[r.Emoji] = set
		}
		for _, u := range r.Users {
			set[u] = struct{}{}
		}
	}

	out := make([]Reaction, 0, len(merged))
	for emoji, set := range merged {
		if len(set) == 0 {
			continue
		}
		users := make([]UserID, 0, len(set))
		for u := range set {
			users = append(users, u)
		}
		slices.Sort(users)
		out = append(out, Reaction{Emoji: emoji, Users: users})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Emoji < out[j].Emoji })
	return out
}

func CloneReactions(reactions []Reaction) []Reaction {
	if reactions == nil {
		return nil
	}
	out := make([]Reaction, len(reactions))
	for i, r := range reactions {
		out[i] = Reaction{Emoji: r.Emoji, Users: slices.Clone(r.Users)}
	}
	return out
}
