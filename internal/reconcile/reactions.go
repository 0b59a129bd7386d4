package reconcile

import "github.com/adamavenir/streamsync/internal/types"

// MergeReactions combines an authoritative inbound reaction set with what is
// known locally. Per emoji the inbound user list wins unless it is empty, in
// which case the local list is kept. Count always equals the user list length
// when users are known; if neither side has users the inbound count stands.
// Emojis absent from inbound are dropped, and zero-count entries never survive.
func MergeReactions(local, inbound []types.Reaction) []types.Reaction {
	localByEmoji := make(map[string]types.Reaction, len(local))
	for _, r := range local {
		localByEmoji[r.Emoji] = r
	}

	merged := make([]types.Reaction, 0, len(inbound))
	seen := make(map[string]bool, len(inbound))
	for _, in := range inbound {
		if in.Emoji == "" || seen[in.Emoji] {
			continue
		}
		seen[in.Emoji] = true

		users := in.Users
		if len(users) == 0 {
			users = localByEmoji[in.Emoji].Users
		}
		count := len(users)
		if count == 0 {
			count = in.Count
		}
		if count <= 0 {
			continue
		}
		merged = append(merged, types.Reaction{
			Emoji: in.Emoji,
			Count: count,
			Users: append([]types.ReactionUser(nil), users...),
		})
	}
	return merged
}

// ToggleReaction adds or removes user from emoji's entry, the way an
// optimistic local click does before the server echoes it back.
func ToggleReaction(reactions []types.Reaction, emoji string, user types.ReactionUser) []types.Reaction {
	out := make([]types.Reaction, 0, len(reactions)+1)
	found := false
	for _, r := range reactions {
		if r.Emoji != emoji {
			out = append(out, r)
			continue
		}
		found = true
		users := make([]types.ReactionUser, 0, len(r.Users)+1)
		removed := false
		for _, u := range r.Users {
			if u.ID == user.ID {
				removed = true
				continue
			}
			users = append(users, u)
		}
		if !removed {
			users = append(users, user)
		}
		if len(users) == 0 {
			continue
		}
		out = append(out, types.Reaction{Emoji: emoji, Count: len(users), Users: users})
	}
	if !found {
		out = append(out, types.Reaction{Emoji: emoji, Count: 1, Users: []types.ReactionUser{user}})
	}
	return out
}

// ApplyReactions merges inbound into the stored message id. Missing ids are ignored.
func (e *Engine) ApplyReactions(messageID string, inbound []types.Reaction) bool {
	return e.store.Mutate(messageID, func(m *types.Message) {
		m.Reactions = MergeReactions(m.Reactions, inbound)
	})
}

// ToggleLocal flips the self user's reaction on messageID.
func (e *Engine) ToggleLocal(messageID, emoji, selfName string) bool {
	user := types.ReactionUser{ID: e.selfID, Name: selfName}
	return e.store.Mutate(messageID, func(m *types.Message) {
		m.Reactions = ToggleReaction(m.Reactions, emoji, user)
	})
}
