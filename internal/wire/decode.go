// Package wire turns loosely shaped server payloads into the canonical
// message and event types. Nested fields that fail to parse decode as empty.
package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adamavenir/streamsync/internal/types"
)

// ErrMissingID is returned when a payload carries no usable message id.
var ErrMissingID = errors.New("payload has no message id")

type fields map[string]json.RawMessage

func parseObject(raw []byte) (fields, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, fmt.Errorf("expected JSON object")
	}
	var f fields
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	return f, nil
}

// first returns the first alias present with a non-null value.
func (f fields) first(keys ...string) (json.RawMessage, bool) {
	for _, key := range keys {
		v, ok := f[key]
		if !ok || isNull(v) {
			continue
		}
		return v, true
	}
	return nil, false
}

func (f fields) str(keys ...string) string {
	raw, ok := f.first(keys...)
	if !ok {
		return ""
	}
	return scalarString(raw)
}

func (f fields) boolean(keys ...string) bool {
	raw, ok := f.first(keys...)
	if !ok {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	switch strings.ToLower(scalarString(raw)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func (f fields) integer(keys ...string) int {
	raw, ok := f.first(keys...)
	if !ok {
		return 0
	}
	n, err := strconv.ParseFloat(scalarString(raw), 64)
	if err != nil || n < 0 {
		return 0
	}
	return int(n)
}

func (f fields) timestamp(keys ...string) (time.Time, bool) {
	raw, ok := f.first(keys...)
	if !ok {
		return time.Time{}, false
	}
	return parseTime(raw)
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// scalarString renders a JSON string or number as text. Anything else is "".
func scalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	if bytes.Equal(raw, []byte("true")) || bytes.Equal(raw, []byte("false")) {
		return string(raw)
	}
	return ""
}

func parseTime(raw json.RawMessage) (time.Time, bool) {
	s := scalarString(raw)
	if s == "" {
		return time.Time{}, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		// Seconds never reach 1e11 for realistic dates; millis always do.
		if n < 100_000_000_000 {
			return time.Unix(n, 0).UTC(), true
		}
		return time.UnixMilli(n).UTC(), true
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

// unwrapString handles legacy fields that hold a JSON document encoded as a string.
func unwrapString(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return trimmed
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return nil
	}
	return json.RawMessage(strings.TrimSpace(s))
}

// DecodeMessage normalizes one message object.
func DecodeMessage(raw []byte) (types.Message, error) {
	f, err := parseObject(raw)
	if err != nil {
		return types.Message{}, fmt.Errorf("decode message: %w", err)
	}
	return decodeMessageFields(f)
}

func decodeMessageFields(f fields) (types.Message, error) {
	msg := types.Message{
		ID:               f.str("id", "_id", "message_id", "messageId"),
		ConversationID:   f.str("conversation_id", "conversationId", "channel_id", "channelId"),
		SenderID:         f.str("sender_id", "senderId", "user_id", "userId"),
		SenderName:       f.str("sender_name", "senderName", "user_name", "userName", "username"),
		AvatarRef:        f.str("avatar_ref", "avatarRef", "avatar"),
		Content:          f.str("content", "text", "body"),
		Pinned:           f.boolean("pinned", "is_pinned", "isPinned"),
		IsForwarded:      f.boolean("is_forwarded", "isForwarded"),
		IsSystem:         f.boolean("is_system", "isSystem"),
		ThreadReplyCount: f.integer("thread_reply_count", "threadReplyCount", "reply_count", "replyCount"),
		ParentID:         f.str("parent_id", "parentId", "thread_id", "threadId"),
	}
	if msg.ID == "" {
		return types.Message{}, ErrMissingID
	}
	if raw, ok := f.first("sender", "user"); ok {
		if sender, err := parseObject(raw); err == nil {
			if msg.SenderID == "" {
				msg.SenderID = sender.str("id", "_id")
			}
			if msg.SenderName == "" {
				msg.SenderName = sender.str("name", "username", "display_name")
			}
			if msg.AvatarRef == "" {
				msg.AvatarRef = sender.str("avatar", "avatar_ref", "avatarRef")
			}
		}
	}
	if f.str("type") == "system" {
		msg.IsSystem = true
	}
	if ts, ok := f.timestamp("created_at", "createdAt", "timestamp"); ok {
		msg.CreatedAt = ts
	}
	if ts, ok := f.timestamp("updated_at", "updatedAt", "edited_at", "editedAt"); ok {
		msg.UpdatedAt = &ts
	}
	if raw, ok := f.first("reactions"); ok {
		msg.Reactions = DecodeReactions(raw)
	}
	if raw, ok := f.first("files", "attachments"); ok {
		msg.Files = decodeFiles(raw)
	}
	if raw, ok := f.first("forwarded_from", "forwardedFrom"); ok {
		msg.ForwardedFrom = decodeForward(raw)
		if msg.ForwardedFrom != nil {
			msg.IsForwarded = true
		}
	}
	return msg, nil
}

// DecodeMessages normalizes a list, dropping entries that cannot be decoded.
// The number of dropped entries is returned alongside.
func DecodeMessages(raw []byte) ([]types.Message, int) {
	var items []json.RawMessage
	if err := json.Unmarshal(unwrapString(raw), &items); err != nil {
		return nil, 0
	}
	out := make([]types.Message, 0, len(items))
	dropped := 0
	for _, item := range items {
		msg, err := DecodeMessage(item)
		if err != nil {
			dropped++
			continue
		}
		out = append(out, msg)
	}
	return out, dropped
}

// DecodeReactions accepts a reaction array or a string holding one.
func DecodeReactions(raw []byte) []types.Reaction {
	var items []json.RawMessage
	if err := json.Unmarshal(unwrapString(raw), &items); err != nil {
		return nil
	}
	out := make([]types.Reaction, 0, len(items))
	for _, item := range items {
		f, err := parseObject(item)
		if err != nil {
			continue
		}
		r := types.Reaction{Emoji: f.str("emoji", "reaction", "name")}
		if r.Emoji == "" {
			continue
		}
		if usersRaw, ok := f.first("users"); ok {
			r.Users = decodeUsers(usersRaw)
		}
		r.Count = f.integer("count")
		if len(r.Users) > 0 || r.Count == 0 {
			r.Count = len(r.Users)
		}
		out = append(out, r)
	}
	return out
}

func decodeUsers(raw json.RawMessage) []types.ReactionUser {
	var items []json.RawMessage
	if err := json.Unmarshal(unwrapString(raw), &items); err != nil {
		return nil
	}
	users := make([]types.ReactionUser, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		var u types.ReactionUser
		if f, err := parseObject(item); err == nil {
			u.ID = f.str("id", "_id", "user_id", "userId")
			u.Name = f.str("name", "username", "user_name")
		} else {
			// Bare ids.
			u.ID = scalarString(item)
		}
		if u.ID == "" || seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		users = append(users, u)
	}
	return users
}

func decodeFiles(raw json.RawMessage) []types.Attachment {
	var items []json.RawMessage
	if err := json.Unmarshal(unwrapString(raw), &items); err != nil {
		return nil
	}
	files := make([]types.Attachment, 0, len(items))
	for _, item := range items {
		f, err := parseObject(item)
		if err != nil {
			continue
		}
		files = append(files, types.Attachment{
			ID:   f.str("id", "_id"),
			Name: f.str("name", "filename", "original_name"),
			URL:  f.str("url", "path"),
			Type: f.str("type", "mime_type", "mimetype"),
			Size: int64(f.integer("size")),
		})
	}
	return files
}

func decodeForward(raw json.RawMessage) *types.Forward {
	f, err := parseObject(unwrapString(raw))
	if err != nil {
		return nil
	}
	fwd := &types.Forward{
		MessageID:      f.str("message_id", "messageId", "id"),
		ConversationID: f.str("conversation_id", "conversationId", "channel_id"),
		SenderID:       f.str("sender_id", "senderId", "user_id"),
		SenderName:     f.str("sender_name", "senderName", "user_name"),
	}
	if *fwd == (types.Forward{}) {
		return nil
	}
	return fwd
}
