package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/adamavenir/streamsync/internal/types"
)

// Envelope is one socket frame.
type Envelope struct {
	Type    types.EventKind `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodeEnvelope parses a socket frame. Frames without a type are rejected.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing type")
	}
	return env, nil
}

// EncodeEnvelope wraps payload in a frame.
func EncodeEnvelope(kind types.EventKind, payload any) ([]byte, error) {
	var body json.RawMessage
	switch p := payload.(type) {
	case nil:
	case json.RawMessage:
		body = p
	case []byte:
		body = p
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		body = data
	}
	return json.Marshal(Envelope{Type: kind, Payload: body})
}

// DecodeEvent normalizes the payload of an inbound event.
func DecodeEvent(kind types.EventKind, payload []byte) (types.Event, error) {
	ev := types.Event{Kind: kind}
	f, err := parseObject(payload)
	if err != nil {
		return ev, fmt.Errorf("decode %s: %w", kind, err)
	}
	ev.ConversationID = f.str("conversation_id", "conversationId", "channel_id", "channelId")

	switch kind {
	case types.EventMessageCreated:
		msg, err := nestedMessage(f)
		if err != nil {
			return ev, fmt.Errorf("decode %s: %w", kind, err)
		}
		ev.Message = &msg
		ev.MessageID = msg.ID
		if ev.ConversationID == "" {
			ev.ConversationID = msg.ConversationID
		}
		if msg.ConversationID == "" {
			msg.ConversationID = ev.ConversationID
		}

	case types.EventMessageEdited:
		target := f
		if inner, ok := f.first("message"); ok {
			if obj, err := parseObject(inner); err == nil {
				target = obj
			}
		}
		ev.MessageID = target.str("message_id", "messageId", "id", "_id")
		ev.Content = target.str("content", "text", "body")
		if ts, ok := target.timestamp("updated_at", "updatedAt", "edited_at", "editedAt"); ok {
			ev.UpdatedAt = &ts
		}
		if ev.ConversationID == "" {
			ev.ConversationID = target.str("conversation_id", "conversationId", "channel_id")
		}

	case types.EventMessageDeleted, types.EventMessagePinned, types.EventMessageUnpinned:
		ev.MessageID = f.str("message_id", "messageId", "id", "_id")

	case types.EventReactionUpdated:
		ev.MessageID = f.str("message_id", "messageId", "id", "_id")
		if raw, ok := f.first("reactions"); ok {
			ev.Reactions = DecodeReactions(raw)
		}

	case types.EventThreadReplyAdded:
		ev.ParentID = f.str("parent_id", "parentId", "thread_id", "threadId")
		if _, ok := f.first("message", "reply"); ok {
			msg, err := nestedMessage(f)
			if err == nil {
				ev.Message = &msg
				ev.MessageID = msg.ID
				if ev.ParentID == "" {
					ev.ParentID = msg.ParentID
				}
			}
		}
		if ev.ParentID == "" {
			return ev, fmt.Errorf("decode %s: missing parent id", kind)
		}
		if ev.Message != nil && ev.Message.ParentID == "" {
			ev.Message.ParentID = ev.ParentID
		}
		return ev, nil

	default:
		return ev, fmt.Errorf("decode: unknown event %q", kind)
	}

	if ev.MessageID == "" {
		return ev, fmt.Errorf("decode %s: %w", kind, ErrMissingID)
	}
	return ev, nil
}

// nestedMessage reads {"message": {...}} or the payload itself as a message.
func nestedMessage(f fields) (types.Message, error) {
	if inner, ok := f.first("message", "reply"); ok {
		return DecodeMessage(inner)
	}
	return decodeMessageFields(f)
}

// Outbound payloads.

type SendMessage struct {
	ConversationID string             `json:"conversation_id"`
	Content        string             `json:"content"`
	Files          []types.Attachment `json:"files,omitempty"`
	ParentID       string             `json:"parent_id,omitempty"`
}

type EditMessage struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Content        string `json:"content"`
}

// MessageRef addresses one message for delete, pin and unpin.
type MessageRef struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

type ReactMessage struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Emoji          string `json:"emoji"`
}

type Membership struct {
	ConversationID string `json:"conversation_id"`
}

// Echo builds the message-created payload a server would broadcast for send.
// The in-process bus uses it to stand in for a server.
func Echo(send SendMessage, id, senderID, senderName string, at time.Time) types.Message {
	return types.Message{
		ID:             id,
		ConversationID: send.ConversationID,
		SenderID:       senderID,
		SenderName:     senderName,
		Content:        send.Content,
		CreatedAt:      at,
		Files:          send.Files,
		ParentID:       send.ParentID,
	}
}
