package types

import "time"

// ReactionUser identifies one user behind a reaction.
type ReactionUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Reaction groups every user who reacted with the same emoji.
type Reaction struct {
	Emoji string         `json:"emoji"`
	Count int            `json:"count"`
	Users []ReactionUser `json:"users"`
}

// HasUser reports whether userID is in the reaction's user list.
func (r Reaction) HasUser(userID string) bool {
	for _, u := range r.Users {
		if u.ID == userID {
			return true
		}
	}
	return false
}

// Attachment describes a file attached to a message. The core never looks inside it.
type Attachment struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	URL  string `json:"url,omitempty"`
	Type string `json:"type,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// Forward records where a forwarded message came from.
type Forward struct {
	MessageID      string `json:"message_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	SenderID       string `json:"sender_id,omitempty"`
	SenderName     string `json:"sender_name,omitempty"`
}

// Message is a single entry in a conversation stream.
type Message struct {
	ID               string       `json:"id"`
	ConversationID   string       `json:"conversation_id"`
	SenderID         string       `json:"sender_id"`
	SenderName       string       `json:"sender_name"`
	AvatarRef        string       `json:"avatar_ref,omitempty"`
	Content          string       `json:"content"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        *time.Time   `json:"updated_at,omitempty"`
	Reactions        []Reaction   `json:"reactions"`
	Files            []Attachment `json:"files"`
	Pinned           bool         `json:"pinned"`
	IsForwarded      bool         `json:"is_forwarded"`
	ForwardedFrom    *Forward     `json:"forwarded_from,omitempty"`
	IsSystem         bool         `json:"is_system"`
	ThreadReplyCount int          `json:"thread_reply_count"`
	ParentID         string       `json:"parent_id,omitempty"`
}

// Edited reports whether the message has ever been edited.
func (m Message) Edited() bool {
	return m.UpdatedAt != nil
}

// Clone returns a copy that shares no mutable state with m.
func (m Message) Clone() Message {
	out := m
	if m.UpdatedAt != nil {
		ts := *m.UpdatedAt
		out.UpdatedAt = &ts
	}
	if m.Reactions != nil {
		out.Reactions = make([]Reaction, len(m.Reactions))
		for i, r := range m.Reactions {
			out.Reactions[i] = Reaction{Emoji: r.Emoji, Count: r.Count}
			if r.Users != nil {
				out.Reactions[i].Users = append([]ReactionUser(nil), r.Users...)
			}
		}
	}
	if m.Files != nil {
		out.Files = append([]Attachment(nil), m.Files...)
	}
	if m.ForwardedFrom != nil {
		fwd := *m.ForwardedFrom
		out.ForwardedFrom = &fwd
	}
	return out
}

// PageRequest controls a backward page load. An empty cursor asks for the newest page.
type PageRequest struct {
	Cursor string `json:"cursor,omitempty"`
	Limit  int    `json:"limit"`
}

// Page is one page of messages returned by the data-access layer.
// An empty NextCursor means the server has nothing older.
type Page struct {
	Messages   []Message `json:"messages"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// EventKind names an inbound or outbound socket event.
type EventKind string

// Inbound events.
const (
	EventMessageCreated   EventKind = "message-created"
	EventMessageEdited    EventKind = "message-edited"
	EventMessageDeleted   EventKind = "message-deleted"
	EventReactionUpdated  EventKind = "reaction-updated"
	EventMessagePinned    EventKind = "message-pinned"
	EventMessageUnpinned  EventKind = "message-unpinned"
	EventThreadReplyAdded EventKind = "thread-reply-added"
)

// Outbound events.
const (
	EventSendMessage       EventKind = "send-message"
	EventEditMessage       EventKind = "edit-message"
	EventDeleteMessage     EventKind = "delete-message"
	EventReactMessage      EventKind = "react-message"
	EventPinMessage        EventKind = "pin-message"
	EventUnpinMessage      EventKind = "unpin-message"
	EventJoinConversation  EventKind = "join-conversation"
	EventLeaveConversation EventKind = "leave-conversation"
)

// InboundEvents lists every event the core subscribes to.
var InboundEvents = []EventKind{
	EventMessageCreated,
	EventMessageEdited,
	EventMessageDeleted,
	EventReactionUpdated,
	EventMessagePinned,
	EventMessageUnpinned,
	EventThreadReplyAdded,
}

// Event is a decoded inbound event. Only the fields relevant to Kind are set.
type Event struct {
	Kind           EventKind
	ConversationID string
	MessageID      string
	ParentID       string
	Message        *Message
	Content        string
	UpdatedAt      *time.Time
	Reactions      []Reaction
}

// ReadState is the persisted read position for one conversation.
type ReadState struct {
	ConversationID string `json:"conversation_id" msgpack:"conversation_id"`
	LastReadID     int64  `json:"last_read_id" msgpack:"last_read_id"`
	HasLastRead    bool   `json:"has_last_read" msgpack:"has_last_read"`
	UnreadCount    int    `json:"unread_count" msgpack:"unread_count"`
	UpdatedAt      int64  `json:"updated_at" msgpack:"updated_at"`
}
