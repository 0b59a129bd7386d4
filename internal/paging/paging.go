// Package paging tracks backward, cursor-based page loads for one conversation.
//
// The controller owns only state. Callers ask it for a Ticket before issuing a
// fetch and hand the ticket back with the result; tickets issued before a
// conversation switch are rejected so late responses cannot leak across.
package paging

import (
	"sync"

	"github.com/adamavenir/streamsync/internal/types"
)

// State is the pagination phase.
type State int

const (
	Idle State = iota
	LoadingInitial
	LoadingOlder
	Exhausted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case LoadingInitial:
		return "loading-initial"
	case LoadingOlder:
		return "loading-older"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Kind identifies what a ticket loads.
type Kind int

const (
	KindInitial Kind = iota
	KindOlder
	KindJump
)

func (k Kind) String() string {
	switch k {
	case KindInitial:
		return "initial"
	case KindOlder:
		return "older"
	case KindJump:
		return "jump"
	default:
		return "unknown"
	}
}

// Ticket authorizes one fetch.
type Ticket struct {
	ConversationID string
	Generation     uint64
	Kind           Kind
	Cursor         string
	TargetID       string
	Limit          int
	prev           State
}

// Cursor is the position of the oldest loaded page.
type Cursor struct {
	OldestLoadedID string
	HasMoreOlder   bool
}

// Controller is the pagination state machine for the active conversation.
type Controller struct {
	mu             sync.Mutex
	state          State
	conversationID string
	generation     uint64
	cursor         Cursor
	pageSize       int
	jumpPageSize   int
}

// New creates a controller with the given page sizes.
func New(pageSize, jumpPageSize int) *Controller {
	if pageSize <= 0 {
		pageSize = 16
	}
	if jumpPageSize <= 0 {
		jumpPageSize = 30
	}
	return &Controller{pageSize: pageSize, jumpPageSize: jumpPageSize}
}

// State returns the current phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Cursor returns the current cursor state.
func (c *Controller) Cursor() Cursor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// ConversationID returns the conversation the controller is tracking.
func (c *Controller) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

// Observing reports whether the top-of-view sentinel should still be watched.
func (c *Controller) Observing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != Exhausted && c.cursor.HasMoreOlder
}

// Reset moves to Idle for conversationID and invalidates every outstanding ticket.
func (c *Controller) Reset(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.conversationID = conversationID
	c.state = Idle
	c.cursor = Cursor{}
}

// BeginInitial starts the first page load. Any in-flight ticket is superseded.
func (c *Controller) BeginInitial() Ticket {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	t := Ticket{
		ConversationID: c.conversationID,
		Generation:     c.generation,
		Kind:           KindInitial,
		Limit:          c.pageSize,
		prev:           Idle,
	}
	c.state = LoadingInitial
	return t
}

// BeginJump starts a load anchored at targetID. The result replaces the stream
// and pagination restarts as if it were an initial load.
func (c *Controller) BeginJump(targetID string) Ticket {
	t := c.BeginInitial()
	c.mu.Lock()
	defer c.mu.Unlock()
	t.Kind = KindJump
	t.TargetID = targetID
	t.Limit = c.jumpPageSize
	return t
}

// BeginOlder starts an older-page load when the sentinel fires. It refuses
// while another load is in flight, once exhausted, or with no cursor.
func (c *Controller) BeginOlder() (Ticket, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle || !c.cursor.HasMoreOlder || c.cursor.OldestLoadedID == "" {
		return Ticket{}, false
	}
	t := Ticket{
		ConversationID: c.conversationID,
		Generation:     c.generation,
		Kind:           KindOlder,
		Cursor:         c.cursor.OldestLoadedID,
		Limit:          c.pageSize,
		prev:           c.state,
	}
	c.state = LoadingOlder
	return t, true
}

// Current reports whether t still belongs to the active conversation and load.
func (c *Controller) Current(t Ticket) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentLocked(t)
}

func (c *Controller) currentLocked(t Ticket) bool {
	return t.Generation == c.generation && t.ConversationID == c.conversationID
}

// Complete records page as the result of t. It returns false, changing
// nothing, when t is stale. An empty page or missing next cursor exhausts.
func (c *Controller) Complete(t Ticket, page types.Page) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(t) {
		return false
	}

	if len(page.Messages) == 0 || page.NextCursor == "" {
		c.cursor.HasMoreOlder = false
		c.state = Exhausted
	} else {
		c.cursor.HasMoreOlder = true
		c.state = Idle
	}
	if page.NextCursor != "" {
		c.cursor.OldestLoadedID = page.NextCursor
	} else if oldest := oldestID(page.Messages); oldest != "" {
		c.cursor.OldestLoadedID = oldest
	} else if t.Kind != KindOlder {
		c.cursor.OldestLoadedID = ""
	}
	return true
}

// Fail reverts a failed load to the phase it started from so the sentinel
// can retry. Stale tickets are ignored.
func (c *Controller) Fail(t Ticket) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(t) {
		return false
	}
	c.state = t.prev
	return true
}

func oldestID(msgs []types.Message) string {
	if len(msgs) == 0 {
		return ""
	}
	oldest := msgs[0]
	for _, m := range msgs[1:] {
		if m.CreatedAt.Before(oldest.CreatedAt) {
			oldest = m
		}
	}
	return oldest.ID
}
