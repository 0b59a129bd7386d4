package chat

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/adamavenir/streamsync/internal/conversation"
	"github.com/adamavenir/streamsync/internal/readstate"
	"github.com/adamavenir/streamsync/internal/router"
	"github.com/adamavenir/streamsync/internal/socket"
	"github.com/adamavenir/streamsync/internal/types"
	tea "github.com/charmbracelet/bubbletea"
)

type pageFetcher struct {
	pages map[string]types.Page
}

func (f pageFetcher) FetchPage(_ context.Context, conv string, req types.PageRequest) (types.Page, error) {
	return f.pages[conv+"|"+req.Cursor], nil
}

func (f pageFetcher) FetchAround(_ context.Context, conv, target string, _ int) (types.Page, error) {
	return f.pages[conv+"|around:"+target], nil
}

func testMessages(conv string, from, to int) []types.Message {
	var out []types.Message
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for id := from; id <= to; id++ {
		out = append(out, types.Message{
			ID:             strconv.Itoa(id),
			ConversationID: conv,
			SenderID:       "u2",
			SenderName:     "sam",
			Content:        "message " + strconv.Itoa(id),
			CreatedAt:      base.Add(time.Duration(id) * time.Minute),
		})
	}
	return out
}

func newTestModel(t *testing.T, rs readstate.Store) (*Model, *socket.Bus) {
	t.Helper()
	fetcher := pageFetcher{pages: map[string]types.Page{
		"C|":   {Messages: testMessages("C", 20, 29), NextCursor: "20"},
		"C|20": {Messages: testMessages("C", 10, 19)},
	}}
	bus := socket.NewBus()
	sess, err := conversation.NewSession(conversation.Options{
		SelfID:    "u1",
		SelfName:  "me",
		Fetcher:   fetcher,
		Transport: bus,
		ReadState: rs,
	})
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	t.Cleanup(sess.Close)

	m := NewModel(context.Background(), Options{Session: sess, ConversationID: "C", SelfID: "u1"})
	m.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	m.Update(tea.WindowSizeMsg{Width: 80, Height: 20})
	m.Update(m.openCmd()())
	return m, bus
}

func TestOpenLandsAtBottom(t *testing.T) {
	m, _ := newTestModel(t, nil)
	if !m.anchored || !m.atBottom() {
		t.Fatalf("expected anchored at bottom, offset=%d", m.viewport.YOffset)
	}
	if m.status != "" {
		t.Fatalf("unexpected status %q", m.status)
	}
}

func TestOlderPageKeepsViewportPosition(t *testing.T) {
	m, _ := newTestModel(t, nil)

	m.viewport.GotoTop()
	before := m.contentHeight()
	cmd := m.afterScroll()
	if cmd == nil {
		t.Fatal("sentinel should request an older page near the top")
	}
	if m.anchored {
		t.Fatal("scrolling to the top should leave the bottom")
	}
	if again := m.afterScroll(); again != nil {
		t.Fatal("sentinel fired twice while a load was in flight")
	}

	m.Update(cmd())

	grown := m.contentHeight() - before
	if grown <= 0 {
		t.Fatalf("content did not grow: before=%d after=%d", before, m.contentHeight())
	}
	if m.viewport.YOffset != grown {
		t.Fatalf("offset = %d, want %d", m.viewport.YOffset, grown)
	}
	if m.loadingOlder || m.awaitingPrepend {
		t.Fatal("load state not cleared")
	}
	if !strings.Contains(m.renderMessages(), "beginning of conversation") {
		t.Fatal("exhausted stream should show its start")
	}
}

func TestLiveArrivalDuringOlderLoadKeepsTopLine(t *testing.T) {
	m, bus := newTestModel(t, nil)

	m.viewport.GotoTop()
	cmd := m.afterScroll()
	if cmd == nil {
		t.Fatal("sentinel should request an older page near the top")
	}

	live := types.Message{
		ID:             "30",
		ConversationID: "C",
		SenderID:       "u2",
		SenderName:     "sam",
		Content:        "one\ntwo\nthree",
		CreatedAt:      time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC),
	}
	if _, err := bus.Deliver(types.EventMessageCreated, live); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	m.Update(snapshotMsg{})
	if m.viewport.YOffset != 0 {
		t.Fatalf("live arrival moved a scrolled-up view to %d", m.viewport.YOffset)
	}
	topBefore := strings.Split(m.viewport.View(), "\n")[0]
	heightBefore := m.contentHeight()

	m.Update(cmd())

	if want := m.contentHeight() - heightBefore; m.viewport.YOffset != want {
		t.Fatalf("offset = %d, want %d", m.viewport.YOffset, want)
	}
	if topAfter := strings.Split(m.viewport.View(), "\n")[0]; topAfter != topBefore {
		t.Fatalf("top line changed from %q to %q", topBefore, topAfter)
	}
}

func TestDividerRenderedBeforeFirstUnread(t *testing.T) {
	rs := readstate.NewMemory()
	if _, err := rs.SetLastRead("C", 25); err != nil {
		t.Fatalf("seed: %v", err)
	}
	m, _ := newTestModel(t, rs)

	out := m.renderMessages()
	divider := strings.Index(out, dividerLabel)
	if divider < 0 {
		t.Fatal("divider missing")
	}
	if read := strings.Index(out, "#25"); read < 0 || read > divider {
		t.Fatalf("#25 should render above the divider")
	}
	if unread := strings.Index(out, "#26"); unread < divider {
		t.Fatalf("#26 should render below the divider")
	}
}

func TestArrivalWhileScrolledUpShowsNotice(t *testing.T) {
	m, _ := newTestModel(t, nil)
	arrival := arrivalMsg{message: types.Message{ID: "30", SenderID: "u3", SenderName: "kim"}}

	m.Update(arrival)
	if len(m.newMessageAuthors) != 0 {
		t.Fatal("anchored view should not collect a notice")
	}

	m.anchored = false
	m.Update(arrival)
	m.Update(arrival)
	if got := m.renderNewMessageNotice(); !strings.Contains(got, "kim") || len(m.newMessageAuthors) != 1 {
		t.Fatalf("notice = %q authors=%v", got, m.newMessageAuthors)
	}

	m.viewport.GotoBottom()
	m.afterScroll()
	if len(m.newMessageAuthors) != 0 {
		t.Fatal("returning to the bottom should clear the notice")
	}
}

func TestSubmitSendsOptimistically(t *testing.T) {
	m, bus := newTestModel(t, nil)
	m.input.SetValue("hello there")
	m.submit()

	snap := m.session.Channel().Snapshot()
	last := snap.Messages[snap.Len()-1]
	if last.Content != "hello there" || last.SenderID != "u1" {
		t.Fatalf("last message = %+v", last)
	}
	kinds := bus.EmittedKinds()
	if kinds[len(kinds)-1] != types.EventSendMessage {
		t.Fatalf("emitted %v", kinds)
	}
	if m.input.Value() != "" {
		t.Fatal("input not cleared")
	}

	m.refreshViewport(true)
	if !strings.Contains(m.renderMessages(), "sending…") {
		t.Fatal("pending message should render as sending")
	}
}

func TestThreadRepliesAreNotChannelArrivals(t *testing.T) {
	m, bus := newTestModel(t, nil)
	if _, err := m.session.OpenThread(context.Background(), "25"); err != nil {
		t.Fatalf("open thread: %v", err)
	}
	var arrived []types.Message
	m.session.Router().Observe(func(out router.Outcome) {
		arrived = append(arrived, channelArrivals(out, "C", "u1")...)
	})

	reply := types.Message{ID: "40", ConversationID: "C", ParentID: "25", SenderID: "u2", SenderName: "sam", Content: "in thread"}
	payload := map[string]any{"conversation_id": "C", "parent_id": "25", "message": reply}
	if _, err := bus.Deliver(types.EventThreadReplyAdded, payload); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(arrived) != 0 {
		t.Fatalf("thread reply reported as channel arrival: %+v", arrived)
	}

	own := types.Message{ID: "41", ConversationID: "C", SenderID: "u1", SenderName: "me", Content: "mine"}
	live := types.Message{ID: "42", ConversationID: "C", SenderID: "u2", SenderName: "sam", Content: "hi"}
	for _, msg := range []types.Message{own, live} {
		if _, err := bus.Deliver(types.EventMessageCreated, msg); err != nil {
			t.Fatalf("deliver: %v", err)
		}
	}
	if len(arrived) != 1 || arrived[0].ID != "42" {
		t.Fatalf("expected only #42 as arrival, got %+v", arrived)
	}
}
