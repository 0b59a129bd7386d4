package reads

import (
	"testing"
	"time"

	"github.com/adamavenir/streamsync/internal/readstate"
	"github.com/adamavenir/streamsync/internal/types"
)

func msg(id, sender string) types.Message {
	return types.Message{ID: id, SenderID: sender, CreatedAt: time.Unix(0, 0)}
}

func TestDividerPlacementFromOpenWatermark(t *testing.T) {
	st := readstate.NewMemory()
	st.SetLastRead("c1", 10)

	tr := New(st, "me", nil)
	tr.Begin("c1")
	tr.Loaded([]types.Message{
		msg("9", "other"),
		msg("10", "other"),
		msg("11", "other"),
		msg("12", "me"),
	})

	if got := tr.DividerID(); got != "11" {
		t.Fatalf("expected divider 11, got %q", got)
	}
	if mark, ok := tr.OpenMark(); !ok || mark != 10 {
		t.Fatalf("expected open mark 10, got %d ok=%v", mark, ok)
	}
}

func TestDividerIgnoresTransientIDs(t *testing.T) {
	st := readstate.NewMemory()
	st.SetLastRead("c1", 10)

	tr := New(st, "me", nil)
	tr.Begin("c1")
	tr.Loaded([]types.Message{msg("10", "other"), msg("temp-1-abc", "me")})
	if got := tr.DividerID(); got != "" {
		t.Fatalf("expected no divider, got %q", got)
	}
}

func TestNoWatermarkAtOpenMarksLoadedRead(t *testing.T) {
	st := readstate.NewMemory()
	tr := New(st, "me", nil)
	tr.Begin("c1")
	tr.Loaded([]types.Message{msg("3", "other"), msg("7", "other")})

	if got := tr.DividerID(); got != "" {
		t.Fatalf("expected no divider, got %q", got)
	}
	if id, ok := tr.LastRead(); !ok || id != 7 {
		t.Fatalf("expected watermark 7, got %d ok=%v", id, ok)
	}
}

func TestArrivalWhileAnchoredAdvancesWatermark(t *testing.T) {
	st := readstate.NewMemory()
	st.SetLastRead("c1", 10)
	tr := New(st, "me", nil)
	tr.Begin("c1")
	tr.Loaded([]types.Message{msg("10", "other")})
	tr.SetAnchored(true, nil)

	tr.Arrived(msg("11", "other"))

	if tr.Unread() != 0 {
		t.Fatalf("expected no unread, got %d", tr.Unread())
	}
	if id, _ := tr.LastRead(); id != 11 {
		t.Fatalf("expected watermark 11, got %d", id)
	}
	if tr.DividerID() != "" {
		t.Fatalf("expected no divider, got %q", tr.DividerID())
	}
}

func TestArrivalWhileScrolledUpCountsUnread(t *testing.T) {
	st := readstate.NewMemory()
	st.SetLastRead("c1", 10)
	tr := New(st, "me", nil)
	tr.Begin("c1")
	tr.Loaded([]types.Message{msg("10", "other")})

	tr.Arrived(msg("11", "other"))
	tr.Arrived(msg("12", "other"))

	if tr.Unread() != 2 {
		t.Fatalf("expected 2 unread, got %d", tr.Unread())
	}
	if n, _ := st.UnreadCount("c1"); n != 2 {
		t.Fatalf("expected persisted 2, got %d", n)
	}
	if got := tr.DividerID(); got != "11" {
		t.Fatalf("expected first unread to win, got %q", got)
	}
	if id, _ := tr.LastRead(); id != 10 {
		t.Fatalf("expected watermark untouched, got %d", id)
	}
}

func TestSelfArrivalAdvancesWithoutUnread(t *testing.T) {
	st := readstate.NewMemory()
	st.SetLastRead("c1", 10)
	tr := New(st, "me", nil)
	tr.Begin("c1")
	tr.Loaded(nil)

	tr.Arrived(msg("15", "me"))
	if tr.Unread() != 0 {
		t.Fatalf("expected no unread, got %d", tr.Unread())
	}
	if id, _ := tr.LastRead(); id != 15 {
		t.Fatalf("expected watermark 15, got %d", id)
	}
	if tr.DividerID() != "" {
		t.Fatalf("expected no divider, got %q", tr.DividerID())
	}
}

func TestArrivalWithTransientIDIsIgnored(t *testing.T) {
	st := readstate.NewMemory()
	st.SetLastRead("c1", 10)
	tr := New(st, "me", nil)
	tr.Begin("c1")
	tr.Arrived(msg("temp-1-x", "other"))
	if tr.Unread() != 0 || tr.DividerID() != "" {
		t.Fatalf("expected transient arrival ignored, unread=%d divider=%q", tr.Unread(), tr.DividerID())
	}
}

func TestScrollToBottomClearsUnreadAndKeepsDivider(t *testing.T) {
	st := readstate.NewMemory()
	st.SetLastRead("c1", 10)
	tr := New(st, "me", nil)
	tr.Begin("c1")
	stream := []types.Message{msg("10", "other"), msg("11", "other"), msg("12", "other")}
	tr.Loaded(stream[:1])
	tr.Arrived(stream[1])
	tr.Arrived(stream[2])

	if !tr.SetAnchored(true, stream) {
		t.Fatal("expected transition to clear unread")
	}
	if tr.Unread() != 0 {
		t.Fatalf("expected unread cleared, got %d", tr.Unread())
	}
	if n, _ := st.UnreadCount("c1"); n != 0 {
		t.Fatalf("expected persisted unread cleared, got %d", n)
	}
	if id, _ := tr.LastRead(); id != 12 {
		t.Fatalf("expected watermark 12, got %d", id)
	}
	if tr.DividerID() != "11" {
		t.Fatalf("expected divider to stay, got %q", tr.DividerID())
	}

	// Staying anchored is not a transition.
	if tr.SetAnchored(true, stream) {
		t.Fatal("expected no second clear")
	}
}

func TestWatermarkNeverMovesBackwards(t *testing.T) {
	st := readstate.NewMemory()
	st.SetLastRead("c1", 50)
	tr := New(st, "me", nil)
	tr.Begin("c1")
	tr.SetAnchored(true, nil)
	tr.Arrived(msg("20", "other"))

	if id, _ := tr.LastRead(); id != 50 {
		t.Fatalf("expected watermark to stay 50, got %d", id)
	}
}

func TestPersistedUnreadSurvivesReopen(t *testing.T) {
	st := readstate.NewMemory()
	st.SetLastRead("c1", 10)
	tr := New(st, "me", nil)
	tr.Begin("c1")
	tr.Arrived(msg("11", "other"))
	tr.End()

	tr.Begin("c1")
	if tr.Unread() != 1 {
		t.Fatalf("expected unread 1 after reopen, got %d", tr.Unread())
	}
	if tr.DividerID() != "" {
		t.Fatalf("expected divider reset on reopen, got %q", tr.DividerID())
	}
	tr.Loaded([]types.Message{msg("10", "other"), msg("11", "other")})
	if tr.DividerID() != "11" {
		t.Fatalf("expected divider 11 on reopen, got %q", tr.DividerID())
	}
}

func TestLaterPagesDoNotMoveDivider(t *testing.T) {
	st := readstate.NewMemory()
	st.SetLastRead("c1", 10)
	tr := New(st, "me", nil)
	tr.Begin("c1")
	tr.Loaded([]types.Message{msg("12", "other")})
	tr.Loaded([]types.Message{msg("11", "other")})
	if tr.DividerID() != "12" {
		t.Fatalf("expected divider 12, got %q", tr.DividerID())
	}
}

func TestLoadedPageOverridesDividerFromEarlyArrival(t *testing.T) {
	st := readstate.NewMemory()
	st.SetLastRead("c1", 10)

	tr := New(st, "me", nil)
	tr.Begin("c1")
	// A live message lands before the first page does.
	tr.Arrived(msg("13", "other"))
	if got := tr.DividerID(); got != "13" {
		t.Fatalf("expected provisional divider 13, got %q", got)
	}

	tr.Loaded([]types.Message{
		msg("9", "other"),
		msg("10", "other"),
		msg("11", "other"),
		msg("12", "me"),
	})
	if got := tr.DividerID(); got != "11" {
		t.Fatalf("expected divider 11, got %q", got)
	}
	if tr.Unread() != 1 {
		t.Fatalf("expected unread 1, got %d", tr.Unread())
	}
}

func TestEarlyArrivalKeepsDividerWhenPageIsRead(t *testing.T) {
	st := readstate.NewMemory()
	st.SetLastRead("c1", 12)

	tr := New(st, "me", nil)
	tr.Begin("c1")
	tr.Arrived(msg("13", "other"))
	tr.Loaded([]types.Message{msg("11", "other"), msg("12", "other")})

	if got := tr.DividerID(); got != "13" {
		t.Fatalf("expected divider 13, got %q", got)
	}
}
