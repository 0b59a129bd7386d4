package router

import (
	"sync"
	"testing"
	"time"

	"github.com/adamavenir/streamsync/internal/reconcile"
	"github.com/adamavenir/streamsync/internal/socket"
	"github.com/adamavenir/streamsync/internal/store"
	"github.com/adamavenir/streamsync/internal/types"
)

type testStream struct {
	st      *store.Store
	engine  *reconcile.Engine
	arrived []reconcile.Result
}

func newTestStream(conv string) *testStream {
	st := store.New(conv)
	return &testStream{st: st, engine: reconcile.New(st, "me", nil)}
}

func (s *testStream) ConversationID() string { return s.st.ConversationID() }
func (s *testStream) Store() *store.Store { return s.st }
func (s *testStream) Engine() *reconcile.Engine { return s.engine }
func (s *testStream) Arrived(res reconcile.Result) { s.arrived = append(s.arrived, res) }

type testStreams struct {
	channel *testStream
	thread  *testStream
}

func (s *testStreams) Channel() Stream {
	if s.channel == nil {
		return nil
	}
	return s.channel
}

func (s *testStreams) Thread() Stream {
	if s.thread == nil {
		return nil
	}
	return s.thread
}

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func seed(s *testStream, msgs ...types.Message) {
	for _, m := range msgs {
		s.st.Insert(m)
	}
}

func TestCreatedReconcilesOptimisticEntry(t *testing.T) {
	ch := newTestStream("general")
	seed(ch, types.Message{ID: "temp-1-aaaa", SenderID: "me", Content: "hi", CreatedAt: t0})
	r := New(&testStreams{channel: ch}, nil, nil)

	out := r.HandleRaw(types.EventMessageCreated, []byte(`{"id":42,"conversation_id":"general","sender_id":"me","content":"hi","created_at":"2024-01-01T12:00:01Z"}`))
	if out.Applied != 1 || len(out.Results) != 1 || out.Results[0].Outcome != reconcile.Replaced {
		t.Fatalf("unexpected outcome %+v", out)
	}
	snap := ch.st.Snapshot()
	if snap.Len() != 1 || snap.Messages[0].ID != "42" {
		t.Fatalf("expected only confirmed entry, got %+v", snap.Messages)
	}
	if len(ch.arrived) != 1 {
		t.Fatalf("expected arrival hook, got %d", len(ch.arrived))
	}

	// Redelivery is a no-op.
	out = r.HandleRaw(types.EventMessageCreated, []byte(`{"id":42,"conversation_id":"general","sender_id":"me","content":"hi"}`))
	if out.Applied != 0 || out.Results[0].Outcome != reconcile.Duplicate {
		t.Fatalf("expected duplicate, got %+v", out)
	}
	if ch.st.Snapshot().Len() != 1 || len(ch.arrived) != 1 {
		t.Fatal("expected redelivery to change nothing")
	}
}

func TestCreatedForOtherConversationIsIgnored(t *testing.T) {
	ch := newTestStream("general")
	r := New(&testStreams{channel: ch}, nil, nil)
	out := r.HandleRaw(types.EventMessageCreated, []byte(`{"id":1,"conversation_id":"random","content":"x"}`))
	if out.Applied != 0 || ch.st.Snapshot().Len() != 0 {
		t.Fatalf("expected no leakage, got %+v", out)
	}
}

func TestMutationsApplyToLoadedMessages(t *testing.T) {
	ch := newTestStream("general")
	seed(ch,
		types.Message{ID: "1", SenderID: "u2", Content: "old", CreatedAt: t0},
		types.Message{ID: "2", SenderID: "u2", Content: "keep", CreatedAt: t0.Add(time.Second)},
	)
	r := New(&testStreams{channel: ch}, nil, nil)

	r.HandleRaw(types.EventMessageEdited, []byte(`{"message_id":1,"conversation_id":"general","content":"new","updated_at":"2024-01-01T13:00:00Z"}`))
	got, _ := ch.st.Get("1")
	if got.Content != "new" || !got.Edited() {
		t.Fatalf("expected edit applied, got %+v", got)
	}

	r.HandleRaw(types.EventMessagePinned, []byte(`{"message_id":2}`))
	got, _ = ch.st.Get("2")
	if !got.Pinned {
		t.Fatal("expected pinned")
	}
	r.HandleRaw(types.EventMessageUnpinned, []byte(`{"message_id":2}`))
	got, _ = ch.st.Get("2")
	if got.Pinned {
		t.Fatal("expected unpinned")
	}

	r.HandleRaw(types.EventReactionUpdated, []byte(`{"message_id":2,"reactions":[{"emoji":"👍","users":[{"id":"u3","name":"C"}]}]}`))
	got, _ = ch.st.Get("2")
	if len(got.Reactions) != 1 || got.Reactions[0].Count != 1 {
		t.Fatalf("expected reaction, got %+v", got.Reactions)
	}

	r.HandleRaw(types.EventMessageDeleted, []byte(`{"message_id":1}`))
	r.HandleRaw(types.EventMessageDeleted, []byte(`{"message_id":1}`))
	if ch.st.Has("1") || ch.st.Snapshot().Len() != 1 {
		t.Fatal("expected message 1 removed once")
	}
}

func TestMutationOfUnloadedIDIsNoop(t *testing.T) {
	ch := newTestStream("general")
	seed(ch, types.Message{ID: "1", CreatedAt: t0})
	r := New(&testStreams{channel: ch}, nil, nil)
	before := ch.st.Snapshot().Version

	for _, kind := range []types.EventKind{types.EventMessageEdited, types.EventMessageDeleted, types.EventMessagePinned, types.EventReactionUpdated} {
		out := r.HandleRaw(kind, []byte(`{"message_id":999,"content":"x","reactions":[]}`))
		if out.Applied != 0 || out.Malformed {
			t.Fatalf("%s: expected no-op, got %+v", kind, out)
		}
	}
	if ch.st.Snapshot().Version != before {
		t.Fatal("expected store untouched")
	}
}

func TestMalformedPayloadIsDropped(t *testing.T) {
	ch := newTestStream("general")
	r := New(&testStreams{channel: ch}, nil, nil)
	var seen []Outcome
	r.Observe(func(o Outcome) { seen = append(seen, o) })

	out := r.HandleRaw(types.EventMessageCreated, []byte(`{"content":"no id"}`))
	if !out.Malformed {
		t.Fatal("expected malformed outcome")
	}
	out = r.HandleRaw(types.EventMessageDeleted, []byte(`not json`))
	if !out.Malformed {
		t.Fatal("expected malformed outcome")
	}
	if len(seen) != 2 {
		t.Fatalf("expected observers to see both, got %d", len(seen))
	}
}

func TestThreadReplyDualDispatch(t *testing.T) {
	ch := newTestStream("general")
	seed(ch, types.Message{ID: "7", SenderID: "u2", Content: "parent", CreatedAt: t0, ThreadReplyCount: 1})
	th := newTestStream("7")
	seed(th, types.Message{ID: "temp-9-abcd", SenderID: "me", Content: "reply", CreatedAt: t0.Add(time.Minute), ParentID: "7"})
	r := New(&testStreams{channel: ch, thread: th}, nil, nil)

	payload := []byte(`{"parent_id":"7","conversation_id":"general","message":{"id":70,"sender_id":"me","content":"reply","created_at":"2024-01-01T12:01:00Z"}}`)
	out := r.HandleRaw(types.EventThreadReplyAdded, payload)
	if out.Applied != 2 {
		t.Fatalf("expected channel count and thread insert, got %+v", out)
	}

	parent, _ := ch.st.Get("7")
	if parent.ThreadReplyCount != 2 {
		t.Fatalf("expected reply count 2, got %d", parent.ThreadReplyCount)
	}
	if ch.st.Has("70") {
		t.Fatal("reply must not enter the channel stream")
	}
	snap := th.st.Snapshot()
	if snap.Len() != 1 || snap.Messages[0].ID != "70" {
		t.Fatalf("expected reconciled reply in thread, got %+v", snap.Messages)
	}

	// Redelivery neither double counts nor duplicates.
	r.HandleRaw(types.EventThreadReplyAdded, payload)
	parent, _ = ch.st.Get("7")
	if parent.ThreadReplyCount != 2 || th.st.Snapshot().Len() != 1 {
		t.Fatalf("expected idempotent redelivery, count=%d thread=%d", parent.ThreadReplyCount, th.st.Snapshot().Len())
	}
}

func TestThreadReplyForOtherParentOnlyCounts(t *testing.T) {
	ch := newTestStream("general")
	seed(ch, types.Message{ID: "8", CreatedAt: t0})
	th := newTestStream("7")
	r := New(&testStreams{channel: ch, thread: th}, nil, nil)

	r.HandleRaw(types.EventThreadReplyAdded, []byte(`{"parent_id":"8","message":{"id":80,"content":"r"}}`))
	parent, _ := ch.st.Get("8")
	if parent.ThreadReplyCount != 1 {
		t.Fatalf("expected count 1, got %d", parent.ThreadReplyCount)
	}
	if th.st.Snapshot().Len() != 0 {
		t.Fatal("thread for another parent must stay empty")
	}
}

func TestAttachRoutesBusEvents(t *testing.T) {
	ch := newTestStream("general")
	var mu sync.Mutex
	r := New(&testStreams{channel: ch}, &mu, nil)
	bus := socket.NewBus()
	detach := r.Attach(bus)

	bus.Deliver(types.EventMessageCreated, map[string]any{"id": 5, "conversation_id": "general", "content": "x"})
	if !ch.st.Has("5") {
		t.Fatal("expected routed insert")
	}

	detach()
	bus.Deliver(types.EventMessageCreated, map[string]any{"id": 6, "conversation_id": "general", "content": "y"})
	if ch.st.Has("6") {
		t.Fatal("expected no routing after detach")
	}
}

func TestReplyDedupeSetIsBounded(t *testing.T) {
	ch := newTestStream("general")
	seed(ch, types.Message{ID: "7", CreatedAt: t0})
	r := New(&testStreams{channel: ch}, nil, nil)
	r.countLimit = 3

	for _, id := range []string{"71", "72", "73", "74", "75"} {
		r.Route(types.Event{
			Kind:           types.EventThreadReplyAdded,
			ConversationID: "general",
			ParentID:       "7",
			Message:        &types.Message{ID: id, ParentID: "7", CreatedAt: t0},
		})
	}
	if len(r.counted) != 3 || len(r.countedOrder) != 3 {
		t.Fatalf("dedupe set grew past its limit: %d keys, %d ordered", len(r.counted), len(r.countedOrder))
	}
	if _, ok := r.counted["7/71"]; ok {
		t.Fatal("oldest key should have been evicted")
	}
	parent, _ := ch.st.Get("7")
	if parent.ThreadReplyCount != 5 {
		t.Fatalf("expected count 5, got %d", parent.ThreadReplyCount)
	}

	// Recent keys still dedupe.
	r.Route(types.Event{
		Kind:           types.EventThreadReplyAdded,
		ConversationID: "general",
		ParentID:       "7",
		Message:        &types.Message{ID: "75", ParentID: "7", CreatedAt: t0},
	})
	parent, _ = ch.st.Get("7")
	if parent.ThreadReplyCount != 5 {
		t.Fatalf("redelivered reply counted again: %d", parent.ThreadReplyCount)
	}
}
