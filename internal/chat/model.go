package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adamavenir/streamsync/internal/conversation"
	"github.com/adamavenir/streamsync/internal/core"
	"github.com/adamavenir/streamsync/internal/paging"
	"github.com/adamavenir/streamsync/internal/readstate"
	"github.com/adamavenir/streamsync/internal/reconcile"
	"github.com/adamavenir/streamsync/internal/router"
	"github.com/adamavenir/streamsync/internal/store"
	"github.com/adamavenir/streamsync/internal/types"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Options configure chat.
type Options struct {
	Session        *conversation.Session
	ConversationID string
	// AroundID opens the conversation anchored at that message instead of
	// the newest page.
	AroundID        string
	SelfID          string
	BottomThreshold int
	// ReadStatePath is watched so counters written by other processes show up.
	ReadStatePath string
	Notify        bool
	Logger        *slog.Logger
}

// Run starts the chat UI and blocks until the user quits.
func Run(ctx context.Context, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := NewModel(ctx, opts)
	fmt.Printf("\033]0;%s\007", "streamsync · "+opts.ConversationID)

	view := opts.Session.Channel()
	stopObserve := view.Observe(func(store.Snapshot) { model.pump.offer(snapshotMsg{}) })
	defer stopObserve()
	opts.Session.Router().Observe(func(out router.Outcome) {
		for _, msg := range channelArrivals(out, opts.ConversationID, opts.SelfID) {
			model.pump.offer(arrivalMsg{message: msg})
		}
	})

	if opts.ReadStatePath != "" {
		w := readstate.NewWatcher(opts.ReadStatePath, readstate.DefaultWatchDebounce, func() {
			model.pump.offer(readStateMsg{})
		}, model.log)
		if err := w.Start(ctx); err != nil {
			model.log.Warn("read state watcher disabled", "err", err)
		} else {
			defer w.Close()
		}
	}

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	go model.pump.run(ctx, program)
	_, err := program.Run()
	return err
}

// pump hands messages from sync callbacks to the program without blocking
// the callback. Snapshots are coalesced; the model always renders the latest.
type pump struct {
	ch chan tea.Msg
}

func newPump() *pump {
	return &pump{ch: make(chan tea.Msg, 256)}
}

func (p *pump) offer(msg tea.Msg) {
	select {
	case p.ch <- msg:
	default:
	}
}

func (p *pump) run(ctx context.Context, program *tea.Program) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-p.ch:
			program.Send(msg)
		}
	}
}

// channelArrivals picks the messages from other senders that out inserted
// into the channel stream. Thread replies belong to the thread panel.
func channelArrivals(out router.Outcome, conv, selfID string) []types.Message {
	if out.Event.Kind != types.EventMessageCreated {
		return nil
	}
	var arrived []types.Message
	for _, res := range out.Results {
		msg := res.Message
		if res.Outcome != reconcile.Inserted || msg.ParentID != "" || msg.SenderID == selfID {
			continue
		}
		if msg.ConversationID != "" && msg.ConversationID != conv {
			continue
		}
		arrived = append(arrived, msg)
	}
	return arrived
}

type snapshotMsg struct{}

type arrivalMsg struct {
	message types.Message
}

type readStateMsg struct{}

// pageLoadedMsg reports the end of a fetch started by the model.
type pageLoadedMsg struct {
	kind paging.Kind
	err  error
}

type actionDoneMsg struct {
	what string
	err  error
}

// Model implements the chat UI over one channel view.
type Model struct {
	ctx     context.Context
	session *conversation.Session
	view    *conversation.View
	log     *slog.Logger
	pump    *pump

	conversationID  string
	aroundID        string
	selfID          string
	bottomThreshold int
	notify          bool

	viewport viewport.Model
	input    textarea.Model
	width    int
	height   int
	status   string
	colorMap map[string]lipgloss.Color

	renderedVersion uint64
	firstID         string
	anchored        bool
	loadingOlder    bool
	awaitingPrepend bool
	// newMessageAuthors lists senders of messages that arrived while the
	// viewport was scrolled up.
	newMessageAuthors []string
	now               func() time.Time
}

// NewModel builds a model for opts.Session's channel view. The conversation is
// opened by Init.
func NewModel(ctx context.Context, opts Options) *Model {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	threshold := opts.BottomThreshold
	if threshold <= 0 {
		threshold = core.DefaultBottomThreshold
	}
	return &Model{
		ctx:             ctx,
		session:         opts.Session,
		view:            opts.Session.Channel(),
		log:             logger,
		pump:            newPump(),
		conversationID:  opts.ConversationID,
		aroundID:        opts.AroundID,
		selfID:          opts.SelfID,
		bottomThreshold: threshold,
		notify:          opts.Notify,
		viewport:        viewport.New(0, 0),
		input:           newInputModel(),
		colorMap:        make(map[string]lipgloss.Color),
		anchored:        true,
		status:          "loading " + opts.ConversationID + "…",
		now:             time.Now,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.openCmd())
}

func (m *Model) openCmd() tea.Cmd {
	ctx, session := m.ctx, m.session
	conv, around := m.conversationID, m.aroundID
	return func() tea.Msg {
		kind := paging.KindInitial
		var err error
		if around != "" {
			kind = paging.KindJump
			err = session.OpenAround(ctx, conv, around)
		} else {
			err = session.Open(ctx, conv)
		}
		return pageLoadedMsg{kind: kind, err: err}
	}
}

func (m *Model) loadOlderCmd() tea.Cmd {
	ctx, view := m.ctx, m.view
	return func() tea.Msg {
		return pageLoadedMsg{kind: paging.KindOlder, err: view.LoadOlder(ctx)}
	}
}

func (m *Model) jumpCmd(targetID string) tea.Cmd {
	ctx, view := m.ctx, m.view
	return func() tea.Msg {
		return pageLoadedMsg{kind: paging.KindJump, err: view.JumpTo(ctx, targetID)}
	}
}
