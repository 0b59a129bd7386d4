package socket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/adamavenir/streamsync/internal/types"
	"github.com/adamavenir/streamsync/internal/wire"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendQueueSize  = 256
)

// ClientOptions tunes a websocket client. Zero values pick defaults.
type ClientOptions struct {
	Token string
	// ReconnectEvery and ReconnectBurst pace reconnect attempts.
	ReconnectEvery time.Duration
	ReconnectBurst int
	Logger         *slog.Logger
	Dialer         *websocket.Dialer
}

// Client is a Transport over a websocket. Frames are JSON envelopes of the
// form {"type": ..., "payload": ...}. It reconnects until Close or until the
// context passed to Run ends.
type Client struct {
	url    string
	opts   ClientOptions
	reg    *registry
	log    *slog.Logger
	pacing *rate.Limiter

	send chan []byte

	mu        sync.Mutex
	conn      *websocket.Conn
	onConnect []func()
	closed    bool
	done      chan struct{}
}

// NewClient prepares a client for url. Nothing connects until Run.
func NewClient(url string, opts ClientOptions) *Client {
	if opts.ReconnectEvery <= 0 {
		opts.ReconnectEvery = 2 * time.Second
	}
	if opts.ReconnectBurst <= 0 {
		opts.ReconnectBurst = 3
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		url:    url,
		opts:   opts,
		reg:    newRegistry(),
		log:    logger,
		pacing: rate.NewLimiter(rate.Every(opts.ReconnectEvery), opts.ReconnectBurst),
		send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
	}
}

func (c *Client) Subscribe(event types.EventKind, h Handler) func() {
	return c.reg.subscribe(event, h)
}

// Emit queues a frame. Frames queued while disconnected go out after the next
// connect.
func (c *Client) Emit(event types.EventKind, payload any) error {
	data, err := wire.EncodeEnvelope(event, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

// OnConnect registers fn to run after every successful (re)connect, before
// inbound frames are read.
func (c *Client) OnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = append(c.onConnect, fn)
}

// Run connects and keeps reconnecting. It returns when ctx ends or Close is
// called.
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := c.pacing.Wait(ctx); err != nil {
			return ctx.Err()
		}
		select {
		case <-c.done:
			return nil
		default:
		}

		err := c.session(ctx)
		select {
		case <-c.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			c.log.Warn("socket disconnected", "url", c.url, "err", err)
		}
	}
}

// Dial connects once, for callers that want the first connect to fail loudly.
func (c *Client) Dial(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	return conn.Close()
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}
	conn, _, err := c.opts.Dialer.DialContext(ctx, c.url, header)
	return conn, err
}

func (c *Client) session(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	conn.SetReadLimit(maxMessageSize)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	hooks := append([]func(){}, c.onConnect...)
	c.mu.Unlock()
	c.log.Debug("socket connected", "url", c.url)

	for _, fn := range hooks {
		fn()
	}

	stop := make(chan struct{})
	writeErr := make(chan error, 1)
	go func() { writeErr <- c.writePump(conn, stop) }()

	readErr := c.readPump(ctx, conn)
	close(stop)
	werr := <-writeErr

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()

	if readErr != nil {
		return readErr
	}
	return werr
}

func (c *Client) readPump(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
		case <-c.done:
		case <-finished:
			return
		}
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || isClosing(ctx, c.done) {
				return nil
			}
			return err
		}
		env, err := wire.DecodeEnvelope(data)
		if err != nil {
			c.log.Debug("socket: dropping frame", "err", err)
			continue
		}
		if c.reg.dispatch(env.Type, env.Payload) == 0 {
			c.log.Debug("socket: no subscribers", "type", env.Type)
		}
	}
}

func (c *Client) writePump(conn *websocket.Conn, stop <-chan struct{}) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return nil
		case data := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				// Keep the frame for the next connection.
				select {
				case c.send <- data:
				default:
				}
				conn.Close()
				return err
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return err
			}
		}
	}
}

func isClosing(ctx context.Context, done <-chan struct{}) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-done:
		return true
	default:
		return false
	}
}

// Close stops the client and closes any open connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		c.log.Debug("socket: close frame", "err", err)
	}
	return nil
}
