// Package transport owns the gateway WebSocket: one self-reconnecting
// duplex socket per authenticated session. It performs the auth
// handshake, answers server heartbeats and reconnects with exponential
// backoff on unexpected closure. Everything above it sees only decoded
// frames and a connected/disconnected signal.
package transport

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tinyland-inc/huddle/pkg/logger"
	"github.com/tinyland-inc/huddle/pkg/wire"
)

// State is the transport lifecycle state.
type State string

const (
	StateConnecting     State = "connecting"
	StateAuthenticating State = "authenticating"
	StateOpen           State = "open"
	StateClosed         State = "closed"
)

// Options configures a Transport. Zero durations fall back to the
// defaults below.
type Options struct {
	// ServerURL is the HTTP base URL of the backend; the socket URL is
	// derived from it.
	ServerURL string
	Token     string

	ReconnectBase time.Duration
	ReconnectCap  time.Duration
	MaxAttempts   int
	// AuthTimeout bounds the window between socket open and the server's
	// connected frame. When it elapses the socket is torn down and the
	// normal reconnect policy takes over.
	AuthTimeout time.Duration

	// OnFrame receives every inbound frame except connected and ping,
	// which the transport consumes. Called from the read loop, so frames
	// arrive strictly in socket-delivery order.
	OnFrame func(wire.Frame)
	// OnConnected fires once per successful handshake with the
	// server-issued connection id.
	OnConnected func(connectionID string)
	// OnDisconnected fires when an established socket closes.
	OnDisconnected func()
}

const (
	defaultReconnectBase = time.Second
	defaultReconnectCap  = 30 * time.Second
	defaultMaxAttempts   = 10
	defaultAuthTimeout   = 10 * time.Second
)

// Transport is a reconnecting WebSocket client. At most one underlying
// socket is live at a time; a new connect attempt is only scheduled
// after the previous socket's read loop has exited.
type Transport struct {
	opts   Options
	dialer *websocket.Dialer

	mu             sync.Mutex
	writeMu        sync.Mutex
	conn           *websocket.Conn
	state          State
	attempts       int
	connectionID   string
	closed         bool
	authTimer      *time.Timer
	reconnectTimer *time.Timer
}

// New creates a Transport. Call Connect to open the socket.
func New(opts Options) *Transport {
	if opts.ReconnectBase <= 0 {
		opts.ReconnectBase = defaultReconnectBase
	}
	if opts.ReconnectCap <= 0 {
		opts.ReconnectCap = defaultReconnectCap
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = defaultAuthTimeout
	}
	return &Transport{
		opts:   opts,
		dialer: websocket.DefaultDialer,
		state:  StateClosed,
	}
}

// DeriveWSURL translates an HTTP base URL into the gateway socket URL.
func DeriveWSURL(httpBase string) string {
	u := strings.TrimRight(httpBase, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

// BackoffDelay returns the reconnect delay for a 1-indexed attempt:
// min(base * 2^(attempt-1), cap).
func BackoffDelay(attempt int, base, ceiling time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= ceiling {
			return ceiling
		}
	}
	if delay > ceiling {
		return ceiling
	}
	return delay
}

// Connect opens a new socket and starts the auth handshake. It is a
// no-op after Close.
func (t *Transport) Connect() {
	t.mu.Lock()
	if t.closed || t.conn != nil {
		t.mu.Unlock()
		return
	}
	if t.attempts > t.opts.MaxAttempts {
		// explicit revival after give-up; the timer never fires past the
		// cap, so this cannot reset a backoff cycle in progress
		t.attempts = 0
	}
	t.state = StateConnecting
	t.mu.Unlock()

	wsURL := DeriveWSURL(t.opts.ServerURL)
	conn, _, err := t.dialer.Dial(wsURL, nil)
	if err != nil {
		logger.WarnCF("transport", "Dial failed", map[string]any{
			"url":   wsURL,
			"error": err.Error(),
		})
		t.mu.Lock()
		t.state = StateClosed
		t.scheduleReconnectLocked()
		t.mu.Unlock()
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return
	}
	t.conn = conn
	t.state = StateAuthenticating
	t.authTimer = time.AfterFunc(t.opts.AuthTimeout, func() {
		t.mu.Lock()
		stuck := t.conn == conn && t.state == StateAuthenticating
		t.mu.Unlock()
		if stuck {
			logger.WarnC("transport", "Auth handshake timed out")
			conn.Close()
		}
	})
	t.mu.Unlock()

	if err := t.write(conn, wire.Auth(t.opts.Token)); err != nil {
		conn.Close()
	}

	go t.readLoop(conn)
}

// Send serializes v and writes it if the socket is open. It is
// best-effort: frames sent while not open are dropped and false is
// returned. It never queues for later delivery.
func (t *Transport) Send(v any) bool {
	t.mu.Lock()
	conn := t.conn
	open := t.state == StateOpen
	t.mu.Unlock()

	if !open || conn == nil {
		return false
	}
	if err := t.write(conn, v); err != nil {
		logger.DebugCF("transport", "Send failed", map[string]any{"error": err.Error()})
		return false
	}
	return true
}

// Close shuts the transport down intentionally, suppressing any further
// reconnect attempts.
func (t *Transport) Close() {
	t.mu.Lock()
	t.closed = true
	if t.reconnectTimer != nil {
		t.reconnectTimer.Stop()
		t.reconnectTimer = nil
	}
	if t.authTimer != nil {
		t.authTimer.Stop()
		t.authTimer = nil
	}
	conn := t.conn
	t.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// State returns the current lifecycle state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// IsConnected reports whether the handshake has completed.
func (t *Transport) IsConnected() bool {
	return t.State() == StateOpen
}

// ConnectionID returns the server-issued id from the last handshake.
func (t *Transport) ConnectionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connectionID
}

// Attempts returns the current reconnect attempt counter.
func (t *Transport) Attempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}

func (t *Transport) write(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	// gorilla allows one concurrent writer per conn
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (t *Transport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}

		frame, err := wire.Decode(data)
		if err != nil {
			logger.WarnCF("transport", "Dropping malformed frame", map[string]any{"error": err.Error()})
			continue
		}

		switch frame.Type {
		case wire.TypeConnected:
			var payload wire.Connected
			if err := frame.Payload(&payload); err != nil {
				logger.WarnCF("transport", "Bad connected frame", map[string]any{"error": err.Error()})
				continue
			}
			t.mu.Lock()
			if t.authTimer != nil {
				t.authTimer.Stop()
				t.authTimer = nil
			}
			t.state = StateOpen
			t.attempts = 0
			t.connectionID = payload.ConnectionID
			t.mu.Unlock()
			logger.InfoCF("transport", "Connected", map[string]any{"connection_id": payload.ConnectionID})
			if t.opts.OnConnected != nil {
				t.opts.OnConnected(payload.ConnectionID)
			}

		case wire.TypePing:
			// Heartbeat is server-initiated only; the client just answers.
			if err := t.write(conn, wire.Pong()); err != nil {
				logger.DebugCF("transport", "Pong failed", map[string]any{"error": err.Error()})
			}

		default:
			if t.opts.OnFrame != nil {
				t.opts.OnFrame(frame)
			}
		}
	}

	conn.Close()

	t.mu.Lock()
	if t.conn != conn {
		t.mu.Unlock()
		return
	}
	wasOpen := t.state == StateOpen
	t.conn = nil
	t.state = StateClosed
	if t.authTimer != nil {
		t.authTimer.Stop()
		t.authTimer = nil
	}
	intentional := t.closed
	if !intentional {
		t.scheduleReconnectLocked()
	}
	t.mu.Unlock()

	if wasOpen && t.opts.OnDisconnected != nil {
		t.opts.OnDisconnected()
	}
}

// scheduleReconnectLocked arms the backoff timer for the next attempt.
// Caller holds t.mu. Gives up silently once MaxAttempts is exhausted;
// only an external Connect can revive the transport after that.
func (t *Transport) scheduleReconnectLocked() {
	if t.closed {
		return
	}
	t.attempts++
	if t.attempts > t.opts.MaxAttempts {
		logger.WarnCF("transport", "Giving up after max reconnect attempts", map[string]any{
			"attempts": t.attempts - 1,
		})
		return
	}

	delay := BackoffDelay(t.attempts, t.opts.ReconnectBase, t.opts.ReconnectCap)
	logger.InfoCF("transport", "Scheduling reconnect", map[string]any{
		"attempt": t.attempts,
		"delay":   delay.String(),
	})
	t.reconnectTimer = time.AfterFunc(delay, t.Connect)
}
