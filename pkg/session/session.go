// Package session is the process-wide real-time session: it owns the
// reconnecting transport, the listener registry, the channel and
// notification state, and the unread-count backstop poller. Every
// inbound frame is classified here and either handled as a built-in
// side effect or fanned out to registered listeners.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tinyland-inc/huddle/pkg/api"
	"github.com/tinyland-inc/huddle/pkg/config"
	"github.com/tinyland-inc/huddle/pkg/logger"
	"github.com/tinyland-inc/huddle/pkg/transport"
	"github.com/tinyland-inc/huddle/pkg/types"
	"github.com/tinyland-inc/huddle/pkg/wire"
)

var (
	// ErrNotConnected is returned when an operation requires an open
	// socket and there is none. No frame is sent.
	ErrNotConnected = errors.New("session not connected")
	// ErrSendFailed is returned when the transport dropped the frame.
	ErrSendFailed = errors.New("send failed")
	// ErrSendTimeout is returned when no confirmation arrived in time.
	// The outcome is ambiguous: the server may still have processed the
	// send after the client stopped waiting.
	ErrSendTimeout = errors.New("timed out waiting for send confirmation")
)

const (
	defaultSendTimeout  = 5 * time.Second
	defaultPollInterval = 30 * time.Second
)

// conn is the slice of the transport the session depends on.
type conn interface {
	Connect()
	Close()
	Send(v any) bool
	IsConnected() bool
}

// Session is the singleton real-time session for one authenticated
// user. Exactly one exists per token; it is recreated on token change
// and torn down together with its poller on logout.
type Session struct {
	rest     *api.Client
	conn     conn
	registry *registry
	signals  *Broadcaster
	notifier Notifier

	sendTimeout  time.Duration
	pollInterval time.Duration

	mu            sync.Mutex
	connected     bool
	connectionID  string
	channels      []types.Channel
	notifications []types.Notification
	notifUnread   int
	unread        types.UnreadCounts

	pendMu       sync.Mutex
	pending      map[string]chan string
	pendingOrder []string

	done      chan struct{}
	closeOnce sync.Once
}

// New builds a session from config. The transport is created but not
// connected; call Start. Non-positive timeouts and intervals fall back
// to the defaults.
func New(cfg *config.Config, rest *api.Client, notifier Notifier) *Session {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	sendTimeout := cfg.Socket.SendTimeout()
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}
	pollInterval := cfg.Poll.UnreadInterval()
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	s := &Session{
		rest:         rest,
		registry:     newRegistry(),
		signals:      NewBroadcaster(),
		notifier:     notifier,
		sendTimeout:  sendTimeout,
		pollInterval: pollInterval,
		unread:       make(types.UnreadCounts),
		pending:      make(map[string]chan string),
		done:         make(chan struct{}),
	}
	s.conn = transport.New(transport.Options{
		ServerURL:      cfg.Server.URL,
		Token:          cfg.Server.Token,
		ReconnectBase:  cfg.Socket.ReconnectBase(),
		ReconnectCap:   cfg.Socket.ReconnectCap(),
		MaxAttempts:    cfg.Socket.MaxReconnectAttempts,
		AuthTimeout:    cfg.Socket.AuthTimeout(),
		OnFrame:        s.handleFrame,
		OnConnected:    s.handleConnected,
		OnDisconnected: s.handleDisconnected,
	})
	return s
}

// Start connects the transport and begins unread polling. Polling runs
// whether or not the socket is up; it is the correctness backstop for
// missed push events.
func (s *Session) Start() {
	s.conn.Connect()
	go s.pollLoop()
}

// Close tears the session down: no further reconnects, no further
// polling. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
		s.signals.Close()
	})
}

// IsConnected reports whether the socket handshake has completed.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// ConnectionID returns the server-issued id of the current connection.
func (s *Session) ConnectionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectionID
}

// On registers a listener for one frame type and returns its
// unsubscribe func.
func (s *Session) On(frameType wire.FrameType, fn Handler) func() {
	return s.registry.on(frameType, fn)
}

// Signals subscribes to the process-wide broadcast signals.
func (s *Session) Signals() (<-chan Signal, func()) {
	return s.signals.Subscribe()
}

// Channels returns a snapshot of the channel list.
func (s *Session) Channels() []types.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Channel, len(s.channels))
	copy(out, s.channels)
	return out
}

// ReloadChannels replaces the channel list wholesale from the REST API.
func (s *Session) ReloadChannels(ctx context.Context) error {
	channels, err := s.rest.ListChannels(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.channels = channels
	s.mu.Unlock()
	return nil
}

// Notifications returns a snapshot of the notification list, newest
// first.
func (s *Session) Notifications() []types.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Notification, len(s.notifications))
	copy(out, s.notifications)
	return out
}

// NotificationUnread returns the unread notification count.
func (s *Session) NotificationUnread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notifUnread
}

// UnreadCounts returns a snapshot of per-channel unread counts.
func (s *Session) UnreadCounts() types.UnreadCounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(types.UnreadCounts, len(s.unread))
	for k, v := range s.unread {
		out[k] = v
	}
	return out
}

// TotalUnread sums channel unreads and unread notifications into the
// displayed total.
func (s *Session) TotalUnread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread.Total() + s.notifUnread
}

// MarkChannelRead clears the local counter immediately, ahead of
// server confirmation, then tells the backend. The next poll corrects
// the counter if the call failed.
func (s *Session) MarkChannelRead(ctx context.Context, channelID string) error {
	s.mu.Lock()
	delete(s.unread, channelID)
	s.mu.Unlock()
	return s.rest.MarkChannelRead(ctx, channelID)
}

// MarkNotificationRead marks one notification read, locally first.
func (s *Session) MarkNotificationRead(ctx context.Context, notificationID string) error {
	s.mu.Lock()
	for i := range s.notifications {
		if s.notifications[i].ID == notificationID && !s.notifications[i].Read {
			s.notifications[i].Read = true
			if s.notifUnread > 0 {
				s.notifUnread--
			}
			break
		}
	}
	s.mu.Unlock()
	return s.rest.MarkNotificationRead(ctx, notificationID)
}

// MarkAllNotificationsRead marks every notification read, locally first.
func (s *Session) MarkAllNotificationsRead(ctx context.Context) error {
	s.mu.Lock()
	for i := range s.notifications {
		s.notifications[i].Read = true
	}
	s.notifUnread = 0
	s.mu.Unlock()
	return s.rest.MarkAllNotificationsRead(ctx)
}

// JoinChannel signals the gateway to route the channel's events to this
// connection. Best-effort, unacknowledged.
func (s *Session) JoinChannel(channelID string) bool {
	return s.conn.Send(wire.JoinChannel(channelID))
}

// LeaveChannel is fire-and-forget; leaving is never acknowledged.
func (s *Session) LeaveChannel(channelID string) bool {
	return s.conn.Send(wire.LeaveChannel(channelID))
}

// SendTyping signals the local user's typing state. Best-effort.
func (s *Session) SendTyping(channelID string, isTyping bool) bool {
	return s.conn.Send(wire.Typing(channelID, isTyping))
}

// SendMessage submits a chat message and waits for the gateway's
// message_sent confirmation, returning the server-assigned message id.
// It fails immediately when disconnected, and with ErrSendTimeout when
// no confirmation arrives within the configured window. A timeout only
// cancels the wait, not the send: the frame may still be processed
// server-side.
func (s *Session) SendMessage(ctx context.Context, channelID, content string, mentions []string, attachments []types.Attachment) (string, error) {
	if !s.conn.IsConnected() {
		return "", ErrNotConnected
	}

	clientID := uuid.New().String()
	ch := make(chan string, 1)

	s.pendMu.Lock()
	s.pending[clientID] = ch
	s.pendingOrder = append(s.pendingOrder, clientID)
	s.pendMu.Unlock()

	if !s.conn.Send(wire.SendMessage(clientID, channelID, content, mentions, attachments)) {
		s.removePending(clientID)
		return "", ErrSendFailed
	}

	select {
	case messageID := <-ch:
		return messageID, nil
	case <-time.After(s.sendTimeout):
		s.removePending(clientID)
		return "", ErrSendTimeout
	case <-ctx.Done():
		s.removePending(clientID)
		return "", ctx.Err()
	}
}

func (s *Session) handleConnected(connectionID string) {
	s.mu.Lock()
	s.connected = true
	s.connectionID = connectionID
	s.mu.Unlock()
	logger.InfoCF("session", "Session connected", map[string]any{"connection_id": connectionID})
}

func (s *Session) handleDisconnected() {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	logger.InfoC("session", "Session disconnected")
}

// handleFrame classifies one inbound frame. The first matching built-in
// wins; everything else goes to the listener registry.
func (s *Session) handleFrame(frame wire.Frame) {
	switch frame.Type {
	case wire.TypePermissionsChanged:
		s.signals.Publish(SignalPermissionsChangedByAdmin)

	case wire.TypeChannelsUpdated:
		// Dependents refetch over REST; the session only relays.
		s.signals.Publish(SignalChannelsUpdated)

	case wire.TypeNewNotification:
		var payload wire.NewNotification
		if err := frame.Payload(&payload); err != nil {
			logger.WarnCF("session", "Bad new_notification frame", map[string]any{"error": err.Error()})
			return
		}
		s.handleNewNotification(payload.Notification)

	case wire.TypeMessageSent:
		var payload wire.MessageSent
		if err := frame.Payload(&payload); err == nil {
			s.resolveSend(payload)
		}
		s.registry.dispatch(frame)

	default:
		s.registry.dispatch(frame)
	}
}

func (s *Session) handleNewNotification(n types.Notification) {
	s.mu.Lock()
	s.notifications = append([]types.Notification{n}, s.notifications...)
	s.notifUnread++
	s.mu.Unlock()

	// Side effects are fire-and-forget and must never block recording
	// the notification.
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				logger.ErrorCF("session", "Notifier panicked", map[string]any{"panic": rec})
			}
		}()
		if err := s.notifier.Chime(); err != nil {
			logger.DebugCF("session", "Notification chime failed", map[string]any{"error": err.Error()})
		}
		if err := s.notifier.Popup(n); err != nil {
			logger.DebugCF("session", "Notification popup failed", map[string]any{"error": err.Error()})
		}
	}()
}

// resolveSend matches a confirmation to its waiting sender. The
// client_id echo is authoritative; when the server omits it the oldest
// pending send resolves, which is only safe with one send in flight.
func (s *Session) resolveSend(payload wire.MessageSent) {
	s.pendMu.Lock()
	defer s.pendMu.Unlock()

	clientID := payload.ClientID
	if clientID != "" {
		if ch, ok := s.pending[clientID]; ok {
			s.removePendingLocked(clientID)
			ch <- payload.MessageID
		}
		return
	}

	if len(s.pendingOrder) == 0 {
		return
	}
	oldest := s.pendingOrder[0]
	ch := s.pending[oldest]
	s.removePendingLocked(oldest)
	ch <- payload.MessageID
}

func (s *Session) removePending(clientID string) {
	s.pendMu.Lock()
	s.removePendingLocked(clientID)
	s.pendMu.Unlock()
}

func (s *Session) removePendingLocked(clientID string) {
	delete(s.pending, clientID)
	for i, id := range s.pendingOrder {
		if id == clientID {
			s.pendingOrder = append(s.pendingOrder[:i:i], s.pendingOrder[i+1:]...)
			break
		}
	}
}

func (s *Session) pollLoop() {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.refreshUnread()
		case <-s.done:
			return
		}
	}
}

// refreshUnread polls the REST unread endpoints. It runs on a fixed
// interval independent of socket state.
func (s *Session) refreshUnread() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	counts, err := s.rest.ChannelUnreadCounts(ctx)
	if err != nil {
		logger.DebugCF("session", "Unread poll failed", map[string]any{"error": err.Error()})
	} else {
		s.mu.Lock()
		s.unread = counts
		s.mu.Unlock()
	}

	notifCount, err := s.rest.NotificationUnreadCount(ctx)
	if err != nil {
		logger.DebugCF("session", "Notification unread poll failed", map[string]any{"error": err.Error()})
		return
	}
	s.mu.Lock()
	s.notifUnread = notifCount
	s.mu.Unlock()
}
