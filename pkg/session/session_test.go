package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/tinyland-inc/huddle/pkg/api"
	"github.com/tinyland-inc/huddle/pkg/config"
	"github.com/tinyland-inc/huddle/pkg/types"
	"github.com/tinyland-inc/huddle/pkg/wire"
)

// fakeConn stands in for the transport.
type fakeConn struct {
	mu        sync.Mutex
	connected bool
	sendOK    bool
	sent      []any
}

func (f *fakeConn) Connect() {}
func (f *fakeConn) Close()   {}

func (f *fakeConn) Send(v any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.sendOK {
		return false
	}
	f.sent = append(f.sent, v)
	return true
}

func (f *fakeConn) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeConn) sentFrames() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]any, len(f.sent))
	copy(out, f.sent)
	return out
}

func newTestSession(conn *fakeConn, rest *api.Client) *Session {
	return &Session{
		rest:        rest,
		conn:        conn,
		registry:    newRegistry(),
		signals:     NewBroadcaster(),
		notifier:    NopNotifier{},
		sendTimeout: 500 * time.Millisecond,
		unread:      make(types.UnreadCounts),
		pending:     make(map[string]chan string),
		done:        make(chan struct{}),
	}
}

func inboundFrame(t *testing.T, body string) wire.Frame {
	t.Helper()
	frame, err := wire.Decode([]byte(body))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return frame
}

func TestSendMessage_NotConnected(t *testing.T) {
	s := newTestSession(&fakeConn{connected: false, sendOK: true}, nil)

	_, err := s.SendMessage(context.Background(), "ch-1", "hi", nil, nil)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestSendMessage_TransportDrop(t *testing.T) {
	s := newTestSession(&fakeConn{connected: true, sendOK: false}, nil)

	_, err := s.SendMessage(context.Background(), "ch-1", "hi", nil, nil)
	if !errors.Is(err, ErrSendFailed) {
		t.Errorf("expected ErrSendFailed, got %v", err)
	}

	s.pendMu.Lock()
	if len(s.pending) != 0 || len(s.pendingOrder) != 0 {
		t.Error("failed send left a pending entry behind")
	}
	s.pendMu.Unlock()
}

func TestSendMessage_ResolvedByClientID(t *testing.T) {
	conn := &fakeConn{connected: true, sendOK: true}
	s := newTestSession(conn, nil)

	go func() {
		// wait for the outbound frame, then confirm it with its own id
		for {
			frames := conn.sentFrames()
			if len(frames) == 1 {
				sent := frames[0].(wire.SendMessageFrame)
				s.handleFrame(inboundFrame(t, `{"type":"message_sent","message_id":"m-7","client_id":"`+sent.ClientID+`"}`))
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	messageID, err := s.SendMessage(context.Background(), "ch-1", "hi", nil, nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if messageID != "m-7" {
		t.Errorf("message id: got %q, want m-7", messageID)
	}
}

func TestSendMessage_FallbackToOldestPending(t *testing.T) {
	conn := &fakeConn{connected: true, sendOK: true}
	s := newTestSession(conn, nil)

	go func() {
		for len(conn.sentFrames()) < 1 {
			time.Sleep(time.Millisecond)
		}
		// legacy confirmation without client_id resolves the oldest wait
		s.handleFrame(inboundFrame(t, `{"type":"message_sent","message_id":"m-1"}`))
	}()

	messageID, err := s.SendMessage(context.Background(), "ch-1", "hi", nil, nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if messageID != "m-1" {
		t.Errorf("message id: got %q, want m-1", messageID)
	}
}

func TestSendMessage_Timeout(t *testing.T) {
	s := newTestSession(&fakeConn{connected: true, sendOK: true}, nil)
	s.sendTimeout = 20 * time.Millisecond

	_, err := s.SendMessage(context.Background(), "ch-1", "hi", nil, nil)
	if !errors.Is(err, ErrSendTimeout) {
		t.Errorf("expected ErrSendTimeout, got %v", err)
	}

	s.pendMu.Lock()
	if len(s.pending) != 0 {
		t.Error("timed-out send left a pending entry behind")
	}
	s.pendMu.Unlock()
}

func TestSendMessage_ContextCanceled(t *testing.T) {
	s := newTestSession(&fakeConn{connected: true, sendOK: true}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.SendMessage(ctx, "ch-1", "hi", nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestSendMessage_StrayConfirmationIgnored(t *testing.T) {
	s := newTestSession(&fakeConn{connected: true, sendOK: true}, nil)

	// no send in flight: the confirmation must be dropped, not panic
	s.handleFrame(inboundFrame(t, `{"type":"message_sent","message_id":"m-1"}`))
	s.handleFrame(inboundFrame(t, `{"type":"message_sent","message_id":"m-2","client_id":"unknown"}`))
}

func TestHandleFrame_Signals(t *testing.T) {
	s := newTestSession(&fakeConn{}, nil)
	defer s.signals.Close()

	ch, cancel := s.Signals()
	defer cancel()

	s.handleFrame(inboundFrame(t, `{"type":"permissions_changed"}`))
	s.handleFrame(inboundFrame(t, `{"type":"channels_updated"}`))

	want := []Signal{SignalPermissionsChangedByAdmin, SignalChannelsUpdated}
	for _, expected := range want {
		select {
		case sig := <-ch:
			if sig != expected {
				t.Errorf("signal: got %q, want %q", sig, expected)
			}
		case <-time.After(time.Second):
			t.Fatalf("no %q signal", expected)
		}
	}
}

func TestHandleFrame_DispatchesToListeners(t *testing.T) {
	s := newTestSession(&fakeConn{}, nil)

	var got []wire.FrameType
	unsub := s.On(wire.TypeNewMessage, func(f wire.Frame) { got = append(got, f.Type) })
	defer unsub()

	s.handleFrame(inboundFrame(t, `{"type":"new_message","message":{"id":"m-1"}}`))
	s.handleFrame(inboundFrame(t, `{"type":"user_typing"}`))

	if len(got) != 1 || got[0] != wire.TypeNewMessage {
		t.Errorf("dispatched: got %v", got)
	}
}

func TestHandleFrame_MessageSentAlsoDispatched(t *testing.T) {
	s := newTestSession(&fakeConn{}, nil)

	calls := 0
	unsub := s.On(wire.TypeMessageSent, func(wire.Frame) { calls++ })
	defer unsub()

	s.handleFrame(inboundFrame(t, `{"type":"message_sent","message_id":"m-1"}`))
	if calls != 1 {
		t.Errorf("message_sent listener calls: got %d, want 1", calls)
	}
}

// recordingNotifier signals on a channel so tests can wait for the
// async side effects.
type recordingNotifier struct {
	chimes chan struct{}
	popups chan types.Notification
}

func (r *recordingNotifier) Chime() error {
	r.chimes <- struct{}{}
	return nil
}

func (r *recordingNotifier) Popup(n types.Notification) error {
	r.popups <- n
	return nil
}

func TestHandleFrame_NewNotification(t *testing.T) {
	notifier := &recordingNotifier{
		chimes: make(chan struct{}, 1),
		popups: make(chan types.Notification, 1),
	}
	s := newTestSession(&fakeConn{}, nil)
	s.notifier = notifier

	s.handleFrame(inboundFrame(t, `{"type":"new_notification","notification":{"id":"n-1","title":"Mentioned","body":"in #general"}}`))

	notifications := s.Notifications()
	if len(notifications) != 1 || notifications[0].ID != "n-1" {
		t.Fatalf("notifications: got %+v", notifications)
	}
	if s.NotificationUnread() != 1 {
		t.Errorf("unread: got %d, want 1", s.NotificationUnread())
	}

	select {
	case <-notifier.chimes:
	case <-time.After(time.Second):
		t.Fatal("no chime")
	}
	select {
	case n := <-notifier.popups:
		if n.Title != "Mentioned" {
			t.Errorf("popup title: got %q", n.Title)
		}
	case <-time.After(time.Second):
		t.Fatal("no popup")
	}

	// newest first
	s.handleFrame(inboundFrame(t, `{"type":"new_notification","notification":{"id":"n-2"}}`))
	<-notifier.chimes
	<-notifier.popups
	notifications = s.Notifications()
	if notifications[0].ID != "n-2" {
		t.Errorf("expected newest first, got %+v", notifications)
	}
}

type panickingNotifier struct{}

func (panickingNotifier) Chime() error { panic("audio backend gone") }

func (panickingNotifier) Popup(types.Notification) error { return nil }

func TestHandleFrame_NotifierPanicDoesNotLoseNotification(t *testing.T) {
	s := newTestSession(&fakeConn{}, nil)
	s.notifier = panickingNotifier{}

	s.handleFrame(inboundFrame(t, `{"type":"new_notification","notification":{"id":"n-1"}}`))

	if len(s.Notifications()) != 1 {
		t.Error("notification was lost to a notifier panic")
	}
}

func TestMarkChannelRead_OptimisticLocalClear(t *testing.T) {
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	}))
	defer ts.Close()
	rest, _ := api.NewClient(ts.URL, "tok")

	s := newTestSession(&fakeConn{}, rest)
	s.mu.Lock()
	s.unread = types.UnreadCounts{"ch-1": 4, "ch-2": 2}
	s.mu.Unlock()

	if err := s.MarkChannelRead(context.Background(), "ch-1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if gotPath != "/api/channels/ch-1/read" {
		t.Errorf("path: got %q", gotPath)
	}
	counts := s.UnreadCounts()
	if _, ok := counts["ch-1"]; ok {
		t.Error("expected ch-1 cleared locally")
	}
	if counts["ch-2"] != 2 {
		t.Error("unrelated channel was touched")
	}
}

func TestMarkNotificationRead_LocalFirst(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer ts.Close()
	rest, _ := api.NewClient(ts.URL, "tok")

	s := newTestSession(&fakeConn{}, rest)
	s.mu.Lock()
	s.notifications = []types.Notification{{ID: "n-1"}, {ID: "n-2"}}
	s.notifUnread = 2
	s.mu.Unlock()

	if err := s.MarkNotificationRead(context.Background(), "n-2"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if s.NotificationUnread() != 1 {
		t.Errorf("unread: got %d, want 1", s.NotificationUnread())
	}

	// marking the same one again must not double-decrement
	if err := s.MarkNotificationRead(context.Background(), "n-2"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if s.NotificationUnread() != 1 {
		t.Errorf("unread after re-mark: got %d, want 1", s.NotificationUnread())
	}
}

func TestTotalUnread(t *testing.T) {
	s := newTestSession(&fakeConn{}, nil)
	s.mu.Lock()
	s.unread = types.UnreadCounts{"ch-1": 3, "ch-2": 1}
	s.notifUnread = 2
	s.mu.Unlock()

	if got := s.TotalUnread(); got != 6 {
		t.Errorf("total unread: got %d, want 6", got)
	}
}

func TestRefreshUnread(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/channels/unread-counts":
			json.NewEncoder(w).Encode(map[string]int{"ch-1": 5})
		case "/api/notifications/unread-count":
			json.NewEncoder(w).Encode(map[string]int{"count": 3})
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()
	rest, _ := api.NewClient(ts.URL, "tok")

	s := newTestSession(&fakeConn{}, rest)
	s.refreshUnread()

	if got := s.UnreadCounts()["ch-1"]; got != 5 {
		t.Errorf("ch-1 unread: got %d, want 5", got)
	}
	if got := s.NotificationUnread(); got != 3 {
		t.Errorf("notification unread: got %d, want 3", got)
	}
}

func TestNew_ZeroDurationsFallBack(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.URL = "http://127.0.0.1:1"
	cfg.Socket.SendTimeoutMS = 0
	cfg.Poll.UnreadIntervalSeconds = 0

	s := New(cfg, nil, nil)
	if s.sendTimeout != defaultSendTimeout {
		t.Errorf("send timeout: got %v, want %v", s.sendTimeout, defaultSendTimeout)
	}
	if s.pollInterval != defaultPollInterval {
		t.Errorf("poll interval: got %v, want %v", s.pollInterval, defaultPollInterval)
	}

	// a zero interval must not take the poller down with it
	s.Start()
	time.Sleep(20 * time.Millisecond)
	s.Close()
}

func TestChannelHelpers_SendFrames(t *testing.T) {
	conn := &fakeConn{connected: true, sendOK: true}
	s := newTestSession(conn, nil)

	s.JoinChannel("ch-1")
	s.SendTyping("ch-1", true)
	s.LeaveChannel("ch-1")

	frames := conn.sentFrames()
	if len(frames) != 3 {
		t.Fatalf("sent frames: got %d, want 3", len(frames))
	}
	if f := frames[0].(wire.ChannelFrame); f.Type != wire.TypeJoinChannel || f.ChannelID != "ch-1" {
		t.Errorf("join frame: %+v", f)
	}
	if f := frames[1].(wire.TypingFrame); f.Type != wire.TypeTyping || !f.IsTyping {
		t.Errorf("typing frame: %+v", f)
	}
	if f := frames[2].(wire.ChannelFrame); f.Type != wire.TypeLeaveChannel {
		t.Errorf("leave frame: %+v", f)
	}
}
