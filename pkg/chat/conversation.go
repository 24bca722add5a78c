// Package chat holds the per-channel session consumer: one
// Conversation per open channel that merges pushed message, typing,
// read-receipt and reaction events into local ordered message state and
// signals the local user's typing over the session.
package chat

import (
	"context"
	"sync"
	"time"

	"github.com/tinyland-inc/huddle/pkg/logger"
	"github.com/tinyland-inc/huddle/pkg/session"
	"github.com/tinyland-inc/huddle/pkg/types"
	"github.com/tinyland-inc/huddle/pkg/wire"
)

// Session is the slice of the real-time session a conversation uses.
type Session interface {
	On(frameType wire.FrameType, fn session.Handler) func()
	JoinChannel(channelID string) bool
	LeaveChannel(channelID string) bool
	SendTyping(channelID string, isTyping bool) bool
	SendMessage(ctx context.Context, channelID, content string, mentions []string, attachments []types.Attachment) (string, error)
}

// HistoryLoader fetches message history for a channel. *api.Client
// satisfies it.
type HistoryLoader interface {
	GetMessages(ctx context.Context, channelID string) ([]types.Message, error)
}

// Options tunes conversation timers. Zero values take the defaults.
type Options struct {
	// TypingStopDelay is how long after the last input change the
	// automatic typing=false fires.
	TypingStopDelay time.Duration
	// TypingExpiry removes a remote typing indicator this long after it
	// appeared, whether or not a stop signal arrives.
	TypingExpiry time.Duration
}

const (
	defaultTypingStopDelay = 2 * time.Second
	defaultTypingExpiry    = 3 * time.Second
)

type typingEntry struct {
	name  string
	timer *time.Timer
}

// Conversation is the live view of one channel. Messages are held in an
// append-oriented ordered sequence, mutated in place by id when
// reaction and read events arrive, and only cleared by Close.
type Conversation struct {
	sess      Session
	channelID string
	opts      Options

	mu        sync.Mutex
	messages  []types.Message
	index     map[string]int
	typing    map[string]*typingEntry
	stopTimer *time.Timer
	unsubs    []func()
	closed    bool
}

// Open loads the channel history, joins the room and starts consuming
// its events. The returned conversation must be closed when the user
// switches channels or the screen is torn down.
func Open(ctx context.Context, sess Session, history HistoryLoader, channelID string, opts Options) (*Conversation, error) {
	if opts.TypingStopDelay <= 0 {
		opts.TypingStopDelay = defaultTypingStopDelay
	}
	if opts.TypingExpiry <= 0 {
		opts.TypingExpiry = defaultTypingExpiry
	}

	messages, err := history.GetMessages(ctx, channelID)
	if err != nil {
		return nil, err
	}

	c := &Conversation{
		sess:      sess,
		channelID: channelID,
		opts:      opts,
		index:     make(map[string]int, len(messages)),
		typing:    make(map[string]*typingEntry),
	}
	for _, msg := range messages {
		if _, seen := c.index[msg.ID]; seen {
			continue
		}
		c.index[msg.ID] = len(c.messages)
		c.messages = append(c.messages, msg)
	}

	c.unsubs = []func(){
		sess.On(wire.TypeNewMessage, c.onNewMessage),
		sess.On(wire.TypeUserTyping, c.onUserTyping),
		sess.On(wire.TypeMessageRead, c.onMessageRead),
		sess.On(wire.TypeReactionAdded, c.onReaction),
		sess.On(wire.TypeReactionRemoved, c.onReaction),
	}

	sess.JoinChannel(channelID)
	return c, nil
}

// Close leaves the room, detaches all listeners and clears typing
// state. Leaving is fire-and-forget.
func (c *Conversation) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.stopTimer != nil {
		c.stopTimer.Stop()
		c.stopTimer = nil
	}
	for _, entry := range c.typing {
		entry.timer.Stop()
	}
	c.typing = make(map[string]*typingEntry)
	unsubs := c.unsubs
	c.unsubs = nil
	c.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	c.sess.LeaveChannel(c.channelID)
}

// ChannelID returns the channel this conversation is attached to.
func (c *Conversation) ChannelID() string {
	return c.channelID
}

// Messages returns a snapshot of the ordered message sequence. The
// reaction and read-by containers are copied too: later events mutate
// them in place and must not show through a snapshot.
func (c *Conversation) Messages() []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Message, len(c.messages))
	for i, msg := range c.messages {
		if len(msg.Reactions) > 0 {
			reactions := make(map[string][]string, len(msg.Reactions))
			for emoji, voters := range msg.Reactions {
				reactions[emoji] = append([]string(nil), voters...)
			}
			msg.Reactions = reactions
		}
		if len(msg.ReadBy) > 0 {
			msg.ReadBy = append([]string(nil), msg.ReadBy...)
		}
		out[i] = msg
	}
	return out
}

// TypingUsers returns the ids of users currently typing, mapped to
// their display names.
func (c *Conversation) TypingUsers() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.typing))
	for id, entry := range c.typing {
		out[id] = entry.name
	}
	return out
}

// InputChanged reports a local input change: it signals typing=true
// immediately and (re)arms the automatic stop.
func (c *Conversation) InputChanged() {
	c.sess.SendTyping(c.channelID, true)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.stopTimer != nil {
		c.stopTimer.Stop()
	}
	c.stopTimer = time.AfterFunc(c.opts.TypingStopDelay, func() {
		c.sess.SendTyping(c.channelID, false)
	})
}

// Send submits a message through the session correlator. Sending stops
// the typing indicator immediately.
func (c *Conversation) Send(ctx context.Context, content string, mentions []string, attachments []types.Attachment) (string, error) {
	c.mu.Lock()
	if c.stopTimer != nil {
		c.stopTimer.Stop()
		c.stopTimer = nil
	}
	c.mu.Unlock()
	c.sess.SendTyping(c.channelID, false)

	return c.sess.SendMessage(ctx, c.channelID, content, mentions, attachments)
}

// onNewMessage appends a pushed message unless its id is already
// present. The idempotent merge guards against duplicate delivery.
func (c *Conversation) onNewMessage(frame wire.Frame) {
	var payload wire.NewMessage
	if err := frame.Payload(&payload); err != nil {
		logger.WarnCF("chat", "Bad new_message frame", map[string]any{"error": err.Error()})
		return
	}
	msg := payload.Message
	if msg.ChannelID != c.channelID {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, seen := c.index[msg.ID]; seen {
		return
	}
	c.index[msg.ID] = len(c.messages)
	c.messages = append(c.messages, msg)
}

// onUserTyping tracks remote typing indicators. Every entry expires on
// its own a few seconds after it appeared, so a missed stop signal
// cannot wedge the indicator.
func (c *Conversation) onUserTyping(frame wire.Frame) {
	var payload wire.UserTyping
	if err := frame.Payload(&payload); err != nil {
		return
	}
	if payload.ChannelID != c.channelID {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	if existing, ok := c.typing[payload.UserID]; ok {
		existing.timer.Stop()
		delete(c.typing, payload.UserID)
	}
	if !payload.IsTyping {
		return
	}

	userID := payload.UserID
	entry := &typingEntry{name: payload.UserName}
	entry.timer = time.AfterFunc(c.opts.TypingExpiry, func() {
		c.mu.Lock()
		// a newer indicator for the same user owns the slot now
		if c.typing[userID] == entry {
			delete(c.typing, userID)
		}
		c.mu.Unlock()
	})
	c.typing[userID] = entry
}

// onMessageRead appends the reader to the message's read-by list,
// idempotently.
func (c *Conversation) onMessageRead(frame wire.Frame) {
	var payload wire.MessageRead
	if err := frame.Payload(&payload); err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[payload.MessageID]
	if !ok {
		return
	}
	msg := &c.messages[i]
	if msg.ReadByUser(payload.UserID) {
		return
	}
	msg.ReadBy = append(msg.ReadBy, payload.UserID)
}

// onReaction adds or removes one user's emoji vote. An emoji key is
// dropped entirely when its voter list empties.
func (c *Conversation) onReaction(frame wire.Frame) {
	var payload wire.Reaction
	if err := frame.Payload(&payload); err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[payload.MessageID]
	if !ok {
		return
	}
	msg := &c.messages[i]

	if frame.Type == wire.TypeReactionAdded {
		if msg.HasReaction(payload.Emoji, payload.UserID) {
			return
		}
		if msg.Reactions == nil {
			msg.Reactions = make(map[string][]string)
		}
		msg.Reactions[payload.Emoji] = append(msg.Reactions[payload.Emoji], payload.UserID)
		return
	}

	voters := msg.Reactions[payload.Emoji]
	for j, id := range voters {
		if id == payload.UserID {
			voters = append(voters[:j:j], voters[j+1:]...)
			break
		}
	}
	if len(voters) == 0 {
		delete(msg.Reactions, payload.Emoji)
	} else {
		msg.Reactions[payload.Emoji] = voters
	}
}
