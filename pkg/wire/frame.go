// Package wire defines the JSON frame protocol spoken over the gateway
// WebSocket. Every frame is one JSON object tagged with a "type" field;
// the payload shape is type-dependent. Frames with unrecognized tags are
// kept intact so generic listeners can still receive them.
package wire

import (
	"encoding/json"
	"errors"

	"github.com/tinyland-inc/huddle/pkg/types"
)

// FrameType discriminates the tagged union.
type FrameType string

// Inbound frame tags.
const (
	TypeConnected          FrameType = "connected"
	TypePing               FrameType = "ping"
	TypeError              FrameType = "error"
	TypePermissionsChanged FrameType = "permissions_changed"
	TypeChannelsUpdated    FrameType = "channels_updated"
	TypeNewNotification    FrameType = "new_notification"
	TypeNewMessage         FrameType = "new_message"
	TypeUserTyping         FrameType = "user_typing"
	TypeMessageRead        FrameType = "message_read"
	TypeReactionAdded      FrameType = "reaction_added"
	TypeReactionRemoved    FrameType = "reaction_removed"
	TypeMessageSent        FrameType = "message_sent"
)

// Outbound frame tags.
const (
	TypeAuth         FrameType = "auth"
	TypePong         FrameType = "pong"
	TypeSendMessage  FrameType = "send_message"
	TypeJoinChannel  FrameType = "join_channel"
	TypeLeaveChannel FrameType = "leave_channel"
	TypeTyping       FrameType = "typing"
)

// ErrMissingType is returned when a frame carries no "type" tag.
var ErrMissingType = errors.New("frame has no type field")

// Frame is a decoded inbound envelope. Raw holds the complete frame
// body so type-specific payloads can be unmarshaled lazily and unknown
// tags pass through unchanged.
type Frame struct {
	Type FrameType
	Raw  json.RawMessage
}

// Decode parses one inbound frame. A parse failure or a missing type
// tag is a protocol fault; the caller logs and drops the frame.
func Decode(data []byte) (Frame, error) {
	var probe struct {
		Type FrameType `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return Frame{}, err
	}
	if probe.Type == "" {
		return Frame{}, ErrMissingType
	}
	raw := make(json.RawMessage, len(data))
	copy(raw, data)
	return Frame{Type: probe.Type, Raw: raw}, nil
}

// Payload unmarshals the frame body into v.
func (f Frame) Payload(v any) error {
	return json.Unmarshal(f.Raw, v)
}

// Connected carries the server-issued connection id after a successful
// auth handshake.
type Connected struct {
	ConnectionID string `json:"connection_id"`
}

// ErrorFrame carries a server-reported error message.
type ErrorFrame struct {
	Message string `json:"message"`
}

// NewNotification carries a pushed notification.
type NewNotification struct {
	Notification types.Notification `json:"notification"`
}

// NewMessage carries a pushed chat message.
type NewMessage struct {
	Message types.Message `json:"message"`
}

// UserTyping signals a typing-state change for one user in a channel.
type UserTyping struct {
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	IsTyping  bool   `json:"is_typing"`
}

// MessageRead signals that a user has read a message.
type MessageRead struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
}

// Reaction signals an emoji reaction being added to or removed from a
// message, depending on the frame tag.
type Reaction struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
	UserID    string `json:"user_id"`
}

// MessageSent confirms a send_message request. ClientID echoes the
// client-generated correlation id when the server supports it; older
// servers send only the message id.
type MessageSent struct {
	MessageID string `json:"message_id"`
	ClientID  string `json:"client_id,omitempty"`
}

// AuthFrame is the first frame sent on every new socket.
type AuthFrame struct {
	Type  FrameType `json:"type"`
	Token string    `json:"token"`
}

// Auth builds the handshake frame for token.
func Auth(token string) AuthFrame {
	return AuthFrame{Type: TypeAuth, Token: token}
}

// PongFrame answers a server heartbeat. The client never initiates
// pings; it only answers.
type PongFrame struct {
	Type FrameType `json:"type"`
}

// Pong builds a heartbeat reply.
func Pong() PongFrame {
	return PongFrame{Type: TypePong}
}

// SendMessageFrame submits a chat message. ClientID is generated per
// request so the confirmation can be correlated even with concurrent
// sends in flight.
type SendMessageFrame struct {
	Type        FrameType          `json:"type"`
	ClientID    string             `json:"client_id"`
	ChannelID   string             `json:"channel_id"`
	Content     string             `json:"content"`
	Mentions    []string           `json:"mentions"`
	Attachments []types.Attachment `json:"attachments"`
}

// SendMessage builds a send_message frame.
func SendMessage(clientID, channelID, content string, mentions []string, attachments []types.Attachment) SendMessageFrame {
	if mentions == nil {
		mentions = []string{}
	}
	if attachments == nil {
		attachments = []types.Attachment{}
	}
	return SendMessageFrame{
		Type:        TypeSendMessage,
		ClientID:    clientID,
		ChannelID:   channelID,
		Content:     content,
		Mentions:    mentions,
		Attachments: attachments,
	}
}

// ChannelFrame joins or leaves a channel room, depending on the tag.
type ChannelFrame struct {
	Type      FrameType `json:"type"`
	ChannelID string    `json:"channel_id"`
}

// JoinChannel builds a join_channel frame.
func JoinChannel(channelID string) ChannelFrame {
	return ChannelFrame{Type: TypeJoinChannel, ChannelID: channelID}
}

// LeaveChannel builds a leave_channel frame. Leaving is fire-and-forget
// and never acknowledged.
func LeaveChannel(channelID string) ChannelFrame {
	return ChannelFrame{Type: TypeLeaveChannel, ChannelID: channelID}
}

// TypingFrame signals the local user's typing state for a channel.
type TypingFrame struct {
	Type      FrameType `json:"type"`
	ChannelID string    `json:"channel_id"`
	IsTyping  bool      `json:"is_typing"`
}

// Typing builds a typing frame.
func Typing(channelID string, isTyping bool) TypingFrame {
	return TypingFrame{Type: TypeTyping, ChannelID: channelID, IsTyping: isTyping}
}
