// Package types holds the domain model shared by the wire protocol,
// the REST client and the session state: channels, messages,
// notifications and unread counters.
package types

import "time"

// ChannelType classifies a conversation scope.
type ChannelType string

const (
	ChannelTeam         ChannelType = "team"
	ChannelProject      ChannelType = "project"
	ChannelDirect       ChannelType = "direct"
	ChannelAnnouncement ChannelType = "announcement"
	ChannelAIAssistant  ChannelType = "ai-assistant"
)

// Permissions are the per-channel flags for the current user.
type Permissions struct {
	ReadOnly          bool `json:"read_only"`
	CanSendMessages   bool `json:"can_send_messages"`
	CanInvite         bool `json:"can_invite"`
	CanEditChannel    bool `json:"can_edit_channel"`
	CanDeleteMessages bool `json:"can_delete_messages"`
}

// Channel is a named conversation scope. The server is the source of
// truth; the session replaces its channel list wholesale on reload and
// never merges field by field.
type Channel struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Type        ChannelType `json:"type"`
	MemberIDs   []string    `json:"member_ids"`
	Permissions Permissions `json:"permissions"`
}

// Attachment is inline file data carried on a message.
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// Message is one chat message. Reactions map emoji to the user ids who
// reacted; ReadBy lists the user ids that have seen the message.
type Message struct {
	ID          string              `json:"id"`
	ChannelID   string              `json:"channel_id"`
	SenderID    string              `json:"sender_id"`
	SenderName  string              `json:"sender_name"`
	Content     string              `json:"content"`
	CreatedAt   time.Time           `json:"created_at"`
	Mentions    []string            `json:"mentions,omitempty"`
	Attachments []Attachment        `json:"attachments,omitempty"`
	Reactions   map[string][]string `json:"reactions,omitempty"`
	ReadBy      []string            `json:"read_by,omitempty"`
}

// HasReaction reports whether userID has reacted with emoji.
func (m *Message) HasReaction(emoji, userID string) bool {
	for _, id := range m.Reactions[emoji] {
		if id == userID {
			return true
		}
	}
	return false
}

// ReadByUser reports whether userID appears in the read-by list.
func (m *Message) ReadByUser(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// Notification is a pushed user notification.
type Notification struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	ChannelID string    `json:"channel_id,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// UnreadCounts maps channel id to its unread message count.
type UnreadCounts map[string]int

// Total sums all per-channel counts.
func (u UnreadCounts) Total() int {
	total := 0
	for _, n := range u {
		total += n
	}
	return total
}
