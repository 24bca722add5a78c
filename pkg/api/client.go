// Package api is the REST client for the collaboration backend. The
// session uses it for channel lists, message history and the unread
// polling backstop; it treats every endpoint as an opaque JSON resource
// and interprets status codes only as success or failure.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tinyland-inc/huddle/pkg/types"
)

// Client calls the backend REST API with a bearer token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a REST client for the backend at baseURL.
func NewClient(baseURL, token string) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ListChannels fetches the full channel list. The server is the source
// of truth; callers replace their local list wholesale.
func (c *Client) ListChannels(ctx context.Context) ([]types.Channel, error) {
	var channels []types.Channel
	err := c.do(ctx, http.MethodGet, "/api/channels", nil, &channels)
	return channels, err
}

// GetMessages fetches the message history for a channel.
func (c *Client) GetMessages(ctx context.Context, channelID string) ([]types.Message, error) {
	var messages []types.Message
	err := c.do(ctx, http.MethodGet, "/api/channels/"+url.PathEscape(channelID)+"/messages", nil, &messages)
	return messages, err
}

// PostMessage creates a message over REST. The WebSocket send path is
// preferred; this exists for offline retry flows.
func (c *Client) PostMessage(ctx context.Context, channelID string, msg types.Message) (types.Message, error) {
	var created types.Message
	err := c.do(ctx, http.MethodPost, "/api/channels/"+url.PathEscape(channelID)+"/messages", msg, &created)
	return created, err
}

// MarkChannelRead marks every message in a channel as read.
func (c *Client) MarkChannelRead(ctx context.Context, channelID string) error {
	return c.do(ctx, http.MethodPost, "/api/channels/"+url.PathEscape(channelID)+"/read", nil, nil)
}

// ChannelUnreadCounts fetches per-channel unread message counts.
func (c *Client) ChannelUnreadCounts(ctx context.Context) (types.UnreadCounts, error) {
	var counts types.UnreadCounts
	err := c.do(ctx, http.MethodGet, "/api/channels/unread-counts", nil, &counts)
	return counts, err
}

// ListNotifications fetches the notification list, newest first.
func (c *Client) ListNotifications(ctx context.Context) ([]types.Notification, error) {
	var notifications []types.Notification
	err := c.do(ctx, http.MethodGet, "/api/notifications", nil, &notifications)
	return notifications, err
}

// NotificationUnreadCount fetches the unread notification count.
func (c *Client) NotificationUnreadCount(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	err := c.do(ctx, http.MethodGet, "/api/notifications/unread-count", nil, &out)
	return out.Count, err
}

// MarkNotificationRead marks one notification as read.
func (c *Client) MarkNotificationRead(ctx context.Context, notificationID string) error {
	return c.do(ctx, http.MethodPut, "/api/notifications/"+url.PathEscape(notificationID)+"/read", nil, nil)
}

// MarkAllNotificationsRead marks every notification as read.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPut, "/api/notifications/read-all", nil, nil)
}

// DeleteNotification removes one notification.
func (c *Client) DeleteNotification(ctx context.Context, notificationID string) error {
	return c.do(ctx, http.MethodDelete, "/api/notifications/"+url.PathEscape(notificationID), nil, nil)
}

// MessageReadBy fetches the list of user ids that have read a message.
func (c *Client) MessageReadBy(ctx context.Context, messageID string) ([]string, error) {
	var userIDs []string
	err := c.do(ctx, http.MethodGet, "/api/messages/"+url.PathEscape(messageID)+"/read-by", nil, &userIDs)
	return userIDs, err
}
