// Package config loads client configuration from a JSON file with
// environment-variable overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// ErrNoServerURL is returned when no backend URL is configured.
var ErrNoServerURL = errors.New("server url is required")

type Config struct {
	Server ServerConfig `json:"server"`
	Socket SocketConfig `json:"socket"`
	Poll   PollConfig   `json:"poll"`
	Log    LogConfig    `json:"log"`
}

// ServerConfig points at the backend that owns the REST API and the
// WebSocket gateway. URL is the HTTP base; the socket URL is derived
// from it.
type ServerConfig struct {
	URL   string `env:"HUDDLE_SERVER_URL"   json:"url"`
	Token string `env:"HUDDLE_SERVER_TOKEN" json:"token"`
}

// SocketConfig tunes the transport's reconnect and timeout behavior.
// Delays are in milliseconds.
type SocketConfig struct {
	ReconnectBaseMS      int `env:"HUDDLE_SOCKET_RECONNECT_BASE_MS"      json:"reconnect_base_ms"`
	ReconnectCapMS       int `env:"HUDDLE_SOCKET_RECONNECT_CAP_MS"       json:"reconnect_cap_ms"`
	MaxReconnectAttempts int `env:"HUDDLE_SOCKET_MAX_RECONNECT_ATTEMPTS" json:"max_reconnect_attempts"`
	AuthTimeoutMS        int `env:"HUDDLE_SOCKET_AUTH_TIMEOUT_MS"        json:"auth_timeout_ms"`
	SendTimeoutMS        int `env:"HUDDLE_SOCKET_SEND_TIMEOUT_MS"        json:"send_timeout_ms"`
}

func (s SocketConfig) ReconnectBase() time.Duration {
	return time.Duration(s.ReconnectBaseMS) * time.Millisecond
}

func (s SocketConfig) ReconnectCap() time.Duration {
	return time.Duration(s.ReconnectCapMS) * time.Millisecond
}

func (s SocketConfig) AuthTimeout() time.Duration {
	return time.Duration(s.AuthTimeoutMS) * time.Millisecond
}

func (s SocketConfig) SendTimeout() time.Duration {
	return time.Duration(s.SendTimeoutMS) * time.Millisecond
}

// PollConfig tunes the unread-count backstop polling. The poller runs
// whether or not the socket is connected.
type PollConfig struct {
	UnreadIntervalSeconds int `env:"HUDDLE_POLL_UNREAD_INTERVAL_SECONDS" json:"unread_interval_seconds"`
}

func (p PollConfig) UnreadInterval() time.Duration {
	return time.Duration(p.UnreadIntervalSeconds) * time.Second
}

type LogConfig struct {
	Level string `env:"HUDDLE_LOG_LEVEL" json:"level"`
}

// DefaultConfig returns the built-in defaults: 1s reconnect base capped
// at 30s over at most 10 attempts, 10s auth handshake timeout, 5s send
// confirmation timeout and 30s unread polling.
func DefaultConfig() *Config {
	return &Config{
		Socket: SocketConfig{
			ReconnectBaseMS:      1000,
			ReconnectCapMS:       30000,
			MaxReconnectAttempts: 10,
			AuthTimeoutMS:        10000,
			SendTimeoutMS:        5000,
		},
		Poll: PollConfig{
			UnreadIntervalSeconds: 30,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig reads path (missing file falls back to defaults) and then
// applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(expandHome(path))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SaveConfig writes cfg to path, creating parent directories.
func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	path = expandHome(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks the fields a live session cannot run without.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return ErrNoServerURL
	}
	if _, err := url.Parse(c.Server.URL); err != nil {
		return fmt.Errorf("invalid server url: %w", err)
	}
	return nil
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
