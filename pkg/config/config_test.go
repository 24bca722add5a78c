package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Socket.ReconnectBase() != time.Second {
		t.Errorf("reconnect base: got %v", cfg.Socket.ReconnectBase())
	}
	if cfg.Socket.ReconnectCap() != 30*time.Second {
		t.Errorf("reconnect cap: got %v", cfg.Socket.ReconnectCap())
	}
	if cfg.Socket.MaxReconnectAttempts != 10 {
		t.Errorf("max attempts: got %d", cfg.Socket.MaxReconnectAttempts)
	}
	if cfg.Socket.AuthTimeout() != 10*time.Second {
		t.Errorf("auth timeout: got %v", cfg.Socket.AuthTimeout())
	}
	if cfg.Socket.SendTimeout() != 5*time.Second {
		t.Errorf("send timeout: got %v", cfg.Socket.SendTimeout())
	}
	if cfg.Poll.UnreadInterval() != 30*time.Second {
		t.Errorf("unread interval: got %v", cfg.Poll.UnreadInterval())
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log level: got %q", cfg.Log.Level)
	}
}

func TestLoadConfig_MissingFileFallsBack(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Socket.ReconnectBaseMS != 1000 {
		t.Errorf("expected defaults, got base %d", cfg.Socket.ReconnectBaseMS)
	}
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
  "server": {"url": "https://chat.example.com", "token": "tok-1"},
  "socket": {"reconnect_base_ms": 250}
}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.URL != "https://chat.example.com" {
		t.Errorf("server url: got %q", cfg.Server.URL)
	}
	if cfg.Socket.ReconnectBaseMS != 250 {
		t.Errorf("reconnect base: got %d", cfg.Socket.ReconnectBaseMS)
	}
	// untouched fields keep their defaults
	if cfg.Socket.MaxReconnectAttempts != 10 {
		t.Errorf("max attempts: got %d", cfg.Socket.MaxReconnectAttempts)
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"server":{"url":"https://file.example.com"}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("HUDDLE_SERVER_URL", "https://env.example.com")
	t.Setenv("HUDDLE_SOCKET_SEND_TIMEOUT_MS", "1234")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.URL != "https://env.example.com" {
		t.Errorf("server url: got %q", cfg.Server.URL)
	}
	if cfg.Socket.SendTimeoutMS != 1234 {
		t.Errorf("send timeout: got %d", cfg.Socket.SendTimeoutMS)
	}
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{broken`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error for malformed config")
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "nested", "config.json")

	cfg := DefaultConfig()
	cfg.Server.URL = "https://chat.example.com"
	cfg.Server.Token = "tok-1"

	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Server.URL != cfg.Server.URL || loaded.Server.Token != cfg.Server.Token {
		t.Errorf("round trip mismatch: %+v", loaded.Server)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config mode: got %v, want 0600", info.Mode().Perm())
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); !errors.Is(err, ErrNoServerURL) {
		t.Errorf("expected ErrNoServerURL, got %v", err)
	}

	cfg.Server.URL = "https://chat.example.com"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
