package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
	if cfg.Lobby.PollInterval != 2*time.Second || cfg.Game.PollInterval != 1500*time.Millisecond {
		t.Fatalf("poll intervals = %v / %v", cfg.Lobby.PollInterval, cfg.Game.PollInterval)
	}
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server_url: https://arena.example
token: abc
lobby:
  poll_interval: 500ms
bot:
  reveal_delay: 1s
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	want := DefaultConfig()
	want.ServerURL = "https://arena.example"
	want.Token = "abc"
	want.Lobby.PollInterval = 500 * time.Millisecond
	want.Bot.RevealDelay = time.Second
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("lobby: [not, a, map"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Token = "tok"
	cfg.UserID = "u-1"
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestFileStoreLastRoom(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "state.yaml"))
	s.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }

	if code, err := s.LastRoom(); err != nil || code != "" {
		t.Fatalf("empty store = %q, %v", code, err)
	}
	if err := s.SaveLastRoom(" abcd2345 "); err != nil {
		t.Fatalf("SaveLastRoom: %v", err)
	}
	if code, _ := s.LastRoom(); code != "ABCD2345" {
		t.Fatalf("LastRoom = %q", code)
	}

	if err := s.ClearLastRoom("OTHER234"); err != nil {
		t.Fatalf("ClearLastRoom: %v", err)
	}
	if code, _ := s.LastRoom(); code != "ABCD2345" {
		t.Fatal("clearing another room forgot the remembered one")
	}
	if err := s.ClearLastRoom("abcd2345"); err != nil {
		t.Fatalf("ClearLastRoom: %v", err)
	}
	if code, _ := s.LastRoom(); code != "" {
		t.Fatalf("LastRoom after clear = %q", code)
	}
}
