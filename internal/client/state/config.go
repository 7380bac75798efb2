// Package state holds the terminal client's configuration and the small
// amount of local state it persists between runs.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"codearena/internal/client/bot"
	"codearena/internal/client/lobby"
	"codearena/internal/client/match"
	"codearena/internal/client/startseq"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ServerURL      string        `yaml:"server_url"`
	Token          string        `yaml:"token,omitempty"`
	UserID         string        `yaml:"user_id,omitempty"`
	DisplayName    string        `yaml:"display_name,omitempty"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	StateFile      string        `yaml:"state_file"`

	Lobby struct {
		PollInterval        time.Duration `yaml:"poll_interval"`
		ClosedRedirectDelay time.Duration `yaml:"closed_redirect_delay"`
		Countdown           time.Duration `yaml:"countdown"`
	} `yaml:"lobby"`

	Game struct {
		PollInterval          time.Duration `yaml:"poll_interval"`
		FinishedRedirectDelay time.Duration `yaml:"finished_redirect_delay"`
	} `yaml:"game"`

	Bot struct {
		Tick        time.Duration `yaml:"tick"`
		RevealDelay time.Duration `yaml:"reveal_delay"`
	} `yaml:"bot"`
}

// DefaultDir is where the client keeps its files, ~/.codearena.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".codearena"
	}
	return filepath.Join(home, ".codearena")
}

func DefaultConfig() Config {
	var c Config
	c.ServerURL = "http://localhost:8080"
	c.RequestTimeout = 10 * time.Second
	c.StateFile = filepath.Join(DefaultDir(), "state.yaml")
	c.Lobby.PollInterval = lobby.DefaultPollInterval
	c.Lobby.ClosedRedirectDelay = lobby.DefaultClosedRedirectDelay
	c.Lobby.Countdown = startseq.DefaultCountdown
	c.Game.PollInterval = match.DefaultPollInterval
	c.Game.FinishedRedirectDelay = match.DefaultFinishedRedirectDelay
	c.Bot.Tick = bot.TickInterval
	c.Bot.RevealDelay = bot.RevealDelay
	return c
}

// LoadConfig reads path over the defaults. A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func SaveConfig(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return writeFile(path, data)
}

// writeFile replaces path atomically, creating its directory if needed.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
