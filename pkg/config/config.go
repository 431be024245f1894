// Package config loads the strand client configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds client settings. Every duration knob has a default tuned for
// interactive use; the config file only needs to override what differs.
type Config struct {
	// Server is the base URL of the chat service, e.g. "https://api.example.com".
	Server string `yaml:"server"`
	// Token is the bearer token used for authenticated calls. Empty means
	// unauthenticated: the engine will refuse to submit turns.
	Token string `yaml:"token"`

	// DataDir is where the client keeps its local state database.
	DataDir string `yaml:"data_dir"`

	Playback PlaybackConfig `yaml:"playback"`

	// AdvanceCooldown throttles repeated empty "continue" submissions.
	AdvanceCooldown time.Duration `yaml:"advance_cooldown"`
	// FailSafeTimeout force-unlocks the input if no completion signal arrives.
	FailSafeTimeout time.Duration `yaml:"fail_safe_timeout"`
	// LivenessTTL bounds how long an "awaiting response" record survives a reload.
	LivenessTTL time.Duration `yaml:"liveness_ttl"`
	// HistoryPageSize is how many messages to request on room open.
	HistoryPageSize int `yaml:"history_page_size"`
}

// PlaybackConfig bounds the simulated-typing reveal of confirmed text.
type PlaybackConfig struct {
	MinDuration time.Duration `yaml:"min_duration"`
	MaxDuration time.Duration `yaml:"max_duration"`
	Tick        time.Duration `yaml:"tick"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DataDir: filepath.Join(home, ".local", "share", "strand"),
		Playback: PlaybackConfig{
			MinDuration: 600 * time.Millisecond,
			MaxDuration: 6 * time.Second,
			Tick:        40 * time.Millisecond,
		},
		AdvanceCooldown: 3 * time.Second,
		FailSafeTimeout: 45 * time.Second,
		LivenessTTL:     3 * time.Minute,
		HistoryPageSize: 100,
	}
}

// DefaultPath returns the conventional config file location.
func DefaultPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "strand", "config.yml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "strand", "config.yml")
}

// Load reads the config file at path, falling back to defaults for anything
// unset. A missing file is not an error. STRAND_SERVER and STRAND_TOKEN
// environment variables override the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if v := os.Getenv("STRAND_SERVER"); v != "" {
		cfg.Server = v
	}
	if v := os.Getenv("STRAND_TOKEN"); v != "" {
		cfg.Token = v
	}

	cfg.applyFloors()
	return cfg, nil
}

// applyFloors keeps nonsensical overrides from wedging the engine.
func (c *Config) applyFloors() {
	if c.Playback.Tick < 10*time.Millisecond {
		c.Playback.Tick = 10 * time.Millisecond
	}
	if c.Playback.MinDuration <= 0 {
		c.Playback.MinDuration = Default().Playback.MinDuration
	}
	if c.Playback.MaxDuration < c.Playback.MinDuration {
		c.Playback.MaxDuration = c.Playback.MinDuration
	}
	if c.FailSafeTimeout < 5*time.Second {
		c.FailSafeTimeout = 5 * time.Second
	}
	if c.LivenessTTL <= 0 {
		c.LivenessTTL = Default().LivenessTTL
	}
	if c.HistoryPageSize <= 0 {
		c.HistoryPageSize = Default().HistoryPageSize
	}
}
