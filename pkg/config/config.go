// Package config loads and validates the mixer's TOML configuration file
// (spec §6 "Configuration file"): global settings, and one or more
// channels, each with at most one network-video input and zero or more
// browser overlays, plus their filter bindings.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Error identifies the offending field of a malformed config, so the CLI
// can report it precisely and exit 2 (spec §6 "CLI").
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Settings is the top-level [settings] table.
type Settings struct {
	StatusPort int    `toml:"status_port"`
	LogLevel   string `toml:"log_level"`
}

// Filter is one [[channel.filter]]/[channel.ndi_input.filter]/
// [channel.browser_overlay.filter] binding.
type Filter struct {
	Name   string    `toml:"name"`
	Params []float32 `toml:"params"`
}

// NDIInput is a channel's optional [channel.ndi_input] table.
type NDIInput struct {
	Source  string   `toml:"source"`
	ZIndex  int      `toml:"z_index"`
	Opacity float64  `toml:"opacity"`
	Filter  []Filter `toml:"filter"`
}

// BrowserOverlay is one [[channel.browser_overlay]] entry.
type BrowserOverlay struct {
	URL            string   `toml:"url"`
	Width          int      `toml:"width"`
	Height         int      `toml:"height"`
	ZIndex         int      `toml:"z_index"`
	Opacity        float64  `toml:"opacity"`
	CSS            string   `toml:"css"`
	ReloadInterval int      `toml:"reload_interval"`
	Filter         []Filter `toml:"filter"`
}

// Channel is one [[channel]] entry.
type Channel struct {
	Name            string           `toml:"name"`
	OutputName      string           `toml:"output_name"`
	Width           int              `toml:"width"`
	Height          int              `toml:"height"`
	FrameRate       int              `toml:"frame_rate"`
	NDIInput        *NDIInput        `toml:"ndi_input"`
	BrowserOverlay  []BrowserOverlay `toml:"browser_overlay"`
	Filter          []Filter         `toml:"filter"`
}

// Config is the root of config.toml.
type Config struct {
	Settings Settings  `toml:"settings"`
	Channel  []Channel `toml:"channel"`
}

// defaults the spec assigns when a key is absent.
const (
	defaultFrameRate      = 30
	defaultOverlayZIndex  = 1
	defaultOpacity        = 1.0
	defaultStatusPort     = 8080
	defaultLogLevel       = "info"
)

// Load reads and parses path, applies field defaults, and validates the
// result. A malformed or invalid file returns *Error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	// status_port is preset so that an absent key gets the default while an
	// explicit 0 survives decoding and disables the status endpoint.
	cfg := Config{Settings: Settings{StatusPort: defaultStatusPort}}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, &Error{Field: path, Reason: err.Error()}
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Settings.LogLevel == "" {
		cfg.Settings.LogLevel = defaultLogLevel
	}
	for i := range cfg.Channel {
		ch := &cfg.Channel[i]
		if ch.FrameRate == 0 {
			ch.FrameRate = defaultFrameRate
		}
		if ch.NDIInput != nil && ch.NDIInput.Opacity == 0 {
			ch.NDIInput.Opacity = defaultOpacity
		}
		for j := range ch.BrowserOverlay {
			ov := &ch.BrowserOverlay[j]
			if ov.ZIndex == 0 {
				ov.ZIndex = defaultOverlayZIndex
			}
			if ov.Opacity == 0 {
				ov.Opacity = defaultOpacity
			}
		}
	}
}

func validate(cfg *Config) error {
	switch cfg.Settings.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return &Error{Field: "settings.log_level", Reason: fmt.Sprintf("must be one of debug|info|warn|error, got %q", cfg.Settings.LogLevel)}
	}
	if cfg.Settings.StatusPort < 0 || cfg.Settings.StatusPort > 65535 {
		return &Error{Field: "settings.status_port", Reason: "must be in [0, 65535]"}
	}
	if len(cfg.Channel) == 0 {
		return &Error{Field: "channel", Reason: "at least one [[channel]] is required"}
	}

	seen := make(map[string]bool, len(cfg.Channel))
	for i, ch := range cfg.Channel {
		field := fmt.Sprintf("channel[%d]", i)
		if ch.Name == "" {
			return &Error{Field: field + ".name", Reason: "required"}
		}
		if seen[ch.Name] {
			return &Error{Field: field + ".name", Reason: fmt.Sprintf("duplicate channel name %q", ch.Name)}
		}
		seen[ch.Name] = true
		if ch.OutputName == "" {
			return &Error{Field: field + ".output_name", Reason: "required"}
		}
		if ch.Width <= 0 || ch.Height <= 0 {
			return &Error{Field: field, Reason: "width and height must be positive"}
		}
		if ch.NDIInput != nil {
			if ch.NDIInput.Opacity < 0 || ch.NDIInput.Opacity > 1 {
				return &Error{Field: field + ".ndi_input.opacity", Reason: "must be in [0, 1]"}
			}
		}
		for j, ov := range ch.BrowserOverlay {
			ovField := fmt.Sprintf("%s.browser_overlay[%d]", field, j)
			if ov.URL == "" {
				return &Error{Field: ovField + ".url", Reason: "required"}
			}
			if ov.Width <= 0 || ov.Height <= 0 {
				return &Error{Field: ovField, Reason: "width and height must be positive"}
			}
			if ov.Opacity < 0 || ov.Opacity > 1 {
				return &Error{Field: ovField + ".opacity", Reason: "must be in [0, 1]"}
			}
		}
	}
	return nil
}
