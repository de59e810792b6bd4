// Package config loads sweep default settings from a JSON file, so a lab
// setup can pin its filename template, settle times and polling cadence
// without repeating them on every invocation.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SweepDefaults holds the file-configurable defaults applied before flags.
// All fields are optional; nil means "use the built-in default", so partial
// config files are safe.
type SweepDefaults struct {
	// FilenameTemplate is the default output filename template.
	FilenameTemplate *string `json:"filename_template,omitempty"`

	// SettleTime is the per-reader settle time, as a duration string
	// like "50ms".
	SettleTime *string `json:"settle_time,omitempty"`
	// BeforeWait is the settle wait after each axis move.
	BeforeWait *string `json:"before_wait,omitempty"`
	// FirstWait is the extra settle when an axis jumps back to its first
	// value.
	FirstWait *string `json:"first_wait,omitempty"`
	// PollInterval is the pause/abort polling cadence.
	PollInterval *string `json:"poll_interval,omitempty"`

	// Async selects the staged read protocol.
	Async *bool `json:"async,omitempty"`
	// StorePath is the run-store sqlite database path.
	StorePath *string `json:"store_path,omitempty"`
}

// Load reads SweepDefaults from a JSON file. The path must end in .json;
// omitted fields stay nil.
func Load(path string) (*SweepDefaults, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := &SweepDefaults{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that every set duration string parses.
func (c *SweepDefaults) Validate() error {
	for name, v := range map[string]*string{
		"settle_time":   c.SettleTime,
		"before_wait":   c.BeforeWait,
		"first_wait":    c.FirstWait,
		"poll_interval": c.PollInterval,
	} {
		if v == nil || *v == "" {
			continue
		}
		if _, err := time.ParseDuration(*v); err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
	}
	return nil
}

// Duration returns the named duration field, or fallback when unset. Call
// Validate first; an unparseable value falls back silently here.
func duration(v *string, fallback time.Duration) time.Duration {
	if v == nil || *v == "" {
		return fallback
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fallback
	}
	return d
}

// GetSettleTime returns the settle time, or fallback when unset.
func (c *SweepDefaults) GetSettleTime(fallback time.Duration) time.Duration {
	return duration(c.SettleTime, fallback)
}

// GetBeforeWait returns the axis-move settle wait, or fallback when unset.
func (c *SweepDefaults) GetBeforeWait(fallback time.Duration) time.Duration {
	return duration(c.BeforeWait, fallback)
}

// GetFirstWait returns the first-value extra settle, or fallback when unset.
func (c *SweepDefaults) GetFirstWait(fallback time.Duration) time.Duration {
	return duration(c.FirstWait, fallback)
}

// GetPollInterval returns the polling cadence, or fallback when unset.
func (c *SweepDefaults) GetPollInterval(fallback time.Duration) time.Duration {
	return duration(c.PollInterval, fallback)
}

// GetFilenameTemplate returns the filename template, or fallback when unset.
func (c *SweepDefaults) GetFilenameTemplate(fallback string) string {
	if c.FilenameTemplate == nil || *c.FilenameTemplate == "" {
		return fallback
	}
	return *c.FilenameTemplate
}

// GetAsync returns the async selection, or fallback when unset.
func (c *SweepDefaults) GetAsync(fallback bool) bool {
	if c.Async == nil {
		return fallback
	}
	return *c.Async
}

// GetStorePath returns the run-store path, or fallback when unset.
func (c *SweepDefaults) GetStorePath(fallback string) string {
	if c.StorePath == nil || *c.StorePath == "" {
		return fallback
	}
	return *c.StorePath
}
