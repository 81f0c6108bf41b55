// Package config loads feedspool preferences from a TOML file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Prefs holds the user preferences consulted by the update pipeline.
type Prefs struct {
	// KeepHours is the story retention window: non-starred stories that
	// are read or older than this are removal candidates once they drop
	// out of their feed's document.
	KeepHours int `toml:"keep_hours"`

	// UpdateOnStart triggers a full update when the app comes up.
	UpdateOnStart bool `toml:"update_on_start"`

	// NotificationEnabled allows the background new-story notification.
	NotificationEnabled bool `toml:"notification_enabled"`

	// ProbeAddress is the TCP endpoint used for the reachability check
	// before each fetch.
	ProbeAddress string `toml:"probe_address"`

	// FetchTimeoutSeconds bounds one HTTP fetch including retries.
	FetchTimeoutSeconds int `toml:"fetch_timeout_seconds"`
}

// Default returns the preferences used when no config file exists.
func Default() *Prefs {
	return &Prefs{
		KeepHours:           72,
		UpdateOnStart:       true,
		NotificationEnabled: true,
		ProbeAddress:        "one.one.one.one:443",
		FetchTimeoutSeconds: 60,
	}
}

// Load reads preferences from path, filling unset fields with defaults.
// A missing file is not an error: defaults are returned.
func Load(path string) (*Prefs, error) {
	prefs := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return prefs, nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, prefs); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if prefs.KeepHours <= 0 {
		prefs.KeepHours = Default().KeepHours
	}
	if prefs.FetchTimeoutSeconds <= 0 {
		prefs.FetchTimeoutSeconds = Default().FetchTimeoutSeconds
	}
	return prefs, nil
}

// KeepWindow returns the retention window as a duration.
func (p *Prefs) KeepWindow() time.Duration {
	return time.Duration(p.KeepHours) * time.Hour
}

// FetchTimeout returns the per-fetch timeout as a duration.
func (p *Prefs) FetchTimeout() time.Duration {
	return time.Duration(p.FetchTimeoutSeconds) * time.Second
}
