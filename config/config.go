// Package config manages persistent local settings for a canvasmesh
// client: display preferences and the signaling endpoint to join. Peer
// identity is deliberately NOT persisted; identities are session-scoped
// and regenerated on every launch.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
)

const (
	// AppDirectoryName is the per-user application data directory name.
	AppDirectoryName = "canvasmesh"
	// SignalModeMulticast joins the LAN multicast group directly.
	SignalModeMulticast = "multicast"
	// SignalModeHub relays signals through a websocket hub.
	SignalModeHub = "hub"
	// configFileName is the persisted configuration file.
	configFileName = "config.json"
)

// SessionConfig contains persistent local settings.
type SessionConfig struct {
	// DisplayName and Color override the random identity enumeration
	// draw when non-empty.
	DisplayName string `json:"display_name"`
	Color       string `json:"color"`

	SignalMode       string `json:"signal_mode"`
	MulticastAddress string `json:"multicast_address"`
	HubURL           string `json:"hub_url"`

	// PresenceIntervalSeconds overrides the presence beacon interval
	// when positive.
	PresenceIntervalSeconds int `json:"presence_interval_seconds"`

	// SessionName names the session for mDNS advertisement and lookup.
	// Empty disables session discovery.
	SessionName string `json:"session_name"`
	// Advertise publishes this client's signaling endpoint over mDNS so
	// other LAN clients can locate the session by name.
	Advertise bool `json:"advertise"`
}

// ResolveDataDir returns the OS-aware app data directory.
//
// If CANVASMESH_DATA_DIR is set, its value is used as an explicit override.
func ResolveDataDir() (string, error) {
	if override := os.Getenv("CANVASMESH_DATA_DIR"); override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	switch runtime.GOOS {
	case "windows":
		base := os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(base, AppDirectoryName), nil
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", AppDirectoryName), nil
	default:
		base := os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			base = filepath.Join(home, ".config")
		}
		return filepath.Join(base, AppDirectoryName), nil
	}
}

// ConfigPath returns the full path to config.json for a data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, configFileName)
}

// Load reads and unmarshals config.json from disk.
func Load(path string) (*SessionConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg SessionConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// Save marshals and writes config.json to disk.
func Save(path string, cfg *SessionConfig) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	raw = append(raw, '\n')
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// LoadOrCreate ensures the data directory and config exist, then returns
// the config and its path.
func LoadOrCreate() (*SessionConfig, string, error) {
	dataDir, err := ResolveDataDir()
	if err != nil {
		return nil, "", err
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, "", fmt.Errorf("create data directory: %w", err)
	}

	cfgPath := ConfigPath(dataDir)
	cfg, err := Load(cfgPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", err
		}

		cfg = defaultConfig()
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", err
		}
		return cfg, cfgPath, nil
	}

	if normalizeDefaults(cfg) {
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", err
		}
	}

	return cfg, cfgPath, nil
}

func defaultConfig() *SessionConfig {
	return &SessionConfig{
		SignalMode: SignalModeMulticast,
	}
}

func normalizeDefaults(cfg *SessionConfig) bool {
	updated := false

	switch cfg.SignalMode {
	case SignalModeMulticast:
	case SignalModeHub:
		if cfg.HubURL == "" {
			// Hub mode without an endpoint cannot work; fall back.
			cfg.SignalMode = SignalModeMulticast
			updated = true
		}
	default:
		cfg.SignalMode = SignalModeMulticast
		updated = true
	}

	if cfg.PresenceIntervalSeconds < 0 {
		cfg.PresenceIntervalSeconds = 0
		updated = true
	}

	return updated
}
