// Package config provides configuration loading and path management for the
// agentdeck server. Files are JSON or JSONC (tidwall/jsonc); a .env file in
// the working directory is honored via godotenv; environment variables win
// over everything.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
)

// Config holds the agentdeck server configuration.
type Config struct {
	// Host and Port for the HTTP/websocket listener.
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`

	// AllowedOrigins gates websocket upgrades. Empty means same-host only;
	// a single "*" entry disables the check.
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`

	// AuthToken, when set, must be presented at upgrade time via the
	// Authorization header or a token query parameter.
	AuthToken string `json:"authToken,omitempty"`

	// SessionsDir is where session records, message logs and trees live.
	SessionsDir string `json:"sessionsDir,omitempty"`

	// ResourcesDir is watched for changes; reload_resources re-reads it.
	ResourcesDir string `json:"resourcesDir,omitempty"`

	// UIDir holds static assets served at /.
	UIDir string `json:"uiDir,omitempty"`

	// ThinkingLevel is the default for new sessions: off|normal|deep.
	ThinkingLevel string `json:"thinkingLevel,omitempty"`

	// DialogTimeoutMs bounds how long a UI dialog waits for a reply.
	DialogTimeoutMs int `json:"dialogTimeoutMs,omitempty"`

	LogLevel string `json:"logLevel,omitempty"`
}

// Default values applied after all sources are merged.
const (
	DefaultPort          = 8080
	DefaultDialogTimeout = 60 * time.Second
)

// Load loads configuration from multiple sources (priority order):
//  1. Global config (~/.agentdeck/)
//  2. XDG global config (~/.config/agentdeck/)
//  3. Project config (<dir>/.agentdeck/, <dir>/agentdeck.json[c])
//  4. AGENTDECK_CONFIG file
//  5. Environment variables
func Load(directory string) (*Config, error) {
	// Best effort; a missing .env is the normal case.
	_ = godotenv.Load(filepath.Join(directory, ".env"))

	cfg := &Config{}
	loaded := make(map[string]bool)

	loadOnce := func(path string) {
		absPath, err := filepath.Abs(path)
		if err != nil || loaded[absPath] {
			return
		}
		if loadFile(path, cfg) == nil {
			loaded[absPath] = true
		}
	}

	if home := os.Getenv("HOME"); home != "" {
		dir := filepath.Join(home, ".agentdeck")
		loadOnce(filepath.Join(dir, "agentdeck.json"))
		loadOnce(filepath.Join(dir, "agentdeck.jsonc"))
	}

	xdg := os.Getenv("XDG_CONFIG_HOME")
	if xdg == "" {
		xdg = filepath.Join(os.Getenv("HOME"), ".config")
	}
	loadOnce(filepath.Join(xdg, "agentdeck", "agentdeck.json"))
	loadOnce(filepath.Join(xdg, "agentdeck", "agentdeck.jsonc"))

	if directory != "" {
		loadOnce(filepath.Join(directory, "agentdeck.json"))
		loadOnce(filepath.Join(directory, "agentdeck.jsonc"))
		loadOnce(filepath.Join(directory, ".agentdeck", "agentdeck.json"))
		loadOnce(filepath.Join(directory, ".agentdeck", "agentdeck.jsonc"))
	}

	if path := os.Getenv("AGENTDECK_CONFIG"); path != "" {
		loadOnce(path)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg, directory)

	return cfg, nil
}

// loadFile merges a single JSON/JSONC file into cfg.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var layer Config
	if err := json.Unmarshal(jsonc.ToJSON(data), &layer); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	merge(cfg, &layer)
	return nil
}

func merge(dst, src *Config) {
	if src.Host != "" {
		dst.Host = src.Host
	}
	if src.Port != 0 {
		dst.Port = src.Port
	}
	if len(src.AllowedOrigins) > 0 {
		dst.AllowedOrigins = src.AllowedOrigins
	}
	if src.AuthToken != "" {
		dst.AuthToken = src.AuthToken
	}
	if src.SessionsDir != "" {
		dst.SessionsDir = src.SessionsDir
	}
	if src.ResourcesDir != "" {
		dst.ResourcesDir = src.ResourcesDir
	}
	if src.UIDir != "" {
		dst.UIDir = src.UIDir
	}
	if src.ThinkingLevel != "" {
		dst.ThinkingLevel = src.ThinkingLevel
	}
	if src.DialogTimeoutMs != 0 {
		dst.DialogTimeoutMs = src.DialogTimeoutMs
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AGENTDECK_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("AGENTDECK_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("AGENTDECK_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitAndTrim(v)
	}
	if v := os.Getenv("AGENTDECK_AUTH_TOKEN"); v != "" {
		cfg.AuthToken = v
	}
	if v := os.Getenv("AGENTDECK_SESSIONS_DIR"); v != "" {
		cfg.SessionsDir = v
	}
	if v := os.Getenv("AGENTDECK_RESOURCES_DIR"); v != "" {
		cfg.ResourcesDir = v
	}
	if v := os.Getenv("AGENTDECK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func applyDefaults(cfg *Config, directory string) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.SessionsDir == "" {
		cfg.SessionsDir = filepath.Join(dataHome(), "agentdeck", "sessions")
	}
	if cfg.ResourcesDir == "" && directory != "" {
		cfg.ResourcesDir = filepath.Join(directory, ".agentdeck", "resources")
	}
	if cfg.ThinkingLevel == "" {
		cfg.ThinkingLevel = "normal"
	}
	if cfg.DialogTimeoutMs == 0 {
		cfg.DialogTimeoutMs = int(DefaultDialogTimeout / time.Millisecond)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "INFO"
	}
}

// DialogTimeout returns DialogTimeoutMs as a duration.
func (c *Config) DialogTimeout() time.Duration {
	return time.Duration(c.DialogTimeoutMs) * time.Millisecond
}

func dataHome() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return v
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "share")
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
