// Package config loads Sylas's on-disk config.json plus environment
// variable overrides, and watches the file for the repository hot-reload
// spec.md §3 calls for ("reloadable on config file change").
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Repository is one configured repository scope (spec.md §3).
type Repository struct {
	ID              string            `mapstructure:"id"`
	Name            string            `mapstructure:"name"`
	Path            string            `mapstructure:"path"`
	BaseBranch      string            `mapstructure:"baseBranch"`
	WorkspaceDir    string            `mapstructure:"workspaceDir"`
	TrackerID       string            `mapstructure:"trackerId"` // "linear" | "cli-mock" | "slack-mirror"; selects which trackersvc.Tracker instance owns this repo
	TrackerWorkspace string           `mapstructure:"trackerWorkspace"` // tracker-side workspace/org id this repo belongs to
	CredentialsID   string            `mapstructure:"credentialsId"`
	Active          bool              `mapstructure:"active"`
	AllowedTools    []string          `mapstructure:"allowedTools"`
	DisallowedTools []string          `mapstructure:"disallowedTools"`
	LabelPrompts    map[string]string `mapstructure:"labelPrompts"` // label (lowercased) -> procedure name
	UserAccessControl []string        `mapstructure:"userAccessControl"`

	// Runtime selects the runner execution backend for this repository:
	// "" or "standalone" spawns a local child process; "docker" runs it
	// inside a container via internal/runner/dockerrt (SPEC_FULL.md's
	// containerized-runner supplement, generalizing the teacher's
	// Standalone/Docker runtime split). ContainerImage is required when
	// Runtime is "docker".
	Runtime        string `mapstructure:"runtime"`
	ContainerImage string `mapstructure:"containerImage"`
}

// Config holds all configuration sections for Sylas.
type Config struct {
	Repositories []Repository `mapstructure:"repositories"`

	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Runners RunnersConfig `mapstructure:"runners"`
	NATS    NATSConfig    `mapstructure:"nats"`

	GlobalSetupScript string   `mapstructure:"global_setup_script"`
	UserAccessControl []string `mapstructure:"userAccessControl"`

	SylasHome string `mapstructure:"-"` // not persisted; derived from load path
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	HostExternal bool   `mapstructure:"hostExternal"`
	BaseURL      string `mapstructure:"baseUrl"`
	APIKey       string `mapstructure:"apiKey"`
	CloudflareToken string `mapstructure:"-"`

	// WebhookSecret is the shared HMAC secret for "direct" verification
	// mode (spec.md §4.3). Empty falls back to "proxy" mode, which
	// compares APIKey against the inbound bearer token instead.
	WebhookSecret string `mapstructure:"webhookSecret"`
}

// VerificationMode reports which of spec.md §4.3's two webhook
// verification modes this deployment uses: "direct" (HMAC of the raw
// body) when a WebhookSecret is configured, "proxy" (bearer token
// equality against APIKey) otherwise.
func (s ServerConfig) VerificationMode() string {
	if s.WebhookSecret != "" {
		return "direct"
	}
	return "proxy"
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// RunnersConfig holds default-model selection per runner type (spec.md §6).
type RunnersConfig struct {
	ClaudeDefaultModel         string `mapstructure:"claudeDefaultModel"`
	ClaudeDefaultFallbackModel string `mapstructure:"claudeDefaultFallbackModel"`
	GeminiDefaultModel         string `mapstructure:"geminiDefaultModel"`
	CodexDefaultModel          string `mapstructure:"codexDefaultModel"`
	CursorDefaultModel         string `mapstructure:"cursorDefaultModel"`
	OpenCodeDefaultModel       string `mapstructure:"opencodeDefaultModel"`
	AllowedTools               []string `mapstructure:"-"`
	DisallowedTools            []string `mapstructure:"-"`
}

// NATSConfig configures the event bus transport; empty URL means the
// in-process memory bus is used instead (mirrors the teacher's fallback).
type NATSConfig struct {
	URL       string `mapstructure:"url"`
	Namespace string `mapstructure:"namespace"`
}

// Host returns the address the HTTP server should bind to.
func (s ServerConfig) Host() string {
	if s.HostExternal {
		return "0.0.0.0"
	}
	return "127.0.0.1"
}

// Load reads config.json from sylasHome, applies SYLAS_* / legacy env var
// overrides, and returns the validated Config. It does not watch the
// file; NewWatcher does that separately.
func Load(sylasHome string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(sylasHome)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.SylasHome = sylasHome

	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.hostExternal", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "")
	v.SetDefault("logging.outputPath", "stdout")
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.namespace", "")
}

// applyEnvOverrides implements the literal environment-variable table from
// spec.md §6. These intentionally do not go through viper's AutomaticEnv
// because several of them (ALLOWED_TOOLS, SYLAS_HOST_EXTERNAL) don't map
// onto the nested config keys by name.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SYLAS_SERVER_PORT"); v != "" {
		if port, err := parsePort(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SYLAS_HOST_EXTERNAL"); v == "true" {
		cfg.Server.HostExternal = true
	}
	if v := os.Getenv("SYLAS_BASE_URL"); v != "" {
		cfg.Server.BaseURL = v
	}
	if v := os.Getenv("SYLAS_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	cfg.Server.CloudflareToken = os.Getenv("CLOUDFLARE_TOKEN")

	if v := os.Getenv("ALLOWED_TOOLS"); v != "" {
		cfg.Runners.AllowedTools = splitCSV(v)
	}
	if v := os.Getenv("DISALLOWED_TOOLS"); v != "" {
		cfg.Runners.DisallowedTools = splitCSV(v)
	}

	if v := os.Getenv("SYLAS_CLAUDE_DEFAULT_MODEL"); v != "" {
		cfg.Runners.ClaudeDefaultModel = v
	}
	if v := os.Getenv("SYLAS_GEMINI_DEFAULT_MODEL"); v != "" {
		cfg.Runners.GeminiDefaultModel = v
	}
	if v := os.Getenv("SYLAS_CODEX_DEFAULT_MODEL"); v != "" {
		cfg.Runners.CodexDefaultModel = v
	}
	if v := os.Getenv("SYLAS_CURSOR_DEFAULT_MODEL"); v != "" {
		cfg.Runners.CursorDefaultModel = v
	}
	if v := os.Getenv("SYLAS_OPENCODE_DEFAULT_MODEL"); v != "" {
		cfg.Runners.OpenCodeDefaultModel = v
	}

	if cfg.Logging.Format == "" {
		cfg.Logging.Format = detectDefaultLogFormat()
	}
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parsePort(v string) (int, error) {
	var port int
	_, err := fmt.Sscanf(v, "%d", &port)
	return port, err
}

func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("SYLAS_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

func validate(cfg *Config) error {
	var errs []string
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	seen := map[string]bool{}
	for _, r := range cfg.Repositories {
		if r.ID == "" {
			errs = append(errs, "repository entries must have a non-empty id")
			continue
		}
		if seen[r.ID] {
			errs = append(errs, fmt.Sprintf("duplicate repository id %q", r.ID))
		}
		seen[r.ID] = true
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Watcher watches config.json for changes and notifies subscribers with
// the freshly reloaded Config. Only the repository list is expected to
// change at runtime per spec.md §3 ("mutations only via an external config
// editor"); subscribers are responsible for diffing what they care about.
type Watcher struct {
	sylasHome string
	mu        sync.Mutex
	fsw       *fsnotify.Watcher
	onChange  func(*Config)
}

// NewWatcher starts watching config.json under sylasHome. onChange is
// invoked (from the watcher's own goroutine) with the newly loaded Config
// whenever the file changes; load errors are swallowed (the previous
// config keeps being used) since a half-written file mid-edit is common.
func NewWatcher(sylasHome string, onChange func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating config watcher: %w", err)
	}
	path := filepath.Join(sylasHome, "config.json")
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching config dir: %w", err)
	}

	w := &Watcher{sylasHome: sylasHome, fsw: fsw, onChange: onChange}
	go w.loop(path)
	return w, nil
}

func (w *Watcher) loop(configPath string) {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(configPath) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.sylasHome)
			if err != nil {
				continue
			}
			w.onChange(cfg)
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
