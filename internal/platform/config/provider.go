package config

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/snowflake"

	platformstrings "sentrybot/pkg/platform/strings"
)

// Provider serves the current configuration and swaps it atomically on Reload, so the
// event policy and channel ids change without a restart.
type Provider struct {
	path    string
	logger  *slog.Logger
	current atomic.Pointer[Settings]
	mu      sync.Mutex
}

// Settings is a validated configuration snapshot.
type Settings struct {
	Config          *Config
	LogChannelID    string
	NotifyChannelID string
	AdminRoleIDs    []string
	DevGuildID      string
}

// NewProvider reads path and returns a provider holding the validated result.
func NewProvider(path string, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Provider{path: path, logger: logger}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// NewStaticProvider wraps an already loaded configuration. Reload re-validates it.
func NewStaticProvider(cfg *Config, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Provider{logger: logger}
	p.current.Store(validate(cfg, logger))
	return p
}

// Reload re-reads the configuration file. On failure the previous snapshot stays active.
func (p *Provider) Reload() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.path == "" && p.current.Load() != nil {
		return nil
	}
	cfg, err := Read(p.path)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}
	p.current.Store(validate(cfg, p.logger))
	p.logger.Info("configuration loaded",
		"path", p.path,
		"enabled_events", countEnabled(cfg.Events),
	)
	return nil
}

// Current returns the active snapshot.
func (p *Provider) Current() *Settings {
	return p.current.Load()
}

// Enabled implements auditlog.Policy. Absent keys are disabled.
func (p *Provider) Enabled(policyKey string) bool {
	s := p.current.Load()
	if s == nil {
		return false
	}
	return s.Config.Events[policyKey]
}

// LogChannelID returns the mirror channel, falling back to the notify channel.
func (p *Provider) LogChannelID() string {
	s := p.current.Load()
	if s == nil {
		return ""
	}
	if s.LogChannelID != "" {
		return s.LogChannelID
	}
	return s.NotifyChannelID
}

// NotifyChannelID returns the channel for lifecycle notices, falling back to the log
// channel.
func (p *Provider) NotifyChannelID() string {
	s := p.current.Load()
	if s == nil {
		return ""
	}
	if s.NotifyChannelID != "" {
		return s.NotifyChannelID
	}
	return s.LogChannelID
}

// AdminRoleIDs returns the validated admin role ids.
func (p *Provider) AdminRoleIDs() []string {
	s := p.current.Load()
	if s == nil {
		return nil
	}
	return s.AdminRoleIDs
}

// validate resolves raw ids. Invalid admin role ids are skipped with a warning; an
// invalid channel id is treated as unset.
func validate(cfg *Config, logger *slog.Logger) *Settings {
	s := &Settings{Config: cfg}
	s.LogChannelID = checkID(logger, "log_channel_id", cfg.LogChannelID)
	s.NotifyChannelID = checkID(logger, "notify_channel_id", cfg.NotifyChannelID)
	s.DevGuildID = checkID(logger, "dev_guild_id", cfg.DevGuildID)

	roles := make([]string, 0, len(cfg.AdminRoleIDs))
	for _, raw := range cfg.AdminRoleIDs {
		if id := checkID(logger, "admin_role_ids", raw); id != "" {
			roles = append(roles, id)
		}
	}
	s.AdminRoleIDs = platformstrings.DedupeAndTrim(roles)
	return s
}

func checkID(logger *slog.Logger, key string, raw RawID) string {
	if raw == "" {
		return ""
	}
	id, err := snowflake.ParseString(string(raw))
	if err != nil || id <= 0 {
		logger.Warn("invalid id in config, skipping", "key", key, "value", string(raw))
		return ""
	}
	return id.String()
}

func countEnabled(events map[string]bool) int {
	n := 0
	for _, on := range events {
		if on {
			n++
		}
	}
	return n
}
