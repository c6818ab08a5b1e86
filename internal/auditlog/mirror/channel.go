package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"sentrybot/internal/auditlog"
	"sentrybot/pkg/platform/sentinel"
)

// Platform is the chat platform surface the mirror needs. FetchChannel and SendEmbed
// return sentinel.ErrNotFound (wrapped) when the channel no longer exists.
type Platform interface {
	CachedChannel(channelID string) bool
	FetchChannel(ctx context.Context, channelID string) error
	SendEmbed(ctx context.Context, channelID string, embed auditlog.Embed) error
}

// ChannelSource returns the configured log channel id. It is consulted on every send so
// a reloaded configuration is picked up.
type ChannelSource func() string

// ErrChannelNotConfigured is returned when neither a log nor a notify channel is set.
var ErrChannelNotConfigured = errors.New("log channel not configured")

// ChannelMirror renders records into the configured log channel. The resolved channel
// is cached until the configured id changes or a send reports the channel missing.
type ChannelMirror struct {
	platform Platform
	source   ChannelSource
	logger   *slog.Logger

	mu         sync.Mutex
	resolvedID string
}

// Option configures the ChannelMirror.
type Option func(*ChannelMirror)

// WithLogger sets the logger for cache invalidation notices.
func WithLogger(logger *slog.Logger) Option {
	return func(m *ChannelMirror) {
		m.logger = logger
	}
}

// New creates a channel mirror.
func New(platform Platform, source ChannelSource, opts ...Option) *ChannelMirror {
	m := &ChannelMirror{
		platform: platform,
		source:   source,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Send implements auditlog.Mirror.
func (m *ChannelMirror) Send(ctx context.Context, record auditlog.Record, color auditlog.Color) error {
	channelID, err := m.resolve(ctx)
	if err != nil {
		return err
	}
	err = m.platform.SendEmbed(ctx, channelID, auditlog.Render(record, color))
	if err == nil {
		return nil
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		m.invalidate(channelID)
		m.logger.WarnContext(ctx, "log channel disappeared, cached handle dropped", "channel_id", channelID)
	}
	return fmt.Errorf("send record to channel %s: %w", channelID, err)
}

// Notify sends a plain notice into the log channel.
func (m *ChannelMirror) Notify(ctx context.Context, description string, color auditlog.Color) error {
	channelID, err := m.resolve(ctx)
	if err != nil {
		return err
	}
	embed := auditlog.Embed{Description: description, Color: color}
	if err := m.platform.SendEmbed(ctx, channelID, embed); err != nil {
		return fmt.Errorf("send notice to channel %s: %w", channelID, err)
	}
	return nil
}

// Resolved returns the cached channel id, if any.
func (m *ChannelMirror) Resolved() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolvedID, m.resolvedID != ""
}

func (m *ChannelMirror) resolve(ctx context.Context) (string, error) {
	configured := ""
	if m.source != nil {
		configured = m.source()
	}
	if configured == "" {
		return "", ErrChannelNotConfigured
	}

	m.mu.Lock()
	cached := m.resolvedID
	m.mu.Unlock()
	if cached == configured {
		return cached, nil
	}

	if !m.platform.CachedChannel(configured) {
		if err := m.platform.FetchChannel(ctx, configured); err != nil {
			return "", fmt.Errorf("resolve log channel %s: %w", configured, err)
		}
	}

	m.mu.Lock()
	m.resolvedID = configured
	m.mu.Unlock()
	return configured, nil
}

func (m *ChannelMirror) invalidate(channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resolvedID == channelID {
		m.resolvedID = ""
	}
}
