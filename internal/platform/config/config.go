package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultPath is the configuration file read at startup.
const DefaultPath = "config.json"

// Config is the bot configuration. The events map, channel ids and admin roles come from
// the config file; connection settings and secrets come from the environment.
type Config struct {
	// Events enables logging per event kind, keyed by "on_member_join" style names.
	Events map[string]bool `json:"events" yaml:"events"`

	LogChannelID    RawID   `json:"log_channel_id" yaml:"log_channel_id" env:"LOG_CHANNEL_ID"`
	NotifyChannelID RawID   `json:"notify_channel_id" yaml:"notify_channel_id" env:"NOTIFY_CHANNEL_ID"`
	AdminRoleIDs    []RawID `json:"admin_role_ids" yaml:"admin_role_ids"`
	DevGuildID      RawID   `json:"dev_guild_id" yaml:"dev_guild_id" env:"DEV_GUILD_ID"`

	HealthHost string `json:"health_host" yaml:"health_host" env:"HEALTH_HOST" env-default:"0.0.0.0"`
	HealthPort int    `json:"health_port" yaml:"health_port" env:"HEALTH_PORT" env-default:"8080"`

	// ActorLookupTimeout caps one audit-trail lookup.
	ActorLookupTimeout Duration `json:"actor_lookup_timeout" yaml:"actor_lookup_timeout" env:"ACTOR_LOOKUP_TIMEOUT" env-default:"3s"`

	Log      LogConfig      `json:"-" yaml:"-"`
	Database DatabaseConfig `json:"-" yaml:"-"`
	Redis    RedisConfig    `json:"-" yaml:"-"`
	Kafka    KafkaConfig    `json:"-" yaml:"-"`
	Tracing  TracingConfig  `json:"-" yaml:"-"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" env-default:"info"`
	Format string `env:"LOG_FORMAT" env-default:"json"`
}

// DatabaseConfig holds PostgreSQL connection settings. The password is a secret and is
// resolved separately through Secret.
type DatabaseConfig struct {
	Host         string        `env:"POSTGRES_HOST" env-default:"localhost"`
	Port         int           `env:"POSTGRES_PORT" env-default:"5432"`
	User         string        `env:"POSTGRES_USER" env-default:"sentrybot"`
	Name         string        `env:"POSTGRES_DB" env-default:"sentrybot"`
	SSLMode      string        `env:"POSTGRES_SSLMODE" env-default:"disable"`
	MaxOpenConns int           `env:"POSTGRES_MAX_OPEN_CONNS" env-default:"10"`
	MaxIdleConns int           `env:"POSTGRES_MAX_IDLE_CONNS" env-default:"5"`
	ConnMaxLife  time.Duration `env:"POSTGRES_CONN_MAX_LIFETIME" env-default:"30m"`
}

// DSN builds a lib/pq connection URL.
func (d DatabaseConfig) DSN(password string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, password),
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Name,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// RedisConfig configures the optional diagnostics counter mirror. An empty URL
// disables Redis.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" env-default:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" env-default:"1"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" env-default:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" env-default:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" env-default:"3s"`
	CounterKey   string        `env:"REDIS_COUNTER_KEY" env-default:"sentrybot:received"`
	FlushEvery   time.Duration `env:"REDIS_COUNTER_FLUSH_INTERVAL" env-default:"5s"`
}

// KafkaConfig configures the optional record stream. No brokers disables it.
type KafkaConfig struct {
	Brokers           []string `env:"KAFKA_BROKERS" env-separator:","`
	Topic             string   `env:"KAFKA_TOPIC" env-default:"sentrybot.audit-records"`
	ClientID          string   `env:"KAFKA_CLIENT_ID" env-default:"sentrybot"`
	Partitions        int32    `env:"KAFKA_TOPIC_PARTITIONS" env-default:"3"`
	ReplicationFactor int16    `env:"KAFKA_TOPIC_REPLICATION" env-default:"1"`
}

// Enabled reports whether brokers are configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// TracingConfig configures span export. No endpoint disables it.
type TracingConfig struct {
	Endpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string  `env:"OTEL_SERVICE_NAME" env-default:"sentrybot"`
	SampleRatio float64 `env:"OTEL_TRACES_SAMPLER_RATIO" env-default:"1"`
}

// Enabled reports whether an OTLP endpoint is configured.
func (t TracingConfig) Enabled() bool {
	return t.Endpoint != ""
}

// HealthAddr is the listen address of the health server.
func (c *Config) HealthAddr() string {
	return net.JoinHostPort(c.HealthHost, strconv.Itoa(c.HealthPort))
}

// Read loads the file at path with environment overrides. An empty path reads the
// environment only.
func Read(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("read config from environment: %w", err)
		}
	} else if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if cfg.Events == nil {
		cfg.Events = map[string]bool{}
	}
	if cfg.HealthPort <= 0 || cfg.HealthPort > 65535 {
		return nil, fmt.Errorf("invalid health_port %d", cfg.HealthPort)
	}
	return cfg, nil
}

// Secret returns the value of env var name, or the trimmed content of the file named
// by fileVar.
func Secret(name, fileVar string) (string, error) {
	if v := os.Getenv(name); v != "" {
		return v, nil
	}
	if path := os.Getenv(fileVar); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read secret file for %s: %w", name, err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	return "", fmt.Errorf("%s not found: %w", name, ErrSecretNotFound)
}

// ErrSecretNotFound is returned when neither the variable nor its file variant is set.
var ErrSecretNotFound = errors.New("secret not set")

// RawID is a platform id as written in the config file. Ids are accepted as JSON
// numbers or strings and validated later, so one bad entry does not fail the load.
type RawID string

// UnmarshalJSON keeps numbers as their literal digits to avoid float rounding.
func (r *RawID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = RawID(strings.TrimSpace(s))
		return nil
	}
	*r = RawID(data)
	return nil
}

// UnmarshalText implements encoding.TextUnmarshaler for YAML scalars.
func (r *RawID) UnmarshalText(text []byte) error {
	*r = RawID(strings.TrimSpace(string(text)))
	return nil
}

// SetValue implements cleanenv.Setter for environment overrides.
func (r *RawID) SetValue(s string) error {
	*r = RawID(strings.TrimSpace(s))
	return nil
}

// Duration accepts "3s" style strings or a number of seconds.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return d.SetValue(s)
	}
	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return fmt.Errorf("parse duration %s: %w", data, err)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	return d.SetValue(string(text))
}

// SetValue implements cleanenv.Setter.
func (d *Duration) SetValue(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*d = 0
		return nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}
