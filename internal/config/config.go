package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort          = 8080
	DefaultDBPath            = "data/dread.db"
	DefaultDecayFactor       = 0.95
	DefaultDecayInterval     = time.Hour
	DefaultRankingInterval   = 10 * time.Second
	DefaultPollInterval      = 5 * time.Second
	DefaultMinDeaths         = 1.0
	DefaultRateLimitAttempts = 10
	DefaultRateLimitWindow   = time.Minute
	DefaultBroadcastInterval = 5 * time.Second
	DefaultNotifyMinLevel    = 2
	DefaultNotifyCooldown    = 15 * time.Minute
	DefaultNotifyInterval    = 10 * time.Second
)

// Config holds the configuration parsed from the `server:` section of
// config.yaml.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API, metrics, and WebSocket stream
	// listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// DBPath is the SQLite database file path (default data/dread.db).
	DBPath string `yaml:"db_path"`

	// Auth configures API-key authentication for the death-logging endpoint.
	Auth AuthConfig `yaml:"auth"`

	// RateLimit throttles authenticated endpoints per client IP.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Dread tunes the decay and ranking engines and their scheduler.
	Dread DreadConfig `yaml:"dread"`

	// Stream controls the WebSocket broadcast of elevated areas.
	Stream StreamConfig `yaml:"stream"`

	// Notify holds webhook targets fired when an area's dread level rises.
	Notify NotifyConfig `yaml:"notify"`
}

// AuthConfig controls client authentication for protected endpoints.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeysFile is the path to the YAML file mapping API keys to client
	// names. Used when Mode == "apikey". The file is watched and hot
	// reloaded; an empty or missing keyring denies all protected requests.
	KeysFile string `yaml:"keys_file"`

	// Header is the HTTP header the key is read from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// EffectiveHeader returns the configured header name, or the default
// "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// RateLimitConfig is a per-IP sliding window: at most Attempts requests to
// protected endpoints per Window.
type RateLimitConfig struct {
	Attempts int           `yaml:"attempts"`
	Window   time.Duration `yaml:"window"`
}

// DreadConfig tunes the derivation core.
type DreadConfig struct {
	// DecayFactor multiplies every death counter on each decay pass.
	// Must be in (0, 1). Default 0.95.
	DecayFactor float64 `yaml:"decay_factor"`

	// DecayInterval is how often the decay pass runs. Default 1h.
	DecayInterval time.Duration `yaml:"decay_interval"`

	// RankingInterval is how often dread levels are recomputed. Default 10s.
	RankingInterval time.Duration `yaml:"ranking_interval"`

	// PollInterval is the scheduler's timer check period. It bounds how
	// late either pass can start. Default 5s.
	PollInterval time.Duration `yaml:"poll_interval"`

	// MinDeaths is the eligibility floor: areas below it never receive a
	// non-zero dread level. Default 1.
	MinDeaths float64 `yaml:"min_deaths"`
}

// StreamConfig controls the WebSocket broadcast.
type StreamConfig struct {
	// BroadcastInterval is how often the elevated-areas list is pushed to
	// connected clients. Default 5s.
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`
}

// NotifyConfig controls dread-change webhook notifications.
type NotifyConfig struct {
	// MinLevel is the lowest dread level that triggers a notification when
	// an area rises to it. 1 or 2; default 2.
	MinLevel int `yaml:"min_level"`

	// Cooldown suppresses re-fires for the same area for this duration.
	// Default 15m.
	Cooldown time.Duration `yaml:"cooldown"`

	// Interval is how often the notifier checks for level changes.
	// Default 10s.
	Interval time.Duration `yaml:"interval"`

	// Webhooks are the delivery targets. Empty disables notifications.
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | discord | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the
	// webhook URL, so URLs with embedded secrets stay out of the config
	// file.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Load reads and parses the config file at path. Missing fields are filled
// with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			DBPath:   DefaultDBPath,
			RateLimit: RateLimitConfig{
				Attempts: DefaultRateLimitAttempts,
				Window:   DefaultRateLimitWindow,
			},
			Dread: DreadConfig{
				DecayFactor:     DefaultDecayFactor,
				DecayInterval:   DefaultDecayInterval,
				RankingInterval: DefaultRankingInterval,
				PollInterval:    DefaultPollInterval,
				MinDeaths:       DefaultMinDeaths,
			},
			Stream: StreamConfig{
				BroadcastInterval: DefaultBroadcastInterval,
			},
			Notify: NotifyConfig{
				MinLevel: DefaultNotifyMinLevel,
				Cooldown: DefaultNotifyCooldown,
				Interval: DefaultNotifyInterval,
			},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	if s.DBPath == "" {
		return fmt.Errorf("server.db_path must not be empty")
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	if s.Auth.Mode == "apikey" && s.Auth.KeysFile == "" {
		return fmt.Errorf("server.auth.keys_file is required when mode is apikey")
	}
	if s.RateLimit.Attempts <= 0 {
		return fmt.Errorf("server.rate_limit.attempts must be positive")
	}
	if s.RateLimit.Window <= 0 {
		return fmt.Errorf("server.rate_limit.window must be positive")
	}
	d := s.Dread
	if d.DecayFactor <= 0 || d.DecayFactor >= 1 {
		return fmt.Errorf("server.dread.decay_factor %v must be in (0, 1)", d.DecayFactor)
	}
	if d.DecayInterval <= 0 || d.RankingInterval <= 0 || d.PollInterval <= 0 {
		return fmt.Errorf("server.dread intervals must all be positive")
	}
	if d.MinDeaths < 0 {
		return fmt.Errorf("server.dread.min_deaths must not be negative")
	}
	if s.Stream.BroadcastInterval <= 0 {
		return fmt.Errorf("server.stream.broadcast_interval must be positive")
	}
	if s.Notify.MinLevel < 1 || s.Notify.MinLevel > 2 {
		return fmt.Errorf("server.notify.min_level %d must be 1 or 2", s.Notify.MinLevel)
	}
	if s.Notify.Cooldown <= 0 || s.Notify.Interval <= 0 {
		return fmt.Errorf("server.notify.cooldown and interval must be positive")
	}
	for _, wh := range s.Notify.Webhooks {
		switch wh.Type {
		case "slack", "discord", "http":
		default:
			return fmt.Errorf("server.notify.webhooks type %q unknown: want slack|discord|http", wh.Type)
		}
	}
	return nil
}
