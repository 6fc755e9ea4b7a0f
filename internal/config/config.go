// Package config loads the client configuration from a YAML file and the
// environment.
package config

import (
	"bytes"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/ham-dashboard/ham-client/internal/api"
	"github.com/ham-dashboard/ham-client/internal/errors"
	"github.com/ham-dashboard/ham-client/internal/events"
	"github.com/ham-dashboard/ham-client/internal/logging"
)

// Environment variables that override file values.
const (
	EnvURL       = "HAM_URL"
	EnvToken     = "HAM_TOKEN"
	EnvTransport = "HAM_TRANSPORT"
)

// Push transports.
const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

// Default event stream paths per transport.
const (
	DefaultSSEPath       = "/api/events"
	DefaultWebSocketPath = "/api/events/ws"
)

// Backoff bounds the reconnect delay of the event channel.
type Backoff struct {
	Initial time.Duration `yaml:"initial"`
	Max     time.Duration `yaml:"max"`
}

// Config is the client configuration.
type Config struct {
	URL           string        `yaml:"url"`
	Token         string        `yaml:"token"`
	EventsPath    string        `yaml:"events_path"`
	Transport     string        `yaml:"transport"`
	Discriminator string        `yaml:"discriminator"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	Backoff       Backoff       `yaml:"backoff"`
	LogLevel      string        `yaml:"log_level"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Transport:     TransportSSE,
		Discriminator: events.DefaultDiscriminator,
		CacheTTL:      api.DefaultCacheTTL,
		Backoff: Backoff{
			Initial: events.DefaultInitialBackoff,
			Max:     events.DefaultMaxBackoff,
		},
		LogLevel: zerolog.LevelInfoValue,
	}
}

// Load reads path (if non-empty) over the defaults and applies the
// environment. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.CreateWithCause(errors.CodeInvalidConfig, err).WithPath(path)
		}
		if err := cfg.decode(data); err != nil {
			return nil, err.WithPath(path)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

// Parse decodes a YAML document over the defaults. Unknown keys are errors.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) *errors.Error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		return errors.CreateWithCause(errors.CodeInvalidConfig, err)
	}
	return nil
}

// ApplyEnv overrides fields from the environment variables that are set.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvURL); ok {
		c.URL = v
	}
	if v, ok := lookup(EnvToken); ok {
		c.Token = v
	}
	if v, ok := lookup(EnvTransport); ok {
		c.Transport = strings.ToLower(v)
	}
}

// Validate checks that the configuration can be used to connect.
func (c *Config) Validate() error {
	invalid := func(path, format string, args ...any) error {
		return errors.Create(errors.CodeInvalidConfig).WithMessagef(format, args...).WithPath(path)
	}

	if c.URL == "" {
		return invalid("url", "backend URL is required (set url or %s)", EnvURL)
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("url", "backend URL must be an absolute http(s) URL, got %q", c.URL)
	}
	if c.Transport != TransportSSE && c.Transport != TransportWebSocket {
		return invalid("transport", "transport must be %q or %q, got %q", TransportSSE, TransportWebSocket, c.Transport)
	}
	if c.EventsPath != "" && !strings.HasPrefix(c.EventsPath, "/") {
		return invalid("events_path", "events path must start with /")
	}
	if c.Discriminator == "" {
		return invalid("discriminator", "discriminator must not be empty")
	}
	if c.CacheTTL < 0 {
		return invalid("cache_ttl", "cache TTL must not be negative")
	}
	if c.Backoff.Initial <= 0 {
		return invalid("backoff.initial", "initial backoff must be positive")
	}
	if c.Backoff.Max < c.Backoff.Initial {
		return invalid("backoff.max", "maximum backoff %s is below the initial %s", c.Backoff.Max, c.Backoff.Initial)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return invalid("log_level", "unknown log level %q", c.LogLevel)
	}
	return nil
}

// EventsURL returns the URL of the event stream for the configured
// transport. WebSocket URLs use the ws or wss scheme.
func (c *Config) EventsURL() string {
	path := c.EventsPath
	if path == "" {
		path = DefaultSSEPath
		if c.Transport == TransportWebSocket {
			path = DefaultWebSocketPath
		}
	}
	base := strings.TrimRight(c.URL, "/")
	if c.Transport == TransportWebSocket {
		switch {
		case strings.HasPrefix(base, "https://"):
			base = "wss://" + strings.TrimPrefix(base, "https://")
		case strings.HasPrefix(base, "http://"):
			base = "ws://" + strings.TrimPrefix(base, "http://")
		}
	}
	return base + path
}
