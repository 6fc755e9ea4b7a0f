package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ham-dashboard/ham-client/internal/errors"
)

func TestParse(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(`
url: https://dash.example.org/
token: abc
transport: websocket
cache_ttl: 0s
backoff:
  initial: 250ms
  max: 10s
log_level: debug
`))
	require.NoError(t, err)
	assert.Equal(t, "https://dash.example.org/", cfg.URL)
	assert.Equal(t, "abc", cfg.Token)
	assert.Equal(t, TransportWebSocket, cfg.Transport)
	assert.Equal(t, time.Duration(0), cfg.CacheTTL)
	assert.Equal(t, 250*time.Millisecond, cfg.Backoff.Initial)
	assert.Equal(t, 10*time.Second, cfg.Backoff.Max)
	assert.Equal(t, "EventType", cfg.Discriminator, "unset keys keep their default")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "wss://dash.example.org/api/events/ws", cfg.EventsURL())
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"unknown key":  "urll: http://x\n",
		"bad duration": "cache_ttl: soon\n",
		"not a map":    "- a\n- b\n",
	}
	for name, doc := range tests {
		doc := doc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(doc))
			require.Error(t, err)
			assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))
		})
	}
}

func TestParse_Empty(t *testing.T) {
	t.Parallel()

	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		c := Default()
		c.URL = "http://localhost:8000"
		return c
	}

	tests := []struct {
		name     string
		mutate   func(*Config)
		wantPath string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing url", func(c *Config) { c.URL = "" }, "url"},
		{"relative url", func(c *Config) { c.URL = "/api" }, "url"},
		{"ftp url", func(c *Config) { c.URL = "ftp://host" }, "url"},
		{"transport", func(c *Config) { c.Transport = "carrier-pigeon" }, "transport"},
		{"events path", func(c *Config) { c.EventsPath = "events" }, "events_path"},
		{"discriminator", func(c *Config) { c.Discriminator = "" }, "discriminator"},
		{"negative ttl", func(c *Config) { c.CacheTTL = -time.Second }, "cache_ttl"},
		{"zero backoff", func(c *Config) { c.Backoff.Initial = 0 }, "backoff.initial"},
		{"max below initial", func(c *Config) { c.Backoff.Max = time.Millisecond }, "backoff.max"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantPath == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err))
			var e *errors.Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, tt.wantPath, e.Path)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{EnvURL: "http://env:1", EnvTransport: "WebSocket"}
	cfg := Default()
	cfg.Token = "from-file"
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	assert.Equal(t, "http://env:1", cfg.URL)
	assert.Equal(t, TransportWebSocket, cfg.Transport)
	assert.Equal(t, "from-file", cfg.Token)
}

func TestEventsURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url, transport, path, want string
	}{
		{"http://h:8000", TransportSSE, "", "http://h:8000/api/events"},
		{"http://h:8000/", TransportWebSocket, "", "ws://h:8000/api/events/ws"},
		{"https://h/base", TransportSSE, "/stream", "https://h/base/stream"},
		{"https://h", TransportWebSocket, "/ws", "wss://h/ws"},
	}
	for _, tt := range tests {
		c := &Config{URL: tt.url, Transport: tt.transport, EventsPath: tt.path}
		assert.Equal(t, tt.want, c.EventsURL())
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ham.yaml")
	require.NoError(t, os.WriteFile(path, []byte("url: http://file:1\ntoken: file\n"), 0o600))
	t.Setenv(EnvToken, "env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://file:1", cfg.URL)
	assert.Equal(t, "env", cfg.Token)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))
}
