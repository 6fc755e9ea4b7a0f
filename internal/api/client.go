// Package api is the REST client for the dashboard backend: entity
// baselines and tracked-entity management.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	ttlcache "github.com/jellydator/ttlcache/v2"
	"github.com/rs/zerolog"

	"github.com/ham-dashboard/ham-client/internal/errors"
	"github.com/ham-dashboard/ham-client/internal/fieldtype"
	"github.com/ham-dashboard/ham-client/internal/types"
)

const (
	// APIRoot is appended to the base URL for every request.
	APIRoot = "/api"

	// DefaultCacheTTL is how long an entity baseline is reused.
	DefaultCacheTTL = 5 * time.Second

	// DefaultTimeout bounds a single request.
	DefaultTimeout = 30 * time.Second

	maxErrorBody = 64 << 10
)

// Backend detail codes with a dedicated meaning on the client side.
const (
	detailInvalidID      = "entity.invalid_id"
	detailNotTracked     = "entity.tracking.invalid_id"
	detailAlreadyTracked = "entity.tracking.already_tracked"
)

// Client talks to the backend REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cacheTTL   time.Duration
	cache      *ttlcache.Cache
	logger     zerolog.Logger

	mu    sync.RWMutex
	token string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithToken sets the bearer credential.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithCacheTTL sets how long entity baselines are cached. Zero disables the
// cache.
func WithCacheTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		c.cacheTTL = ttl
	}
}

// WithLogger sets the request logger.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for the backend at baseURL (scheme, host and
// optional path prefix; "/api" is appended).
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/") + APIRoot,
		cacheTTL:   DefaultCacheTTL,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cacheTTL > 0 {
		c.cache = ttlcache.NewCache()
		_ = c.cache.SetTTL(c.cacheTTL)
		c.cache.SkipTTLExtensionOnHit(true)
	}
	return c
}

// SetToken replaces the bearer credential and drops cached baselines.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	if c.cache != nil {
		_ = c.cache.Purge()
	}
}

// Token returns the current bearer credential.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Close releases the cache janitor.
func (c *Client) Close() error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Close()
}

// ListEntities returns every entity known to the backend.
func (c *Client) ListEntities(ctx context.Context) ([]types.Entity, error) {
	var out []types.Entity
	if err := c.do(ctx, http.MethodGet, "/ha/entities", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetEntity returns the current state of one entity. Results are cached
// for the configured TTL.
func (c *Client) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	if id == "" {
		return nil, errors.CreateWithMessage(errors.CodeMissingArgument, "entity id is required")
	}
	if c.cache != nil {
		if v, err := c.cache.Get(id); err == nil {
			e := *v.(*types.Entity)
			return &e, nil
		}
	}

	var e types.Entity
	if err := c.do(ctx, http.MethodGet, "/ha/entities/"+url.PathEscape(id), nil, &e); err != nil {
		return nil, err
	}
	if c.cache != nil {
		_ = c.cache.Set(id, &e)
	}
	out := e
	return &out, nil
}

// InvalidateEntity drops the cached baseline of id.
func (c *Client) InvalidateEntity(id string) {
	if c.cache != nil {
		_ = c.cache.Remove(id)
	}
}

// ListTracked returns every tracked entity.
func (c *Client) ListTracked(ctx context.Context) ([]types.TrackedEntity, error) {
	var out []types.TrackedEntity
	if err := c.do(ctx, http.MethodGet, "/ha/entities/tracked", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTracked returns one tracked entity.
func (c *Client) GetTracked(ctx context.Context, haid string) (*types.TrackedEntity, error) {
	var out types.TrackedEntity
	if err := c.do(ctx, http.MethodGet, trackedPath(haid), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TrackEntity starts tracking haid with the given fields.
func (c *Client) TrackEntity(ctx context.Context, haid string, fields []fieldtype.TrackedField) (*types.TrackedEntity, error) {
	if fields == nil {
		fields = []fieldtype.TrackedField{}
	}
	var out types.TrackedEntity
	if err := c.do(ctx, http.MethodPost, trackedPath(haid), fields, &out); err != nil {
		return nil, err
	}
	c.InvalidateEntity(haid)
	return &out, nil
}

// UntrackEntity stops tracking haid.
func (c *Client) UntrackEntity(ctx context.Context, haid string) error {
	if err := c.do(ctx, http.MethodDelete, trackedPath(haid), nil, nil); err != nil {
		return err
	}
	c.InvalidateEntity(haid)
	return nil
}

// PutTrackedField replaces the tracked field named by obj["field"] with obj
// and returns the updated entity.
func (c *Client) PutTrackedField(ctx context.Context, haid string, obj map[string]any) (*types.TrackedEntity, error) {
	var out types.TrackedEntity
	if err := c.do(ctx, http.MethodPost, trackedPath(haid)+"/values", obj, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartLogging turns on value logging for a tracked field.
func (c *Client) StartLogging(ctx context.Context, haid, field string) error {
	return c.do(ctx, http.MethodPost, loggingPath(haid, field), nil, nil)
}

// StopLogging turns off value logging for a tracked field.
func (c *Client) StopLogging(ctx context.Context, haid, field string) error {
	return c.do(ctx, http.MethodDelete, loggingPath(haid, field), nil, nil)
}

func trackedPath(haid string) string {
	return "/ha/entities/tracked/" + url.PathEscape(haid)
}

func loggingPath(haid, field string) string {
	return trackedPath(haid) + "/values/" + url.PathEscape(field) + "/logging"
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.CreateWithCause(errors.CodeRequestBuild, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.CreateWithCause(errors.CodeRequestBuild, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(ctx, err).WithPath(method + " " + path)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("api request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return statusError(resp.StatusCode, raw).WithPath(method + " " + path)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.CreateWithCause(errors.CodeResponseDecode, err).WithPath(method + " " + path)
	}
	return nil
}

func transportError(ctx context.Context, err error) *errors.Error {
	switch ctx.Err() {
	case context.Canceled:
		return errors.Wrap(errors.ErrorTypeCanceled, err, "request canceled")
	case context.DeadlineExceeded:
		return errors.Wrap(errors.ErrorTypeTimeout, err, "request timed out")
	}
	return errors.CreateWithCause(errors.CodeRequestFailed, err)
}

// Detail is the structured error the backend encodes in its "detail" field.
type Detail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

// ParseDetail extracts the backend detail from an error body. The detail
// is itself a JSON document stored as a string; plain strings become the
// message.
func ParseDetail(body []byte) Detail {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return Detail{Message: strings.TrimSpace(string(body))}
	}

	var s string
	if err := json.Unmarshal(envelope.Detail, &s); err != nil {
		var d Detail
		if json.Unmarshal(envelope.Detail, &d) == nil {
			return d
		}
		return Detail{Message: string(envelope.Detail)}
	}
	var d Detail
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return Detail{Message: s}
	}
	return d
}

func statusError(status int, body []byte) *errors.Error {
	d := ParseDetail(body)
	details := map[string]any{"status": status}
	if d.Code != "" {
		details["code"] = d.Code
	}
	if d.Data != nil {
		details["data"] = d.Data
	}

	var e *errors.Error
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e = errors.Create(errors.CodeUnauthorized)
	case status == http.StatusNotFound && d.Code == detailNotTracked:
		e = errors.Create(errors.CodeEntityNotTracked)
	case status == http.StatusNotFound:
		e = errors.Create(errors.CodeEntityNotFound)
	case status >= 500:
		e = errors.Create(errors.CodeUnexpectedStatus)
	default:
		e = errors.New(errors.ErrorTypeAPI, fmt.Sprintf("request rejected with status %d", status))
	}
	if d.Message != "" {
		e = e.WithMessagef("%s", d.Message)
	}
	return e.WithDetails(details)
}

// IsAlreadyTracked reports whether err is the backend refusing to track an
// entity twice.
func IsAlreadyTracked(err error) bool {
	code, _ := errors.GetDetails(err)["code"].(string)
	return code == detailAlreadyTracked
}

// IsUnknownEntity reports whether err says the entity does not exist.
func IsUnknownEntity(err error) bool {
	code, _ := errors.GetDetails(err)["code"].(string)
	return errors.GetCode(err) == errors.CodeEntityNotFound && (code == "" || code == detailInvalidID)
}
