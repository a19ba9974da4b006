// Package api is the REST client for the workout backend: catalog lookups,
// routines and the record writes that save a finished session.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coocood/freecache"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultCacheSize = 8 * 1024 * 1024
	defaultLookupTTL = 5 * time.Minute
	fetchAttempts    = 3
)

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api: %s %s returned %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Options tunes a Client. Zero values pick the defaults.
type Options struct {
	Timeout       time.Duration
	LookupCacheMB int
	LookupTTL     time.Duration
}

// Client talks JSON to the backend. Reads are retried with backoff on
// transport errors and 5xx responses; writes are sent once.
type Client struct {
	baseURL    string
	httpClient *http.Client
	lookups    *freecache.Cache
	lookupTTL  time.Duration
	retryBase  time.Duration
	log        *slog.Logger
}

// NewClient creates a Client targeting baseURL.
func NewClient(baseURL string, opts Options, log *slog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	cacheSize := defaultCacheSize
	if opts.LookupCacheMB > 0 {
		cacheSize = opts.LookupCacheMB * 1024 * 1024
	}
	ttl := opts.LookupTTL
	if ttl <= 0 {
		ttl = defaultLookupTTL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		lookups:    freecache.NewCache(cacheSize),
		lookupTTL:  ttl,
		retryBase:  500 * time.Millisecond,
		log:        log,
	}
}

// Fetch GETs path (which may carry a query) and decodes the body into out.
func (c *Client) Fetch(ctx context.Context, path string, out any) error {
	body, err := c.fetchRaw(ctx, path)
	if err != nil {
		return err
	}
	return decode(path, body, out)
}

// Create POSTs payload to path and decodes the created entity into out,
// which may be nil.
func (c *Client) Create(ctx context.Context, path string, payload, out any) error {
	body, err := c.send(ctx, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	return decode(path, body, out)
}

// Update PUTs payload to path and decodes the response into out, which may
// be nil.
func (c *Client) Update(ctx context.Context, path string, payload, out any) error {
	body, err := c.send(ctx, http.MethodPut, path, payload)
	if err != nil {
		return err
	}
	return decode(path, body, out)
}

// Delete removes the entity at path.
func (c *Client) Delete(ctx context.Context, path string) error {
	_, err := c.send(ctx, http.MethodDelete, path, nil)
	return err
}

func (c *Client) fetchRaw(ctx context.Context, path string) ([]byte, error) {
	var lastErr error
	for attempt := range fetchAttempts {
		if attempt > 0 {
			delay := time.Duration(1<<uint(attempt-1)) * c.retryBase
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("api: GET %s: %w", path, ctx.Err())
			case <-time.After(delay):
			}
		}

		body, err := c.do(ctx, http.MethodGet, path, nil)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			return nil, err
		}
		c.log.Debug("api read failed, retrying", "path", path, "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("api: after %d attempts: %w", fetchAttempts, lastErr)
}

func (c *Client) send(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var data []byte
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("api: encoding %s %s: %w", method, path, err)
		}
	}
	return c.do(ctx, method, path, data)
}

func (c *Client) do(ctx context.Context, method, path string, data []byte) ([]byte, error) {
	var reqBody io.Reader
	if data != nil {
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("api: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("api: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

// cachedFetch serves lookup collections from the local cache, filling it on
// a miss.
func (c *Client) cachedFetch(ctx context.Context, path string, out any) error {
	key := []byte(path)
	if body, err := c.lookups.Get(key); err == nil {
		if err := json.Unmarshal(body, out); err == nil {
			return nil
		}
		c.log.Warn("dropping undecodable cache entry", "path", path)
		c.lookups.Del(key)
	}

	body, err := c.fetchRaw(ctx, path)
	if err != nil {
		return err
	}
	if err := decode(path, body, out); err != nil {
		return err
	}
	if err := c.lookups.Set(key, body, int(c.lookupTTL.Seconds())); err != nil {
		c.log.Debug("lookup not cached", "path", path, "error", err)
	}
	return nil
}

// InvalidateLookups drops every cached lookup collection.
func (c *Client) InvalidateLookups() {
	c.lookups.Clear()
}

func decode(path string, body []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("api: decode %s: %w", path, err)
	}
	return nil
}

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status >= 500
	}
	return true
}

func withQuery(path string, params url.Values) string {
	if len(params) == 0 {
		return path
	}
	return path + "?" + params.Encode()
}
