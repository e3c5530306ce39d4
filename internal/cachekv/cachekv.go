// Package cachekv is a thin client over the external key/value cache
// service. The cache holds derived, disposable copies only; it is always
// repopulatable from the durable store. Every failure degrades to a miss on
// Get and a no-op on Set, so a broken cache can slow the service down but
// never take a decision away from the store.
package cachekv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"mailgate/internal/config"
	"mailgate/lib/sl"
)

const authHeader = "X-Auth-Key"

type Client struct {
	hc      *http.Client
	baseURL string
	authKey string
	log     *slog.Logger
}

// New returns nil when the cache is disabled in configuration; all methods
// are safe on a nil receiver and behave as a permanent miss.
func New(conf *config.Config, log *slog.Logger) *Client {
	if !conf.Cache.Enabled {
		return nil
	}
	timeout := time.Duration(conf.Cache.TimeoutMs) * time.Millisecond
	return &Client{
		hc:      &http.Client{Timeout: timeout},
		baseURL: conf.Cache.URL,
		authKey: conf.Cache.AuthKey,
		log:     log.With(sl.Module("cachekv")),
	}
}

type getRequest struct {
	Key string `json:"key"`
}

type getResponse struct {
	Ok    bool            `json:"ok"`
	Value json.RawMessage `json:"value"`
}

type setRequest struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
	TTL   int             `json:"ttl"`
}

type setResponse struct {
	Ok bool `json:"ok"`
}

// Get fetches the value stored under key. The second return value reports a
// hit; any transport or protocol failure reads as a miss.
func (c *Client) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	if c == nil {
		return nil, false
	}
	body, err := c.call(ctx, "/get", getRequest{Key: key})
	if err != nil {
		c.log.Debug("cache get degraded to miss", slog.String("key", key), sl.Err(err))
		return nil, false
	}
	var resp getResponse
	if err = json.Unmarshal(body, &resp); err != nil {
		c.log.Debug("cache get malformed body", slog.String("key", key), sl.Err(err))
		return nil, false
	}
	if !resp.Ok || len(resp.Value) == 0 || string(resp.Value) == "null" {
		return nil, false
	}
	return resp.Value, true
}

// Set stores value under key for ttl. Failures are swallowed; the caller's
// operation must never abort because the cache did.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		c.log.Debug("cache set marshal", slog.String("key", key), sl.Err(err))
		return
	}
	body, err := c.call(ctx, "/set", setRequest{Key: key, Value: raw, TTL: int(ttl.Seconds())})
	if err != nil {
		c.log.Debug("cache set skipped", slog.String("key", key), sl.Err(err))
		return
	}
	var resp setResponse
	if err = json.Unmarshal(body, &resp); err != nil || !resp.Ok {
		c.log.Debug("cache set rejected", slog.String("key", key))
	}
}

func (c *Client) call(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(authHeader, c.authKey)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("cache %s: %s", resp.Status, body)
	}
	return body, nil
}
