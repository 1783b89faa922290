package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultBaseURL = "http://localhost:8000"
	apiKeyHeader   = "X-API-Key"
	maxRetries     = 3
	initialDelay   = 500 * time.Millisecond
)

type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Sleep      func(context.Context, time.Duration) error
}

// Client talks to the Galmuri Diary backend.
type Client struct {
	base  string
	key   string
	http  *http.Client
	sleep func(context.Context, time.Duration) error
}

func New(opts Options) *Client {
	c := &Client{
		base:  strings.TrimRight(opts.BaseURL, "/"),
		key:   opts.APIKey,
		http:  opts.HTTPClient,
		sleep: opts.Sleep,
	}
	if c.base == "" {
		c.base = DefaultBaseURL
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 45 * time.Second}
	}
	if c.sleep == nil {
		c.sleep = sleepContext
	}
	return c
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	err := c.retry(ctx, func() error { return c.do(ctx, http.MethodGet, "/", nil, &h) })
	return h, err
}

// Capture uploads one image. It is not retried.
func (c *Client) Capture(ctx context.Context, req CaptureRequest) (Item, error) {
	if err := validateUser(req.UserID); err != nil {
		return Item{}, err
	}
	req.ImageData = StripDataURI(req.ImageData)
	if req.ImageData == "" {
		return Item{}, fmt.Errorf("image_data is empty")
	}
	if req.Platform == "" {
		req.Platform = PlatformMobileApp
	}
	var item Item
	if err := c.do(ctx, http.MethodPost, "/api/capture", req, &item); err != nil {
		return Item{}, err
	}
	return item, nil
}

func (c *Client) Items(ctx context.Context, userID string) ([]Item, error) {
	return c.list(ctx, userID, "/api/items/"+url.PathEscape(userID))
}

func (c *Client) Unsynced(ctx context.Context, userID string) ([]Item, error) {
	return c.list(ctx, userID, "/api/items/"+url.PathEscape(userID)+"/unsynced")
}

func (c *Client) Search(ctx context.Context, userID, query string) ([]Item, error) {
	if err := validateUser(userID); err != nil {
		return nil, err
	}
	var items []Item
	body := SearchRequest{UserID: userID, Query: query}
	err := c.retry(ctx, func() error { return c.do(ctx, http.MethodPost, "/api/search", body, &items) })
	return items, err
}

func (c *Client) Item(ctx context.Context, id string) (Item, error) {
	var item Item
	err := c.retry(ctx, func() error { return c.do(ctx, http.MethodGet, "/api/item/"+url.PathEscape(id), nil, &item) })
	return item, err
}

func (c *Client) Delete(ctx context.Context, id string) (DeleteResult, error) {
	var res DeleteResult
	err := c.do(ctx, http.MethodDelete, "/api/item/"+url.PathEscape(id), nil, &res)
	return res, err
}

func (c *Client) list(ctx context.Context, userID, path string) ([]Item, error) {
	if err := validateUser(userID); err != nil {
		return nil, err
	}
	var items []Item
	err := c.retry(ctx, func() error { return c.do(ctx, http.MethodGet, path, nil, &items) })
	return items, err
}

func validateUser(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("user_id %q is not a UUID: %w", id, err)
	}
	return nil
}

// retry repeats idempotent calls on transport errors and 5xx replies.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(initialDelay) * (1.5 * float64(attempt)))
			if err := c.sleep(ctx, delay); err != nil {
				return err
			}
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if apiErr, ok := err.(*Error); ok && apiErr.Status < 500 {
			return err
		}
		log.Printf("API: attempt %d/%d failed: %v", attempt+1, maxRetries, err)
	}
	return fmt.Errorf("failed after %d attempts: %w", maxRetries, lastErr)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.key != "" {
		req.Header.Set(apiKeyHeader, c.key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Status: resp.StatusCode, Detail: readDetail(resp.Body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func readDetail(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 64<<10))
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && len(payload.Detail) > 0 {
		var s string
		if json.Unmarshal(payload.Detail, &s) == nil {
			return s
		}
		return string(payload.Detail)
	}
	return strings.TrimSpace(string(data))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
