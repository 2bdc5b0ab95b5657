// Package httpapi is the JSON/REST implementation of the remote store.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"stopalarm/internal/remote"
)

// Client talks to the remote alarm-session API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// NewClient constructs a client.
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("remote client: empty base url")
	}
	client := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// CreateSession creates a remote record and returns the issued identity.
func (c *Client) CreateSession(ctx context.Context, req remote.CreateRequest) (remote.SessionRecord, error) {
	if req.OwnerID == "" {
		return remote.SessionRecord{}, errors.New("remote client: empty owner id")
	}
	var record remote.SessionRecord
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/sessions", req, &record); err != nil {
		return remote.SessionRecord{}, err
	}
	if record.ID == "" {
		return remote.SessionRecord{}, errors.New("remote client: create returned no id")
	}
	return record, nil
}

// GetSession reads a remote record.
func (c *Client) GetSession(ctx context.Context, id string) (remote.SessionRecord, error) {
	if id == "" {
		return remote.SessionRecord{}, errors.New("remote client: empty session id")
	}
	var record remote.SessionRecord
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/sessions/"+url.PathEscape(id), nil, &record); err != nil {
		return remote.SessionRecord{}, err
	}
	return record, nil
}

// MarkTriggered writes the triggered status with its marker fields.
func (c *Client) MarkTriggered(ctx context.Context, id string, triggeredAt time.Time, lastKnownM float64) error {
	if id == "" {
		return errors.New("remote client: empty session id")
	}
	body := map[string]any{
		"status":       "triggered",
		"triggered_at": triggeredAt.UTC(),
		"last_known_m": lastKnownM,
	}
	return c.doJSON(ctx, http.MethodPatch, "/api/v1/sessions/"+url.PathEscape(id), body, nil)
}

// UpdateDistance writes the last known distance.
func (c *Client) UpdateDistance(ctx context.Context, id string, lastKnownM float64) error {
	if id == "" {
		return errors.New("remote client: empty session id")
	}
	body := map[string]any{"last_known_m": lastKnownM}
	return c.doJSON(ctx, http.MethodPatch, "/api/v1/sessions/"+url.PathEscape(id), body, nil)
}

// CancelSession writes the cancelled status.
func (c *Client) CancelSession(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("remote client: empty session id")
	}
	body := map[string]any{"status": "cancelled"}
	return c.doJSON(ctx, http.MethodPatch, "/api/v1/sessions/"+url.PathEscape(id), body, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(payload)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return remote.ErrNotFound
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("remote client: http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
