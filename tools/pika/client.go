package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/maxpert/publist/publishlist"
)

// AppendResult is the node's answer to an append request
type AppendResult struct {
	Count    int    `json:"count"`
	FirstSeq uint64 `json:"first_seq"`
	LastSeq  uint64 `json:"last_seq"`
}

// CursorStatus is the worker progress reported by the node
type CursorStatus struct {
	Cursor        uint64 `json:"cursor"`
	Head          uint64 `json:"head"`
	Lag           uint64 `json:"lag"`
	WorkerRunning bool   `json:"worker_running"`
}

// StatusError is a non-2xx admin API response
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("admin API returned %d: %s", e.Code, e.Message)
}

// Retryable reports whether the request may succeed later
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusServiceUnavailable || e.Code >= http.StatusInternalServerError
}

// Client talks to the admin API of one node
type Client struct {
	base   string
	secret string
	http   *http.Client
}

// NewClient creates a client for the admin API rooted at base
func NewClient(base, secret string, timeout time.Duration) *Client {
	return &Client{
		base:   base,
		secret: secret,
		http:   &http.Client{Timeout: timeout},
	}
}

// Append posts one batch of events
func (c *Client) Append(ctx context.Context, events []Event) (AppendResult, error) {
	var res AppendResult
	body, err := json.Marshal(events)
	if err != nil {
		return res, err
	}
	err = c.do(ctx, http.MethodPost, "/events", bytes.NewReader(body), &res)
	return res, err
}

// Cursor returns the worker progress
func (c *Client) Cursor(ctx context.Context) (CursorStatus, error) {
	var status CursorStatus
	err := c.do(ctx, http.MethodGet, "/cursor", nil, &status)
	return status, err
}

// UserList returns the publish list of a user
func (c *Client) UserList(ctx context.Context, user string) ([]publishlist.Entry, error) {
	var entries []publishlist.Entry
	err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(user)+"/publish-list", nil, &entries)
	return entries, err
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.secret != "" {
		req.Header.Set("X-Publist-Secret", c.secret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		return &StatusError{Code: resp.StatusCode, Message: payload.Error}
	}

	envelope := struct {
		Data any `json:"data"`
	}{Data: out}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}
