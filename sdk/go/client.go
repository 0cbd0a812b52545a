package edihubsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal mailbox client for market actors polling the hub.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BasePath:    "/v0",
		BearerToken: token,
		Timeout:     10 * time.Second,
	}
}

// Document is one peeked bundle rendered in the requested format.
type Document struct {
	MessageID    string
	DocumentType string
	ContentType  string
	Content      []byte
}

// QueueStatus summarises the caller's mailbox.
type QueueStatus struct {
	Owner    string `json:"owner"`
	Open     int    `json:"open"`
	Closed   int    `json:"closed"`
	Dequeued int    `json:"dequeued"`
	Messages int    `json:"messages"`
}

// Event represents a bundle lifecycle entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	Actor      string         `json:"actor"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Peek returns the oldest waiting document of category ("None",
// "Aggregations", "WholesaleServices") in format ("Json", "Xml", "Ebix").
// It returns nil when the mailbox is empty.
func (c *Client) Peek(ctx context.Context, category, format string) (*Document, error) {
	endpoint := c.mailboxPath("peek/" + url.PathEscape(category))
	if format != "" {
		endpoint += "?format=" + url.QueryEscape(format)
	}
	resp, err := c.send(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Document{
		MessageID:    resp.Header.Get("MessageId"),
		DocumentType: resp.Header.Get("X-Document-Type"),
		ContentType:  resp.Header.Get("Content-Type"),
		Content:      b,
	}, nil
}

// Dequeue acknowledges a peeked document. It reports false when the hub
// does not know the id in the caller's mailbox or it was already dequeued.
func (c *Client) Dequeue(ctx context.Context, messageID string) (bool, error) {
	err := c.do(ctx, http.MethodDelete, c.mailboxPath(url.PathEscape(messageID)), nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Status returns bundle counts of the caller's mailbox.
func (c *Client) Status(ctx context.Context) (QueueStatus, error) {
	var resp QueueStatus
	err := c.do(ctx, http.MethodGet, c.mailboxPath("status"), nil, &resp)
	return resp, err
}

// Events returns the lifecycle events of a bundle in the caller's mailbox.
func (c *Client) Events(ctx context.Context, messageID string) ([]Event, error) {
	var resp struct {
		Items []Event `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, c.mailboxPath(url.PathEscape(messageID)+"/events"), nil, &resp)
	return resp.Items, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	resp, err := c.send(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// send performs the request and turns any status >= 300 into *APIError.
func (c *Client) send(ctx context.Context, method, endpoint string, body any) (*http.Response, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	return resp, nil
}

func (c *Client) mailboxPath(p string) string {
	return strings.TrimRight(c.BasePath, "/") + "/mailbox/" + strings.TrimLeft(p, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
