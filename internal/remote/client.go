package remote

import (
	"bytes"
	"context"
	"encoding/json/v2"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Client talks to the hosted document store over HTTP JSON. Document
// paths follow the nesting of the contract:
//
//	/users/{userId}
//	/users/{userId}/books/{title}
//	/users/{userId}/books/{title}/sessions
//	/users/{userId}/books/{title}/sessions/{sessionId}
//
// Replace writes use PUT, merge writes PATCH. A 404 maps to ErrNotFound;
// network errors and 5xx responses map to ErrUnavailable so the sync
// engine leaves the affected record pending.
type Client struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	logger      *slog.Logger
}

// NewClient creates a document-store client. rps bounds outbound request
// rate; zero or negative means ten per second.
func NewClient(baseURL, token string, rps float64, logger *slog.Logger) *Client {
	if rps <= 0 {
		rps = 10
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		logger:      logger,
	}
}

func (c *Client) userPath(userID string) string {
	return c.baseURL + "/users/" + url.PathEscape(userID)
}

func (c *Client) bookPath(userID, title string) string {
	return c.userPath(userID) + "/books/" + url.PathEscape(title)
}

func (c *Client) sessionsPath(userID, title string) string {
	return c.bookPath(userID, title) + "/sessions"
}

// do runs one request and returns the response body for 2xx statuses.
// notFoundOK treats a 404 as success with a nil body; deletes use it so
// removing an absent document acks cleanly.
func (c *Client) do(ctx context.Context, method, reqURL string, body any, notFoundOK bool) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
		}
		return data, nil
	case resp.StatusCode == http.StatusNotFound:
		if notFoundOK {
			return nil, nil
		}
		return nil, ErrNotFound
	default:
		if c.logger != nil {
			c.logger.Warn("remote call failed",
				"method", method,
				"url", reqURL,
				"status", resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
}

func (c *Client) getDoc(ctx context.Context, reqURL string, dest any) error {
	data, err := c.do(ctx, http.MethodGet, reqURL, nil, false)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return nil
}

func (c *Client) setDoc(ctx context.Context, reqURL string, fields map[string]any, merge bool) error {
	method := http.MethodPut
	if merge {
		method = http.MethodPatch
	}
	_, err := c.do(ctx, method, reqURL, fields, false)
	return err
}

func (c *Client) GetUserDocument(ctx context.Context, userID string) (*UserDocument, error) {
	var doc UserDocument
	if err := c.getDoc(ctx, c.userPath(userID), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *Client) SetUserDocument(ctx context.Context, userID string, fields map[string]any, merge bool) error {
	return c.setDoc(ctx, c.userPath(userID), fields, merge)
}

func (c *Client) GetBookDocument(ctx context.Context, userID, title string) (*BookDocument, error) {
	var doc BookDocument
	if err := c.getDoc(ctx, c.bookPath(userID, title), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *Client) SetBookDocument(ctx context.Context, userID, title string, fields map[string]any, merge bool) error {
	return c.setDoc(ctx, c.bookPath(userID, title), fields, merge)
}

func (c *Client) DeleteBookDocument(ctx context.Context, userID, title string) error {
	_, err := c.do(ctx, http.MethodDelete, c.bookPath(userID, title), nil, true)
	return err
}

func (c *Client) ListSessionDocuments(ctx context.Context, userID, title string) ([]*SessionDocument, error) {
	data, err := c.do(ctx, http.MethodGet, c.sessionsPath(userID, title), nil, true)
	if err != nil {
		return nil, err
	}
	if data == nil {
		// No book document yet means no sessions.
		return nil, nil
	}

	var docs []*SessionDocument
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return docs, nil
}

func (c *Client) SetSessionDocument(ctx context.Context, userID, title, sessionID string, fields map[string]any, merge bool) error {
	return c.setDoc(ctx, c.sessionsPath(userID, title)+"/"+url.PathEscape(sessionID), fields, merge)
}

func (c *Client) DeleteSessionDocument(ctx context.Context, userID, title, sessionID string) error {
	_, err := c.do(ctx, http.MethodDelete, c.sessionsPath(userID, title)+"/"+url.PathEscape(sessionID), nil, true)
	return err
}

var _ Store = (*Client)(nil)
