package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"kudosbot/internal/domain"
)

// HTTPClient talks JSON over HTTP to the poller sidecar that fronts the
// remote platform.
type HTTPClient struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// NewHTTP creates a client with sane defaults.
func NewHTTP(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		BaseURL:     baseURL,
		BearerToken: token,
		Timeout:     10 * time.Second,
	}
}

// APIError wraps non-2xx responses other than 404.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (c *HTTPClient) Comment(ctx context.Context, id string) (domain.Comment, error) {
	var resp domain.Comment
	err := c.do(ctx, http.MethodGet, "comments/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *HTTPClient) Submission(ctx context.Context, id string) (domain.Submission, error) {
	var resp domain.Submission
	err := c.do(ctx, http.MethodGet, "submissions/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *HTTPClient) NewComments(ctx context.Context, before string) ([]domain.Comment, error) {
	endpoint := "comments"
	if before != "" {
		endpoint += "?before=" + url.QueryEscape(before)
	}
	var resp struct {
		Items []domain.Comment `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *HTTPClient) Reply(ctx context.Context, commentID, body string) (domain.Comment, error) {
	var resp domain.Comment
	err := c.do(ctx, http.MethodPost, "comments/"+url.PathEscape(commentID)+"/replies", map[string]any{"body": body}, &resp)
	return resp, err
}

func (c *HTTPClient) Edit(ctx context.Context, replyID, body string) error {
	return c.do(ctx, http.MethodPatch, "comments/"+url.PathEscape(replyID), map[string]any{"body": body}, nil)
}

func (c *HTTPClient) Delete(ctx context.Context, replyID string) error {
	return c.do(ctx, http.MethodDelete, "comments/"+url.PathEscape(replyID), nil, nil)
}

func (c *HTTPClient) Moderators(ctx context.Context) ([]string, error) {
	var resp struct {
		Items []string `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "moderators", nil, &resp)
	return resp.Items, err
}

func (c *HTTPClient) SendMessage(ctx context.Context, to, subject, body string) error {
	return c.do(ctx, http.MethodPost, "messages", map[string]any{
		"to":      to,
		"subject": subject,
		"body":    body,
	}, nil)
}

func (c *HTTPClient) Unread(ctx context.Context) ([]Message, error) {
	var resp struct {
		Items []Message `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "messages/unread", nil, &resp)
	return resp.Items, err
}

func (c *HTTPClient) MarkRead(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodPost, "messages/"+url.PathEscape(messageID)+"/read", nil, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	reqURL := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return TransientError{Op: method + " " + endpoint, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 500 {
		b, _ := io.ReadAll(resp.Body)
		return TransientError{Op: method + " " + endpoint, Err: &APIError{StatusCode: resp.StatusCode, Body: string(b)}}
	}
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
