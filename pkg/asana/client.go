// Package asana is a minimal client for the Asana REST API, covering what
// the task agent needs: creating a task in a project.
package asana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const DefaultBaseURL = "https://app.asana.com/api/1.0"

var ErrMissingToken = errors.New("asana access token is required")

type Client struct {
	token   string
	baseURL string

	client *http.Client
}

type Option func(*Client)

func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

func New(token string, options ...Option) (*Client, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,

		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, option := range options {
		option(c)
	}

	return c, nil
}

type TaskRequest struct {
	Name  string `json:"name"`
	DueOn string `json:"due_on,omitempty"`

	Projects []string `json:"projects,omitempty"`
}

// Task is the confirmation returned for a created task. Data holds the
// complete "data" object as sent by the API.
type Task struct {
	GID   string
	Name  string
	DueOn string

	URL string

	Data json.RawMessage
}

// APIError is a fault reported by the API (any non-2xx response).
type APIError struct {
	StatusCode int

	Messages []string
}

func (e *APIError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("asana: HTTP %d", e.StatusCode)
	}

	return fmt.Sprintf("asana: HTTP %d: %s", e.StatusCode, strings.Join(e.Messages, "; "))
}

func (c *Client) CreateTask(ctx context.Context, task TaskRequest) (*Task, error) {
	body, err := json.Marshal(map[string]any{
		"data": task,
	})

	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tasks", bytes.NewReader(body))

	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)

	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}

	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)

	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, parseError(resp.StatusCode, data)
	}

	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid response body: %q", truncate(string(data), 200))
	}

	result := gjson.GetBytes(data, "data")

	if !result.IsObject() {
		return nil, errors.New("response has no data object")
	}

	return &Task{
		GID:   result.Get("gid").String(),
		Name:  result.Get("name").String(),
		DueOn: result.Get("due_on").String(),

		URL: result.Get("permalink_url").String(),

		Data: json.RawMessage(result.Raw),
	}, nil
}

func parseError(status int, data []byte) error {
	err := &APIError{
		StatusCode: status,
	}

	if gjson.ValidBytes(data) {
		for _, m := range gjson.GetBytes(data, "errors.#.message").Array() {
			if s := m.String(); s != "" {
				err.Messages = append(err.Messages, s)
			}
		}
	}

	if len(err.Messages) == 0 {
		if text := strings.TrimSpace(string(data)); text != "" {
			err.Messages = append(err.Messages, truncate(text, 200))
		}
	}

	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n] + "..."
}
