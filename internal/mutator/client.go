package mutator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dukerupert/milkdiary/internal/model"
)

// StatusError is a non-2xx reply from the completion API.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("completion api returned %d", e.Code)
}

// Client talks to the completion API of a milkdiary server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient uses http.DefaultClient when hc is nil. No timeout is set by
// default; bound calls with the context instead.
func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: hc}
}

// Send posts one mutation. Requests with a stage go to the stage endpoint,
// the rest to the single-flag endpoint.
func (c *Client) Send(ctx context.Context, req model.CompletionRequest) error {
	path := "/api/task/complete"
	if req.Stage != "" {
		path = "/api/task/stage"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send mutation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Completion fetches the current completion record of one row. A row with
// no record yields a zero Completion.
func (c *Client) Completion(ctx context.Context, taskType model.TaskType, rowID string) (model.Completion, error) {
	var out model.Completion
	u := c.baseURL + "/api/task/" + url.PathEscape(string(taskType)) + "/" + url.PathEscape(rowID)

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return out, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return out, fmt.Errorf("get completion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return out, &StatusError{Code: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decode completion: %w", err)
	}
	return out, nil
}

// Tables fetches the merged sheet rows.
func (c *Client) Tables(ctx context.Context) (*model.Tables, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tables", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get tables: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode}
	}
	var t model.Tables
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return nil, fmt.Errorf("decode tables: %w", err)
	}
	return &t, nil
}
