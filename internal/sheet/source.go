package sheet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"gopkg.in/yaml.v3"

	"github.com/dukerupert/milkdiary/internal/config"
)

// Source yields a validated snapshot of both sheets.
type Source interface {
	Fetch(ctx context.Context) (*Payload, error)
}

// ErrNoSource is returned when neither an upstream URL nor a local file is
// configured.
var ErrNoSource = errors.New("no sheet source configured")

// FromConfig builds the configured source. A local file wins over the
// upstream URL.
func FromConfig(src config.Source) (Source, error) {
	sheets := Sheets{Monthly: src.MonthlySheet, Daily: src.DailySheet}
	if sheets.Monthly == "" || sheets.Daily == "" {
		sheets = DefaultSheets
	}
	if src.File != "" {
		return NewFileSource(src.File, sheets)
	}
	timeout, err := src.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	return NewClient(ClientConfig{
		URL:     src.URL,
		Sheets:  sheets,
		Timeout: timeout,
		Retries: src.Retries,
	})
}

// ClientConfig configures the upstream fetch.
type ClientConfig struct {
	URL     string
	Sheets  Sheets
	Timeout time.Duration
	// Retries is the number of extra attempts after a 429, 5xx or network
	// failure.
	Retries int
	// Backoff is the first retry delay; later delays double.
	Backoff time.Duration
}

// Client fetches the sheet document from the upstream web app.
type Client struct {
	cfg        ClientConfig
	validator  *Validator
	httpClient *http.Client
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, ErrNoSource
	}
	if cfg.Sheets == (Sheets{}) {
		cfg.Sheets = DefaultSheets
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = 800 * time.Millisecond
	}
	v, err := NewValidator(cfg.Sheets)
	if err != nil {
		return nil, err
	}
	return &Client{
		cfg:        cfg,
		validator:  v,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Fetch GETs the document, retrying transient failures with exponential
// backoff, and validates it.
func (c *Client) Fetch(ctx context.Context) (*Payload, error) {
	var body []byte

	backoff := retry.WithMaxRetries(uint64(c.cfg.Retries), retry.NewExponential(c.cfg.Backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		data, err := c.get(ctx)
		if err != nil {
			return err
		}
		body = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch sheet: %w", err)
	}

	return c.validator.Decode(body)
}

func (c *Client) get(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, retry.RetryableError(fmt.Errorf("get %s: %w", c.cfg.URL, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		io.Copy(io.Discard, resp.Body)
		return nil, retry.RetryableError(fmt.Errorf("upstream status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

// FileSource reads a local export of the upstream document. Files ending
// in .yaml or .yml are YAML, anything else JSON.
type FileSource struct {
	path      string
	validator *Validator
}

func NewFileSource(path string, sheets Sheets) (*FileSource, error) {
	if path == "" {
		return nil, ErrNoSource
	}
	if sheets == (Sheets{}) {
		sheets = DefaultSheets
	}
	v, err := NewValidator(sheets)
	if err != nil {
		return nil, err
	}
	return &FileSource{path: path, validator: v}, nil
}

// Path is the watched file.
func (f *FileSource) Path() string {
	return f.path
}

func (f *FileSource) Fetch(ctx context.Context) (*Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read sheet file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(f.path)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
		// Round-trip through JSON so the validator sees JSON types only.
		data, err = json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("convert yaml: %w", err)
		}
	}
	return f.validator.Decode(data)
}
