// Package client is a typed HTTP client for the site health API.
package client

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
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	domain "github.com/sachin5713/unified-site-health-dashboard/internal/domain/sitehealth"
)

// NonceHeader carries the anti-forgery nonce on control requests.
const NonceHeader = "X-USH-Nonce"

// APIError is a non-2xx response decoded from the API's error payload.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.StatusCode)
	}
	return e.Message
}

// Progress is the run snapshot served by GET /v1/scan/progress.
type Progress struct {
	RunID           string                `json:"run_id,omitempty"`
	Status          domain.RunStatus      `json:"status"`
	TotalPages      int                   `json:"total_pages"`
	ScannedPages    int                   `json:"scanned_pages"`
	CurrentTitle    string                `json:"current_page_title"`
	CurrentURL      string                `json:"current_url"`
	CurrentCategory domain.Category       `json:"current_category,omitempty"`
	CategoryState   domain.CategoryStates `json:"category_state"`
	Errors          []domain.RunError     `json:"errors"`
	StartedAt       *time.Time            `json:"started_at,omitempty"`
	CompletedAt     *time.Time            `json:"completed_at,omitempty"`
}

// StartResult is the reply to a scan start.
type StartResult struct {
	Message string `json:"message"`
	RunID   string `json:"run_id"`
}

// RescanResult is the reply to a single target rescan.
type RescanResult struct {
	HTML      string    `json:"html"`
	Score     *float64  `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

// Client talks to one API host with a bearer token. Nonces are fetched on
// first use and refreshed once when the server rejects them.
type Client struct {
	baseURL string
	token   string
	http    *http.Client

	mu    sync.Mutex
	nonce string
}

// New returns a Client. A nil httpClient uses an otelhttp instrumented
// default transport with a 30s timeout.
func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   30 * time.Second,
		}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), token: token, http: httpClient}
}

// StartScan begins a new run.
func (c *Client) StartScan(ctx context.Context) (StartResult, error) {
	var out StartResult
	err := c.call(ctx, http.MethodPost, "/v1/scan", nil, nil, &out)
	return out, err
}

// Progress fetches the current run snapshot.
func (c *Client) Progress(ctx context.Context) (Progress, error) {
	var out Progress
	err := c.call(ctx, http.MethodGet, "/v1/scan/progress", nil, nil, &out)
	return out, err
}

// Scores fetches the current category score snapshots.
func (c *Client) Scores(ctx context.Context) ([]domain.CategoryScoreSnapshot, error) {
	var out []domain.CategoryScoreSnapshot
	err := c.call(ctx, http.MethodGet, "/v1/scan/scores", nil, nil, &out)
	return out, err
}

// Statistics fetches audit log statistics.
func (c *Client) Statistics(ctx context.Context) (domain.ScanStatistics, error) {
	var out domain.ScanStatistics
	err := c.call(ctx, http.MethodGet, "/v1/scan/statistics", nil, nil, &out)
	return out, err
}

// AuditData fetches the audits of one category and profile.
func (c *Client) AuditData(ctx context.Context, category, profile string) (domain.AuditData, error) {
	var out domain.AuditData
	q := url.Values{"category": {category}, "profile": {profile}}
	err := c.call(ctx, http.MethodGet, "/v1/audits", q, nil, &out)
	return out, err
}

// Rescan probes one configured target synchronously.
func (c *Client) Rescan(ctx context.Context, targetURI string) (RescanResult, error) {
	var out RescanResult
	body := map[string]string{"target_uri": targetURI}
	err := c.call(ctx, http.MethodPost, "/v1/targets/rescan", nil, body, &out)
	return out, err
}

// SectionIssues fetches the rendered issues fragment of a category.
func (c *Client) SectionIssues(ctx context.Context, category, targetURI string) (string, error) {
	var out struct {
		HTML string `json:"html"`
	}
	q := url.Values{"category": {category}}
	if targetURI != "" {
		q.Set("target_uri", targetURI)
	}
	err := c.call(ctx, http.MethodGet, "/v1/sections/issues", q, nil, &out)
	return out.HTML, err
}

func (c *Client) call(ctx context.Context, method, path string, q url.Values, body, out any) error {
	nonce, err := c.currentNonce(ctx)
	if err != nil {
		return err
	}

	err = c.do(ctx, method, path, q, body, nonce, out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusForbidden {
		c.mu.Lock()
		c.nonce = ""
		c.mu.Unlock()

		if nonce, err = c.currentNonce(ctx); err != nil {
			return err
		}
		return c.do(ctx, method, path, q, body, nonce, out)
	}
	return err
}

func (c *Client) currentNonce(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nonce != "" {
		return c.nonce, nil
	}

	var out struct {
		Nonce string `json:"nonce"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/nonce", nil, nil, "", &out); err != nil {
		return "", fmt.Errorf("fetching nonce: %w", err)
	}
	c.nonce = out.Nonce
	return c.nonce, nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body any, nonce string, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if nonce != "" {
		req.Header.Set(NonceHeader, nonce)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
