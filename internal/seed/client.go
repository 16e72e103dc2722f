package seed

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

	"github.com/okian/fibertrace/internal/domain/estimator"
	"github.com/okian/fibertrace/internal/domain/model"
)

// DefaultIdentityHeader is the header that carries the submitter identity
// unless WithIdentityHeader names another.
const DefaultIdentityHeader = "X-Submitted-By"

// ErrStatus reports an unexpected HTTP status from the service.
var ErrStatus = errors.New("unexpected status")

// Client talks to the fibertrace HTTP API.
type Client struct {
	baseURL  string
	identity string
	header   string
	http     *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithIdentityHeader sets the header the identity is sent in. It must match
// the identity_header the service was started with.
func WithIdentityHeader(name string) ClientOption {
	return func(c *Client) {
		if name != "" {
			c.header = name
		}
	}
}

// NewClient creates a client for baseURL.
func NewClient(baseURL, identity string, timeout time.Duration, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		identity: identity,
		header:   DefaultIdentityHeader,
		http:     &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SubmitResult is the outcome of one POST /samples call.
type SubmitResult struct {
	Status    string       `json:"status"`
	Duplicate bool         `json:"duplicate"`
	Sample    model.Sample `json:"sample"`
}

// Submit posts a sample.
func (c *Client) Submit(ctx context.Context, sub Submission) (SubmitResult, error) {
	s := sub.Sample
	body := map[string]any{
		"submission_id":       sub.SubmissionID,
		"lot_number":          s.LotNumber,
		"percent_white":       s.PercentWhite,
		"percent_black":       s.PercentBlack,
		"percent_denim":       s.PercentDenim,
		"percent_natural":     s.PercentNatural,
		"signal_count":        s.SignalCount,
		"true_marker_percent": s.TrueMarkerPercent,
		"ash_color":           s.AshColor,
	}
	var res SubmitResult
	err := c.do(ctx, http.MethodPost, "/samples", body, &res, http.StatusCreated, http.StatusOK)
	return res, err
}

// Estimate posts a query.
func (c *Client) Estimate(ctx context.Context, q estimator.Query) (estimator.Estimate, error) {
	body := map[string]any{
		"signal_count":    q.Signal,
		"percent_white":   q.Blend.White,
		"percent_black":   q.Blend.Black,
		"percent_denim":   q.Blend.Denim,
		"percent_natural": q.Blend.Natural,
	}
	if q.AshColor != "" {
		body["ash_color"] = q.AshColor
	}
	var est estimator.Estimate
	err := c.do(ctx, http.MethodPost, "/estimate", body, &est, http.StatusOK)
	return est, err
}

// Models fetches the model summaries.
func (c *Client) Models(ctx context.Context) ([]estimator.Summary, error) {
	var out []estimator.Summary
	err := c.do(ctx, http.MethodGet, "/models", nil, &out, http.StatusOK)
	return out, err
}

// Health checks that the service answers on /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil, http.StatusOK)
}

// apiError mirrors the service error body.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, want ...int) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.identity != "" {
		req.Header.Set(c.header, c.identity)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if !accepted(resp.StatusCode, want) {
		var ae apiError
		if json.Unmarshal(data, &ae) == nil && ae.Code != "" {
			return fmt.Errorf("%w %d from %s %s: %s: %s", ErrStatus, resp.StatusCode, method, path, ae.Code, ae.Message)
		}
		return fmt.Errorf("%w %d from %s %s", ErrStatus, resp.StatusCode, method, path)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func accepted(code int, want []int) bool {
	for _, w := range want {
		if code == w {
			return true
		}
	}
	return false
}
