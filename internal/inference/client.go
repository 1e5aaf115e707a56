// Package inference talks to the sentiment model service over HTTP and fans
// large text batches out to it under bounded concurrency.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// Prediction is one model result, positionally aligned with its input text.
type Prediction struct {
	Label         int                `json:"label"`
	LabelName     string             `json:"label_name"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
}

type Client struct {
	baseURL       string
	httpClient    *http.Client
	retry         RetryPolicy
	healthTimeout time.Duration
}

type Option func(*Client)

func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) { c.retry = policy }
}

func WithHealthTimeout(d time.Duration) Option {
	return func(c *Client) { c.healthTimeout = d }
}

// withHTTPClient is used by tests to install an instrumented transport.
func withHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// No client-level timeout: per-call deadlines are set via context so
		// chunk and dispatch budgets can scale with batch size.
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry:         DefaultRetryPolicy(),
		healthTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type batchRequest struct {
	Texts []string `json:"texts"`
}

type batchResponse struct {
	Results []Prediction `json:"results"`
}

type singleRequest struct {
	Text string `json:"text"`
}

// Predict classifies a single text.
func (c *Client) Predict(ctx context.Context, text string) (*Prediction, error) {
	var pred Prediction
	if err := c.postJSON(ctx, "/predict", singleRequest{Text: text}, &pred); err != nil {
		return nil, err
	}
	return &pred, nil
}

// Health probes the model service liveness with a short timeout.
func (c *Client) Health(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request failed: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("inference health request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("inference health status %d", resp.StatusCode)
	}
	return nil
}

// predictChunk sends one chunk with the given timeout, retrying
// connection-class failures per the client's retry policy. An HTTP error
// response is surfaced immediately: the service was reachable and rejected
// the request, so retrying cannot help.
func (c *Client) predictChunk(ctx context.Context, texts []string, timeout time.Duration) ([]Prediction, error) {
	var out batchResponse

	err := c.retry.Do(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return c.postJSON(callCtx, "/predict-batch", batchRequest{Texts: texts}, &out)
	})
	if err != nil {
		return nil, err
	}

	if len(out.Results) != len(texts) {
		return nil, fmt.Errorf("inference returned %d results for %d texts", len(out.Results), len(texts))
	}
	return out.Results, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, dest interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal inference request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build inference request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Dial/read/timeout failures are transient from the caller's view.
		return &transientError{err: fmt.Errorf("inference request failed: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &transientError{err: fmt.Errorf("read inference response failed: %w", err)}
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("inference response status %d: %s", resp.StatusCode, truncate(string(raw), 512))
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("parse inference response failed: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
