package regression

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPModel calls a model served over HTTP. The service accepts
// POST {"input":[...]} and answers {"output":[...]}.
type HTTPModel struct {
	url     string
	inputs  int
	outputs int
	client  *http.Client
}

// HTTPOption configures HTTPModel.
type HTTPOption func(*HTTPModel)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(m *HTTPModel) {
		if d > 0 {
			m.client.Timeout = d
		}
	}
}

// WithShape declares the model's input and output widths.
func WithShape(inputs, outputs int) HTTPOption {
	return func(m *HTTPModel) {
		m.inputs = inputs
		m.outputs = outputs
	}
}

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(m *HTTPModel) { m.client = c }
}

// NewHTTPModel creates a client for the model endpoint at url.
func NewHTTPModel(url string, opts ...HTTPOption) *HTTPModel {
	m := &HTTPModel{
		url:    url,
		client: &http.Client{Timeout: 3 * time.Second},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type computeReq struct {
	Input []float64 `json:"input"`
}

type computeResp struct {
	Output []float64 `json:"output"`
	Error  string    `json:"error,omitempty"`
}

func (m *HTTPModel) InputCount() int  { return m.inputs }
func (m *HTTPModel) OutputCount() int { return m.outputs }

// Compute posts the input vector and decodes the output vector.
func (m *HTTPModel) Compute(ctx context.Context, input []float64) ([]float64, error) {
	if m.inputs > 0 && len(input) != m.inputs {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInputSize, len(input), m.inputs)
	}

	body, err := json.Marshal(computeReq{Input: input})
	if err != nil {
		return nil, fmt.Errorf("marshal input: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("post model: unexpected status %d: %s", resp.StatusCode, msg)
	}

	var cr computeResp
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("decode output: %w", err)
	}
	if cr.Error != "" {
		return nil, fmt.Errorf("model error: %s", cr.Error)
	}
	if m.outputs > 0 && len(cr.Output) != m.outputs {
		return nil, fmt.Errorf("model returned %d outputs, want %d", len(cr.Output), m.outputs)
	}
	return cr.Output, nil
}
