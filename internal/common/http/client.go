// internal/common/http/client.go
package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"ai-planner/internal/common/metrics"
)

// Client is the outbound client for the LLM provider. Every request is
// counted in planner_llm_requests_total by response status.
type Client struct {
	httpClient *http.Client
}

// NewClient returns a client whose overall timeout is a backstop behind the
// per-request context deadline.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.LLMRequests.WithLabelValues(statusLabel(req.Context(), 0)).Inc()
		return nil, err
	}
	metrics.LLMRequests.WithLabelValues(statusLabel(req.Context(), resp.StatusCode)).Inc()
	return resp, nil
}

func statusLabel(ctx context.Context, code int) string {
	if code > 0 {
		return strconv.Itoa(code)
	}
	if ctx.Err() == context.DeadlineExceeded {
		return "timeout"
	}
	return "error"
}
