package grader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	appI18n "github.com/pavelanni/labgrader/internal/i18n"
)

// HTTPError is returned for any non-2xx response.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// SendRequest POSTs payload as JSON to endpoint and decodes the JSON reply into out.
// Non-2xx statuses are returned as *HTTPError and are never retried here.
func (c *Client) SendRequest(ctx context.Context, payload any, endpoint string, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	slog.Debug("grading server response", "endpoint", endpoint, "status", resp.StatusCode, "bytes", len(raw))

	// A stale or foreign session token is only a warning; the reply is still used.
	if strings.Contains(string(raw), "Cannot decipher") {
		slog.Warn("server could not decipher session", "endpoint", endpoint)
		fmt.Fprintln(c.out, appI18n.T(ctx, "CannotDecipher"))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{
			Method:     http.MethodPost,
			URL:        endpoint,
			StatusCode: resp.StatusCode,
			Body:       string(raw),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse response from %s: %w", endpoint, err)
	}
	return nil
}
