// Package radiosondy fetches delimited sonde telemetry from the aggregator proxy.
package radiosondy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/couchcryptid/sonde-etl/internal/domain"
)

// maxPayloadBytes caps a single response body.
const maxPayloadBytes = 32 << 20

// Client implements pipeline.Fetcher against the aggregator's CSV endpoint.
// The per-request deadline comes from the caller's context.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an aggregator client for baseURL (for example
// http://localhost:3000/api/radiosondy).
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// Fetch requests mode=all, or mode=single with the query filter as id.
func (c *Client) Fetch(ctx context.Context, q domain.Query) (string, error) {
	u, err := c.requestURL(q)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/csv, text/plain;q=0.9, */*;q=0.5")
	req.Header.Set("Cache-Control", "no-store")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %w", domain.ErrFetchTimeout, err)
		}
		return "", fmt.Errorf("aggregator request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &domain.FetchHTTPError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %w", domain.ErrFetchTimeout, err)
		}
		return "", fmt.Errorf("read aggregator response: %w", err)
	}

	c.logger.Debug("aggregator payload received",
		"bytes", len(body),
		"mode", mode(q),
	)
	return string(body), nil
}

func (c *Client) requestURL(q domain.Query) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse aggregator url: %w", err)
	}
	params := u.Query()
	params.Set("mode", mode(q))
	if !q.All() {
		params.Set("id", q.Filter)
	}
	u.RawQuery = params.Encode()
	return u.String(), nil
}

func mode(q domain.Query) string {
	if q.All() {
		return "all"
	}
	return "single"
}
