// Package extract pulls paginated JSON from the Jaffle Shop API.
//
// Pagination is page-numbered (page / per_page query parameters); an empty
// JSON array signals the end of data. Fetching is batched: a batch of page
// numbers is fetched concurrently by a bounded worker pool, and extraction
// stops after a configured number of consecutive all-empty batches.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"jaffle/internal/metrics"
	"jaffle/internal/registry"
)

// HTTPDoer is the minimal HTTP client seam used by the page fetcher.
// *http.Client satisfies it; tests inject fakes.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client fetches single pages of a resource.
type Client struct {
	HTTP     HTTPDoer
	BaseURL  string
	PageSize int
}

// NewClient builds a Client with a tuned transport. The connection pool is
// sized for many concurrent page fetches against a single host.
func NewClient(baseURL string, pageSize int, timeout time.Duration) *Client {
	transport := &http.Transport{
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 32,
	}
	return &Client{
		HTTP: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		BaseURL:  baseURL,
		PageSize: pageSize,
	}
}

// FetchPage fetches one page of an endpoint and decodes the JSON array.
//
// Behavior:
//   - A JSON "null" body or empty array returns (nil, nil): end-of-data for
//     that page.
//   - Non-2xx responses are errors; the body is drained so the connection can
//     be reused.
//   - Every attempt is recorded in metrics, including failures.
//
// Errors propagate unmodified to the runner; there is no retry here.
func (c *Client) FetchPage(ctx context.Context, ep registry.Endpoint, page int) ([]map[string]any, error) {
	u, err := url.Parse(c.BaseURL + ep.Path)
	if err != nil {
		return nil, fmt.Errorf("extract %s: bad url: %w", ep.Name, err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(c.PageSize))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", ep.Name, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		metrics.RecordHTTP(ep.Name, 0, err, time.Since(start))
		return nil, fmt.Errorf("extract %s page %d: %w", ep.Name, page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		metrics.RecordHTTP(ep.Name, resp.StatusCode, fmt.Errorf("http %d", resp.StatusCode), time.Since(start))
		return nil, fmt.Errorf("extract %s page %d: unexpected status %d", ep.Name, page, resp.StatusCode)
	}

	var records []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		metrics.RecordHTTP(ep.Name, resp.StatusCode, err, time.Since(start))
		return nil, fmt.Errorf("extract %s page %d: decode: %w", ep.Name, page, err)
	}

	metrics.RecordHTTP(ep.Name, resp.StatusCode, nil, time.Since(start))
	return records, nil
}
