package facts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/daymark/mandalagen/internal/calendar"
)

// HTTPProvider fetches daily facts from a remote JSON endpoint. The endpoint
// is expected to resolve interpolation on its side and answer
// GET <endpoint>?image=<name>&date=<iso> with {"view_count": n, "keyword": s}.
type HTTPProvider struct {
	endpoint string
	client   *http.Client
}

// NewHTTPProvider creates a provider for the given endpoint.
func NewHTTPProvider(endpoint string) *HTTPProvider {
	return &HTTPProvider{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type factsResponse struct {
	ViewCount int64  `json:"view_count"`
	Keyword   string `json:"keyword"`
}

// FactsFor fetches the day's facts, retrying transient failures with
// exponential backoff.
func (p *HTTPProvider) FactsFor(ctx context.Context, image string, date calendar.Date) (Daily, error) {
	var lastErr error
	retries := 3
	delay := time.Second

	for attempt := 1; attempt <= retries; attempt++ {
		daily, err := p.fetch(ctx, image, date)
		if err == nil {
			return daily, nil
		}

		lastErr = err
		if attempt < retries {
			select {
			case <-ctx.Done():
				return Daily{}, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return Daily{}, fmt.Errorf("fetch facts for %s@%s: all %d attempts failed: %w",
		image, date, retries, lastErr)
}

func (p *HTTPProvider) fetch(ctx context.Context, image string, date calendar.Date) (Daily, error) {
	q := url.Values{}
	q.Set("image", image)
	q.Set("date", date.String())

	req, err := http.NewRequestWithContext(ctx, "GET", p.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return Daily{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Daily{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return Daily{}, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	var parsed factsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Daily{}, fmt.Errorf("decode facts response: %w", err)
	}
	if parsed.ViewCount < 0 {
		return Daily{}, fmt.Errorf("negative view count %d from facts endpoint", parsed.ViewCount)
	}

	return Daily{ViewCount: parsed.ViewCount, Keyword: parsed.Keyword}, nil
}

// Close releases resources.
func (p *HTTPProvider) Close() error {
	return nil
}

// Verify HTTPProvider implements Provider.
var _ Provider = (*HTTPProvider)(nil)
