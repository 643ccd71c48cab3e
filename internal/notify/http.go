package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/daymark/mandalagen/internal/logging"
)

// HTTPEmitter posts events to a receiver endpoint. Every event is written
// to the local file emitter first, so a dead receiver loses nothing.
type HTTPEmitter struct {
	endpoint string
	client   *http.Client
	backup   *FileEmitter
}

// NewHTTPEmitter creates an emitter posting to endpoint, with file backup
// and chain state under stateDir.
func NewHTTPEmitter(endpoint, stateDir string) (*HTTPEmitter, error) {
	backup, err := NewFileEmitter(stateDir)
	if err != nil {
		return nil, err
	}
	return &HTTPEmitter{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
		backup:   backup,
	}, nil
}

// EmitRender seals and stores the event locally, then posts it. A delivery
// failure is logged, not returned: the local copy is authoritative and the
// publish must not be rolled back over a flaky receiver.
func (e *HTTPEmitter) EmitRender(ctx context.Context, evt *Event) error {
	if err := e.backup.EmitRender(ctx, evt); err != nil {
		return err
	}

	if err := e.post(ctx, evt); err != nil {
		logging.Component("notify").Warn("event delivery failed",
			"image", evt.Render.Image,
			"date", evt.Render.Date,
			"error", err)
	}
	return nil
}

func (e *HTTPEmitter) post(ctx context.Context, evt *Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := e.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("receiver returned %s", resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return lastErr
		}
	}
	return fmt.Errorf("after 3 attempts: %w", lastErr)
}

// Close releases resources.
func (e *HTTPEmitter) Close() error {
	return e.backup.Close()
}
