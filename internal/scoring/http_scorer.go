package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// HTTPScorer posts the media file to an analyzer service and decodes the JSON
// object it returns.
type HTTPScorer struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// NewHTTPScorer creates a scorer for endpoint. timeout <= 0 means no timeout.
func NewHTTPScorer(endpoint, apiKey string, timeout time.Duration) *HTTPScorer {
	client := &http.Client{}
	if timeout > 0 {
		client.Timeout = timeout
	}
	return &HTTPScorer{endpoint: endpoint, apiKey: apiKey, http: client}
}

// Score implements Scorer.
func (s *HTTPScorer) Score(ctx context.Context, media Handle) (map[string]any, error) {
	f, err := os.Open(media.Path)
	if err != nil {
		return nil, fmt.Errorf("open media: %w", err)
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, f)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Accept", "application/json")
	if media.Size > 0 {
		req.ContentLength = media.Size
	}
	if media.Source.Key != "" {
		req.Header.Set("X-Media-Key", media.Source.Key)
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %s: %s", resp.Status, string(snippet))
	}

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
