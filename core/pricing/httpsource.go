package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// httpSample is the JSON shape served by push-style oracle relays:
// {"mantissa": 6512345678, "exponent": -8, "published_at": 1755900000}.
type httpSample struct {
	Mantissa    int64 `json:"mantissa"`
	Exponent    int32 `json:"exponent"`
	PublishedAt int64 `json:"published_at"`
}

// HTTPSource polls a relay endpoint for one feed and pushes samples into a
// StaticFeeds table.
type HTTPSource struct {
	client   *http.Client
	endpoint string
	feedID   [32]byte
	interval time.Duration
	sink     *StaticFeeds
	logger   *slog.Logger
}

// NewHTTPSource builds a poller with sane defaults.
func NewHTTPSource(endpoint string, feedID [32]byte, interval time.Duration, sink *StaticFeeds, logger *slog.Logger) *HTTPSource {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSource{
		client:   &http.Client{Timeout: 10 * time.Second},
		endpoint: endpoint,
		feedID:   feedID,
		interval: interval,
		sink:     sink,
		logger:   logger,
	}
}

// Run polls until the context is cancelled. Fetch failures are logged and
// retried on the next tick; the previous sample stays in place and ages out
// via the consumer's staleness window.
func (s *HTTPSource) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *HTTPSource) poll(ctx context.Context) {
	sample, err := s.fetch(ctx)
	if err != nil {
		s.logger.Warn("feed poll failed", "endpoint", s.endpoint, "error", err)
		return
	}
	s.sink.Set(s.feedID, sample)
}

func (s *HTTPSource) fetch(ctx context.Context) (Sample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return Sample{}, fmt.Errorf("build feed request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return Sample{}, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Sample{}, fmt.Errorf("fetch feed: unexpected status %d", resp.StatusCode)
	}
	var payload httpSample
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Sample{}, fmt.Errorf("decode feed payload: %w", err)
	}
	if payload.PublishedAt == 0 {
		payload.PublishedAt = time.Now().Unix()
	}
	return Sample{Mantissa: payload.Mantissa, Exponent: payload.Exponent, PublishedAt: payload.PublishedAt}, nil
}
