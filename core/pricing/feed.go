package pricing

import (
	"errors"
	"fmt"
	"sync"
)

// Sample is a raw oracle observation: a signed mantissa with a decimal
// exponent (mantissa 12345, exponent -2 means 123.45) and the publisher
// timestamp in unix seconds. Rescaling and staleness policy belong to the
// consumer.
type Sample struct {
	Mantissa    int64
	Exponent    int32
	PublishedAt int64
}

// FeedReader resolves the latest sample for a feed identifier.
type FeedReader interface {
	Read(feedID [32]byte) (Sample, error)
}

// ErrFeedNotFound is returned when no sample exists for a feed.
var ErrFeedNotFound = errors.New("pricing: feed not found")

// StaticFeeds is an in-memory FeedReader. Pollers push fresh samples into it
// and tests seed it directly.
type StaticFeeds struct {
	mu      sync.RWMutex
	samples map[[32]byte]Sample
}

// NewStaticFeeds returns an empty feed table.
func NewStaticFeeds() *StaticFeeds {
	return &StaticFeeds{samples: make(map[[32]byte]Sample)}
}

// Set stores the latest sample for a feed.
func (s *StaticFeeds) Set(feedID [32]byte, sample Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples[feedID] = sample
}

// Read implements FeedReader.
func (s *StaticFeeds) Read(feedID [32]byte) (Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sample, ok := s.samples[feedID]
	if !ok {
		return Sample{}, fmt.Errorf("%w: %x", ErrFeedNotFound, feedID)
	}
	return sample, nil
}
