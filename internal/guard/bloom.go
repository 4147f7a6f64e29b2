package guard

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// BloomSet implements Membership on a bloom filter. Adds and probes may run
// concurrently because population happens in the background on refresh.
type BloomSet struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// NewBloomSet sizes a filter for the expected number of identifiers and the
// target false-positive rate.
func NewBloomSet(expected uint, falsePositiveRate float64) *BloomSet {
	if expected == 0 {
		expected = 1
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}
	return &BloomSet{filter: bloom.NewWithEstimates(expected, falsePositiveRate)}
}

// Add records an identifier.
func (s *BloomSet) Add(id string) {
	s.mu.Lock()
	s.filter.AddString(id)
	s.mu.Unlock()
}

// Contains reports membership. Identifiers that were added always test true.
func (s *BloomSet) Contains(id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter.TestString(id), nil
}

// Snapshot serializes the filter so a restart can skip the full scan.
func (s *BloomSet) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var buf bytes.Buffer
	if _, err := s.filter.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("serialize bloom filter: %w", err)
	}
	return buf.Bytes(), nil
}

// RestoreBloomSet rebuilds a set from a serialized snapshot.
func RestoreBloomSet(snapshot []byte) (*BloomSet, error) {
	var filter bloom.BloomFilter
	if _, err := filter.ReadFrom(bytes.NewReader(snapshot)); err != nil {
		return nil, fmt.Errorf("deserialize bloom filter: %w", err)
	}
	return &BloomSet{filter: &filter}, nil
}

var _ Membership = (*BloomSet)(nil)
