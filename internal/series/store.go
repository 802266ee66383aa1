package series

import (
	"maps"
	"math"
	"sync"

	"github.com/pscheid92/sinecast/internal/domain"
)

// Derive maps a raw value to the value exposed to listeners.
func Derive(raw float64) float64 {
	return math.Sin(raw)
}

// Store holds the raw value of every registered series.
// All methods serialize on a single mutex and never do I/O while holding it.
type Store struct {
	mu  sync.Mutex
	raw map[string]float64
}

var _ domain.SeriesStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{raw: make(map[string]float64)}
}

// Register inserts name with the given seed, overwriting any previous value.
func (s *Store) Register(name string, seed float64) {
	s.mu.Lock()
	s.raw[name] = seed
	s.mu.Unlock()
}

// Snapshot returns an independent copy of all derived values.
func (s *Store) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := make(domain.Snapshot, len(s.raw))
	for name, raw := range s.raw {
		snap[name] = Derive(raw)
	}
	return snap
}

// Advance adds delta to the raw value of every series.
func (s *Store) Advance(delta float64) {
	s.mu.Lock()
	for name := range s.raw {
		s.raw[name] += delta
	}
	s.mu.Unlock()
}

// Raw returns the raw value of name.
func (s *Store) Raw(name string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.raw[name]
	return v, ok
}

// RawSnapshot returns an independent copy of all raw values.
func (s *Store) RawSnapshot() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.raw)
}

// Len returns the number of registered series.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.raw)
}
