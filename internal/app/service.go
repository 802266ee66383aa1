package app

import (
	"context"
	"log/slog"
	"math/rand/v2"

	"github.com/pscheid92/sinecast/internal/adapter/metrics"
	"github.com/pscheid92/sinecast/internal/domain"
)

// SeedSource draws the initial raw value of a new series. It must return a
// value in [0, 1).
type SeedSource func() float64

// Service is the application layer between transport handlers and the store.
type Service struct {
	store   domain.SeriesStore
	seed    SeedSource
	metrics *metrics.SeriesMetrics
}

// NewService creates the application service.
// seed may be nil, in which case math/rand/v2 is used. seriesMetrics may be nil.
func NewService(store domain.SeriesStore, seed SeedSource, seriesMetrics *metrics.SeriesMetrics) *Service {
	if seed == nil {
		seed = rand.Float64
	}
	return &Service{store: store, seed: seed, metrics: seriesMetrics}
}

// RegisterSeries seeds name with a random raw value and stores it. An existing
// series with the same name is overwritten. It returns the seed.
func (s *Service) RegisterSeries(ctx context.Context, name string) (float64, error) {
	if name == "" {
		return 0, domain.ErrEmptySeriesName
	}

	seed := s.seed()
	s.store.Register(name, seed)
	s.metrics.Registered()

	slog.DebugContext(ctx, "Series registered", "name", name, "seed", seed)
	return seed, nil
}

// Snapshot returns the current derived value of every series.
func (s *Service) Snapshot() domain.Snapshot {
	return s.store.Snapshot()
}
