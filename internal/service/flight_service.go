package service

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/daybook-app/daybook/internal/metrics"
	"github.com/daybook-app/daybook/internal/model"
)

// FlightService collapses concurrent fetches for the same resource key into
// one underlying call. Callers that arrive while a fetch is in flight attach
// to it and receive the same result, success or failure. The in-flight entry
// is removed when the fetch settles, so a failed fetch never poisons later
// loads.
type FlightService struct {
	group   singleflight.Group
	metrics *metrics.Metrics
}

// NewFlightService creates a new single-flight loader
func NewFlightService(m *metrics.Metrics) *FlightService {
	return &FlightService{metrics: m}
}

// Load runs fetch for key, deduplicating against concurrent calls.
func (s *FlightService) Load(ctx context.Context, key model.ResourceKey, fetch func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	s.metrics.FlightLoadsTotal.Inc()

	value, err, shared := s.group.Do(key.String(), func() (interface{}, error) {
		return fetch(ctx)
	})
	if shared {
		s.metrics.FlightSharedTotal.Inc()
	}
	return value, err
}
