package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/daybook-app/daybook/internal/store"
)

// MonitorService observes remote reachability by probing the store on an
// interval. Callbacks registered with OnOnline fire on every transition from
// offline to online; reconnect reconciliation hangs off that signal.
type MonitorService struct {
	remote        store.RemoteStore
	probeInterval time.Duration
	probeTimeout  time.Duration
	logger        *zap.Logger

	mu        sync.Mutex
	online    bool
	probed    bool
	callbacks []func(ctx context.Context)

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMonitorService creates a new connection monitor
func NewMonitorService(remote store.RemoteStore, probeInterval, probeTimeout time.Duration, logger *zap.Logger) *MonitorService {
	if probeInterval <= 0 {
		probeInterval = 15 * time.Second
	}
	if probeTimeout <= 0 {
		probeTimeout = 3 * time.Second
	}
	return &MonitorService{
		remote:        remote,
		probeInterval: probeInterval,
		probeTimeout:  probeTimeout,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
}

// OnOnline registers a callback for offline-to-online transitions.
func (s *MonitorService) OnOnline(cb func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, cb)
}

// Online reports the last observed reachability. Before the first probe the
// remote is assumed reachable.
func (s *MonitorService) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.probed {
		return true
	}
	return s.online
}

// Start begins the probe loop
func (s *MonitorService) Start() {
	s.logger.Info("Starting connection monitor",
		zap.Duration("probe_interval", s.probeInterval),
		zap.Duration("probe_timeout", s.probeTimeout))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.probeInterval)
		defer ticker.Stop()

		s.probe()
		for {
			select {
			case <-ticker.C:
				s.probe()
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop halts the probe loop
func (s *MonitorService) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// probe pings the remote once and records the transition.
func (s *MonitorService) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), s.probeTimeout)
	err := s.remote.Ping(ctx)
	cancel()

	s.mu.Lock()
	wasOnline := s.online
	first := !s.probed
	s.probed = true
	s.online = err == nil
	var callbacks []func(ctx context.Context)
	if s.online && !wasOnline && !first {
		callbacks = append(callbacks, s.callbacks...)
	}
	s.mu.Unlock()

	switch {
	case err != nil && (wasOnline || first):
		s.logger.Warn("Remote store unreachable", zap.Error(err))
	case err == nil && !wasOnline && !first:
		s.logger.Info("Remote store reachable again")
	}

	for _, cb := range callbacks {
		cb(context.Background())
	}
}
