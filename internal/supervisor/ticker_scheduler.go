package supervisor

import (
	"context"
	"errors"
	"sync"
	"time"

	"stopalarm/internal/location"
)

// TickerScheduler is the in-process Scheduler used by this daemon. It makes
// the serial-delivery invariant explicit: a mutex guarantees callbacks never
// overlap, so the durable read-modify-write in the evaluator needs no
// additional locking.
type TickerScheduler struct {
	provider location.Provider

	// runMu serializes callback delivery; mu guards scheduler state. Two
	// locks so a callback may retune the cadence without deadlocking.
	runMu sync.Mutex

	mu       sync.Mutex
	cadence  Cadence
	handler  func(ctx context.Context)
	geofence *geofenceWatch
	cancel   context.CancelFunc
	done     chan struct{}
}

type geofenceWatch struct {
	lat     float64
	lon     float64
	radiusM float64
	handler func(ctx context.Context)
	inside  bool
}

// NewTickerScheduler constructs a scheduler. The provider is used only to
// emulate geofence enter-crossings between periodic callbacks.
func NewTickerScheduler(provider location.Provider) *TickerScheduler {
	return &TickerScheduler{
		provider: provider,
		cadence:  Cadence{Interval: time.Minute},
	}
}

// UpdateCadence retunes the delivery interval. Takes effect on the next tick.
func (s *TickerScheduler) UpdateCadence(c Cadence) {
	if s == nil || c.Interval <= 0 {
		return
	}
	s.mu.Lock()
	s.cadence = c
	s.mu.Unlock()
}

// RegisterGeofence arms an enter-crossing watch around the target.
func (s *TickerScheduler) RegisterGeofence(lat, lon, radiusM float64, handler func(ctx context.Context)) error {
	if s == nil {
		return errors.New("ticker scheduler: nil scheduler")
	}
	if radiusM <= 0 || handler == nil {
		return errors.New("ticker scheduler: invalid geofence")
	}
	s.mu.Lock()
	s.geofence = &geofenceWatch{lat: lat, lon: lon, radiusM: radiusM, handler: handler}
	s.mu.Unlock()
	return nil
}

// StartPeriodic begins delivering callbacks. Non-blocking; delivery runs
// until Stop or ctx cancellation.
func (s *TickerScheduler) StartPeriodic(ctx context.Context, handler func(ctx context.Context)) error {
	if s == nil {
		return errors.New("ticker scheduler: nil scheduler")
	}
	if handler == nil {
		return errors.New("ticker scheduler: nil handler")
	}
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return errors.New("ticker scheduler: already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.handler = handler
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		for {
			s.mu.Lock()
			interval := s.cadence.Interval
			s.mu.Unlock()

			timer := time.NewTimer(interval)
			select {
			case <-runCtx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			s.deliver(runCtx)
		}
	}()
	return nil
}

// deliver runs one callback pass under the serialization lock, checking the
// geofence watch first so an enter-crossing is reported even when the
// periodic handler would have been throttled away on a real host.
func (s *TickerScheduler) deliver(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mu.Lock()
	handler := s.handler
	fence := s.geofence
	s.mu.Unlock()

	if fence != nil && s.provider != nil {
		if fix, err := s.provider.CurrentFix(ctx); err == nil && fix.Valid() {
			distance := location.DistanceM(fix.Latitude, fix.Longitude, fence.lat, fence.lon)
			inside := distance <= fence.radiusM
			if inside && !fence.inside {
				fence.handler(ctx)
			}
			s.mu.Lock()
			fence.inside = inside
			s.mu.Unlock()
		}
	}
	if handler != nil {
		handler(ctx)
	}
}

// Stop ends delivery and waits for the in-flight callback to finish.
func (s *TickerScheduler) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}
