// Package supervisor owns the background execution wiring: it registers the
// evaluator with the host's location scheduler and geofence fallback, and it
// tunes the polling cadence from the current distance to target.
package supervisor

import (
	"context"
	"errors"
	"log"
	"time"

	"stopalarm/internal/alarm/application"
	alarm "stopalarm/internal/alarm/domain"
	"stopalarm/internal/diag"
	"stopalarm/internal/location"
)

// Cadence is one polling configuration: how often the scheduler should
// deliver callbacks and how much movement is worth waking up for.
type Cadence struct {
	Interval  time.Duration
	MinDeltaM float64
}

// Band maps a distance ceiling to a cadence. Farther away means a longer
// interval and a coarser distance delta; battery is traded for responsiveness
// only as the user nears the target.
type Band struct {
	MaxDistanceM float64
	Interval     time.Duration
	MinDeltaM    float64
}

// DefaultBands returns the four-band cadence policy.
func DefaultBands() []Band {
	return []Band{
		{MaxDistanceM: 1000, Interval: 15 * time.Second, MinDeltaM: 25},
		{MaxDistanceM: 3000, Interval: 30 * time.Second, MinDeltaM: 100},
		{MaxDistanceM: 10000, Interval: 60 * time.Second, MinDeltaM: 250},
		{MaxDistanceM: 0, Interval: 3 * time.Minute, MinDeltaM: 500},
	}
}

// CadenceFor selects the cadence for the given distance. A band with
// MaxDistanceM of zero is the open-ended far band. Unknown distance (zero or
// negative) selects the far band: polling speeds up only once a fix proves
// the user is close.
func CadenceFor(bands []Band, distanceM float64) Cadence {
	var far Cadence
	for _, band := range bands {
		if band.MaxDistanceM <= 0 {
			far = Cadence{Interval: band.Interval, MinDeltaM: band.MinDeltaM}
			continue
		}
		if distanceM > 0 && distanceM <= band.MaxDistanceM {
			return Cadence{Interval: band.Interval, MinDeltaM: band.MinDeltaM}
		}
	}
	if far.Interval <= 0 {
		far = Cadence{Interval: 3 * time.Minute, MinDeltaM: 500}
	}
	return far
}

// Scheduler is the host capability that delivers background callbacks. The
// concrete implementation is selected at wiring time by configuration; the
// supervisor never probes for capabilities at runtime.
type Scheduler interface {
	// StartPeriodic begins delivering callbacks at the current cadence.
	// Implementations must deliver callbacks serially.
	StartPeriodic(ctx context.Context, handler func(ctx context.Context)) error
	// UpdateCadence retunes the delivery schedule.
	UpdateCadence(c Cadence)
	// RegisterGeofence arms an enter-crossing callback around the target,
	// the fallback path for hosts that throttle periodic callbacks.
	RegisterGeofence(lat, lon, radiusM float64, handler func(ctx context.Context)) error
	// Stop ends delivery.
	Stop()
}

// SettingsSource supplies the evaluator settings at each invocation, keeping
// settings out of global mutable state.
type SettingsSource func() application.Settings

// Supervisor is the only caller of the background evaluator.
type Supervisor struct {
	provider  location.Provider
	evaluator *application.BackgroundEvaluator
	sessions  application.SessionRepository
	scheduler Scheduler
	settings  SettingsSource
	bands     []Band
	sink      diag.Sink
	logger    *log.Logger

	// armedID is the session the geofence is currently registered for.
	// Touched only from Run and from the serially delivered ticks.
	armedID string
}

// New constructs a supervisor.
func New(provider location.Provider, evaluator *application.BackgroundEvaluator, sessions application.SessionRepository, scheduler Scheduler, settings SettingsSource, bands []Band, sink diag.Sink, logger *log.Logger) (*Supervisor, error) {
	if provider == nil {
		return nil, errors.New("supervisor: nil location provider")
	}
	if evaluator == nil {
		return nil, errors.New("supervisor: nil evaluator")
	}
	if sessions == nil {
		return nil, errors.New("supervisor: nil session repository")
	}
	if scheduler == nil {
		return nil, errors.New("supervisor: nil scheduler")
	}
	if settings == nil {
		return nil, errors.New("supervisor: nil settings source")
	}
	if len(bands) == 0 {
		bands = DefaultBands()
	}
	if sink == nil {
		sink = diag.NopSink{}
	}
	return &Supervisor{
		provider:  provider,
		evaluator: evaluator,
		sessions:  sessions,
		scheduler: scheduler,
		settings:  settings,
		bands:     bands,
		sink:      sink,
		logger:    logger,
	}, nil
}

// Run arms the geofence for the active session, seeds the cadence from the
// last known distance, and starts periodic delivery. Blocks until ctx ends.
func (s *Supervisor) Run(ctx context.Context) error {
	if s == nil {
		return errors.New("supervisor: nil supervisor")
	}
	s.arm(ctx)
	if err := s.scheduler.StartPeriodic(ctx, s.tick); err != nil {
		return err
	}
	<-ctx.Done()
	s.scheduler.Stop()
	return ctx.Err()
}

// arm seeds the cadence and registers the geofence for the active session.
// Re-checked on every tick so a session started after the daemon came up
// still gets its fence.
func (s *Supervisor) arm(ctx context.Context) {
	session, err := s.sessions.Get(ctx)
	if err != nil || session == nil || session.Terminal() || session.ID == s.armedID {
		return
	}
	s.scheduler.UpdateCadence(CadenceFor(s.bands, session.LastKnownM))
	if err := s.scheduler.RegisterGeofence(session.Target.Latitude, session.Target.Longitude, session.RadiusM, s.handleGeofenceEnter(session.Target)); err != nil {
		s.sink.Report(ctx, "register_geofence", err)
	}
	s.armedID = session.ID
}

// tick handles one periodic callback: re-arm if needed, fetch a fix,
// evaluate, retune.
func (s *Supervisor) tick(ctx context.Context) {
	s.arm(ctx)
	fix, err := s.provider.CurrentFix(ctx)
	if err != nil {
		if !errors.Is(err, location.ErrNoFix) {
			s.sink.Report(ctx, "current_fix", err)
		}
		return
	}
	outcome := s.evaluator.HandleFix(ctx, fix, s.settings())
	if outcome.Triggered && s.logger != nil {
		s.logger.Printf("alarm triggered at %.0fm", outcome.DistanceM)
	}
	if outcome.DistanceM > 0 {
		s.scheduler.UpdateCadence(CadenceFor(s.bands, outcome.DistanceM))
	}
}

// handleGeofenceEnter evaluates using the geofence center as a location
// proxy; platforms that throttle periodic callbacks still report the
// enter-crossing.
func (s *Supervisor) handleGeofenceEnter(target alarm.Target) func(ctx context.Context) {
	return func(ctx context.Context) {
		fix := location.Fix{Latitude: target.Latitude, Longitude: target.Longitude, FixedAt: time.Now().UTC()}
		s.evaluator.HandleFix(ctx, fix, s.settings())
	}
}
