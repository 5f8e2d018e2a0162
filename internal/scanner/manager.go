package scanner

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Manager owns the capture goroutine and the detector, and publishes scan
// results on a channel for the broadcast side to consume. A capture failure
// (missing device, permission denied) degrades to inactive scanning; it never
// takes the rest of the bridge down.
type Manager struct {
	source   CaptureSource
	detector *Detector
	results  chan Result
	active   atomic.Bool
	log      zerolog.Logger
}

// NewManager builds a manager around a capture source. source may be nil on
// platforms without a supported capture mechanism; the manager then reports
// inactive and emits nothing.
func NewManager(source CaptureSource, timeout time.Duration, log zerolog.Logger) *Manager {
	return &Manager{
		source:   source,
		detector: NewDetector(timeout),
		results:  make(chan Result, 16),
		log:      log.With().Str("component", "scanner").Logger(),
	}
}

// Start launches the capture goroutine. Safe to call once.
func (m *Manager) Start(ctx context.Context) {
	if m.source == nil {
		m.log.Info().Msg("no capture source, scanning unavailable")
		return
	}

	m.active.Store(true)
	m.log.Info().Str("device", m.source.Name()).Msg("scanner listener started")

	go func() {
		defer m.active.Store(false)
		if err := m.source.Run(ctx, m.onChar); err != nil && ctx.Err() == nil {
			m.log.Error().Err(err).Msg("scanner capture stopped, scanning unavailable")
		}
	}()
}

// onChar runs on the capture goroutine; the detector is only touched here.
func (m *Manager) onChar(ch rune) {
	result, ok := m.detector.Feed(ch, time.Now())
	if !ok {
		return
	}
	m.log.Info().Str("value", result.Value).Str("type", result.Kind).Msg("barcode scanned")
	select {
	case m.results <- result:
	default:
		m.log.Warn().Msg("scan buffer full, result dropped")
	}
}

// Results is the stream of detected scans.
func (m *Manager) Results() <-chan Result { return m.results }

// Active reports whether the capture goroutine is running.
func (m *Manager) Active() bool { return m.active.Load() }
