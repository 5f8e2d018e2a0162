// Package discovery finds printers over USB, mDNS, the local subnet and
// static configuration. Each provider runs under its own timeout; a failing
// provider degrades to an empty contribution instead of failing the sweep.
package discovery

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tillbridge/tillbridge/internal/model"
)

// DefaultTimeout bounds a single provider's share of a sweep.
const DefaultTimeout = 3 * time.Second

// Provider finds printers over one mechanism.
type Provider interface {
	Name() string
	Discover(ctx context.Context) ([]model.PrinterDescriptor, error)
}

// Sweeper runs all providers and merges their results into one list for the
// registry cache, deduplicated by printer ID (mDNS and a subnet scan can
// both see the same network printer).
type Sweeper struct {
	providers []Provider
	timeout   time.Duration
	log       zerolog.Logger
}

// NewSweeper builds a sweeper. timeout <= 0 selects DefaultTimeout per
// provider.
func NewSweeper(providers []Provider, timeout time.Duration, log zerolog.Logger) *Sweeper {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Sweeper{
		providers: providers,
		timeout:   timeout,
		log:       log.With().Str("component", "discovery").Logger(),
	}
}

// Discover runs one sweep. Provider errors are logged and skipped; the sweep
// itself only fails when the caller's context is done.
func (s *Sweeper) Discover(ctx context.Context) ([]model.PrinterDescriptor, error) {
	var merged []model.PrinterDescriptor
	seen := make(map[string]bool)

	for _, p := range s.providers {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		pctx, cancel := context.WithTimeout(ctx, s.timeout)
		found, err := p.Discover(pctx)
		cancel()
		if err != nil {
			s.log.Warn().Err(err).Str("provider", p.Name()).Msg("discovery provider failed")
			continue
		}

		for _, printer := range found {
			if seen[printer.ID] {
				continue
			}
			seen[printer.ID] = true
			merged = append(merged, printer)
		}
		s.log.Debug().Str("provider", p.Name()).Int("found", len(found)).Msg("provider finished")
	}

	return merged, nil
}
