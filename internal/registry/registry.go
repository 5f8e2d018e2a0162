// Package registry holds the last-known set of discoverable printers and the
// exclusive-use connection lifecycle around each physical printer.
package registry

import (
	"context"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tillbridge/tillbridge/internal/model"
)

// Conn is a live printer connection: raw command writes plus close.
type Conn interface {
	io.Writer
	Close() error
}

// Opener turns a parsed printer address into a live connection.
type Opener interface {
	Open(ctx context.Context, addr model.PrinterAddress) (Conn, error)
}

// Discoverer performs one bounded-time hardware sweep.
type Discoverer interface {
	Discover(ctx context.Context) ([]model.PrinterDescriptor, error)
}

// Registry is the printer registry: a discovery cache that readers see
// atomically, plus per-printer mutual exclusion for hardware access.
type Registry struct {
	opener     Opener
	discoverer Discoverer
	log        zerolog.Logger

	mu    sync.RWMutex
	cache []model.PrinterDescriptor

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New builds a registry. The cache starts empty until the first Refresh or
// SetCache.
func New(opener Opener, discoverer Discoverer, log zerolog.Logger) *Registry {
	return &Registry{
		opener:     opener,
		discoverer: discoverer,
		log:        log.With().Str("component", "registry").Logger(),
		locks:      make(map[string]*sync.Mutex),
	}
}

// List returns the current cache contents. It never blocks on hardware and
// returns a copy the caller may keep.
func (r *Registry) List() []model.PrinterDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.PrinterDescriptor, len(r.cache))
	copy(out, r.cache)
	return out
}

// Find returns the cached descriptor for a printer ID.
func (r *Registry) Find(printerID string) (model.PrinterDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.cache {
		if p.ID == printerID {
			return p, true
		}
	}
	return model.PrinterDescriptor{}, false
}

// SetCache replaces the cache wholesale. Concurrent readers observe either
// the previous list or the new one, never a mix.
func (r *Registry) SetCache(printers []model.PrinterDescriptor) {
	fresh := make([]model.PrinterDescriptor, len(printers))
	copy(fresh, printers)

	r.mu.Lock()
	r.cache = fresh
	r.mu.Unlock()
}

// Refresh runs a discovery sweep and replaces the cache with the result.
func (r *Registry) Refresh(ctx context.Context) ([]model.PrinterDescriptor, error) {
	printers, err := r.discoverer.Discover(ctx)
	if err != nil {
		return nil, err
	}
	r.SetCache(printers)
	r.log.Info().Int("count", len(printers)).Msg("discovery cache replaced")
	return printers, nil
}

// WithConnection parses printerID, opens a fresh exclusive connection to that
// printer, runs fn, and always closes the connection — on normal return,
// error, or panic. Close failures are logged, never returned: closing a
// printer must not mask fn's outcome. Jobs addressed to the same printer ID
// serialize here; distinct printers proceed in parallel.
func (r *Registry) WithConnection(ctx context.Context, printerID string, fn func(Conn) error) error {
	addr, err := model.ParsePrinterID(printerID)
	if err != nil {
		return err
	}

	lock := r.printerLock(printerID)
	lock.Lock()
	defer lock.Unlock()

	conn, err := r.opener.Open(ctx, addr)
	if err != nil {
		return &model.CodedError{
			Code:    model.CodeConnectionError,
			Message: "cannot open " + printerID + ": " + err.Error(),
			Kind:    model.ErrConnection,
		}
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			r.log.Warn().Err(cerr).Str("printer_id", printerID).Msg("closing printer failed")
		}
	}()

	return fn(conn)
}

// printerLock returns the mutex guarding one physical printer. Locks are
// created on first use and kept for the life of the process; the set of
// printer IDs seen by one daemon is tiny.
func (r *Registry) printerLock(printerID string) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	lock, ok := r.locks[printerID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[printerID] = lock
	}
	return lock
}
