// Package session keeps browser sessions and the list controllers of their screens.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lllypuk/userdesk/internal/listview"
)

// Default registry settings.
const (
	DefaultIdleTTL       = 30 * time.Minute
	DefaultSweepInterval = time.Minute
	DefaultMaxScreens    = 8
)

// Flash kinds.
const (
	FlashSuccess = "success"
	FlashError   = "error"
	FlashInfo    = "info"
)

// Flash is a one-shot notice shown on the next rendered page.
type Flash struct {
	Kind    string
	Message string
}

// Session is one browser's state: its flash queue and one list controller per
// open screen (tab or history entry showing the users list).
type Session struct {
	ID string

	newController func() *listview.Controller
	maxScreens    int

	mu       sync.Mutex
	lastSeen time.Time
	flashes  []Flash
	screens  map[string]*screen
	tick     uint64
}

// AddFlash queues a notice for the next page.
func (s *Session) AddFlash(kind, message string) {
	s.mu.Lock()
	s.flashes = append(s.flashes, Flash{Kind: kind, Message: message})
	s.mu.Unlock()
}

// TakeFlashes returns and clears the queued notices.
func (s *Session) TakeFlashes() []Flash {
	s.mu.Lock()
	defer s.mu.Unlock()
	flashes := s.flashes
	s.flashes = nil
	return flashes
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

// Gauge receives the number of live sessions.
type Gauge interface {
	Set(float64)
}

// Registry maps session IDs to sessions and evicts idle ones.
type Registry struct {
	newController func() *listview.Controller
	maxScreens    int
	idleTTL       time.Duration
	now           func() time.Time
	logger        *slog.Logger
	gauge         Gauge

	mu       sync.RWMutex
	sessions map[string]*Session
}

// Option configures a Registry.
type Option func(*Registry)

// WithIdleTTL sets how long an untouched session lives.
func WithIdleTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		if ttl > 0 {
			r.idleTTL = ttl
		}
	}
}

// WithMaxScreens caps the screens kept per session. The least recently used
// screen is dropped first.
func WithMaxScreens(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxScreens = n
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithLogger sets the logger for the registry.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithGauge reports the live session count to g.
func WithGauge(g Gauge) Option {
	return func(r *Registry) {
		r.gauge = g
	}
}

// NewRegistry creates a registry that builds controllers with newController.
func NewRegistry(newController func() *listview.Controller, opts ...Option) *Registry {
	r := &Registry{
		newController: newController,
		maxScreens:    DefaultMaxScreens,
		idleTTL:       DefaultIdleTTL,
		now:           time.Now,
		logger:        slog.Default(),
		sessions:      make(map[string]*Session),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Get returns the live session with id and marks it as used.
func (r *Registry) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}

	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()

	if !ok {
		return nil, false
	}

	now := r.now()
	if s.idleSince(now) > r.idleTTL {
		r.remove(id)
		return nil, false
	}

	s.touch(now)
	return s, true
}

// Create starts a fresh session with a new random ID.
func (r *Registry) Create() *Session {
	s := &Session{
		ID:            uuid.NewString(),
		newController: r.newController,
		maxScreens:    r.maxScreens,
		lastSeen:      r.now(),
		screens:       make(map[string]*screen),
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	count := len(r.sessions)
	r.mu.Unlock()

	r.report(count)
	return s
}

// Resolve returns the session for id, creating one when id is unknown or expired.
// created reports whether a new session was made.
func (r *Registry) Resolve(id string) (s *Session, created bool) {
	if s, ok := r.Get(id); ok {
		return s, false
	}
	return r.Create(), true
}

// Len returns the number of tracked sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep removes every session idle longer than the TTL and returns how many were removed.
func (r *Registry) Sweep() int {
	now := r.now()

	r.mu.Lock()
	removed := 0
	for id, s := range r.sessions {
		if s.idleSince(now) > r.idleTTL {
			delete(r.sessions, id)
			removed++
		}
	}
	count := len(r.sessions)
	r.mu.Unlock()

	if removed > 0 {
		r.logger.Debug("swept idle sessions",
			slog.Int("removed", removed),
			slog.Int("remaining", count),
		)
	}
	r.report(count)

	return removed
}

// Run sweeps idle sessions every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	count := len(r.sessions)
	r.mu.Unlock()

	r.report(count)
}

func (r *Registry) report(count int) {
	if r.gauge != nil {
		r.gauge.Set(float64(count))
	}
}
