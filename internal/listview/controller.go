// Package listview owns the paginated, searchable users list state for one screen.
//
// Every state change issues exactly one list request carrying the latest page, size
// and query. Requests are numbered; a response is applied only if no newer request
// was issued after it, so a slow stale response can never overwrite a newer one.
package listview

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/lllypuk/userdesk/internal/userapi"
)

// Controller errors.
var (
	ErrInvalidPage = errors.New("page must not be negative")
	ErrInvalidSize = errors.New("page size is not one of the allowed options")
)

// Lister fetches one page of users.
// Declared on the consumer side; *userapi.Client satisfies it.
type Lister interface {
	ListUsers(ctx context.Context, page, size int, query string) (*userapi.PageResult, error)
}

// Snapshot is an immutable copy of the controller state.
type Snapshot struct {
	Page    int
	Size    int
	Query   string
	Loading bool
	Err     string
	Records []userapi.User
	Total   int
	// Refresh counts explicit refetch requests (mutations, pushes).
	Refresh uint64
}

// TotalPages returns the page count derived from Total and Size.
func (s Snapshot) TotalPages() int {
	return TotalPages(s.Total, s.Size)
}

// HasPrev reports whether a previous page exists.
func (s Snapshot) HasPrev() bool {
	return s.Page > 0
}

// HasNext reports whether a next page exists.
func (s Snapshot) HasNext() bool {
	return s.Page+1 < s.TotalPages()
}

// PageLabel returns "{page+1} / {totalPages}".
func (s Snapshot) PageLabel() string {
	return PageLabel(s.Page, s.TotalPages())
}

// Find returns the displayed record with the given id.
func (s Snapshot) Find(id int64) (userapi.User, bool) {
	for _, u := range s.Records {
		if u.ID == id {
			return u, true
		}
	}
	return userapi.User{}, false
}

// Controller holds page, size and query for one screen together with the last results.
type Controller struct {
	lister Lister
	logger *slog.Logger

	mu      sync.Mutex
	page    int
	size    int
	query   string
	refresh uint64
	loading bool
	err     string
	records []userapi.User
	total   int

	// seq is the number of the most recently issued request.
	seq uint64
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger for the controller.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithSize sets the initial page size. Invalid sizes are ignored.
func WithSize(size int) Option {
	return func(c *Controller) {
		if ValidSize(size) {
			c.size = size
		}
	}
}

// New creates a controller at page 0 with an empty query.
func New(lister Lister, opts ...Option) *Controller {
	c := &Controller{
		lister:  lister,
		logger:  slog.Default(),
		size:    DefaultSize,
		records: []userapi.User{},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Snapshot returns the current state without fetching.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Load fetches the current page, size and query.
func (c *Controller) Load(ctx context.Context) Snapshot {
	return c.update(ctx, nil)
}

// SetPage moves to page without touching size or query.
func (c *Controller) SetPage(ctx context.Context, page int) (Snapshot, error) {
	if page < 0 {
		return c.Snapshot(), ErrInvalidPage
	}
	return c.update(ctx, func() { c.page = page }), nil
}

// SetSize changes the page size and returns to page 0.
func (c *Controller) SetSize(ctx context.Context, size int) (Snapshot, error) {
	if !ValidSize(size) {
		return c.Snapshot(), ErrInvalidSize
	}
	return c.update(ctx, func() {
		c.size = size
		c.page = 0
	}), nil
}

// SetQuery changes the search text and returns to page 0 before the fetch fires.
func (c *Controller) SetQuery(ctx context.Context, query string) Snapshot {
	return c.update(ctx, func() {
		c.query = query
		c.page = 0
	})
}

// Apply sets page, size and query in one step and fetches once.
// A changed query or size wins over the requested page and resets it to 0.
func (c *Controller) Apply(ctx context.Context, page, size int, query string) (Snapshot, error) {
	if page < 0 {
		return c.Snapshot(), ErrInvalidPage
	}
	if !ValidSize(size) {
		return c.Snapshot(), ErrInvalidSize
	}
	return c.update(ctx, func() {
		if strings.TrimSpace(query) != strings.TrimSpace(c.query) || size != c.size {
			page = 0
		}
		c.page = page
		c.size = size
		c.query = query
	}), nil
}

// Refresh refetches the current page, size and query.
func (c *Controller) Refresh(ctx context.Context) Snapshot {
	return c.update(ctx, func() { c.refresh++ })
}

// AfterCreate returns to page 0 and refetches so the new record can surface.
func (c *Controller) AfterCreate(ctx context.Context) Snapshot {
	return c.update(ctx, func() {
		c.page = 0
		c.refresh++
	})
}

// AfterMutation refetches the current page after an update or delete.
func (c *Controller) AfterMutation(ctx context.Context) Snapshot {
	return c.Refresh(ctx)
}

// update applies mutate under the lock, then issues exactly one list request.
func (c *Controller) update(ctx context.Context, mutate func()) Snapshot {
	c.mu.Lock()
	if mutate != nil {
		mutate()
	}
	c.seq++
	seq := c.seq
	page, size, query := c.page, c.size, c.query
	c.loading = true
	c.mu.Unlock()

	result, err := c.lister.ListUsers(ctx, page, size, query)

	c.mu.Lock()
	defer c.mu.Unlock()

	if seq != c.seq {
		c.logger.DebugContext(ctx, "discarding stale list response",
			slog.Uint64("seq", seq),
			slog.Uint64("latest_seq", c.seq),
		)
		return c.snapshotLocked()
	}

	c.loading = false
	if err != nil {
		c.err = errorMessage(err)
		c.logger.WarnContext(ctx, "list users failed",
			slog.Int("page", page),
			slog.Int("size", size),
			slog.String("error", c.err),
		)
		return c.snapshotLocked()
	}

	c.err = ""
	c.records = result.Content
	if c.records == nil {
		c.records = []userapi.User{}
	}
	c.total = max(result.TotalElements, 0)

	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	records := make([]userapi.User, len(c.records))
	copy(records, c.records)

	return Snapshot{
		Page:    c.page,
		Size:    c.size,
		Query:   c.query,
		Loading: c.loading,
		Err:     c.err,
		Records: records,
		Total:   c.total,
		Refresh: c.refresh,
	}
}

// errorMessage returns the user-facing text for a failed fetch.
func errorMessage(err error) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "failed to load users"
}
