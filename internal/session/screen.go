package session

import (
	"cmp"
	"slices"

	"github.com/google/uuid"
	"github.com/lllypuk/userdesk/internal/listview"
	"github.com/lllypuk/userdesk/internal/userapi"
)

type screen struct {
	id       string
	ctrl     *listview.Controller
	lastUsed uint64
}

// NewScreen opens a screen with a fresh controller.
func (s *Session) NewScreen() (string, *listview.Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc := s.openLocked(uuid.NewString())
	return sc.id, sc.ctrl
}

// Screen returns the controller of screen id. A well-formed but unknown id is
// opened with a fresh controller, so a tab keeps its id after eviction.
// An empty or malformed id picks the most recently used screen.
func (s *Session) Screen(id string) (string, *listview.Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sc, ok := s.screens[id]; ok {
		s.useLocked(sc)
		return sc.id, sc.ctrl
	}

	if _, err := uuid.Parse(id); err == nil {
		sc := s.openLocked(id)
		return sc.id, sc.ctrl
	}

	if sc := s.latestLocked(); sc != nil {
		s.useLocked(sc)
		return sc.id, sc.ctrl
	}

	sc := s.openLocked(uuid.NewString())
	return sc.id, sc.ctrl
}

// ScreenCount returns the number of open screens.
func (s *Session) ScreenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.screens)
}

// Find looks a record up in the current records of every screen, most recently
// used first.
func (s *Session) Find(id int64) (userapi.User, bool) {
	type candidate struct {
		ctrl *listview.Controller
		used uint64
	}

	s.mu.Lock()
	candidates := make([]candidate, 0, len(s.screens))
	for _, sc := range s.screens {
		candidates = append(candidates, candidate{ctrl: sc.ctrl, used: sc.lastUsed})
	}
	s.mu.Unlock()

	slices.SortFunc(candidates, func(a, b candidate) int {
		return cmp.Compare(b.used, a.used)
	})

	for _, c := range candidates {
		if u, ok := c.ctrl.Snapshot().Find(id); ok {
			return u, true
		}
	}

	return userapi.User{}, false
}

func (s *Session) openLocked(id string) *screen {
	if s.screens == nil {
		s.screens = make(map[string]*screen)
	}

	sc := &screen{id: id, ctrl: s.newController()}
	s.useLocked(sc)
	s.screens[id] = sc

	limit := s.maxScreens
	if limit <= 0 {
		limit = DefaultMaxScreens
	}
	for len(s.screens) > limit {
		oldest := s.oldestLocked()
		delete(s.screens, oldest.id)
	}

	return sc
}

func (s *Session) useLocked(sc *screen) {
	s.tick++
	sc.lastUsed = s.tick
}

func (s *Session) latestLocked() *screen {
	var latest *screen
	for _, sc := range s.screens {
		if latest == nil || sc.lastUsed > latest.lastUsed {
			latest = sc
		}
	}
	return latest
}

func (s *Session) oldestLocked() *screen {
	var oldest *screen
	for _, sc := range s.screens {
		if oldest == nil || sc.lastUsed < oldest.lastUsed {
			oldest = sc
		}
	}
	return oldest
}
