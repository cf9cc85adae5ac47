// Package live keeps the per-client sessions whose stores follow the
// document database through live queries.
package live

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coderev/coderev/backend/go-services/internal/auth"
	"github.com/coderev/coderev/backend/go-services/internal/docstore"
	"github.com/coderev/coderev/backend/go-services/internal/models"
	"github.com/coderev/coderev/backend/go-services/internal/repository"
	"github.com/coderev/coderev/backend/go-services/internal/storage"
	"github.com/coderev/coderev/backend/go-services/internal/stores"
	"github.com/coderev/coderev/backend/go-services/internal/subscriptions"
	"github.com/coderev/coderev/backend/go-services/pkg/logger"
	"github.com/coderev/coderev/backend/go-services/pkg/metrics"
)

var (
	ErrNoSession    = errors.New("no live session")
	ErrSessionOwner = errors.New("live session belongs to another user")
)

// Manager maps session ids to open sessions. Repositories and source
// storage are shared by every session.
type Manager struct {
	profiles   *repository.Repository[*models.Profile]
	workspaces *repository.Repository[*models.Workspace]
	candidates *repository.Repository[*models.CandidateReview]
	files      *storage.SourceStorage

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(b docstore.Backend, files *storage.SourceStorage) *Manager {
	return &Manager{
		profiles:   repository.NewProfiles(b),
		workspaces: repository.NewWorkspaces(b),
		candidates: repository.NewCandidates(b),
		files:      files,
		sessions:   make(map[string]*Session),
	}
}

// Files is the source storage shared by the sessions.
func (m *Manager) Files() *storage.SourceStorage { return m.files }

// Open returns the session for sid, creating it and signing user in when it
// does not exist yet. A session is bound to the user that opened it. A reused
// session whose profile went away signs user in again.
func (m *Manager) Open(ctx context.Context, sid string, user auth.Actor) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[sid]; ok {
		m.mu.Unlock()
		if s.User.UID != user.UID {
			return nil, ErrSessionOwner
		}
		s.touch()
		if s.App.Profile() == nil {
			if err := s.App.SetUser(s.Context(ctx), user); err != nil {
				return nil, err
			}
		}
		return s, nil
	}
	m.mu.Unlock()

	s := &Session{ID: sid, User: user, Registry: subscriptions.New(sid), idleSince: time.Now()}
	s.App = stores.NewAppStore(m.profiles, s.Registry, s)
	s.Workspaces = stores.NewWorkspaceStore(s.App, m.workspaces, m.candidates, m.files, s.Registry, s)
	s.Candidates = stores.NewCandidateStore(s.App, s.Workspaces, m.candidates, s.Registry, s)
	if err := s.App.SetUser(s.Context(ctx), user); err != nil {
		s.close()
		return nil, err
	}

	m.mu.Lock()
	if prev, ok := m.sessions[sid]; ok {
		// lost a race with a concurrent Open
		m.mu.Unlock()
		s.close()
		if prev.User.UID != user.UID {
			return nil, ErrSessionOwner
		}
		return prev, nil
	}
	m.sessions[sid] = s
	m.mu.Unlock()
	metrics.LiveSessions.Inc()
	logger.Infof("live session %s opened for %s", sid, user.UID)
	return s, nil
}

// Get returns the open session for sid.
func (m *Manager) Get(sid string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sid]
	return s, ok
}

// Close disposes every subscription of the session and detaches its
// listeners. Closing an unknown session is a no-op.
func (m *Manager) Close(sid string) bool {
	m.mu.Lock()
	s, ok := m.sessions[sid]
	delete(m.sessions, sid)
	m.mu.Unlock()
	if !ok {
		return false
	}
	m.finish(s, "closed")
	return true
}

// Release closes the session for sid when no event listener is attached.
func (m *Manager) Release(sid string) bool {
	m.mu.Lock()
	s, ok := m.sessions[sid]
	if !ok || s.Listeners() > 0 {
		m.mu.Unlock()
		return false
	}
	delete(m.sessions, sid)
	m.mu.Unlock()
	m.finish(s, "released")
	return true
}

// Reap closes the sessions that have had no listener for at least idle.
func (m *Manager) Reap(idle time.Duration) int {
	now := time.Now()
	m.mu.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		if d, ok := s.idleFor(now); ok && d >= idle {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()
	for _, s := range stale {
		m.finish(s, "reaped")
	}
	return len(stale)
}

// RunReaper calls Reap until ctx is done.
func (m *Manager) RunReaper(ctx context.Context, idle time.Duration) {
	if idle <= 0 {
		return
	}
	every := idle / 2
	if every < time.Second {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Reap(idle); n > 0 {
				logger.Debugf("reaped %d idle live sessions", n)
			}
		}
	}
}

func (m *Manager) finish(s *Session, how string) {
	s.close()
	metrics.LiveSessions.Dec()
	logger.Infof("live session %s %s", s.ID, how)
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown closes all sessions.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.Close(id)
	}
}
