package live

import (
	"context"
	"sync"
	"time"

	"github.com/coderev/coderev/backend/go-services/internal/auth"
	"github.com/coderev/coderev/backend/go-services/internal/stores"
	"github.com/coderev/coderev/backend/go-services/internal/subscriptions"
)

// listenerBuffer bounds the queue of each event listener. Slow listeners
// lose events rather than block change delivery.
const listenerBuffer = 64

// Session is one signed-in client: its stores and the registry that owns
// their live subscriptions.
type Session struct {
	ID         string
	User       auth.Actor
	Registry   *subscriptions.Registry
	App        *stores.AppStore
	Workspaces *stores.WorkspaceStore
	Candidates *stores.CandidateStore

	mu        sync.Mutex
	listeners map[int]chan stores.Event
	nextID    int
	closed    bool
	// idleSince is when the last listener detached, zero while one is attached.
	idleSince time.Time
}

func (s *Session) Notify(e stores.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.listeners {
		select {
		case ch <- e:
		default:
		}
	}
}

// Events returns a channel of store events and a func that detaches it.
// The channel is closed when the listener is detached or the session ends.
func (s *Session) Events() (<-chan stores.Event, func()) {
	ch := make(chan stores.Event, listenerBuffer)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	if s.listeners == nil {
		s.listeners = make(map[int]chan stores.Event)
	}
	id := s.nextID
	s.nextID++
	s.listeners[id] = ch
	s.idleSince = time.Time{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.listeners[id]; ok {
				delete(s.listeners, id)
				close(c)
				if len(s.listeners) == 0 {
					s.idleSince = time.Now()
				}
			}
		})
	}
}

// touch restarts the idle clock of a session without listeners.
func (s *Session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.listeners) == 0 && !s.closed {
		s.idleSince = time.Now()
	}
}

// Listeners reports how many event listeners are attached.
func (s *Session) Listeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

// idleFor reports how long the session has had no listener at now.
func (s *Session) idleFor(now time.Time) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.listeners) > 0 {
		return 0, false
	}
	return now.Sub(s.idleSince), true
}

// Context returns ctx carrying the session user.
func (s *Session) Context(ctx context.Context) context.Context {
	return auth.WithActor(ctx, s.User)
}

func (s *Session) close() {
	s.Registry.Dispose()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.listeners {
		delete(s.listeners, id)
		close(ch)
	}
}
