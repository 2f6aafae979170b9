package gate

import (
	"context"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"kernelboard/internal/apperr"
	"kernelboard/model"
)

// State of a selection session.
type State int

const (
	StateOpen State = iota
	StateResolved
	StateExpired
)

// Session is a single-use interactive barrier: it offers a target set to one
// owner and blocks the orchestrating flow until the owner picks a non-empty
// subset, or the wait window closes. Resolution is single-shot; input after
// the first accepted choice has no effect.
type Session struct {
	id      uuid.UUID
	ownerID string
	offered mapset.Set[model.Target]
	timeout time.Duration

	mu     sync.Mutex
	state  State
	chosen []model.Target
	done   chan struct{}
	timer  *time.Timer
}

func newSession(ownerID string, offered []model.Target, timeout time.Duration) *Session {
	s := &Session{
		id:      uuid.Must(uuid.NewV7()),
		ownerID: ownerID,
		offered: mapset.NewSet(offered...),
		timeout: timeout,
		state:   StateOpen,
		done:    make(chan struct{}),
	}
	s.timer = time.AfterFunc(timeout, s.expire)
	return s
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) OwnerID() string { return s.ownerID }

// Offered returns the target set this session was seeded with.
func (s *Session) Offered() []model.Target {
	return s.offered.ToSlice()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Resolve records the owner's choice. Only the owning user may resolve; any
// other caller is rejected without mutating session state. The choice must be
// a non-empty subset of the offered targets.
func (s *Session) Resolve(userID string, choice []model.Target) error {
	if userID != s.ownerID {
		return apperr.ErrNotSessionOwner
	}
	if len(choice) == 0 {
		return apperr.ErrEmptySelection
	}
	picked := mapset.NewSet(choice...)
	if !picked.IsSubset(s.offered) {
		return apperr.ErrUnknownTarget
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateExpired:
		return apperr.ErrGateExpired
	case StateResolved:
		return apperr.ErrGateResolved
	}

	s.state = StateResolved
	s.chosen = picked.ToSlice()
	s.timer.Stop()
	close(s.done)
	return nil
}

func (s *Session) expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return
	}
	s.state = StateExpired
	close(s.done)
}

// Await blocks until the session resolves, expires, or ctx is cancelled.
// An expired gate means no targets were selected; callers abort with no side
// effects.
func (s *Session) Await(ctx context.Context) ([]model.Target, error) {
	select {
	case <-ctx.Done():
		s.expire()
		return nil, ctx.Err()
	case <-s.done:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateExpired {
		return nil, apperr.ErrGateExpired
	}
	return s.chosen, nil
}

// Registry routes transport-level resolution requests to live sessions.
// A session is registered on open and removed once the orchestrating flow has
// read its resolution.
type Registry struct {
	sessions *xsync.MapOf[uuid.UUID, *Session]
	timeout  time.Duration
}

func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{
		sessions: xsync.NewMapOf[uuid.UUID, *Session](),
		timeout:  timeout,
	}
}

// Open creates and registers a session owned by ownerID offering the given
// targets.
func (r *Registry) Open(ownerID string, offered []model.Target) *Session {
	s := newSession(ownerID, offered, r.timeout)
	r.sessions.Store(s.id, s)
	return s
}

// Resolve forwards a choice to the identified session.
func (r *Registry) Resolve(id uuid.UUID, userID string, choice []model.Target) error {
	s, ok := r.sessions.Load(id)
	if !ok {
		return apperr.ErrGateExpired
	}
	return s.Resolve(userID, choice)
}

// Close removes a session after its resolution has been consumed.
func (r *Registry) Close(id uuid.UUID) {
	r.sessions.Delete(id)
}
