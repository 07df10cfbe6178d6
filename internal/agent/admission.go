package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// ErrSessionActive is returned when admission is refused because a run loop
// is already active for the session id.
var ErrSessionActive = errors.New("agent: session already active")

// Run-loop phases, shared between the loop and the command path via the
// handle so approval and revision can redirect a live conversation.
const (
	phasePlanning int32 = iota
	phaseAwaitingApproval
	phaseExecuting
)

// SessionHandle is the process-local handle for one active run loop. It has
// no durable identity: the persisted AgentSession row is the source of truth
// and the handle exists only between admission and release.
type SessionHandle struct {
	ID      uuid.UUID
	Channel *ConversationChannel

	ctx    context.Context
	cancel context.CancelFunc
	phase  atomic.Int32
}

// Context returns the loop context; it is cancelled by StopSession or
// orchestrator shutdown.
func (h *SessionHandle) Context() context.Context { return h.ctx }

// Cancel signals cooperative cancellation to the run loop.
func (h *SessionHandle) Cancel() { h.cancel() }

func (h *SessionHandle) setPhase(p int32) { h.phase.Store(p) }
func (h *SessionHandle) loopPhase() int32 { return h.phase.Load() }

// SessionRegistry guarantees at most one active run loop per session id,
// process-wide. The check-then-insert runs under a single mutex because run
// loops are real goroutines, not cooperatively scheduled coroutines.
// Instances are injectable; there is no package-level singleton.
type SessionRegistry struct {
	mu      sync.Mutex
	handles map[uuid.UUID]*SessionHandle
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		handles: make(map[uuid.UUID]*SessionHandle),
	}
}

// TryAdmit atomically registers a handle for the session id. The handle's
// context derives from parent (the orchestrator root, not a request context)
// so the run loop outlives the HTTP call that started it.
func (r *SessionRegistry) TryAdmit(parent context.Context, id uuid.UUID) (*SessionHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handles[id]; exists {
		return nil, ErrSessionActive
	}

	ctx, cancel := context.WithCancel(parent)
	h := &SessionHandle{
		ID:      id,
		Channel: NewConversationChannel(),
		ctx:     ctx,
		cancel:  cancel,
	}
	r.handles[id] = h

	return h, nil
}

// Get returns the handle for an active session.
func (r *SessionRegistry) Get(id uuid.UUID) (*SessionHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	return h, ok
}

// Take removes and returns the handle in one step, so exactly one caller
// observes a given handle. Used by StopSession.
func (r *SessionRegistry) Take(id uuid.UUID) (*SessionHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	if ok {
		delete(r.handles, id)
	}
	return h, ok
}

// Release removes the handle unconditionally. Run loops call it on every
// exit path; releasing an already-released id is a no-op.
func (r *SessionRegistry) Release(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, id)
}

// Active reports whether a run loop is registered for the session id.
func (r *SessionRegistry) Active(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handles[id]
	return ok
}
