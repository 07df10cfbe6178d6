package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/foremanhq/foreman/internal/domain"
)

// ErrSessionNotFound is returned when a session is not found.
var ErrSessionNotFound = errors.New("agent: session not found") //nolint:gochecknoglobals // sentinel error

// ErrInvalidSessionState is returned when an operation is invalid for the current session state.
var ErrInvalidSessionState = errors.New("agent: invalid session state") //nolint:gochecknoglobals // sentinel error

// WorkspacePreparer abstracts per-session workspace provisioning.
// *WorkspaceManager is the production implementation.
type WorkspacePreparer interface {
	Prepare(ctx context.Context, volumeName, repoURL, baseBranch, branchName string) (string, error)
}

// Orchestrator coordinates the full agent session lifecycle:
// queued pickup -> planning -> human approval -> execution -> terminal state.
// Run loops are process-local goroutines; the persisted AgentSession row is
// the durable source of truth and survives restarts.
type Orchestrator struct {
	registry   *Registry
	runtime    *DockerRuntime
	workspaces WorkspacePreparer
	sessions   domain.AgentSessionRepository
	tasks      domain.TaskRepository
	projects   domain.ProjectRepository
	bus        *ProgressBus
	active     *SessionRegistry

	defaultMaxTurns   int
	heartbeatInterval time.Duration

	queueMu sync.Mutex
	queue   *QueueProcessor

	// root is the parent context for every run loop, so loops outlive the
	// HTTP requests that trigger them but die together on shutdown.
	root   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewOrchestrator(
	registry *Registry,
	runtime *DockerRuntime,
	workspaces WorkspacePreparer,
	sessions domain.AgentSessionRepository,
	tasks domain.TaskRepository,
	projects domain.ProjectRepository,
	bus *ProgressBus,
	defaultMaxTurns int,
) *Orchestrator {
	root, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		registry:          registry,
		runtime:           runtime,
		workspaces:        workspaces,
		sessions:          sessions,
		tasks:             tasks,
		projects:          projects,
		bus:               bus,
		active:            NewSessionRegistry(),
		defaultMaxTurns:   defaultMaxTurns,
		heartbeatInterval: 30 * time.Second,
		root:              root,
		cancel:            cancel,
	}
}

// Bus exposes the progress bus for transport-layer taps (Redis relay,
// notifications).
func (o *Orchestrator) Bus() *ProgressBus {
	return o.bus
}

// CreateSession creates a queued session for a task. At most one non-terminal
// session may exist per task; the Queue Processor (or an explicit
// StartSession) later begins its run loop.
func (o *Orchestrator) CreateSession(ctx context.Context, taskID uuid.UUID, agentType string, maxTurns int) (*domain.AgentSession, error) {
	task, err := o.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("agent.Orchestrator.CreateSession: get task: %w", err)
	}

	existing, err := o.sessions.GetActiveByTask(ctx, taskID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("agent.Orchestrator.CreateSession: check active: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("agent.Orchestrator.CreateSession: task %s has session %s in status %q: %w",
			taskID, existing.ID, existing.Status, ErrSessionActive)
	}

	if maxTurns <= 0 {
		maxTurns = o.defaultMaxTurns
	}

	session, err := domain.NewAgentSession(task.ID, agentType, maxTurns)
	if err != nil {
		return nil, fmt.Errorf("agent.Orchestrator.CreateSession: %w", err)
	}

	err = o.sessions.Create(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("agent.Orchestrator.CreateSession: %w", err)
	}

	return session, nil
}

// StartSession admits a session into the registry and begins its run loop.
// Accepts sessions in queued status (fresh start), paused status (resume:
// back to executing when an approved plan exists, otherwise replanning), and
// planning status with no active loop (recovery: the loop died mid-planning,
// in a crashed process or after a soft extraction failure; a fresh planning
// conversation starts without a status transition). Admission conflicts and
// wrong-status starts are reported synchronously with no state mutated.
func (o *Orchestrator) StartSession(ctx context.Context, sessionID uuid.UUID) error {
	session, err := o.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("agent.Orchestrator.StartSession: %w", err)
	}

	var to domain.SessionStatus
	var startPhase int32
	switch {
	case session.Status == domain.SessionStatusQueued:
		to, startPhase = domain.SessionStatusPlanning, phasePlanning
	case session.Status == domain.SessionStatusPlanning:
		to, startPhase = domain.SessionStatusPlanning, phasePlanning
	case session.Status == domain.SessionStatusPaused && session.Plan != nil:
		to, startPhase = domain.SessionStatusExecuting, phaseExecuting
	case session.Status == domain.SessionStatusPaused:
		to, startPhase = domain.SessionStatusPlanning, phasePlanning
	default:
		return fmt.Errorf("agent.Orchestrator.StartSession: session status %q not startable: %w",
			session.Status, ErrInvalidSessionState)
	}

	handle, err := o.active.TryAdmit(o.root, sessionID)
	if err != nil {
		return fmt.Errorf("agent.Orchestrator.StartSession: %w", err)
	}

	if to != session.Status {
		err = o.transition(ctx, sessionID, session.Status, to)
		if err != nil {
			o.active.Release(sessionID)
			handle.Cancel()
			return fmt.Errorf("agent.Orchestrator.StartSession: %w", err)
		}
	}
	session.Status = to

	if session.StartedAt == nil {
		if err := o.sessions.SetStarted(ctx, sessionID); err != nil {
			log.Error().Err(err).Str("session_id", sessionID.String()).Msg("agent.StartSession: failed to set started_at")
		}
	}

	o.wg.Add(1)
	go o.run(handle, session, startPhase)

	return nil
}

// ContinueAfterApproval moves an awaiting_approval session into execution.
// If the planning run loop is still registered, its live conversation is
// redirected; otherwise a fresh loop opens a conversation seeded with the
// approved plan.
func (o *Orchestrator) ContinueAfterApproval(ctx context.Context, sessionID uuid.UUID) error {
	session, err := o.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("agent.Orchestrator.ContinueAfterApproval: %w", err)
	}

	if session.Status != domain.SessionStatusAwaitingApproval {
		return fmt.Errorf("agent.Orchestrator.ContinueAfterApproval: session status %q: %w",
			session.Status, ErrInvalidSessionState)
	}
	if session.Plan == nil {
		return fmt.Errorf("agent.Orchestrator.ContinueAfterApproval: session has no plan: %w", ErrInvalidSessionState)
	}

	err = o.transition(ctx, sessionID, domain.SessionStatusAwaitingApproval, domain.SessionStatusExecuting)
	if err != nil {
		return fmt.Errorf("agent.Orchestrator.ContinueAfterApproval: %w", err)
	}
	session.Status = domain.SessionStatusExecuting

	if handle, ok := o.active.Get(sessionID); ok {
		handle.setPhase(phaseExecuting)
		// A rejected push, or a loop that deregistered while we pushed, means
		// the planning conversation died under us; fall through to a fresh one.
		if handle.Channel.Push(executionPrompt(session.Plan)) && o.active.Active(sessionID) {
			return nil
		}
	}

	// The planning loop ended (or the process restarted); open a fresh
	// conversation seeded with the approved plan.
	handle, err := o.active.TryAdmit(o.root, sessionID)
	if err != nil {
		return fmt.Errorf("agent.Orchestrator.ContinueAfterApproval: %w", err)
	}

	o.wg.Add(1)
	go o.run(handle, session, phaseExecuting)

	return nil
}

// RequestChanges rejects the pending plan with reviewer feedback. The plan is
// cleared, the feedback persisted, and a fresh planning pass starts with the
// feedback folded into the conversation. A revised plan is a new value, never
// a patch of the old one.
func (o *Orchestrator) RequestChanges(ctx context.Context, sessionID uuid.UUID, feedback string) error {
	session, err := o.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("agent.Orchestrator.RequestChanges: %w", err)
	}

	if session.Status != domain.SessionStatusAwaitingApproval {
		return fmt.Errorf("agent.Orchestrator.RequestChanges: session status %q: %w",
			session.Status, ErrInvalidSessionState)
	}

	err = o.transition(ctx, sessionID, domain.SessionStatusAwaitingApproval, domain.SessionStatusPlanning)
	if err != nil {
		return fmt.Errorf("agent.Orchestrator.RequestChanges: %w", err)
	}

	err = o.sessions.ClearPlan(ctx, sessionID, feedback)
	if err != nil {
		return fmt.Errorf("agent.Orchestrator.RequestChanges: clear plan: %w", err)
	}
	session.Status = domain.SessionStatusPlanning
	session.Plan = nil
	session.PlanFeedback = feedback

	if handle, ok := o.active.Get(sessionID); ok {
		handle.setPhase(phasePlanning)
		if handle.Channel.Push(revisionPrompt(feedback)) && o.active.Active(sessionID) {
			return nil
		}
	}

	handle, err := o.active.TryAdmit(o.root, sessionID)
	if err != nil {
		return fmt.Errorf("agent.Orchestrator.RequestChanges: %w", err)
	}

	o.wg.Add(1)
	go o.run(handle, session, phasePlanning)

	return nil
}

// StopSession cancels an active run loop. Returns true exactly once per
// active loop: the handle is removed atomically, so concurrent stops observe
// at most one success. Stopping a session with no active loop returns false
// and mutates nothing.
func (o *Orchestrator) StopSession(ctx context.Context, sessionID uuid.UUID) bool {
	handle, ok := o.active.Take(sessionID)
	if !ok {
		return false
	}

	handle.Channel.Close()
	handle.Cancel()

	// A user stop marks the session paused, not failed. Sessions idle in
	// awaiting_approval keep their status; only the loop handle is torn down.
	session, err := o.sessions.GetByID(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("agent.StopSession: failed to get session")
		return true
	}

	switch session.Status {
	case domain.SessionStatusPlanning, domain.SessionStatusExecuting:
		if err := o.transition(ctx, sessionID, session.Status, domain.SessionStatusPaused); err != nil {
			log.Error().Err(err).Str("session_id", sessionID.String()).Msg("agent.StopSession: failed to mark paused")
		}
	default:
	}

	return true
}

// IsSessionProcessing reports whether a run loop is active for the session in
// this process.
func (o *Orchestrator) IsSessionProcessing(sessionID uuid.UUID) bool {
	return o.active.Active(sessionID)
}

// SubscribeToProgress registers a callback for a session's progress events.
// The returned function unsubscribes.
func (o *Orchestrator) SubscribeToProgress(sessionID uuid.UUID, fn Subscriber) func() {
	return o.bus.Subscribe(sessionID, fn)
}

// StartQueueProcessor begins the background ticker that starts at most one
// queued session per tick. Calling it while a processor runs is a no-op.
func (o *Orchestrator) StartQueueProcessor(interval time.Duration) {
	o.queueMu.Lock()
	defer o.queueMu.Unlock()

	if o.queue != nil {
		return
	}
	o.queue = NewQueueProcessor(o.sessions, o, interval)
	o.queue.Start(o.root)
}

// StopQueueProcessor stops the background ticker and waits for an in-flight
// tick to finish.
func (o *Orchestrator) StopQueueProcessor() {
	o.queueMu.Lock()
	queue := o.queue
	o.queue = nil
	o.queueMu.Unlock()

	if queue != nil {
		queue.Stop()
	}
}

// Shutdown stops the queue processor, cancels every run loop, and waits for
// them to exit or the context to expire.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.StopQueueProcessor()
	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("agent.Orchestrator.Shutdown: %w", ctx.Err())
	}
}

// transition compare-and-sets the persisted status and emits the
// status_change event. Never emits when the write fails.
func (o *Orchestrator) transition(ctx context.Context, sessionID uuid.UUID, from, to domain.SessionStatus) error {
	err := o.sessions.Transition(ctx, sessionID, from, to)
	if err != nil {
		return err
	}

	o.emit(Event{
		Type:      EventStatusChange,
		SessionID: sessionID,
		Status:    to,
	})
	return nil
}

func (o *Orchestrator) emit(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	o.bus.Publish(evt)
}
