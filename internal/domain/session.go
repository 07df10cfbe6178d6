package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionStatusQueued           SessionStatus = "queued"
	SessionStatusPlanning         SessionStatus = "planning"
	SessionStatusAwaitingApproval SessionStatus = "awaiting_approval"
	SessionStatusExecuting        SessionStatus = "executing"
	SessionStatusPaused           SessionStatus = "paused"
	SessionStatusCompleted        SessionStatus = "completed"
	SessionStatusFailed           SessionStatus = "failed"
	SessionStatusTimeout          SessionStatus = "timeout"
)

// ErrInvalidTransition is returned when a session status change is not allowed
// from the current persisted status.
var ErrInvalidTransition = errors.New("session: invalid status transition")

// Terminal reports whether no further transition is accepted from this status.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusFailed || s == SessionStatusTimeout
}

// ValidTransition checks if a session status transition is allowed.
// Allowed: queued->planning, planning->awaiting_approval,
// awaiting_approval->{executing, planning}, executing->{paused, completed, failed, timeout},
// paused->{executing, planning}. Planning may also pause, fail or time out.
func (s SessionStatus) ValidTransition(to SessionStatus) bool {
	switch s {
	case SessionStatusQueued:
		return to == SessionStatusPlanning
	case SessionStatusPlanning:
		return to == SessionStatusAwaitingApproval || to == SessionStatusPaused ||
			to == SessionStatusFailed || to == SessionStatusTimeout
	case SessionStatusAwaitingApproval:
		return to == SessionStatusExecuting || to == SessionStatusPlanning
	case SessionStatusExecuting:
		return to == SessionStatusPaused || to == SessionStatusCompleted ||
			to == SessionStatusFailed || to == SessionStatusTimeout
	case SessionStatusPaused:
		return to == SessionStatusExecuting || to == SessionStatusPlanning
	default:
		return false
	}
}

// AgentSession is the persisted record of one multi-turn agent conversation
// scoped to a single task. The DB row is the long-lived source of truth;
// in-process run-loop handles are ephemeral and rebuilt after restart.
type AgentSession struct {
	ID           uuid.UUID      `json:"id"`
	TaskID       uuid.UUID      `json:"task_id"`
	AgentType    string         `json:"agent_type"`
	Status       SessionStatus  `json:"status"`
	CurrentTurn  int            `json:"current_turn"`
	MaxTurns     int            `json:"max_turns"`
	Plan         *ExecutionPlan `json:"plan,omitempty"`
	PlanFeedback string         `json:"plan_feedback,omitempty"`
	Error        string         `json:"error,omitempty"`
	HeartbeatAt  *time.Time     `json:"heartbeat_at,omitempty"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// NewAgentSession creates a queued session for a task with validated fields.
func NewAgentSession(taskID uuid.UUID, agentType string, maxTurns int) (*AgentSession, error) {
	if taskID == uuid.Nil {
		return nil, errors.New("session: task ID is required")
	}
	if agentType == "" {
		return nil, errors.New("session: agent type is required")
	}
	if maxTurns < 1 {
		return nil, errors.New("session: max turns must be >= 1")
	}
	return &AgentSession{
		ID:        uuid.New(),
		TaskID:    taskID,
		AgentType: agentType,
		Status:    SessionStatusQueued,
		MaxTurns:  maxTurns,
		CreatedAt: time.Now(),
	}, nil
}

// RemainingTurns returns the execution-phase turn budget, clamped to at least 1.
func (s *AgentSession) RemainingTurns() int {
	remaining := s.MaxTurns - s.CurrentTurn
	if remaining < 1 {
		return 1
	}
	return remaining
}

type AgentSessionRepository interface {
	Create(ctx context.Context, s *AgentSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*AgentSession, error)
	// GetActiveByTask returns the most recent non-terminal session for a task,
	// or ErrNotFound when every session for the task is terminal.
	GetActiveByTask(ctx context.Context, taskID uuid.UUID) (*AgentSession, error)
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]*AgentSession, error)
	ListByProject(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]*AgentSession, error)
	// ListQueued returns sessions in queued status, oldest first.
	ListQueued(ctx context.Context) ([]*AgentSession, error)
	// Transition compare-and-sets the persisted status. It fails with
	// ErrInvalidTransition when the stored status no longer equals from,
	// and sets completed_at when to is terminal.
	Transition(ctx context.Context, id uuid.UUID, from, to SessionStatus) error
	SavePlan(ctx context.Context, id uuid.UUID, plan *ExecutionPlan) error
	// ClearPlan drops the stored plan and records reviewer feedback.
	ClearPlan(ctx context.Context, id uuid.UUID, feedback string) error
	// IncrementTurn bumps current_turn by one, refreshes the heartbeat, and
	// returns the new turn count.
	IncrementTurn(ctx context.Context, id uuid.UUID) (int, error)
	UpdateHeartbeat(ctx context.Context, id uuid.UUID) error
	SetStarted(ctx context.Context, id uuid.UUID) error
	SetError(ctx context.Context, id uuid.UUID, msg string) error
}
