package v1

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/foremanhq/foreman/internal/api/ws"
	"github.com/foremanhq/foreman/internal/domain"
)

// DataStore abstracts the repository accessor pattern for handler testing.
// *postgres.Store satisfies this interface.
type DataStore interface {
	Projects() domain.ProjectRepository
	Tasks() domain.TaskRepository
	AgentSessions() domain.AgentSessionRepository
}

// SessionOrchestrator abstracts session lifecycle operations for handler
// testing. *agent.Orchestrator satisfies this interface.
type SessionOrchestrator interface {
	CreateSession(ctx context.Context, taskID uuid.UUID, agentType string, maxTurns int) (*domain.AgentSession, error)
	StartSession(ctx context.Context, sessionID uuid.UUID) error
	ContinueAfterApproval(ctx context.Context, sessionID uuid.UUID) error
	RequestChanges(ctx context.Context, sessionID uuid.UUID, feedback string) error
	StopSession(ctx context.Context, sessionID uuid.UUID) bool
	IsSessionProcessing(sessionID uuid.UUID) bool
}

// TicketIssuer mints short-lived websocket tickets. *auth.TicketService
// satisfies this interface.
type TicketIssuer interface {
	IssueSessionTicket(sessionID uuid.UUID) (ticket string, expiresAt time.Time, err error)
}

// BoardNotifier fans board mutations out to live board subscribers.
// *ws.Hub satisfies this interface.
type BoardNotifier interface {
	PublishBoard(ctx context.Context, evt ws.BoardEvent) error
}
