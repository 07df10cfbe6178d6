package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/foremanhq/foreman/internal/agent"
	"github.com/foremanhq/foreman/internal/domain"
)

type CreateSessionInput struct {
	Body struct {
		TaskID    uuid.UUID `json:"task_id" doc:"Task ID to run an agent against"`
		AgentType string    `json:"agent_type" minLength:"1" maxLength:"50" doc:"Agent type (claude, codex)"`
		MaxTurns  int       `json:"max_turns,omitempty" minimum:"0" maximum:"500" doc:"Turn budget (0=server default)"`
	}
}

type CreateSessionOutput struct {
	Body *domain.AgentSession
}

type GetSessionInput struct {
	ID uuid.UUID `path:"id" doc:"Agent session ID"`
}

type GetSessionOutput struct {
	Body *domain.AgentSession
}

// ListSessionsInput filters by task or project. The UUID zero value marks an
// absent parameter; huma rejects pointer query fields.
type ListSessionsInput struct {
	TaskID    uuid.UUID `query:"task_id" required:"false" doc:"List sessions for a task"`
	ProjectID uuid.UUID `query:"project_id" required:"false" doc:"List sessions for a project"`
	Limit     int       `query:"limit" minimum:"1" maximum:"200" default:"50" doc:"Max results (project listing)"`
	Offset    int       `query:"offset" minimum:"0" default:"0" doc:"Offset for pagination (project listing)"`
}

type ListSessionsOutput struct {
	Body []*domain.AgentSession
}

type StartSessionInput struct {
	ID uuid.UUID `path:"id" doc:"Agent session ID"`
}

type StartSessionOutput struct {
	Body *domain.AgentSession
}

type ApproveSessionInput struct {
	ID uuid.UUID `path:"id" doc:"Agent session ID"`
}

type ApproveSessionOutput struct {
	Body *domain.AgentSession
}

type RequestChangesInput struct {
	ID   uuid.UUID `path:"id" doc:"Agent session ID"`
	Body struct {
		Feedback string `json:"feedback" minLength:"1" maxLength:"10000" doc:"What to change about the plan"`
	}
}

type RequestChangesOutput struct {
	Body *domain.AgentSession
}

type StopSessionInput struct {
	ID uuid.UUID `path:"id" doc:"Agent session ID"`
}

type StopSessionOutput struct {
	Body struct {
		Stopped bool                 `json:"stopped" doc:"Whether a running loop was stopped by this call"`
		Session *domain.AgentSession `json:"session"`
	}
}

type SessionTicketInput struct {
	ID uuid.UUID `path:"id" doc:"Agent session ID"`
}

type SessionTicketOutput struct {
	Body struct {
		Ticket    string    `json:"ticket" doc:"Short-lived websocket ticket"`
		ExpiresAt time.Time `json:"expires_at"`
	}
}

func RegisterSessionRoutes(api huma.API, store DataStore, orchestrator SessionOrchestrator, tickets TicketIssuer) {
	huma.Register(api, huma.Operation{
		OperationID: "create-session",
		Method:      http.MethodPost,
		Path:        "/sessions",
		Summary:     "Create a queued agent session for a task",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *CreateSessionInput) (*CreateSessionOutput, error) {
		session, err := orchestrator.CreateSession(ctx, input.Body.TaskID, input.Body.AgentType, input.Body.MaxTurns)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("task not found")
			}
			if errors.Is(err, agent.ErrSessionActive) {
				return nil, huma.Error409Conflict("task already has an active session")
			}
			if errors.Is(err, agent.ErrUnknownAgent) {
				return nil, huma.Error400BadRequest("unknown agent type: " + input.Body.AgentType)
			}
			return nil, huma.Error500InternalServerError("failed to create session", err)
		}

		return &CreateSessionOutput{Body: session}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/sessions/{id}",
		Summary:     "Get an agent session by ID",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *GetSessionInput) (*GetSessionOutput, error) {
		session, err := store.AgentSessions().GetByID(ctx, input.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("session not found")
			}
			return nil, huma.Error500InternalServerError("failed to get session", err)
		}

		return &GetSessionOutput{Body: session}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/sessions",
		Summary:     "List agent sessions for a task or project",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *ListSessionsInput) (*ListSessionsOutput, error) {
		switch {
		case input.TaskID != uuid.Nil && input.ProjectID != uuid.Nil:
			return nil, huma.Error400BadRequest("pass task_id or project_id, not both")
		case input.TaskID != uuid.Nil:
			sessions, err := store.AgentSessions().ListByTask(ctx, input.TaskID)
			if err != nil {
				return nil, huma.Error500InternalServerError("failed to list sessions", err)
			}
			return &ListSessionsOutput{Body: sessions}, nil
		case input.ProjectID != uuid.Nil:
			sessions, err := store.AgentSessions().ListByProject(ctx, input.ProjectID, input.Limit, input.Offset)
			if err != nil {
				return nil, huma.Error500InternalServerError("failed to list sessions", err)
			}
			return &ListSessionsOutput{Body: sessions}, nil
		default:
			return nil, huma.Error400BadRequest("task_id or project_id is required")
		}
	})

	huma.Register(api, huma.Operation{
		OperationID: "start-session",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/start",
		Summary:     "Start a queued, paused, or orphaned-planning session",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *StartSessionInput) (*StartSessionOutput, error) {
		if err := orchestrator.StartSession(ctx, input.ID); err != nil {
			return nil, mapSessionError(err, input.ID)
		}

		session, err := store.AgentSessions().GetByID(ctx, input.ID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to get started session", err)
		}

		return &StartSessionOutput{Body: session}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-session-plan",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/approve",
		Summary:     "Approve the plan and begin execution",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *ApproveSessionInput) (*ApproveSessionOutput, error) {
		if err := orchestrator.ContinueAfterApproval(ctx, input.ID); err != nil {
			return nil, mapSessionError(err, input.ID)
		}

		session, err := store.AgentSessions().GetByID(ctx, input.ID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to get approved session", err)
		}

		return &ApproveSessionOutput{Body: session}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "request-session-changes",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/request-changes",
		Summary:     "Reject the plan with feedback and replan",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *RequestChangesInput) (*RequestChangesOutput, error) {
		if err := orchestrator.RequestChanges(ctx, input.ID, input.Body.Feedback); err != nil {
			return nil, mapSessionError(err, input.ID)
		}

		session, err := store.AgentSessions().GetByID(ctx, input.ID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to get session", err)
		}

		return &RequestChangesOutput{Body: session}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stop-session",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/stop",
		Summary:     "Stop a running session",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *StopSessionInput) (*StopSessionOutput, error) {
		stopped := orchestrator.StopSession(ctx, input.ID)

		session, err := store.AgentSessions().GetByID(ctx, input.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("session not found")
			}
			return nil, huma.Error500InternalServerError("failed to get session", err)
		}

		out := &StopSessionOutput{}
		out.Body.Stopped = stopped
		out.Body.Session = session

		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "issue-session-ticket",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/ws-ticket",
		Summary:     "Issue a short-lived ticket for the session websocket",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *SessionTicketInput) (*SessionTicketOutput, error) {
		if _, err := store.AgentSessions().GetByID(ctx, input.ID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("session not found")
			}
			return nil, huma.Error500InternalServerError("failed to get session", err)
		}

		ticket, expiresAt, err := tickets.IssueSessionTicket(input.ID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to issue ticket", err)
		}

		out := &SessionTicketOutput{}
		out.Body.Ticket = ticket
		out.Body.ExpiresAt = expiresAt

		return out, nil
	})
}

// mapSessionError translates orchestrator sentinels into HTTP responses shared
// by the lifecycle endpoints.
func mapSessionError(err error, id uuid.UUID) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return huma.Error404NotFound("session not found: " + id.String())
	case errors.Is(err, agent.ErrInvalidSessionState):
		return huma.Error409Conflict("session is not in an eligible state: " + err.Error())
	case errors.Is(err, agent.ErrSessionActive):
		return huma.Error409Conflict("session already has a running loop")
	case errors.Is(err, agent.ErrUnknownAgent):
		return huma.Error400BadRequest("unknown agent type")
	default:
		return huma.Error500InternalServerError("session operation failed", err)
	}
}
