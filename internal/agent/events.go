package agent

import (
	"time"

	"github.com/google/uuid"

	"github.com/foremanhq/foreman/internal/domain"
)

// EventType categorizes progress events relayed to subscribers.
type EventType string

const (
	EventStatusChange EventType = "status_change"
	EventToolUse      EventType = "tool_use"
	EventMessage      EventType = "message"
	EventPlanReady    EventType = "plan_ready"
	EventResult       EventType = "result"
	EventError        EventType = "error"
)

// ResultPayload summarizes a terminal engine exchange.
type ResultPayload struct {
	Success    bool    `json:"success"`
	CostUSD    float64 `json:"cost_usd,omitempty"`
	DurationMS int64   `json:"duration_ms,omitempty"`
}

// Event is an ephemeral progress notification for one session. Events are
// relayed, never persisted; a late subscriber reconstructs current state from
// the stored AgentSession instead.
type Event struct {
	Type      EventType             `json:"type"`
	SessionID uuid.UUID             `json:"session_id"`
	Status    domain.SessionStatus  `json:"status,omitempty"`
	ToolName  string                `json:"tool_name,omitempty"`
	ToolID    string                `json:"tool_id,omitempty"`
	Content   string                `json:"content,omitempty"`
	Plan      *domain.ExecutionPlan `json:"plan,omitempty"`
	Result    *ResultPayload        `json:"result,omitempty"`
	Error     string                `json:"error,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}
