package agent

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SessionID uniquely identifies an agent session.
type SessionID = uuid.UUID

// StreamEvent is the tagged union of events an engine conversation emits.
// Raw engine output is decoded into one of these variants at the boundary;
// unrecognized shapes are logged and dropped, never accessed speculatively.
type StreamEvent interface {
	streamEvent()
}

// TextDelta is an incremental fragment of assistant text.
type TextDelta struct {
	Text string
}

// ToolStart marks the beginning of a tool invocation.
type ToolStart struct {
	Name string
	ID   string
}

// ToolEnd marks the completion of a tool invocation.
type ToolEnd struct {
	Name string
	ID   string
}

// TurnEnd marks an assistant turn boundary. The run loop uses it for turn
// accounting and heartbeat refresh.
type TurnEnd struct{}

// Result is the terminal signal for one exchange. The conversation itself
// stays open for further input until the input channel is closed.
type Result struct {
	Success  bool
	Reason   string
	CostUSD  float64
	Duration time.Duration
}

// Fault carries an engine runtime failure. The run loop treats it as fatal
// for the session.
type Fault struct {
	Message string
}

func (TextDelta) streamEvent() {}
func (ToolStart) streamEvent() {}
func (ToolEnd) streamEvent()   {}
func (TurnEnd) streamEvent()   {}
func (Result) streamEvent()    {}
func (Fault) streamEvent()     {}

// ConversationOptions configures a streaming engine conversation.
type ConversationOptions struct {
	SessionID    SessionID
	SystemPrompt string
	Workspace    string // repo volume name
	WorkDir      string // worktree path inside the container
	BranchName   string
	MaxTurns     int
	Environment  map[string]string
}

// Engine is the narrow interface to an external agent execution engine.
// Converse opens a streaming conversation: user turns are consumed from input
// until it is closed, decoded events are delivered on the returned channel,
// and the channel is closed when the conversation ends. Engines are one-shot:
// one instance drives one conversation and is disposed with Close.
type Engine interface {
	Converse(ctx context.Context, opts ConversationOptions, input <-chan string) (<-chan StreamEvent, error)
	Close(ctx context.Context) error
}
