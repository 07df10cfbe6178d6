package backends

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/foremanhq/foreman/internal/agent"
)

const codexImage = "ghcr.io/foremanhq/foreman-codex:latest"

// CodexEngine implements agent.Engine for the OpenAI Codex CLI in proto mode:
// submissions go to stdin as JSON lines, events come back the same way.
// Structure is identical to ClaudeEngine — only image, command, and decoder
// differ.
type CodexEngine struct {
	runtime *agent.DockerRuntime
	conv    *conversation
}

func NewCodexEngine(runtime *agent.DockerRuntime) (agent.Engine, error) {
	return &CodexEngine{runtime: runtime}, nil
}

func (e *CodexEngine) Converse(ctx context.Context, opts agent.ConversationOptions, input <-chan string) (<-chan agent.StreamEvent, error) {
	if e.conv != nil {
		return nil, fmt.Errorf("agent.CodexEngine.Converse: engine already conversing")
	}

	cmd := []string{
		"codex", "proto",
		"-c", "sandbox_mode=workspace-write",
	}

	dec := &codexDecoder{started: time.Now()}

	conv, out, err := openConversation(ctx, e.runtime, codexImage, cmd, opts, input, encodeCodexTurn(opts.SystemPrompt), dec.decode)
	if err != nil {
		return nil, fmt.Errorf("agent.CodexEngine.Converse: %w", err)
	}
	e.conv = conv

	return out, nil
}

func (e *CodexEngine) Close(ctx context.Context) error {
	if e.conv == nil {
		return nil
	}
	err := e.conv.close(ctx)
	if err != nil {
		return fmt.Errorf("agent.CodexEngine.Close: %w", err)
	}
	return nil
}

// encodeCodexTurn wraps a user turn in a proto-mode submission. Codex has no
// system-prompt flag in proto mode, so the context string is prepended to the
// first turn.
func encodeCodexTurn(systemPrompt string) encodeFunc {
	first := true
	return func(text string) ([]byte, error) {
		if first && systemPrompt != "" {
			text = systemPrompt + "\n\n" + text
		}
		first = false

		sub := map[string]any{
			"id": uuid.NewString(),
			"op": map[string]any{
				"type": "user_input",
				"items": []map[string]any{
					{"type": "text", "text": text},
				},
			},
		}
		data, err := json.Marshal(sub)
		if err != nil {
			return nil, fmt.Errorf("backends.encodeCodexTurn: %w", err)
		}
		return append(data, '\n'), nil
	}
}

// codexDecoder translates Codex proto events into stream events. Codex sends
// either incremental agent_message_delta lines or a single agent_message;
// sawDelta prevents relaying the same text twice when both arrive.
type codexDecoder struct {
	started  time.Time
	sawDelta bool
}

type codexLine struct {
	ID  string `json:"id"`
	Msg struct {
		Type             string `json:"type"`
		Delta            string `json:"delta"`
		Message          string `json:"message"`
		CallID           string `json:"call_id"`
		LastAgentMessage string `json:"last_agent_message"`
	} `json:"msg"`
}

func (d *codexDecoder) decode(line string, emit func(agent.StreamEvent)) {
	var msg codexLine
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		log.Debug().Str("line", line).Msg("backends.codex: dropping non-JSON output line")
		return
	}

	switch msg.Msg.Type {
	case "agent_message_delta":
		d.sawDelta = true
		if msg.Msg.Delta != "" {
			emit(agent.TextDelta{Text: msg.Msg.Delta})
		}

	case "agent_message":
		if !d.sawDelta && msg.Msg.Message != "" {
			emit(agent.TextDelta{Text: msg.Msg.Message})
		}
		d.sawDelta = false
		emit(agent.TurnEnd{})

	case "exec_command_begin":
		emit(agent.ToolStart{Name: "exec", ID: msg.Msg.CallID})

	case "exec_command_end":
		emit(agent.ToolEnd{Name: "exec", ID: msg.Msg.CallID})

	case "patch_apply_begin":
		emit(agent.ToolStart{Name: "apply_patch", ID: msg.Msg.CallID})

	case "patch_apply_end":
		emit(agent.ToolEnd{Name: "apply_patch", ID: msg.Msg.CallID})

	case "task_complete":
		emit(agent.Result{
			Success:  true,
			Reason:   msg.Msg.LastAgentMessage,
			Duration: time.Since(d.started),
		})
		d.started = time.Now()

	case "error":
		emit(agent.Fault{Message: msg.Msg.Message})

	case "session_configured", "task_started", "token_count":
		// Bookkeeping events; nothing to relay.

	default:
		log.Debug().Str("type", msg.Msg.Type).Msg("backends.codex: unrecognized event type")
	}
}
