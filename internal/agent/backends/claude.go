package backends

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/foremanhq/foreman/internal/agent"
)

const claudeImage = "ghcr.io/foremanhq/foreman-claude:latest"

// ClaudeEngine implements agent.Engine for the Claude Code CLI in stream-json
// mode. One instance drives one conversation.
type ClaudeEngine struct {
	runtime *agent.DockerRuntime
	conv    *conversation
}

func NewClaudeEngine(runtime *agent.DockerRuntime) (agent.Engine, error) {
	return &ClaudeEngine{runtime: runtime}, nil
}

func (e *ClaudeEngine) Converse(ctx context.Context, opts agent.ConversationOptions, input <-chan string) (<-chan agent.StreamEvent, error) {
	if e.conv != nil {
		return nil, fmt.Errorf("agent.ClaudeEngine.Converse: engine already conversing")
	}

	cmd := []string{
		"claude",
		"--output-format", "stream-json",
		"--input-format", "stream-json",
		"--verbose",
		"--max-turns", strconv.Itoa(opts.MaxTurns),
	}
	if opts.SystemPrompt != "" {
		cmd = append(cmd, "--append-system-prompt", opts.SystemPrompt)
	}

	dec := &claudeDecoder{toolNames: make(map[string]string)}

	conv, out, err := openConversation(ctx, e.runtime, claudeImage, cmd, opts, input, encodeClaudeTurn, dec.decode)
	if err != nil {
		return nil, fmt.Errorf("agent.ClaudeEngine.Converse: %w", err)
	}
	e.conv = conv

	return out, nil
}

func (e *ClaudeEngine) Close(ctx context.Context) error {
	if e.conv == nil {
		return nil
	}
	err := e.conv.close(ctx)
	if err != nil {
		return fmt.Errorf("agent.ClaudeEngine.Close: %w", err)
	}
	return nil
}

// encodeClaudeTurn wraps a user turn in the stream-json input envelope.
func encodeClaudeTurn(text string) ([]byte, error) {
	msg := map[string]any{
		"type": "user",
		"message": map[string]any{
			"role": "user",
			"content": []map[string]any{
				{"type": "text", "text": text},
			},
		},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("backends.encodeClaudeTurn: %w", err)
	}
	return append(data, '\n'), nil
}

// claudeDecoder translates Claude stream-json lines into stream events.
// Tool names are remembered by tool_use id so tool_result lines can report
// which tool finished.
type claudeDecoder struct {
	toolNames map[string]string
}

type claudeLine struct {
	Type         string  `json:"type"`
	Subtype      string  `json:"subtype"`
	IsError      bool    `json:"is_error"`
	Result       string  `json:"result"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	DurationMS   int64   `json:"duration_ms"`
	Message      struct {
		Role    string `json:"role"`
		Content []struct {
			Type      string `json:"type"`
			Text      string `json:"text"`
			ID        string `json:"id"`
			Name      string `json:"name"`
			ToolUseID string `json:"tool_use_id"`
		} `json:"content"`
	} `json:"message"`
}

func (d *claudeDecoder) decode(line string, emit func(agent.StreamEvent)) {
	var msg claudeLine
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		log.Debug().Str("line", line).Msg("backends.claude: dropping non-JSON output line")
		return
	}

	switch msg.Type {
	case "assistant":
		for _, c := range msg.Message.Content {
			switch c.Type {
			case "text":
				if c.Text != "" {
					emit(agent.TextDelta{Text: c.Text})
				}
			case "tool_use":
				d.toolNames[c.ID] = c.Name
				emit(agent.ToolStart{Name: c.Name, ID: c.ID})
			}
		}
		// Each assistant message is one turn boundary.
		emit(agent.TurnEnd{})

	case "user":
		for _, c := range msg.Message.Content {
			if c.Type == "tool_result" {
				emit(agent.ToolEnd{Name: d.toolNames[c.ToolUseID], ID: c.ToolUseID})
			}
		}

	case "result":
		emit(agent.Result{
			Success:  !msg.IsError,
			Reason:   msg.Result,
			CostUSD:  msg.TotalCostUSD,
			Duration: time.Duration(msg.DurationMS) * time.Millisecond,
		})

	case "system":
		// Init banner; nothing to relay.

	default:
		log.Debug().Str("type", msg.Type).Msg("backends.claude: unrecognized event type")
	}
}
