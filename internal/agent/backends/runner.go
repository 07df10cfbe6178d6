// Package backends implements agent.Engine for the supported coding-agent
// CLIs. Each engine runs its CLI inside a Docker container, feeds user turns
// to its stdin, and decodes its JSON-line output stream into agent.StreamEvent
// values at the boundary. Unrecognized shapes are logged and dropped, never
// accessed speculatively.
package backends

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/foremanhq/foreman/internal/agent"
)

const repoMountDir = "/repo"

// encodeFunc wraps one user turn in the CLI's stdin wire format.
type encodeFunc func(text string) ([]byte, error)

// decodeFunc translates one output line into zero or more stream events.
// Decoders are called from a single goroutine and may keep state.
type decodeFunc func(line string, emit func(agent.StreamEvent))

// conversation is one live CLI process in a container: an input pump writing
// user turns to its stdin and an output pump decoding its log stream.
type conversation struct {
	runtime     *agent.DockerRuntime
	containerID string
	cancel      context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// openConversation creates and starts the container, wires the input channel
// to its stdin, and returns the decoded event stream. The event channel is
// closed when the container's output ends.
func openConversation(
	ctx context.Context,
	runtime *agent.DockerRuntime,
	image string,
	cmd []string,
	opts agent.ConversationOptions,
	input <-chan string,
	encode encodeFunc,
	decode decodeFunc,
) (*conversation, <-chan agent.StreamEvent, error) {
	containerID, err := runtime.CreateContainer(ctx, agent.ContainerOptions{
		SessionID:   opts.SessionID,
		Image:       image,
		VolumeName:  opts.Workspace,
		ProjectDir:  repoMountDir,
		WorkDir:     opts.WorkDir,
		BranchName:  opts.BranchName,
		Environment: opts.Environment,
		Cmd:         cmd,
		OpenStdin:   true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("backends.openConversation: %w", err)
	}

	err = runtime.StartContainer(ctx, containerID)
	if err != nil {
		if rmErr := runtime.RemoveContainer(ctx, containerID); rmErr != nil {
			log.Error().Err(rmErr).Str("container_id", containerID).Msg("backends: failed to remove container after start failure")
		}
		return nil, nil, fmt.Errorf("backends.openConversation: %w", err)
	}

	convCtx, cancel := context.WithCancel(ctx)
	conv := &conversation{
		runtime:     runtime,
		containerID: containerID,
		cancel:      cancel,
	}

	out := make(chan agent.StreamEvent, 64)

	go conv.pumpInput(convCtx, input, encode)
	go conv.pumpOutput(convCtx, out, decode)

	return conv, out, nil
}

// pumpInput forwards user turns to the CLI's stdin. A closed input channel
// ends the conversation by stopping the container.
func (c *conversation) pumpInput(ctx context.Context, input <-chan string, encode encodeFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case text, ok := <-input:
			if !ok {
				stopCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
				if err := c.runtime.StopContainer(stopCtx, c.containerID); err != nil {
					log.Error().Err(err).Str("container_id", c.containerID).Msg("backends: failed to stop container on input close")
				}
				cancel()
				return
			}

			data, err := encode(text)
			if err != nil {
				log.Error().Err(err).Str("container_id", c.containerID).Msg("backends: failed to encode user turn")
				continue
			}

			// The CLI is PID 1; its stdin is reachable through /proc.
			cmd := []string{"sh", "-c", "cat > /proc/1/fd/0"}
			if err := c.runtime.ExecInContainer(ctx, c.containerID, cmd, data); err != nil {
				log.Error().Err(err).Str("container_id", c.containerID).Msg("backends: failed to write user turn")
			}
		}
	}
}

// pumpOutput decodes the container's log stream into events. Owns the out
// channel and closes it exactly once when the stream ends.
func (c *conversation) pumpOutput(ctx context.Context, out chan<- agent.StreamEvent, decode decodeFunc) {
	defer close(out)

	emit := func(ev agent.StreamEvent) {
		select {
		case out <- ev:
		case <-ctx.Done():
		}
	}

	reader, err := c.runtime.StreamLogs(ctx, c.containerID)
	if err != nil {
		emit(agent.Fault{Message: fmt.Sprintf("failed to stream logs: %v", err)})
		return
	}
	defer reader.Close()

	scanner := bufio.NewScanner(reader)
	// Set a larger buffer for long JSON lines.
	scanner.Buffer(make([]byte, 0, 256*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, keep := filterLine(scanner.Text())
		if !keep {
			continue
		}
		decode(line, emit)
	}

	if scanErr := scanner.Err(); scanErr != nil && ctx.Err() == nil {
		emit(agent.Fault{Message: fmt.Sprintf("log stream error: %v", scanErr)})
	}
}

// close tears the conversation down: cancel the pumps, stop and remove the
// container. Idempotent.
func (c *conversation) close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.cancel()

		if err := c.runtime.StopContainer(ctx, c.containerID); err != nil {
			log.Error().Err(err).Str("container_id", c.containerID).Msg("backends: failed to stop container")
			c.closeErr = err
		}
		if err := c.runtime.RemoveContainer(ctx, c.containerID); err != nil {
			log.Error().Err(err).Str("container_id", c.containerID).Msg("backends: failed to remove container")
			if c.closeErr == nil {
				c.closeErr = err
			}
		}
	})

	if c.closeErr != nil {
		return fmt.Errorf("backends.conversation.close: %w", c.closeErr)
	}
	return nil
}

// filterLine drops blank lines and strips the 8-byte header Docker prepends
// to multiplexed log streams.
func filterLine(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return "", false
	}

	if trimmed[0] < 0x20 {
		// Binary prefix from Docker multiplexed stream.
		if len(trimmed) <= 8 {
			return "", false
		}
		trimmed = strings.TrimSpace(trimmed[8:])
		if trimmed == "" {
			return "", false
		}
	}

	return trimmed, true
}
