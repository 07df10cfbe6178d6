package agent_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foremanhq/foreman/internal/agent"
)

// --- stub Engine for registry tests ---

type stubEngine struct {
	agentType string
}

func (s *stubEngine) Converse(context.Context, agent.ConversationOptions, <-chan string) (<-chan agent.StreamEvent, error) {
	out := make(chan agent.StreamEvent)
	close(out)
	return out, nil
}
func (s *stubEngine) Close(context.Context) error { return nil }

func TestRegistry_RegisterAndCreate(t *testing.T) {
	t.Parallel()

	t.Run("happy path", func(t *testing.T) {
		t.Parallel()

		reg := agent.NewRegistry()
		reg.Register("claude", func(_ *agent.DockerRuntime) (agent.Engine, error) {
			return &stubEngine{agentType: "claude"}, nil
		})

		engine, err := reg.Create("claude", nil)

		require.NoError(t, err)
		require.NotNil(t, engine)
	})

	t.Run("unknown agent type returns ErrUnknownAgent", func(t *testing.T) {
		t.Parallel()

		reg := agent.NewRegistry()

		engine, err := reg.Create("nonexistent", nil)

		require.Error(t, err)
		assert.Nil(t, engine)
		assert.ErrorIs(t, err, agent.ErrUnknownAgent)
	})

	t.Run("factory error propagated", func(t *testing.T) {
		t.Parallel()

		reg := agent.NewRegistry()
		reg.Register("broken", func(_ *agent.DockerRuntime) (agent.Engine, error) {
			return nil, errors.New("factory boom")
		})

		engine, err := reg.Create("broken", nil)

		require.Error(t, err)
		assert.Nil(t, engine)
		assert.Contains(t, err.Error(), "factory boom")
	})

	t.Run("Available returns sorted names", func(t *testing.T) {
		t.Parallel()

		reg := agent.NewRegistry()
		reg.Register("codex", func(_ *agent.DockerRuntime) (agent.Engine, error) {
			return &stubEngine{}, nil
		})
		reg.Register("claude", func(_ *agent.DockerRuntime) (agent.Engine, error) {
			return &stubEngine{}, nil
		})

		available := reg.Available()

		assert.Equal(t, []string{"claude", "codex"}, available)
	})
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	reg := agent.NewRegistry()

	// Pre-register one engine.
	reg.Register("claude", func(_ *agent.DockerRuntime) (agent.Engine, error) {
		return &stubEngine{agentType: "claude"}, nil
	})

	var wg sync.WaitGroup

	// Concurrent registers.
	for range 10 {
		wg.Go(func() {
			name := "agent-" + uuid.New().String()[:8]
			reg.Register(name, func(_ *agent.DockerRuntime) (agent.Engine, error) {
				return &stubEngine{agentType: name}, nil
			})
		})
	}

	// Concurrent creates.
	for range 10 {
		wg.Go(func() {
			engine, err := reg.Create("claude", nil)
			require.NoError(t, err)
			require.NotNil(t, engine)
		})
	}

	// Concurrent Available calls.
	for range 5 {
		wg.Go(func() {
			_ = reg.Available()
		})
	}

	wg.Wait()

	// After all goroutines complete, "claude" plus 10 agent-* should be registered.
	available := reg.Available()
	assert.GreaterOrEqual(t, len(available), 11)
}
