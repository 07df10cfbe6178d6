package notify_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foremanhq/foreman/internal/agent"
	"github.com/foremanhq/foreman/internal/domain"
	"github.com/foremanhq/foreman/internal/notify"
)

func newTapFixture() (*mockMessenger, agent.Tap) {
	msg := &mockMessenger{}
	reg := notify.NewRegistry()
	reg.Register("slack", msg)
	return msg, notify.SessionTap(notify.New(reg, "#agents"))
}

func waitForMessages(t *testing.T, msg *mockMessenger, n int) []sentMessage {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(msg.messages()) >= n
	}, 2*time.Second, 10*time.Millisecond)
	return msg.messages()
}

func TestSessionTap(t *testing.T) {
	t.Parallel()

	sessionID := uuid.New()

	t.Run("plan ready announces step count", func(t *testing.T) {
		t.Parallel()

		msg, tap := newTapFixture()
		tap(agent.Event{
			Type:      agent.EventPlanReady,
			SessionID: sessionID,
			Plan: &domain.ExecutionPlan{
				Steps: []domain.PlanStep{{ID: "1", Title: "a"}, {ID: "2", Title: "b"}},
			},
		})

		got := waitForMessages(t, msg, 1)
		assert.Contains(t, got[0].text, sessionID.String())
		assert.Contains(t, got[0].text, "2 step(s)")
		assert.Equal(t, "#agents", got[0].channel)
	})

	t.Run("terminal statuses announce", func(t *testing.T) {
		t.Parallel()

		msg, tap := newTapFixture()
		tap(agent.Event{Type: agent.EventStatusChange, SessionID: sessionID, Status: domain.SessionStatusCompleted})
		tap(agent.Event{Type: agent.EventStatusChange, SessionID: sessionID, Status: domain.SessionStatusFailed, Error: "boom"})
		tap(agent.Event{Type: agent.EventStatusChange, SessionID: sessionID, Status: domain.SessionStatusTimeout})

		got := waitForMessages(t, msg, 3)
		texts := []string{got[0].text, got[1].text, got[2].text}
		joined := texts[0] + texts[1] + texts[2]
		assert.Contains(t, joined, "completed")
		assert.Contains(t, joined, "failed")
		assert.Contains(t, joined, "boom")
		assert.Contains(t, joined, "timed out")
	})

	t.Run("intermediate events are silent", func(t *testing.T) {
		t.Parallel()

		msg, tap := newTapFixture()
		tap(agent.Event{Type: agent.EventToolUse, SessionID: sessionID, ToolName: "bash"})
		tap(agent.Event{Type: agent.EventMessage, SessionID: sessionID, Content: "thinking"})
		tap(agent.Event{Type: agent.EventStatusChange, SessionID: sessionID, Status: domain.SessionStatusExecuting})

		time.Sleep(50 * time.Millisecond)
		assert.Empty(t, msg.messages())
	})
}
