package domain_test

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foremanhq/foreman/internal/domain"
)

// ---------------------------------------------------------------------------
// 1. SessionStatus.ValidTransition — state-machine matrix.
// ---------------------------------------------------------------------------

func TestSessionStatus_ValidTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from domain.SessionStatus
		to   domain.SessionStatus
		want bool
	}{
		// From queued.
		{domain.SessionStatusQueued, domain.SessionStatusPlanning, true},
		{domain.SessionStatusQueued, domain.SessionStatusExecuting, false},
		{domain.SessionStatusQueued, domain.SessionStatusCompleted, false},
		{domain.SessionStatusQueued, domain.SessionStatusQueued, false},

		// From planning.
		{domain.SessionStatusPlanning, domain.SessionStatusAwaitingApproval, true},
		{domain.SessionStatusPlanning, domain.SessionStatusPaused, true},
		{domain.SessionStatusPlanning, domain.SessionStatusFailed, true},
		{domain.SessionStatusPlanning, domain.SessionStatusTimeout, true},
		{domain.SessionStatusPlanning, domain.SessionStatusExecuting, false},
		{domain.SessionStatusPlanning, domain.SessionStatusCompleted, false},

		// From awaiting_approval.
		{domain.SessionStatusAwaitingApproval, domain.SessionStatusExecuting, true},
		{domain.SessionStatusAwaitingApproval, domain.SessionStatusPlanning, true}, // requested changes
		{domain.SessionStatusAwaitingApproval, domain.SessionStatusCompleted, false},
		{domain.SessionStatusAwaitingApproval, domain.SessionStatusQueued, false},

		// From executing.
		{domain.SessionStatusExecuting, domain.SessionStatusPaused, true},
		{domain.SessionStatusExecuting, domain.SessionStatusCompleted, true},
		{domain.SessionStatusExecuting, domain.SessionStatusFailed, true},
		{domain.SessionStatusExecuting, domain.SessionStatusTimeout, true},
		{domain.SessionStatusExecuting, domain.SessionStatusPlanning, false},

		// From paused.
		{domain.SessionStatusPaused, domain.SessionStatusExecuting, true},
		{domain.SessionStatusPaused, domain.SessionStatusPlanning, true},
		{domain.SessionStatusPaused, domain.SessionStatusCompleted, false},

		// Terminal states accept nothing.
		{domain.SessionStatusCompleted, domain.SessionStatusPlanning, false},
		{domain.SessionStatusCompleted, domain.SessionStatusExecuting, false},
		{domain.SessionStatusFailed, domain.SessionStatusQueued, false},
		{domain.SessionStatusFailed, domain.SessionStatusPlanning, false},
		{domain.SessionStatusTimeout, domain.SessionStatusExecuting, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			t.Parallel()

			got := tt.from.ValidTransition(tt.to)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSessionStatus_Terminal(t *testing.T) {
	t.Parallel()

	terminal := []domain.SessionStatus{
		domain.SessionStatusCompleted,
		domain.SessionStatusFailed,
		domain.SessionStatusTimeout,
	}
	active := []domain.SessionStatus{
		domain.SessionStatusQueued,
		domain.SessionStatusPlanning,
		domain.SessionStatusAwaitingApproval,
		domain.SessionStatusExecuting,
		domain.SessionStatusPaused,
	}

	for _, s := range terminal {
		assert.True(t, s.Terminal(), "%s should be terminal", s)
	}
	for _, s := range active {
		assert.False(t, s.Terminal(), "%s should not be terminal", s)
	}
}

// ---------------------------------------------------------------------------
// 2. NewAgentSession validation and turn budget.
// ---------------------------------------------------------------------------

func TestNewAgentSession(t *testing.T) {
	t.Parallel()

	t.Run("happy path", func(t *testing.T) {
		t.Parallel()

		taskID := uuid.New()
		s, err := domain.NewAgentSession(taskID, "claude", 50)

		require.NoError(t, err)
		assert.Equal(t, taskID, s.TaskID)
		assert.Equal(t, domain.SessionStatusQueued, s.Status)
		assert.Equal(t, 0, s.CurrentTurn)
		assert.Equal(t, 50, s.MaxTurns)
		assert.NotEqual(t, uuid.Nil, s.ID)
	})

	t.Run("missing task", func(t *testing.T) {
		t.Parallel()

		_, err := domain.NewAgentSession(uuid.Nil, "claude", 50)
		require.Error(t, err)
	})

	t.Run("missing agent type", func(t *testing.T) {
		t.Parallel()

		_, err := domain.NewAgentSession(uuid.New(), "", 50)
		require.Error(t, err)
	})

	t.Run("non-positive max turns", func(t *testing.T) {
		t.Parallel()

		_, err := domain.NewAgentSession(uuid.New(), "claude", 0)
		require.Error(t, err)
	})
}

func TestAgentSession_RemainingTurns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		current int
		max     int
		want    int
	}{
		{"fresh session", 0, 50, 50},
		{"partially used", 30, 50, 20},
		{"exhausted clamps to one", 50, 50, 1},
		{"overrun clamps to one", 60, 50, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := domain.AgentSession{CurrentTurn: tt.current, MaxTurns: tt.max}
			assert.Equal(t, tt.want, s.RemainingTurns())
		})
	}
}

// ---------------------------------------------------------------------------
// 3. ExecutionPlan normalization and validation.
// ---------------------------------------------------------------------------

func TestExecutionPlan_Normalize(t *testing.T) {
	t.Parallel()

	t.Run("missing ids synthesized from position", func(t *testing.T) {
		t.Parallel()

		plan := domain.ExecutionPlan{
			Summary: "do the thing",
			Steps: []domain.PlanStep{
				{Title: "first"},
				{Title: "second"},
				{Title: "third"},
			},
		}

		plan.Normalize()

		for i, step := range plan.Steps {
			assert.Equal(t, fmt.Sprintf("step-%d", i+1), step.ID)
		}
	})

	t.Run("explicit ids preserved", func(t *testing.T) {
		t.Parallel()

		plan := domain.ExecutionPlan{
			Summary: "do the thing",
			Steps: []domain.PlanStep{
				{ID: "setup", Title: "first"},
				{ID: "migrate", Title: "second"},
			},
		}

		plan.Normalize()

		assert.Equal(t, "setup", plan.Steps[0].ID)
		assert.Equal(t, "migrate", plan.Steps[1].ID)
	})

	t.Run("duplicate ids made unique", func(t *testing.T) {
		t.Parallel()

		plan := domain.ExecutionPlan{
			Summary: "do the thing",
			Steps: []domain.PlanStep{
				{ID: "setup", Title: "first"},
				{ID: "setup", Title: "second"},
			},
		}

		plan.Normalize()

		seen := map[string]bool{}
		for _, step := range plan.Steps {
			assert.False(t, seen[step.ID], "duplicate id %q after normalize", step.ID)
			seen[step.ID] = true
		}
	})
}

func TestExecutionPlan_Validate(t *testing.T) {
	t.Parallel()

	valid := domain.ExecutionPlan{
		Summary: "add endpoint",
		Steps:   []domain.PlanStep{{ID: "step-1", Title: "write handler"}},
		Files:   []domain.FileChange{{Path: "internal/api/v1/tasks.go", Action: domain.FileActionModify}},
	}
	require.NoError(t, valid.Validate())

	t.Run("missing summary", func(t *testing.T) {
		t.Parallel()

		p := valid
		p.Summary = ""
		require.Error(t, p.Validate())
	})

	t.Run("no steps", func(t *testing.T) {
		t.Parallel()

		p := valid
		p.Steps = nil
		require.Error(t, p.Validate())
	})

	t.Run("unknown file action", func(t *testing.T) {
		t.Parallel()

		p := valid
		p.Files = []domain.FileChange{{Path: "a.go", Action: "rename"}}
		require.Error(t, p.Validate())
	})
}

// ---------------------------------------------------------------------------
// 4. TaskStatus.ValidTransition and NewProject (board plumbing).
// ---------------------------------------------------------------------------

func TestTaskStatus_ValidTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from domain.TaskStatus
		to   domain.TaskStatus
		want bool
	}{
		{domain.TaskStatusBacklog, domain.TaskStatusInProgress, true},
		{domain.TaskStatusBacklog, domain.TaskStatusDone, false},
		{domain.TaskStatusInProgress, domain.TaskStatusReview, true},
		{domain.TaskStatusInProgress, domain.TaskStatusDone, true},
		{domain.TaskStatusReview, domain.TaskStatusDone, true},
		{domain.TaskStatusReview, domain.TaskStatusInProgress, true}, // rework
		{domain.TaskStatusDone, domain.TaskStatusInProgress, false},
		{domain.TaskStatusDone, domain.TaskStatusDone, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, tt.from.ValidTransition(tt.to))
		})
	}
}

func TestNewProject(t *testing.T) {
	t.Parallel()

	t.Run("defaults applied", func(t *testing.T) {
		t.Parallel()

		p, err := domain.NewProject("foreman", "https://github.com/foremanhq/foreman.git", "", nil)

		require.NoError(t, err)
		assert.Equal(t, "main", p.Branch)
		assert.JSONEq(t, "{}", string(p.Settings))
	})

	t.Run("name required", func(t *testing.T) {
		t.Parallel()

		_, err := domain.NewProject("", "https://example.com/r.git", "main", nil)
		require.Error(t, err)
	})

	t.Run("repo url required", func(t *testing.T) {
		t.Parallel()

		_, err := domain.NewProject("foreman", "", "main", nil)
		require.Error(t, err)
	})
}
