package agent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foremanhq/foreman/internal/agent"
	"github.com/foremanhq/foreman/internal/domain"
)

const wellFormedPlanText = "I analyzed the task. Here is my plan:\n" +
	"```plan\n" +
	"{\n" +
	"  \"summary\": \"Add rate limiting to the API\",\n" +
	"  \"steps\": [\n" +
	"    {\"id\": \"setup\", \"title\": \"Add limiter dependency\"},\n" +
	"    {\"title\": \"Wire middleware\", \"details\": \"per-IP token bucket\"},\n" +
	"    {\"title\": \"Add tests\", \"outputs\": [\"middleware_test.go\"]}\n" +
	"  ],\n" +
	"  \"files\": [\n" +
	"    {\"path\": \"internal/server/middleware/ratelimit.go\", \"action\": \"create\"},\n" +
	"    {\"path\": \"internal/server/routes.go\", \"action\": \"modify\"}\n" +
	"  ],\n" +
	"  \"risks\": [\"shared IPs behind NAT\"]\n" +
	"}\n" +
	"```\n" +
	"Let me know if this looks right."

func TestExtractPlan_RoundTrip(t *testing.T) {
	t.Parallel()

	plan, err := agent.ExtractPlan(wellFormedPlanText)

	require.NoError(t, err)
	assert.Equal(t, "Add rate limiting to the API", plan.Summary)
	require.Len(t, plan.Steps, 3)

	// Explicit ids preserved, missing ids synthesized from position.
	assert.Equal(t, "setup", plan.Steps[0].ID)
	assert.Equal(t, "step-2", plan.Steps[1].ID)
	assert.Equal(t, "step-3", plan.Steps[2].ID)

	require.Len(t, plan.Files, 2)
	assert.Equal(t, domain.FileActionCreate, plan.Files[0].Action)
	assert.Equal(t, domain.FileActionModify, plan.Files[1].Action)
	assert.Equal(t, []string{"shared IPs behind NAT"}, plan.Risks)
}

func TestExtractPlan_FenceVariants(t *testing.T) {
	t.Parallel()

	body := `{"summary": "s", "steps": [{"title": "one"}]}`

	tests := []struct {
		name string
		text string
	}{
		{name: "plan fence", text: "```plan\n" + body + "\n```"},
		{name: "json fence", text: "```json\n" + body + "\n```"},
		{name: "bare fence with JSON object", text: "```\n" + body + "\n```"},
		{name: "unterminated fence", text: "thinking...\n```plan\n" + body},
		{name: "prose around the block", text: "Here:\n```plan\n" + body + "\n```\ndone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			plan, err := agent.ExtractPlan(tt.text)

			require.NoError(t, err)
			assert.Equal(t, "s", plan.Summary)
			require.Len(t, plan.Steps, 1)
			assert.Equal(t, "step-1", plan.Steps[0].ID)
		})
	}
}

func TestExtractPlan_NoPlan(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
	}{
		{name: "empty text", text: ""},
		{name: "prose only", text: "I will think about this task some more."},
		{name: "code fence that is not a plan", text: "```go\nfunc main() {}\n```"},
		{name: "bare fence without JSON", text: "```\nnot json\n```"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			plan, err := agent.ExtractPlan(tt.text)

			assert.Nil(t, plan)
			assert.ErrorIs(t, err, agent.ErrNoPlan)
		})
	}
}

func TestExtractPlan_Malformed(t *testing.T) {
	t.Parallel()

	t.Run("invalid shape reports malformed", func(t *testing.T) {
		t.Parallel()

		// Valid JSON but no steps; repair cannot help.
		plan, err := agent.ExtractPlan("```plan\n{\"summary\": \"s\", \"steps\": []}\n```")

		assert.Nil(t, plan)
		assert.ErrorIs(t, err, agent.ErrMalformedPlan)
	})

	t.Run("almost-JSON is repaired", func(t *testing.T) {
		t.Parallel()

		// Trailing comma — engines emit this constantly.
		text := "```plan\n{\"summary\": \"s\", \"steps\": [{\"title\": \"one\"},]}\n```"

		plan, err := agent.ExtractPlan(text)

		require.NoError(t, err)
		assert.Equal(t, "s", plan.Summary)
	})

	t.Run("first decodable candidate wins", func(t *testing.T) {
		t.Parallel()

		text := "```json\n{broken\n```\n" +
			"```plan\n{\"summary\": \"second\", \"steps\": [{\"title\": \"one\"}]}\n```"

		plan, err := agent.ExtractPlan(text)

		require.NoError(t, err)
		assert.Equal(t, "second", plan.Summary)
	})
}

func TestExtractPlan_Deterministic(t *testing.T) {
	t.Parallel()

	// Same text, same result: extraction has no hidden state.
	first, err := agent.ExtractPlan(wellFormedPlanText)
	require.NoError(t, err)

	second, err := agent.ExtractPlan(wellFormedPlanText)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
