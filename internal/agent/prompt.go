package agent

import (
	"encoding/json"
	"strings"

	"github.com/foremanhq/foreman/internal/domain"
)

// systemContext builds the system prompt for an engine conversation from the
// task, its project, and its subtasks. Reviewer feedback from a rejected plan
// is folded in so the revision produces a brand-new plan.
func systemContext(task *domain.Task, project *domain.Project, subtasks []*domain.Task, feedback string) string {
	var sb strings.Builder

	sb.WriteString("You are a coding agent working on the project ")
	sb.WriteString(project.Name)
	sb.WriteString(".\n\n")

	sb.WriteString("## Task: ")
	sb.WriteString(task.Title)
	sb.WriteString("\n\n")
	if task.Description != "" {
		sb.WriteString(task.Description)
		sb.WriteString("\n\n")
	}

	if len(subtasks) > 0 {
		sb.WriteString("## Subtasks\n")
		for _, st := range subtasks {
			sb.WriteString("- ")
			sb.WriteString(st.Title)
			if st.Description != "" {
				sb.WriteString(": ")
				sb.WriteString(st.Description)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if feedback != "" {
		sb.WriteString("## User Feedback on Previous Plan\n")
		sb.WriteString(feedback)
		sb.WriteString("\n")
	}

	return sb.String()
}

// planningPrompt is the opening instruction of the planning phase: analyze
// the task and answer with a fenced plan block the extractor can decode.
func planningPrompt(task *domain.Task, feedback string) string {
	var sb strings.Builder

	sb.WriteString("Analyze the task \"")
	sb.WriteString(task.Title)
	sb.WriteString("\" and produce an execution plan. Do not change any files yet.\n\n")
	sb.WriteString("Respond with a fenced ```plan block containing a JSON object with the fields ")
	sb.WriteString("\"summary\", \"steps\" (each with \"id\", \"title\", \"details\", \"outputs\"), ")
	sb.WriteString("\"files\" (each with \"path\" and \"action\" of create, modify or delete), ")
	sb.WriteString("\"risks\", \"assumptions\" and \"open_questions\".")

	if feedback != "" {
		sb.WriteString("\n\nA previous plan was rejected. Address the user feedback and produce a new plan from scratch.")
	}

	return sb.String()
}

// executionPrompt restates the approved plan as the execution instruction.
// Used both to redirect a live planning conversation after approval and to
// seed a fresh conversation when the planning loop is gone.
func executionPrompt(plan *domain.ExecutionPlan) string {
	var sb strings.Builder

	sb.WriteString("The plan below has been approved. Execute it step by step, committing your work as you go.\n\n")

	encoded, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		// A plan that round-tripped through the DB always marshals; fall back
		// to the summary just in case.
		sb.WriteString(plan.Summary)
		return sb.String()
	}

	sb.WriteString("```json\n")
	sb.Write(encoded)
	sb.WriteString("\n```")
	return sb.String()
}

// revisionPrompt redirects a live conversation back into planning after the
// reviewer requested changes.
func revisionPrompt(feedback string) string {
	var sb strings.Builder

	sb.WriteString("The plan was not approved. User feedback:\n\n")
	sb.WriteString(feedback)
	sb.WriteString("\n\nProduce a revised execution plan from scratch as a fenced ```plan block with the same fields as before. Do not change any files yet.")

	return sb.String()
}
