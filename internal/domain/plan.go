package domain

import (
	"errors"
	"fmt"
)

type FileAction string

const (
	FileActionCreate FileAction = "create"
	FileActionModify FileAction = "modify"
	FileActionDelete FileAction = "delete"
)

// PlanStep is one ordered step of an execution plan.
type PlanStep struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Details string   `json:"details,omitempty"`
	Outputs []string `json:"outputs,omitempty"`
}

// FileChange is a file the plan intends to touch.
type FileChange struct {
	Path   string     `json:"path"`
	Action FileAction `json:"action"`
}

// ExecutionPlan is the structured breakdown an agent proposes during planning.
// A plan is immutable once attached to a session; requested changes produce a
// brand-new plan value rather than a merge.
type ExecutionPlan struct {
	Summary       string       `json:"summary"`
	Steps         []PlanStep   `json:"steps"`
	Files         []FileChange `json:"files,omitempty"`
	Risks         []string     `json:"risks,omitempty"`
	Assumptions   []string     `json:"assumptions,omitempty"`
	OpenQuestions []string     `json:"open_questions,omitempty"`
}

// Normalize enforces the step-id invariant: every step gets a unique id,
// synthesized deterministically from position ("step-{n}", 1-indexed) when
// the source material omitted one or reused an earlier id.
func (p *ExecutionPlan) Normalize() {
	seen := make(map[string]struct{}, len(p.Steps))
	for i := range p.Steps {
		id := p.Steps[i].ID
		if id == "" {
			id = fmt.Sprintf("step-%d", i+1)
		}
		for _, dup := seen[id]; dup; _, dup = seen[id] {
			id = fmt.Sprintf("%s-%d", id, i+1)
		}
		seen[id] = struct{}{}
		p.Steps[i].ID = id
	}
}

// Validate checks the minimum shape of a decoded plan.
func (p *ExecutionPlan) Validate() error {
	if p.Summary == "" {
		return errors.New("plan: summary is required")
	}
	if len(p.Steps) == 0 {
		return errors.New("plan: at least one step is required")
	}
	for i, f := range p.Files {
		switch f.Action {
		case FileActionCreate, FileActionModify, FileActionDelete:
		default:
			return fmt.Errorf("plan: file %d has unknown action %q", i, f.Action)
		}
	}
	return nil
}
