package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskStatusBacklog    TaskStatus = "backlog"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusReview     TaskStatus = "review"
	TaskStatusDone       TaskStatus = "done"
)

// ValidTransition checks if a task state transition is allowed on the board.
// Allowed: backlog->in_progress, in_progress->{review, done},
// review->{done, in_progress} (rework).
func (s TaskStatus) ValidTransition(to TaskStatus) bool {
	switch s {
	case TaskStatusBacklog:
		return to == TaskStatusInProgress
	case TaskStatusInProgress:
		return to == TaskStatusReview || to == TaskStatusDone
	case TaskStatusReview:
		return to == TaskStatusDone || to == TaskStatusInProgress
	default:
		return false
	}
}

type Task struct {
	ID          uuid.UUID  `json:"id"`
	ProjectID   uuid.UUID  `json:"project_id"`
	ParentID    *uuid.UUID `json:"parent_id,omitempty"` // nullable, parent task for subtasks
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
	Priority    int        `json:"priority"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

var ErrInvalidTaskTransition = errors.New("task: invalid state transition")

type TaskRepository interface {
	Create(ctx context.Context, t *Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*Task, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*Task, error)
	ListByStatus(ctx context.Context, projectID uuid.UUID, status TaskStatus) ([]*Task, error)
	// ListSubtasks returns the direct children of a task, priority order.
	ListSubtasks(ctx context.Context, parentID uuid.UUID) ([]*Task, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status TaskStatus) error
	Update(ctx context.Context, t *Task) error
	Delete(ctx context.Context, id uuid.UUID) error
}
