package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/foremanhq/foreman/internal/api/ws"
	"github.com/foremanhq/foreman/internal/domain"
)

type CreateTaskInput struct {
	Body struct {
		ProjectID   uuid.UUID  `json:"project_id" doc:"Project ID"`
		ParentID    *uuid.UUID `json:"parent_id,omitempty" doc:"Optional parent task ID (subtask)"`
		Title       string     `json:"title" minLength:"1" maxLength:"500" doc:"Task title"`
		Description string     `json:"description,omitempty" doc:"Task description"`
		Priority    int        `json:"priority,omitempty" doc:"Task priority (0=default)"`
	}
}

type CreateTaskOutput struct {
	Body *domain.Task
}

type ListTasksInput struct {
	ProjectID uuid.UUID `query:"project_id" required:"true" doc:"Project ID"`
	Status    string    `query:"status" doc:"Filter by status"`
}

type ListTasksOutput struct {
	Body []*domain.Task
}

type GetTaskInput struct {
	ID uuid.UUID `path:"id" doc:"Task ID"`
}

type GetTaskOutput struct {
	Body *domain.Task
}

type ListSubtasksInput struct {
	ID uuid.UUID `path:"id" doc:"Parent task ID"`
}

type ListSubtasksOutput struct {
	Body []*domain.Task
}

type UpdateTaskInput struct {
	ID   uuid.UUID `path:"id" doc:"Task ID"`
	Body struct {
		Title       string `json:"title,omitempty" maxLength:"500" doc:"Task title"`
		Description string `json:"description,omitempty" doc:"Task description"`
		Priority    *int   `json:"priority,omitempty" doc:"Task priority"`
	}
}

type UpdateTaskOutput struct {
	Body *domain.Task
}

type TransitionTaskStatusInput struct {
	ID   uuid.UUID `path:"id" doc:"Task ID"`
	Body struct {
		Status string `json:"status" minLength:"1" doc:"Target status"`
	}
}

type TransitionTaskStatusOutput struct {
	Body *domain.Task
}

type DeleteTaskInput struct {
	ID uuid.UUID `path:"id" doc:"Task ID"`
}

// notifyBoard publishes a board event best-effort; board streaming must never
// fail a task mutation.
func notifyBoard(ctx context.Context, board BoardNotifier, evt ws.BoardEvent) {
	if board == nil {
		return
	}
	if err := board.PublishBoard(ctx, evt); err != nil {
		log.Warn().Err(err).
			Str("task_id", evt.TaskID.String()).
			Str("event_type", evt.Type).
			Msg("v1: publish board event")
	}
}

func RegisterTaskRoutes(api huma.API, store DataStore, board BoardNotifier) {
	huma.Register(api, huma.Operation{
		OperationID: "create-task",
		Method:      http.MethodPost,
		Path:        "/tasks",
		Summary:     "Create a new task",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *CreateTaskInput) (*CreateTaskOutput, error) {
		if _, err := store.Projects().GetByID(ctx, input.Body.ProjectID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("project not found")
			}
			return nil, huma.Error500InternalServerError("failed to validate project")
		}

		if input.Body.ParentID != nil {
			parent, err := store.Tasks().GetByID(ctx, *input.Body.ParentID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return nil, huma.Error404NotFound("parent task not found")
				}
				return nil, huma.Error500InternalServerError("failed to validate parent task")
			}
			if parent.ProjectID != input.Body.ProjectID {
				return nil, huma.Error400BadRequest("parent task belongs to a different project")
			}
		}

		now := time.Now()
		t := &domain.Task{
			ID:          uuid.New(),
			ProjectID:   input.Body.ProjectID,
			ParentID:    input.Body.ParentID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Status:      domain.TaskStatusBacklog,
			Priority:    input.Body.Priority,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if err := store.Tasks().Create(ctx, t); err != nil {
			return nil, huma.Error500InternalServerError("failed to create task", err)
		}

		notifyBoard(ctx, board, ws.BoardEvent{Type: "task_created", TaskID: t.ID, ProjectID: t.ProjectID, Data: t})

		return &CreateTaskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks for a project",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *ListTasksInput) (*ListTasksOutput, error) {
		if input.Status != "" {
			status := domain.TaskStatus(input.Status)
			tasks, err := store.Tasks().ListByStatus(ctx, input.ProjectID, status)
			if err != nil {
				return nil, huma.Error500InternalServerError("failed to list tasks", err)
			}
			return &ListTasksOutput{Body: tasks}, nil
		}

		tasks, err := store.Tasks().ListByProject(ctx, input.ProjectID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list tasks", err)
		}

		return &ListTasksOutput{Body: tasks}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get a task by ID",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *GetTaskInput) (*GetTaskOutput, error) {
		t, err := store.Tasks().GetByID(ctx, input.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("task not found")
			}
			return nil, huma.Error500InternalServerError("failed to get task", err)
		}

		return &GetTaskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-subtasks",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/subtasks",
		Summary:     "List direct subtasks of a task",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *ListSubtasksInput) (*ListSubtasksOutput, error) {
		if _, err := store.Tasks().GetByID(ctx, input.ID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("task not found")
			}
			return nil, huma.Error500InternalServerError("failed to get task", err)
		}

		subtasks, err := store.Tasks().ListSubtasks(ctx, input.ID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list subtasks", err)
		}

		return &ListSubtasksOutput{Body: subtasks}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPut,
		Path:        "/tasks/{id}",
		Summary:     "Update a task",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *UpdateTaskInput) (*UpdateTaskOutput, error) {
		existing, err := store.Tasks().GetByID(ctx, input.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("task not found")
			}
			return nil, huma.Error500InternalServerError("failed to get task", err)
		}

		if input.Body.Title != "" {
			existing.Title = input.Body.Title
		}
		if input.Body.Description != "" {
			existing.Description = input.Body.Description
		}
		if input.Body.Priority != nil {
			existing.Priority = *input.Body.Priority
		}
		existing.UpdatedAt = time.Now()

		err = store.Tasks().Update(ctx, existing)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to update task", err)
		}

		return &UpdateTaskOutput{Body: existing}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-task-status",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}/status",
		Summary:     "Move a task on the board",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *TransitionTaskStatusInput) (*TransitionTaskStatusOutput, error) {
		existing, err := store.Tasks().GetByID(ctx, input.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("task not found")
			}
			return nil, huma.Error500InternalServerError("failed to get task", err)
		}

		target := domain.TaskStatus(input.Body.Status)
		switch target {
		case domain.TaskStatusBacklog, domain.TaskStatusInProgress, domain.TaskStatusReview, domain.TaskStatusDone:
			// valid
		default:
			return nil, huma.Error400BadRequest("unknown task status: " + input.Body.Status)
		}
		if !existing.Status.ValidTransition(target) {
			return nil, huma.Error400BadRequest("invalid status transition from " + string(existing.Status) + " to " + string(target))
		}

		err = store.Tasks().UpdateStatus(ctx, input.ID, target)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to update task status", err)
		}

		existing.Status = target
		existing.UpdatedAt = time.Now()

		notifyBoard(ctx, board, ws.BoardEvent{Type: "task_moved", TaskID: existing.ID, ProjectID: existing.ProjectID, Data: existing})

		return &TransitionTaskStatusOutput{Body: existing}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/tasks/{id}",
		Summary:     "Delete a task",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *DeleteTaskInput) (*struct{}, error) {
		existing, err := store.Tasks().GetByID(ctx, input.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("task not found")
			}
			return nil, huma.Error500InternalServerError("failed to get task", err)
		}

		if err := store.Tasks().Delete(ctx, input.ID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("task not found")
			}
			return nil, huma.Error500InternalServerError("failed to delete task", err)
		}

		notifyBoard(ctx, board, ws.BoardEvent{Type: "task_deleted", TaskID: existing.ID, ProjectID: existing.ProjectID})

		return nil, nil
	})
}
