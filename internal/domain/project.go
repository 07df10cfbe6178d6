package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Project struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	RepoURL   string          `json:"repo_url"`
	Branch    string          `json:"branch"` // default "main"
	Settings  json.RawMessage `json:"settings,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewProject creates a Project with validated required fields and defaults.
func NewProject(name, repoURL, branch string, settings json.RawMessage) (*Project, error) {
	if name == "" {
		return nil, errors.New("project: name is required")
	}
	if repoURL == "" {
		return nil, errors.New("project: repo URL is required")
	}
	if branch == "" {
		branch = "main"
	}
	if settings == nil {
		settings = json.RawMessage("{}")
	}
	return &Project{
		ID:        uuid.New(),
		Name:      name,
		RepoURL:   repoURL,
		Branch:    branch,
		Settings:  settings,
		CreatedAt: time.Now(),
	}, nil
}

type ProjectRepository interface {
	Create(ctx context.Context, p *Project) error
	GetByID(ctx context.Context, id uuid.UUID) (*Project, error)
	Update(ctx context.Context, p *Project) error
	List(ctx context.Context) ([]*Project, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
