package v1_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/foremanhq/foreman/internal/api/v1"
	"github.com/foremanhq/foreman/internal/domain"
)

// ---------------------------------------------------------------------------
// POST /projects
// ---------------------------------------------------------------------------

func TestCreateProject(t *testing.T) {
	t.Parallel()

	t.Run("happy_path", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		store := &mockDataStore{
			projects: &mockProjectRepo{
				createFunc: func(_ context.Context, _ *domain.Project) error {
					return nil
				},
			},
		}
		v1.RegisterProjectRoutes(api, store)

		resp := api.Post("/projects", map[string]any{
			"name":     "my-project",
			"repo_url": "https://github.com/org/repo",
			"branch":   "develop",
		})

		require.Equal(t, http.StatusOK, resp.Code)

		var body domain.Project
		err := json.Unmarshal(resp.Body.Bytes(), &body)
		require.NoError(t, err)
		assert.Equal(t, "my-project", body.Name)
		assert.Equal(t, "https://github.com/org/repo", body.RepoURL)
		assert.Equal(t, "develop", body.Branch)
		assert.NotEqual(t, uuid.Nil, body.ID)
	})

	t.Run("branch_defaults_to_main", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		store := &mockDataStore{
			projects: &mockProjectRepo{
				createFunc: func(_ context.Context, _ *domain.Project) error {
					return nil
				},
			},
		}
		v1.RegisterProjectRoutes(api, store)

		resp := api.Post("/projects", map[string]any{
			"name":     "my-project",
			"repo_url": "git@github.com:org/repo.git",
		})

		require.Equal(t, http.StatusOK, resp.Code)

		var body domain.Project
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
		assert.Equal(t, "main", body.Branch)
	})

	t.Run("invalid_repo_url_scheme", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		store := &mockDataStore{projects: &mockProjectRepo{}}
		v1.RegisterProjectRoutes(api, store)

		resp := api.Post("/projects", map[string]any{
			"name":     "my-project",
			"repo_url": "ftp://example.com/repo",
		})

		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("store_error", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		store := &mockDataStore{
			projects: &mockProjectRepo{
				createFunc: func(_ context.Context, _ *domain.Project) error {
					return errors.New("db down")
				},
			},
		}
		v1.RegisterProjectRoutes(api, store)

		resp := api.Post("/projects", map[string]any{
			"name":     "my-project",
			"repo_url": "https://github.com/org/repo",
		})

		assert.Equal(t, http.StatusInternalServerError, resp.Code)
	})
}

// ---------------------------------------------------------------------------
// GET /projects, GET /projects/{id}
// ---------------------------------------------------------------------------

func TestGetProject(t *testing.T) {
	t.Parallel()

	t.Run("happy_path", func(t *testing.T) {
		t.Parallel()

		id := uuid.New()
		_, api := humatest.New(t)
		store := &mockDataStore{
			projects: &mockProjectRepo{
				getByIDFunc: func(_ context.Context, got uuid.UUID) (*domain.Project, error) {
					assert.Equal(t, id, got)
					return &domain.Project{ID: id, Name: "demo", RepoURL: "https://github.com/org/repo", Branch: "main", CreatedAt: time.Now()}, nil
				},
			},
		}
		v1.RegisterProjectRoutes(api, store)

		resp := api.Get("/projects/" + id.String())

		require.Equal(t, http.StatusOK, resp.Code)

		var body domain.Project
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
		assert.Equal(t, "demo", body.Name)
	})

	t.Run("not_found", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		store := &mockDataStore{
			projects: &mockProjectRepo{
				getByIDFunc: func(_ context.Context, _ uuid.UUID) (*domain.Project, error) {
					return nil, domain.ErrNotFound
				},
			},
		}
		v1.RegisterProjectRoutes(api, store)

		resp := api.Get("/projects/" + uuid.NewString())

		assert.Equal(t, http.StatusNotFound, resp.Code)
	})
}

func TestListProjects(t *testing.T) {
	t.Parallel()

	_, api := humatest.New(t)
	store := &mockDataStore{
		projects: &mockProjectRepo{
			listFunc: func(_ context.Context) ([]*domain.Project, error) {
				return []*domain.Project{
					{ID: uuid.New(), Name: "one"},
					{ID: uuid.New(), Name: "two"},
				}, nil
			},
		},
	}
	v1.RegisterProjectRoutes(api, store)

	resp := api.Get("/projects")

	require.Equal(t, http.StatusOK, resp.Code)

	var body []*domain.Project
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body, 2)
	assert.Equal(t, "one", body[0].Name)
}

// ---------------------------------------------------------------------------
// PUT /projects/{id}, DELETE /projects/{id}
// ---------------------------------------------------------------------------

func TestUpdateProject(t *testing.T) {
	t.Parallel()

	t.Run("partial_update_keeps_existing_fields", func(t *testing.T) {
		t.Parallel()

		id := uuid.New()
		_, api := humatest.New(t)
		store := &mockDataStore{
			projects: &mockProjectRepo{
				getByIDFunc: func(_ context.Context, _ uuid.UUID) (*domain.Project, error) {
					return &domain.Project{ID: id, Name: "old", RepoURL: "https://github.com/org/repo", Branch: "main"}, nil
				},
				updateFunc: func(_ context.Context, p *domain.Project) error {
					assert.Equal(t, "renamed", p.Name)
					assert.Equal(t, "main", p.Branch, "unset fields keep previous values")
					return nil
				},
			},
		}
		v1.RegisterProjectRoutes(api, store)

		resp := api.Put("/projects/"+id.String(), map[string]any{
			"name": "renamed",
		})

		require.Equal(t, http.StatusOK, resp.Code)
	})

	t.Run("not_found", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		store := &mockDataStore{
			projects: &mockProjectRepo{
				getByIDFunc: func(_ context.Context, _ uuid.UUID) (*domain.Project, error) {
					return nil, domain.ErrNotFound
				},
			},
		}
		v1.RegisterProjectRoutes(api, store)

		resp := api.Put("/projects/"+uuid.NewString(), map[string]any{"name": "x"})

		assert.Equal(t, http.StatusNotFound, resp.Code)
	})
}

func TestDeleteProject(t *testing.T) {
	t.Parallel()

	t.Run("happy_path", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		store := &mockDataStore{
			projects: &mockProjectRepo{
				deleteFunc: func(_ context.Context, _ uuid.UUID) error {
					return nil
				},
			},
		}
		v1.RegisterProjectRoutes(api, store)

		resp := api.Delete("/projects/" + uuid.NewString())

		assert.Equal(t, http.StatusNoContent, resp.Code)
	})

	t.Run("not_found", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		store := &mockDataStore{
			projects: &mockProjectRepo{
				deleteFunc: func(_ context.Context, _ uuid.UUID) error {
					return domain.ErrNotFound
				},
			},
		}
		v1.RegisterProjectRoutes(api, store)

		resp := api.Delete("/projects/" + uuid.NewString())

		assert.Equal(t, http.StatusNotFound, resp.Code)
	})
}
