package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/foremanhq/foreman/internal/domain"
)

const sessionColumns = `id, task_id, agent_type, status, current_turn, max_turns,
        plan, plan_feedback, error, heartbeat_at, started_at, completed_at, created_at`

type AgentSessionRepo struct {
	pool *pgxpool.Pool
}

func NewAgentSessionRepo(pool *pgxpool.Pool) *AgentSessionRepo {
	return &AgentSessionRepo{pool: pool}
}

func (r *AgentSessionRepo) Create(ctx context.Context, s *domain.AgentSession) error {
	plan, err := marshalPlan(s.Plan)
	if err != nil {
		return fmt.Errorf("agentSessionRepo.Create: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO agent_sessions (id, task_id, agent_type, status, current_turn, max_turns, plan, plan_feedback, error, heartbeat_at, started_at, completed_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		s.ID, s.TaskID, s.AgentType, s.Status, s.CurrentTurn, s.MaxTurns,
		plan, s.PlanFeedback, s.Error, s.HeartbeatAt, s.StartedAt, s.CompletedAt, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("agentSessionRepo.Create: %w", err)
	}

	return nil
}

func (r *AgentSessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.AgentSession, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM agent_sessions WHERE id = $1`,
		id,
	)

	s, err := scanAgentSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("agentSessionRepo.GetByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("agentSessionRepo.GetByID: %w", err)
	}

	return s, nil
}

func (r *AgentSessionRepo) GetActiveByTask(ctx context.Context, taskID uuid.UUID) (*domain.AgentSession, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM agent_sessions
		 WHERE task_id = $1 AND status NOT IN ('completed', 'failed', 'timeout')
		 ORDER BY created_at DESC
		 LIMIT 1`,
		taskID,
	)

	s, err := scanAgentSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("agentSessionRepo.GetActiveByTask: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("agentSessionRepo.GetActiveByTask: %w", err)
	}

	return s, nil
}

func (r *AgentSessionRepo) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*domain.AgentSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM agent_sessions
		 WHERE task_id = $1
		 ORDER BY created_at DESC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("agentSessionRepo.ListByTask: %w", err)
	}
	defer rows.Close()

	return scanAgentSessions(rows, "agentSessionRepo.ListByTask")
}

func (r *AgentSessionRepo) ListByProject(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]*domain.AgentSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.task_id, s.agent_type, s.status, s.current_turn, s.max_turns,
		        s.plan, s.plan_feedback, s.error, s.heartbeat_at, s.started_at, s.completed_at, s.created_at
		 FROM agent_sessions s
		 JOIN tasks t ON t.id = s.task_id
		 WHERE t.project_id = $1
		 ORDER BY s.created_at DESC
		 LIMIT $2 OFFSET $3`,
		projectID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("agentSessionRepo.ListByProject: %w", err)
	}
	defer rows.Close()

	return scanAgentSessions(rows, "agentSessionRepo.ListByProject")
}

func (r *AgentSessionRepo) ListQueued(ctx context.Context) ([]*domain.AgentSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM agent_sessions
		 WHERE status = 'queued'
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("agentSessionRepo.ListQueued: %w", err)
	}
	defer rows.Close()

	return scanAgentSessions(rows, "agentSessionRepo.ListQueued")
}

// Transition compare-and-sets the status in a single statement: the WHERE
// clause pins the prior status, so concurrent writers cannot both win.
func (r *AgentSessionRepo) Transition(ctx context.Context, id uuid.UUID, from, to domain.SessionStatus) error {
	if !from.ValidTransition(to) {
		return fmt.Errorf("agentSessionRepo.Transition: %q -> %q: %w", from, to, domain.ErrInvalidTransition)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE agent_sessions
		 SET status = $1,
		     completed_at = CASE WHEN $2::boolean THEN now() ELSE completed_at END
		 WHERE id = $3 AND status = $4`,
		to, to.Terminal(), id, from,
	)
	if err != nil {
		return fmt.Errorf("agentSessionRepo.Transition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the row is gone or its status moved under us.
		var exists bool
		checkErr := r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM agent_sessions WHERE id = $1)`, id,
		).Scan(&exists)
		if checkErr != nil {
			return fmt.Errorf("agentSessionRepo.Transition: %w", checkErr)
		}
		if !exists {
			return fmt.Errorf("agentSessionRepo.Transition: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("agentSessionRepo.Transition: status is no longer %q: %w", from, domain.ErrInvalidTransition)
	}

	return nil
}

func (r *AgentSessionRepo) SavePlan(ctx context.Context, id uuid.UUID, plan *domain.ExecutionPlan) error {
	encoded, err := marshalPlan(plan)
	if err != nil {
		return fmt.Errorf("agentSessionRepo.SavePlan: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE agent_sessions SET plan = $1 WHERE id = $2`,
		encoded, id,
	)
	if err != nil {
		return fmt.Errorf("agentSessionRepo.SavePlan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("agentSessionRepo.SavePlan: %w", domain.ErrNotFound)
	}

	return nil
}

func (r *AgentSessionRepo) ClearPlan(ctx context.Context, id uuid.UUID, feedback string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE agent_sessions SET plan = NULL, plan_feedback = $1 WHERE id = $2`,
		feedback, id,
	)
	if err != nil {
		return fmt.Errorf("agentSessionRepo.ClearPlan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("agentSessionRepo.ClearPlan: %w", domain.ErrNotFound)
	}

	return nil
}

func (r *AgentSessionRepo) IncrementTurn(ctx context.Context, id uuid.UUID) (int, error) {
	var turn int

	err := r.pool.QueryRow(ctx,
		`UPDATE agent_sessions
		 SET current_turn = current_turn + 1, heartbeat_at = now()
		 WHERE id = $1
		 RETURNING current_turn`,
		id,
	).Scan(&turn)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("agentSessionRepo.IncrementTurn: %w", domain.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("agentSessionRepo.IncrementTurn: %w", err)
	}

	return turn, nil
}

func (r *AgentSessionRepo) UpdateHeartbeat(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE agent_sessions SET heartbeat_at = now() WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("agentSessionRepo.UpdateHeartbeat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("agentSessionRepo.UpdateHeartbeat: %w", domain.ErrNotFound)
	}

	return nil
}

func (r *AgentSessionRepo) SetStarted(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE agent_sessions SET started_at = COALESCE(started_at, now()) WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("agentSessionRepo.SetStarted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("agentSessionRepo.SetStarted: %w", domain.ErrNotFound)
	}

	return nil
}

func (r *AgentSessionRepo) SetError(ctx context.Context, id uuid.UUID, msg string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE agent_sessions SET error = $1 WHERE id = $2`,
		msg, id,
	)
	if err != nil {
		return fmt.Errorf("agentSessionRepo.SetError: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("agentSessionRepo.SetError: %w", domain.ErrNotFound)
	}

	return nil
}

func marshalPlan(plan *domain.ExecutionPlan) ([]byte, error) {
	if plan == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(plan)
	if err != nil {
		return nil, fmt.Errorf("marshal plan: %w", err)
	}
	return encoded, nil
}

func scanAgentSession(row pgx.Row) (*domain.AgentSession, error) {
	var s domain.AgentSession
	var plan []byte

	err := row.Scan(
		&s.ID, &s.TaskID, &s.AgentType, &s.Status, &s.CurrentTurn, &s.MaxTurns,
		&plan, &s.PlanFeedback, &s.Error, &s.HeartbeatAt, &s.StartedAt, &s.CompletedAt, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if plan != nil {
		s.Plan = &domain.ExecutionPlan{}
		if err := json.Unmarshal(plan, s.Plan); err != nil {
			return nil, fmt.Errorf("unmarshal plan: %w", err)
		}
	}

	return &s, nil
}

func scanAgentSessions(rows pgx.Rows, caller string) ([]*domain.AgentSession, error) {
	var sessions []*domain.AgentSession
	for rows.Next() {
		s, err := scanAgentSession(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", caller, err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", caller, err)
	}

	return sessions, nil
}
