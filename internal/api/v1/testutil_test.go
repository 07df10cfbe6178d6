package v1_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/foremanhq/foreman/internal/api/ws"
	"github.com/foremanhq/foreman/internal/domain"
)

// ---------------------------------------------------------------------------
// Mock DataStore
// ---------------------------------------------------------------------------

type mockDataStore struct {
	projects      domain.ProjectRepository
	tasks         domain.TaskRepository
	agentSessions domain.AgentSessionRepository
}

func (m *mockDataStore) Projects() domain.ProjectRepository           { return m.projects }
func (m *mockDataStore) Tasks() domain.TaskRepository                 { return m.tasks }
func (m *mockDataStore) AgentSessions() domain.AgentSessionRepository { return m.agentSessions }

// ---------------------------------------------------------------------------
// Mock ProjectRepository
// ---------------------------------------------------------------------------

type mockProjectRepo struct {
	createFunc  func(ctx context.Context, p *domain.Project) error
	getByIDFunc func(ctx context.Context, id uuid.UUID) (*domain.Project, error)
	updateFunc  func(ctx context.Context, p *domain.Project) error
	listFunc    func(ctx context.Context) ([]*domain.Project, error)
	deleteFunc  func(ctx context.Context, id uuid.UUID) error
}

func (m *mockProjectRepo) Create(ctx context.Context, p *domain.Project) error {
	return m.createFunc(ctx, p)
}

func (m *mockProjectRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockProjectRepo) Update(ctx context.Context, p *domain.Project) error {
	return m.updateFunc(ctx, p)
}

func (m *mockProjectRepo) List(ctx context.Context) ([]*domain.Project, error) {
	return m.listFunc(ctx)
}

func (m *mockProjectRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return m.deleteFunc(ctx, id)
}

// ---------------------------------------------------------------------------
// Mock TaskRepository
// ---------------------------------------------------------------------------

type mockTaskRepo struct {
	createFunc        func(ctx context.Context, t *domain.Task) error
	getByIDFunc       func(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	listByProjectFunc func(ctx context.Context, projectID uuid.UUID) ([]*domain.Task, error)
	listByStatusFunc  func(ctx context.Context, projectID uuid.UUID, status domain.TaskStatus) ([]*domain.Task, error)
	listSubtasksFunc  func(ctx context.Context, parentID uuid.UUID) ([]*domain.Task, error)
	updateStatusFunc  func(ctx context.Context, id uuid.UUID, status domain.TaskStatus) error
	updateFunc        func(ctx context.Context, t *domain.Task) error
	deleteFunc        func(ctx context.Context, id uuid.UUID) error
}

func (m *mockTaskRepo) Create(ctx context.Context, t *domain.Task) error {
	return m.createFunc(ctx, t)
}

func (m *mockTaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockTaskRepo) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*domain.Task, error) {
	return m.listByProjectFunc(ctx, projectID)
}

func (m *mockTaskRepo) ListByStatus(ctx context.Context, projectID uuid.UUID, status domain.TaskStatus) ([]*domain.Task, error) {
	return m.listByStatusFunc(ctx, projectID, status)
}

func (m *mockTaskRepo) ListSubtasks(ctx context.Context, parentID uuid.UUID) ([]*domain.Task, error) {
	return m.listSubtasksFunc(ctx, parentID)
}

func (m *mockTaskRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus) error {
	return m.updateStatusFunc(ctx, id, status)
}

func (m *mockTaskRepo) Update(ctx context.Context, t *domain.Task) error {
	return m.updateFunc(ctx, t)
}

func (m *mockTaskRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return m.deleteFunc(ctx, id)
}

// ---------------------------------------------------------------------------
// Mock AgentSessionRepository
// ---------------------------------------------------------------------------

type mockAgentSessionRepo struct {
	createFunc          func(ctx context.Context, s *domain.AgentSession) error
	getByIDFunc         func(ctx context.Context, id uuid.UUID) (*domain.AgentSession, error)
	getActiveByTaskFunc func(ctx context.Context, taskID uuid.UUID) (*domain.AgentSession, error)
	listByTaskFunc      func(ctx context.Context, taskID uuid.UUID) ([]*domain.AgentSession, error)
	listByProjectFunc   func(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]*domain.AgentSession, error)
	listQueuedFunc      func(ctx context.Context) ([]*domain.AgentSession, error)
	transitionFunc      func(ctx context.Context, id uuid.UUID, from, to domain.SessionStatus) error
	savePlanFunc        func(ctx context.Context, id uuid.UUID, plan *domain.ExecutionPlan) error
	clearPlanFunc       func(ctx context.Context, id uuid.UUID, feedback string) error
	incrementTurnFunc   func(ctx context.Context, id uuid.UUID) (int, error)
	updateHeartbeatFunc func(ctx context.Context, id uuid.UUID) error
	setStartedFunc      func(ctx context.Context, id uuid.UUID) error
	setErrorFunc        func(ctx context.Context, id uuid.UUID, msg string) error
}

func (m *mockAgentSessionRepo) Create(ctx context.Context, s *domain.AgentSession) error {
	return m.createFunc(ctx, s)
}

func (m *mockAgentSessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.AgentSession, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockAgentSessionRepo) GetActiveByTask(ctx context.Context, taskID uuid.UUID) (*domain.AgentSession, error) {
	return m.getActiveByTaskFunc(ctx, taskID)
}

func (m *mockAgentSessionRepo) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*domain.AgentSession, error) {
	return m.listByTaskFunc(ctx, taskID)
}

func (m *mockAgentSessionRepo) ListByProject(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]*domain.AgentSession, error) {
	return m.listByProjectFunc(ctx, projectID, limit, offset)
}

func (m *mockAgentSessionRepo) ListQueued(ctx context.Context) ([]*domain.AgentSession, error) {
	return m.listQueuedFunc(ctx)
}

func (m *mockAgentSessionRepo) Transition(ctx context.Context, id uuid.UUID, from, to domain.SessionStatus) error {
	return m.transitionFunc(ctx, id, from, to)
}

func (m *mockAgentSessionRepo) SavePlan(ctx context.Context, id uuid.UUID, plan *domain.ExecutionPlan) error {
	return m.savePlanFunc(ctx, id, plan)
}

func (m *mockAgentSessionRepo) ClearPlan(ctx context.Context, id uuid.UUID, feedback string) error {
	return m.clearPlanFunc(ctx, id, feedback)
}

func (m *mockAgentSessionRepo) IncrementTurn(ctx context.Context, id uuid.UUID) (int, error) {
	return m.incrementTurnFunc(ctx, id)
}

func (m *mockAgentSessionRepo) UpdateHeartbeat(ctx context.Context, id uuid.UUID) error {
	return m.updateHeartbeatFunc(ctx, id)
}

func (m *mockAgentSessionRepo) SetStarted(ctx context.Context, id uuid.UUID) error {
	return m.setStartedFunc(ctx, id)
}

func (m *mockAgentSessionRepo) SetError(ctx context.Context, id uuid.UUID, msg string) error {
	return m.setErrorFunc(ctx, id, msg)
}

// ---------------------------------------------------------------------------
// Mock SessionOrchestrator
// ---------------------------------------------------------------------------

type mockOrchestrator struct {
	createSessionFunc         func(ctx context.Context, taskID uuid.UUID, agentType string, maxTurns int) (*domain.AgentSession, error)
	startSessionFunc          func(ctx context.Context, sessionID uuid.UUID) error
	continueAfterApprovalFunc func(ctx context.Context, sessionID uuid.UUID) error
	requestChangesFunc        func(ctx context.Context, sessionID uuid.UUID, feedback string) error
	stopSessionFunc           func(ctx context.Context, sessionID uuid.UUID) bool
	isProcessingFunc          func(sessionID uuid.UUID) bool
}

func (m *mockOrchestrator) CreateSession(ctx context.Context, taskID uuid.UUID, agentType string, maxTurns int) (*domain.AgentSession, error) {
	return m.createSessionFunc(ctx, taskID, agentType, maxTurns)
}

func (m *mockOrchestrator) StartSession(ctx context.Context, sessionID uuid.UUID) error {
	return m.startSessionFunc(ctx, sessionID)
}

func (m *mockOrchestrator) ContinueAfterApproval(ctx context.Context, sessionID uuid.UUID) error {
	return m.continueAfterApprovalFunc(ctx, sessionID)
}

func (m *mockOrchestrator) RequestChanges(ctx context.Context, sessionID uuid.UUID, feedback string) error {
	return m.requestChangesFunc(ctx, sessionID, feedback)
}

func (m *mockOrchestrator) StopSession(ctx context.Context, sessionID uuid.UUID) bool {
	return m.stopSessionFunc(ctx, sessionID)
}

func (m *mockOrchestrator) IsSessionProcessing(sessionID uuid.UUID) bool {
	return m.isProcessingFunc(sessionID)
}

// ---------------------------------------------------------------------------
// Mock BoardNotifier
// ---------------------------------------------------------------------------

type mockBoardNotifier struct {
	mu     sync.Mutex
	events []ws.BoardEvent
}

func (m *mockBoardNotifier) PublishBoard(_ context.Context, evt ws.BoardEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

// ---------------------------------------------------------------------------
// Mock TicketIssuer
// ---------------------------------------------------------------------------

type mockTicketIssuer struct {
	issueFunc func(sessionID uuid.UUID) (string, time.Time, error)
}

func (m *mockTicketIssuer) IssueSessionTicket(sessionID uuid.UUID) (string, time.Time, error) {
	return m.issueFunc(sessionID)
}
