package agent

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/foremanhq/foreman/internal/domain"
)

// run is the session run loop: one goroutine driving a single streaming
// engine conversation through the planning and execution phases. The phase is
// shared with the command path via the handle, so an approval or revision can
// redirect the live conversation instead of tearing it down. Every exit path
// releases the registry entry.
func (o *Orchestrator) run(h *SessionHandle, session *domain.AgentSession, startPhase int32) {
	// Deregister before closing the channel: a closed channel then implies
	// the registry entry is gone, so command paths that see a rejected push
	// can safely re-admit.
	defer o.wg.Done()
	defer h.Channel.Close()
	defer o.active.Release(h.ID)

	ctx := h.Context()

	task, err := o.tasks.GetByID(ctx, session.TaskID)
	if err != nil {
		o.abortSession(session.ID, startPhase, "failed to get task: "+err.Error())
		return
	}

	project, err := o.projects.GetByID(ctx, task.ProjectID)
	if err != nil {
		o.abortSession(session.ID, startPhase, "failed to get project: "+err.Error())
		return
	}

	subtasks, err := o.tasks.ListSubtasks(ctx, task.ID)
	if err != nil {
		log.Warn().Err(err).Str("task_id", task.ID.String()).Msg("agent.run: failed to list subtasks")
		subtasks = nil
	}

	branch := sessionBranch(session.ID)
	volume := projectVolume(project.ID)

	workDir, err := o.workspaces.Prepare(ctx, volume, project.RepoURL, project.Branch, branch)
	if err != nil {
		o.abortSession(session.ID, startPhase, "failed to prepare workspace: "+err.Error())
		return
	}

	engine, err := o.registry.Create(session.AgentType, o.runtime)
	if err != nil {
		o.abortSession(session.ID, startPhase, "failed to create engine: "+err.Error())
		return
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if closeErr := engine.Close(closeCtx); closeErr != nil {
			log.Error().Err(closeErr).Str("session_id", session.ID.String()).Msg("agent.run: failed to close engine")
		}
	}()

	events, err := engine.Converse(ctx, ConversationOptions{
		SessionID:    session.ID,
		SystemPrompt: systemContext(task, project, subtasks, session.PlanFeedback),
		Workspace:    volume,
		WorkDir:      workDir,
		BranchName:   branch,
		MaxTurns:     session.RemainingTurns(),
	}, h.Channel.Out())
	if err != nil {
		o.abortSession(session.ID, startPhase, "failed to open conversation: "+err.Error())
		return
	}

	if task.Status == domain.TaskStatusBacklog {
		if err := o.tasks.UpdateStatus(ctx, task.ID, domain.TaskStatusInProgress); err != nil {
			log.Error().Err(err).Str("task_id", task.ID.String()).Msg("agent.run: failed to move task in progress")
		}
	}

	h.setPhase(startPhase)
	switch startPhase {
	case phaseExecuting:
		h.Channel.Push(executionPrompt(session.Plan))
	default:
		h.Channel.Push(planningPrompt(task, session.PlanFeedback))
	}

	o.consume(ctx, h, session, events)
}

// consume drains the engine's event stream, relaying progress, accounting
// turns, and persisting phase outcomes until the conversation ends or the
// loop context is cancelled.
func (o *Orchestrator) consume(ctx context.Context, h *SessionHandle, session *domain.AgentSession, events <-chan StreamEvent) {
	var buf strings.Builder
	lastPhase := h.loopPhase()
	planExtracted := false

	heartbeat := time.NewTicker(o.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			// StopSession (or shutdown) already decided the persisted status.
			return

		case <-heartbeat.C:
			if err := o.sessions.UpdateHeartbeat(ctx, session.ID); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Str("session_id", session.ID.String()).Msg("agent.consume: heartbeat update failed")
			}

		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return
				}
				o.abortSession(session.ID, lastPhase, "engine stream ended unexpectedly")
				return
			}

			phase := h.loopPhase()
			if phase != lastPhase {
				// Approval or revision redirected the conversation; the next
				// phase starts with a clean text buffer.
				buf.Reset()
				planExtracted = false
				lastPhase = phase
			}

			switch e := ev.(type) {
			case TextDelta:
				buf.WriteString(e.Text)
				o.emit(Event{Type: EventMessage, SessionID: session.ID, Content: e.Text})

			case ToolStart:
				o.emit(Event{Type: EventToolUse, SessionID: session.ID, ToolName: e.Name, ToolID: e.ID})

			case ToolEnd:
				if err := o.sessions.UpdateHeartbeat(ctx, session.ID); err != nil && ctx.Err() == nil {
					log.Warn().Err(err).Str("session_id", session.ID.String()).Msg("agent.consume: heartbeat update failed")
				}

			case TurnEnd:
				if phase != phaseExecuting {
					if err := o.sessions.UpdateHeartbeat(ctx, session.ID); err != nil && ctx.Err() == nil {
						log.Warn().Err(err).Str("session_id", session.ID.String()).Msg("agent.consume: heartbeat update failed")
					}
					continue
				}
				// Timeout only when a turn runs past an exhausted budget: a
				// terminal result arriving at currentTurn == maxTurns still
				// counts as the phase outcome.
				if session.CurrentTurn >= session.MaxTurns {
					o.timeoutSession(session.ID)
					return
				}
				newTurn, err := o.sessions.IncrementTurn(ctx, session.ID)
				if err != nil {
					if ctx.Err() == nil {
						log.Error().Err(err).Str("session_id", session.ID.String()).Msg("agent.consume: failed to increment turn")
					}
					continue
				}
				session.CurrentTurn = newTurn

			case Result:
				switch phase {
				case phasePlanning:
					if planExtracted {
						// A plan already came out of this buffer; a repeated
						// result must not produce a second plan_ready.
						continue
					}
					if o.finishPlanning(ctx, h, session, buf.String(), e) {
						planExtracted = true
						lastPhase = phaseAwaitingApproval
					}
				case phaseExecuting:
					o.finishExecution(session, e)
					return
				default:
					// Idle between approval and the next instruction; nothing
					// to conclude from a stray result.
				}

			case Fault:
				o.emit(Event{Type: EventError, SessionID: session.ID, Error: e.Message})
				o.abortSession(session.ID, phase, e.Message)
				return
			}
		}
	}
}

// finishPlanning runs the plan extractor against the accumulated text after a
// planning-phase result. Success persists the plan and moves the session to
// awaiting_approval; extraction failure is soft — the result still fires, an
// error event makes the failure observable, and the session stays in planning
// so the caller can retry or surface it.
func (o *Orchestrator) finishPlanning(ctx context.Context, h *SessionHandle, session *domain.AgentSession, text string, res Result) bool {
	result := &ResultPayload{
		Success:    res.Success,
		CostUSD:    res.CostUSD,
		DurationMS: res.Duration.Milliseconds(),
	}

	plan, err := ExtractPlan(text)
	if err != nil {
		log.Warn().Err(err).Str("session_id", session.ID.String()).Msg("agent.finishPlanning: no usable plan in planning output")
		o.emit(Event{Type: EventResult, SessionID: session.ID, Result: result})
		o.emit(Event{Type: EventError, SessionID: session.ID, Error: "planning produced no usable plan: " + err.Error()})
		return false
	}

	if err := o.sessions.SavePlan(ctx, session.ID, plan); err != nil {
		o.abortSession(session.ID, phasePlanning, "failed to save plan: "+err.Error())
		return false
	}

	if err := o.transition(ctx, session.ID, domain.SessionStatusPlanning, domain.SessionStatusAwaitingApproval); err != nil {
		log.Error().Err(err).Str("session_id", session.ID.String()).Msg("agent.finishPlanning: transition to awaiting_approval failed")
		return false
	}

	session.Plan = plan
	h.setPhase(phaseAwaitingApproval)

	o.emit(Event{Type: EventPlanReady, SessionID: session.ID, Plan: plan})
	o.emit(Event{Type: EventResult, SessionID: session.ID, Result: result})
	return true
}

// finishExecution persists the terminal outcome of the execution phase and,
// on success, marks the underlying task complete.
func (o *Orchestrator) finishExecution(session *domain.AgentSession, res Result) {
	// The loop context may already be cancelled; terminal writes still run.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	o.emit(Event{Type: EventResult, SessionID: session.ID, Result: &ResultPayload{
		Success:    res.Success,
		CostUSD:    res.CostUSD,
		DurationMS: res.Duration.Milliseconds(),
	}})

	if !res.Success {
		reason := res.Reason
		if reason == "" {
			reason = "engine reported failure"
		}
		o.failSession(ctx, session.ID, domain.SessionStatusExecuting, reason)
		return
	}

	if err := o.transition(ctx, session.ID, domain.SessionStatusExecuting, domain.SessionStatusCompleted); err != nil {
		log.Error().Err(err).Str("session_id", session.ID.String()).Msg("agent.finishExecution: transition to completed failed")
		return
	}

	if err := o.tasks.UpdateStatus(ctx, session.TaskID, domain.TaskStatusDone); err != nil {
		log.Error().Err(err).Str("task_id", session.TaskID.String()).Msg("agent.finishExecution: failed to mark task done")
	}
}

// timeoutSession forces a session past its turn budget to the timeout state.
// Budget exhaustion is a terminal outcome, not an error event.
func (o *Orchestrator) timeoutSession(sessionID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := o.sessions.SetError(ctx, sessionID, "turn budget exhausted"); err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("agent.timeoutSession: failed to set error message")
	}
	if err := o.transition(ctx, sessionID, domain.SessionStatusExecuting, domain.SessionStatusTimeout); err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("agent.timeoutSession: transition to timeout failed")
	}
}

// abortSession handles an unrecoverable run-loop failure: the error message
// is persisted, the session moves to failed, and an error event is emitted.
// A fault while idle in awaiting_approval only tears down the loop — the
// session keeps its reviewable plan and a later approval starts a fresh
// conversation.
func (o *Orchestrator) abortSession(sessionID uuid.UUID, phase int32, msg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	o.emit(Event{Type: EventError, SessionID: sessionID, Error: msg})

	from := domain.SessionStatusPlanning
	switch phase {
	case phaseExecuting:
		from = domain.SessionStatusExecuting
	case phaseAwaitingApproval:
		log.Warn().Str("session_id", sessionID.String()).Str("error", msg).Msg("agent.abortSession: loop ended while awaiting approval")
		return
	}

	o.failSession(ctx, sessionID, from, msg)
}

func (o *Orchestrator) failSession(ctx context.Context, sessionID uuid.UUID, from domain.SessionStatus, msg string) {
	if err := o.sessions.SetError(ctx, sessionID, msg); err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("agent.failSession: failed to set error message")
	}
	if err := o.transition(ctx, sessionID, from, domain.SessionStatusFailed); err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("agent.failSession: transition to failed failed")
	}
}
