package agent

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/foremanhq/foreman/internal/domain"
)

// sessionStarter is the slice of the orchestrator the queue processor needs.
type sessionStarter interface {
	StartSession(ctx context.Context, sessionID uuid.UUID) error
	IsSessionProcessing(sessionID uuid.UUID) bool
}

// QueueProcessor is a background ticker that discovers DB-queued sessions and
// starts at most one run loop per tick, oldest first. Starting one new
// conversation per interval rate-limits concurrent planning starts
// system-wide, independent of how many sessions are already executing.
type QueueProcessor struct {
	sessions domain.AgentSessionRepository
	starter  sessionStarter
	interval time.Duration

	// ticking guards against overlapping tick bodies: a tick that fires while
	// the previous one still runs is skipped, never queued behind it.
	ticking atomic.Bool

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

func NewQueueProcessor(sessions domain.AgentSessionRepository, starter sessionStarter, interval time.Duration) *QueueProcessor {
	return &QueueProcessor{
		sessions: sessions,
		starter:  starter,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins ticking in a background goroutine until Stop is called or the
// parent context is cancelled.
func (q *QueueProcessor) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	q.cancel = cancel

	go func() {
		defer close(q.done)

		ticker := time.NewTicker(q.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				q.tick(ctx)
			}
		}
	}()
}

// Stop cancels the ticker and waits for an in-flight tick to finish.
// Idempotent.
func (q *QueueProcessor) Stop() {
	q.stopOnce.Do(func() {
		if q.cancel != nil {
			q.cancel()
		}
		<-q.done
	})
}

// tick starts the oldest queued session not already active in the registry,
// then stops scanning. The registry admission check is the sole guard against
// double starts; this loop only avoids pointless attempts.
func (q *QueueProcessor) tick(ctx context.Context) {
	if !q.ticking.CompareAndSwap(false, true) {
		return
	}
	defer q.ticking.Store(false)

	queued, err := q.sessions.ListQueued(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Msg("agent.QueueProcessor: failed to list queued sessions")
		}
		return
	}

	for _, session := range queued {
		if q.starter.IsSessionProcessing(session.ID) {
			continue
		}

		err := q.starter.StartSession(ctx, session.ID)
		if err != nil {
			log.Error().Err(err).Str("session_id", session.ID.String()).Msg("agent.QueueProcessor: failed to start session")
		}
		return
	}
}
