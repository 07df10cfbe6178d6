package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/foremanhq/foreman/internal/agent"
	"github.com/foremanhq/foreman/internal/domain"
)

const announceTimeout = 10 * time.Second

// SessionTap returns a ProgressBus tap that announces approval checkpoints
// and terminal outcomes. Sends run in their own goroutine so a slow chat API
// never stalls event delivery.
func SessionTap(n *Notifier) agent.Tap {
	return func(evt agent.Event) {
		text, ok := announcementFor(evt)
		if !ok {
			return
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), announceTimeout)
			defer cancel()
			_ = n.Announce(ctx, text) // failures already logged per platform
		}()
	}
}

func announcementFor(evt agent.Event) (string, bool) {
	switch evt.Type {
	case agent.EventPlanReady:
		steps := 0
		if evt.Plan != nil {
			steps = len(evt.Plan.Steps)
		}
		return fmt.Sprintf("Session %s: plan with %d step(s) is awaiting approval", evt.SessionID, steps), true

	case agent.EventStatusChange:
		switch evt.Status {
		case domain.SessionStatusCompleted:
			return fmt.Sprintf("Session %s completed", evt.SessionID), true
		case domain.SessionStatusFailed:
			msg := fmt.Sprintf("Session %s failed", evt.SessionID)
			if evt.Error != "" {
				msg += ": " + evt.Error
			}
			return msg, true
		case domain.SessionStatusTimeout:
			return fmt.Sprintf("Session %s hit its turn budget and timed out", evt.SessionID), true
		}
	}

	return "", false
}
