package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/foremanhq/foreman/internal/agent"
)

const publishTimeout = 5 * time.Second

// SessionRelay returns a progress-bus tap that mirrors every event onto the
// session's Redis channel, so other server instances can stream it to their
// websocket clients. Publish failures are logged and dropped; the run loop
// must never stall on Redis.
func SessionRelay(ps *PubSub) agent.Tap {
	return func(evt agent.Event) {
		payload, err := json.Marshal(evt)
		if err != nil {
			log.Error().Err(err).
				Str("session_id", evt.SessionID.String()).
				Msg("redis.SessionRelay: marshal event")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if err := ps.Publish(ctx, SessionChannel(evt.SessionID), payload); err != nil {
			log.Error().Err(err).
				Str("session_id", evt.SessionID.String()).
				Str("event_type", string(evt.Type)).
				Msg("redis.SessionRelay: publish event")
		}
	}
}
