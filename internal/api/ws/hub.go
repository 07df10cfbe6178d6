package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	redisstore "github.com/foremanhq/foreman/internal/store/redis"
)

// TicketValidator checks a websocket ticket and returns the session it is
// scoped to. *auth.TicketService satisfies this interface.
type TicketValidator interface {
	ValidateSessionTicket(ticket string) (uuid.UUID, error)
}

// Hub serves WebSocket connections backed by Redis pub/sub. Progress events
// published by any server instance's bus relay reach every connected client.
type Hub struct {
	pubsub  *redisstore.PubSub
	tickets TicketValidator
}

func NewHub(pubsub *redisstore.PubSub, tickets TicketValidator) *Hub {
	return &Hub{pubsub: pubsub, tickets: tickets}
}

// ServeSession handles WebSocket connections for agent session progress.
// The client passes a ticket (issued by POST /sessions/{id}/ws-ticket) as a
// query parameter because browsers cannot set headers on the upgrade request.
// The ticket must be scoped to the session in the path.
func (h *Hub) ServeSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	ticketSession, err := h.tickets.ValidateSessionTicket(r.URL.Query().Get("ticket"))
	if err != nil {
		http.Error(w, "invalid ticket", http.StatusUnauthorized)
		return
	}
	if ticketSession != sessionID {
		http.Error(w, "ticket is for a different session", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	h.stream(r.Context(), conn, redisstore.SessionChannel(sessionID))
}

// ServeBoard handles WebSocket connections for kanban board updates on a
// project. Subscribes to "board:<projectID>".
func (h *Hub) ServeBoard(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "projectID"))
	if err != nil {
		http.Error(w, "invalid project id", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	h.stream(r.Context(), conn, redisstore.BoardChannel(projectID))
}

func (h *Hub) stream(ctx context.Context, conn *websocket.Conn, channel string) {
	messages, cleanup, err := h.pubsub.Subscribe(ctx, channel)
	if err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("websocket subscribe")
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer cleanup()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "connection closed")
			return
		case msg, ok := <-messages:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "channel closed")
				return
			}
			if writeErr := conn.Write(ctx, websocket.MessageText, msg); writeErr != nil {
				log.Debug().Err(writeErr).Msg("websocket write")
				return
			}
		}
	}
}

// PublishBoard sends a board event to the project's Redis channel. Used by
// API handlers when mutating board state.
func (h *Hub) PublishBoard(ctx context.Context, evt BoardEvent) error {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("ws.Hub.PublishBoard: %w", err)
	}
	if err := h.pubsub.Publish(ctx, redisstore.BoardChannel(evt.ProjectID), payload); err != nil {
		return fmt.Errorf("ws.Hub.PublishBoard: %w", err)
	}
	return nil
}
