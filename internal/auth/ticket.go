package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidTicket is returned when a websocket ticket cannot be parsed, has
// expired, or is scoped to a different session.
var ErrInvalidTicket = errors.New("auth: invalid or expired ticket")

const (
	issuer           = "foreman"
	DefaultTicketTTL = time.Minute
)

// TicketClaims is the payload of a websocket ticket: a single session ID.
type TicketClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}

// TicketService mints and validates session-scoped websocket tickets.
type TicketService struct {
	secret []byte
	ttl    time.Duration
}

// NewTicketService creates a ticket service. A zero ttl selects
// DefaultTicketTTL; a negative ttl mints already-expired tickets.
func NewTicketService(secret string, ttl time.Duration) *TicketService {
	if ttl == 0 {
		ttl = DefaultTicketTTL
	}
	return &TicketService{secret: []byte(secret), ttl: ttl}
}

// IssueSessionTicket creates a signed ticket valid for one session.
func (s *TicketService) IssueSessionTicket(sessionID uuid.UUID) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.ttl)

	claims := TicketClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    issuer,
		},
		SessionID: sessionID.String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth.TicketService.IssueSessionTicket: %w", err)
	}

	return signed, expiresAt, nil
}

// ValidateSessionTicket parses a ticket and returns the session it is scoped
// to.
func (s *TicketService) ValidateSessionTicket(ticket string) (uuid.UUID, error) {
	claims := &TicketClaims{}

	token, err := jwt.ParseWithClaims(ticket, claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithIssuer(issuer))
	if err != nil || !token.Valid {
		return uuid.Nil, fmt.Errorf("auth.TicketService.ValidateSessionTicket: %w", ErrInvalidTicket)
	}

	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("auth.TicketService.ValidateSessionTicket: bad session id: %w", ErrInvalidTicket)
	}

	return sessionID, nil
}
