// Package notify delivers operational announcements (plan ready, session
// finished) to external chat platforms. Delivery is best-effort: a failed
// send is logged and never propagated back into the session run loop.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// ErrPlatformNotFound is returned when a messenger platform is not registered.
var ErrPlatformNotFound = errors.New("notify: platform not found") //nolint:gochecknoglobals // sentinel error

// Messenger sends a text message to a channel on one chat platform.
type Messenger interface {
	SendMessage(ctx context.Context, channel, text string) error
}

// MessengerRegistry maps platform names to Messenger implementations.
type MessengerRegistry interface {
	Get(platform string) (Messenger, bool)
	Platforms() []string
}

// Notifier dispatches announcements to a configured channel on every
// registered platform.
type Notifier struct {
	messengers MessengerRegistry
	channel    string
}

// New creates a Notifier that announces to the given channel.
func New(messengers MessengerRegistry, channel string) *Notifier {
	return &Notifier{
		messengers: messengers,
		channel:    channel,
	}
}

// Announce sends the message to the configured channel on all registered
// platforms. Per-platform failures are collected; the last one is returned.
func (n *Notifier) Announce(ctx context.Context, text string) error {
	var lastErr error
	for _, platform := range n.messengers.Platforms() {
		sendErr := n.NotifyVia(ctx, platform, n.channel, text)
		if sendErr != nil {
			log.Warn().Err(sendErr).Str("platform", platform).Msg("notify: announce failed")
			lastErr = sendErr
		}
	}
	return lastErr
}

// NotifyVia sends a message using a specific platform and channel directly.
func (n *Notifier) NotifyVia(ctx context.Context, platform, channel, text string) error {
	msg, ok := n.messengers.Get(platform)
	if !ok {
		return fmt.Errorf("notify.Notifier.NotifyVia: platform %q: %w", platform, ErrPlatformNotFound)
	}

	if err := msg.SendMessage(ctx, channel, text); err != nil {
		return fmt.Errorf("notify.Notifier.NotifyVia: send: %w", err)
	}

	return nil
}
