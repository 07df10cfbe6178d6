package notify_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foremanhq/foreman/internal/notify"
)

func TestRegistry(t *testing.T) {
	t.Parallel()

	t.Run("register and get", func(t *testing.T) {
		t.Parallel()

		reg := notify.NewRegistry()
		msg := &mockMessenger{}
		reg.Register("slack", msg)

		got, ok := reg.Get("slack")
		require.True(t, ok)
		assert.Equal(t, notify.Messenger(msg), got)
	})

	t.Run("get unregistered returns false", func(t *testing.T) {
		t.Parallel()

		reg := notify.NewRegistry()
		_, ok := reg.Get("slack")
		assert.False(t, ok)
	})

	t.Run("platforms sorted", func(t *testing.T) {
		t.Parallel()

		reg := notify.NewRegistry()
		reg.Register("slack", &mockMessenger{})
		reg.Register("discord", &mockMessenger{})

		assert.Equal(t, []string{"discord", "slack"}, reg.Platforms())
	})
}
