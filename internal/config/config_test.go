package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foremanhq/foreman/internal/config"
)

const testSecret = "0123456789abcdef0123456789abcdef" // 32 chars

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("FOREMAN_TICKET_SECRET", testSecret)
	t.Setenv("FOREMAN_API_KEY_HASHES", "aaaa")
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "foreman_dev", cfg.Database.DBName)
	assert.Equal(t, 25, cfg.Database.MaxConns)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.CORSOrigins)
	assert.Equal(t, time.Minute, cfg.Auth.TicketTTL)
	assert.Equal(t, 50, cfg.Agent.DefaultMaxTurns)
	assert.Equal(t, 5*time.Second, cfg.Agent.QueueInterval)
	assert.False(t, cfg.SelfHosted)
}

func TestLoad_Overrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("FOREMAN_DB_HOST", "db.internal")
	t.Setenv("FOREMAN_DB_PORT", "5433")
	t.Setenv("FOREMAN_REDIS_DB", "3")
	t.Setenv("FOREMAN_SERVER_READ_TIMEOUT", "15s")
	t.Setenv("FOREMAN_CORS_ORIGINS", "https://app.example.com, https://admin.example.com")
	t.Setenv("FOREMAN_AGENT_QUEUE_INTERVAL", "2s")
	t.Setenv("FOREMAN_TICKET_TTL", "90s")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 2*time.Second, cfg.Agent.QueueInterval)
	assert.Equal(t, 90*time.Second, cfg.Auth.TicketTTL)
}

func TestLoad_TicketSecretRequired(t *testing.T) {
	t.Setenv("FOREMAN_TICKET_SECRET", "")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FOREMAN_TICKET_SECRET is required")
}

func TestLoad_TicketSecretTooShort(t *testing.T) {
	t.Setenv("FOREMAN_TICKET_SECRET", "short")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 characters")
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad_port", "FOREMAN_DB_PORT", "not-a-number"},
		{"port_out_of_range", "FOREMAN_DB_PORT", "70000"},
		{"bad_duration", "FOREMAN_SERVER_READ_TIMEOUT", "abc"},
		{"zero_max_turns", "FOREMAN_AGENT_MAX_TURNS", "0"},
		{"negative_queue_interval", "FOREMAN_AGENT_QUEUE_INTERVAL", "-1s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_SlackChannelRequiredWithToken(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("FOREMAN_SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("FOREMAN_SLACK_CHANNEL", "")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FOREMAN_SLACK_CHANNEL")
}

func TestDSN(t *testing.T) {
	t.Parallel()

	db := config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "foreman",
		Password: "secret",
		DBName:   "foreman_dev",
		SSLMode:  "disable",
	}

	assert.Equal(t,
		"host=localhost port=5432 user=foreman password=secret dbname=foreman_dev sslmode=disable",
		db.DSN(),
	)
}
