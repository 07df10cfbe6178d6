package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Database   DatabaseConfig
	Redis      RedisConfig
	Server     ServerConfig
	Auth       AuthConfig
	Agent      AgentConfig
	Slack      SlackConfig
	SelfHosted bool
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	CORSOrigins   []string
	RateLimitRPS  float64
	RateLimitBurst int
}

// AuthConfig holds API key digests and websocket ticket settings.
type AuthConfig struct {
	APIKeyHashes []string // sha256 hex or bcrypt digests of accepted keys
	TicketSecret string   //nolint:gosec // G117: ticket signing secret config
	TicketTTL    time.Duration
}

// AgentConfig holds agent sandbox and scheduling settings.
type AgentConfig struct {
	DockerHost      string
	ImageDefault    string
	CPULimit        string
	MemLimit        string
	DefaultMaxTurns int
	QueueInterval   time.Duration
}

// SlackConfig holds Slack notification settings.
type SlackConfig struct {
	BotToken string
	Channel  string
}

// Load reads configuration from environment variables.
// Defaults are safe for local development only. In production,
// sensitive values (ticket secret, DB password) must be set explicitly.
func Load() (*Config, error) {
	dbPort, err := getEnvInt("FOREMAN_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("FOREMAN_DB_MAX_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("FOREMAN_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("FOREMAN_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("FOREMAN_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	rateRPS, err := getEnvFloat("FOREMAN_SERVER_RATE_RPS", 50)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	rateBurst, err := getEnvInt("FOREMAN_SERVER_RATE_BURST", 100)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	ticketTTL, err := getEnvDuration("FOREMAN_TICKET_TTL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	defaultMaxTurns, err := getEnvInt("FOREMAN_AGENT_MAX_TURNS", 50)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	queueInterval, err := getEnvDuration("FOREMAN_AGENT_QUEUE_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	selfHosted, err := getEnvBool("FOREMAN_SELF_HOSTED", false)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("FOREMAN_DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("FOREMAN_DB_USER", "foreman"),
			Password: getEnv("FOREMAN_DB_PASSWORD", ""),
			DBName:   getEnv("FOREMAN_DB_NAME", "foreman_dev"),
			SSLMode:  getEnv("FOREMAN_DB_SSLMODE", "disable"),
			MaxConns: dbMaxConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("FOREMAN_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("FOREMAN_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Server: ServerConfig{
			Addr:           getEnv("FOREMAN_SERVER_ADDR", ":8080"),
			ReadTimeout:    readTimeout,
			WriteTimeout:   writeTimeout,
			CORSOrigins:    getEnvList("FOREMAN_CORS_ORIGINS", []string{"http://localhost:5173"}),
			RateLimitRPS:   rateRPS,
			RateLimitBurst: rateBurst,
		},
		Auth: AuthConfig{
			APIKeyHashes: getEnvList("FOREMAN_API_KEY_HASHES", nil),
			TicketSecret: getEnv("FOREMAN_TICKET_SECRET", ""),
			TicketTTL:    ticketTTL,
		},
		Agent: AgentConfig{
			DockerHost:      getEnv("FOREMAN_DOCKER_HOST", "unix:///var/run/docker.sock"),
			ImageDefault:    getEnv("FOREMAN_AGENT_IMAGE", "foreman-agent:latest"),
			CPULimit:        getEnv("FOREMAN_AGENT_CPU_LIMIT", "2"),
			MemLimit:        getEnv("FOREMAN_AGENT_MEM_LIMIT", "2g"),
			DefaultMaxTurns: defaultMaxTurns,
			QueueInterval:   queueInterval,
		},
		Slack: SlackConfig{
			BotToken: getEnv("FOREMAN_SLACK_BOT_TOKEN", ""),
			Channel:  getEnv("FOREMAN_SLACK_CHANNEL", ""),
		},
		SelfHosted: selfHosted,
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	// Ticket secret is required (no insecure default).
	if c.Auth.TicketSecret == "" {
		return errors.New("FOREMAN_TICKET_SECRET is required")
	}
	if len(c.Auth.TicketSecret) < 32 {
		return errors.New("FOREMAN_TICKET_SECRET must be at least 32 characters")
	}

	if len(c.Auth.APIKeyHashes) == 0 {
		log.Warn().Msg("FOREMAN_API_KEY_HASHES is empty; the API will reject every request")
	}

	// DB SSL mode warning for non-self-hosted deployments.
	if c.Database.SSLMode == "disable" && !c.SelfHosted {
		log.Warn().Msg("FOREMAN_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
	}

	// Bounds checks.
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("FOREMAN_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("FOREMAN_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("FOREMAN_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("FOREMAN_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.Auth.TicketTTL <= 0 {
		return fmt.Errorf("FOREMAN_TICKET_TTL must be positive, got %s", c.Auth.TicketTTL)
	}
	if c.Agent.DefaultMaxTurns < 1 {
		return fmt.Errorf("FOREMAN_AGENT_MAX_TURNS must be >= 1, got %d", c.Agent.DefaultMaxTurns)
	}
	if c.Agent.QueueInterval <= 0 {
		return fmt.Errorf("FOREMAN_AGENT_QUEUE_INTERVAL must be positive, got %s", c.Agent.QueueInterval)
	}
	if c.Slack.BotToken != "" && c.Slack.Channel == "" {
		return errors.New("FOREMAN_SLACK_CHANNEL is required when FOREMAN_SLACK_BOT_TOKEN is set")
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
