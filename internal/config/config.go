package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Provider backends selectable with PROVIDER.
const (
	ProviderSandbox = "sandbox"
	ProviderRelay   = "relay"
)

// Config is read once at startup and never mutated afterwards. Components
// receive the values they need through their constructors.
type Config struct {
	DatabaseURL    string
	ServerPort     int
	MigrationsPath string
	LogLevel       string

	DemoMode             bool
	OrchestratorToken    string
	WebhookBaseURL       string
	WebhookSecret        string
	EmailDomain          string
	DefaultMarkupPercent float64
	DefaultTimezone      string
	PolicyFile           string

	Provider        string
	ProviderTimeout time.Duration
	RelayBaseURL    string
	RelayAPIKey     string

	S3 S3Config

	RedisURL     string
	AMQPURL      string
	AMQPExchange string

	RateLimitRPS   float64
	RateLimitBurst int
}

type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PublicURL string
}

func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// LoadEnv reads the .env file named by SWITCHBOARD_ENV (or .env by default),
// then the corresponding .secret file if it exists. Variables already set in
// the process environment win.
func LoadEnv(envFile string) {
	if envFile == "" {
		envFile = os.Getenv("SWITCHBOARD_ENV")
	}
	if envFile == "" {
		envFile = ".env"
	}

	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")
}

// Load builds the configuration from the process environment.
func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		ServerPort:     envInt("SERVER_PORT", 8080),
		MigrationsPath: envString("MIGRATIONS_PATH", "migrations"),
		LogLevel:       envString("LOG_LEVEL", "info"),

		DemoMode:             envBool("DEMO_MODE", false),
		OrchestratorToken:    os.Getenv("ORCHESTRATOR_TOKEN"),
		WebhookBaseURL:       strings.TrimRight(envString("WEBHOOK_BASE_URL", "http://localhost:8080"), "/"),
		WebhookSecret:        os.Getenv("WEBHOOK_SECRET"),
		EmailDomain:          envString("EMAIL_DOMAIN", "agents.switchboard.local"),
		DefaultMarkupPercent: envFloat("DEFAULT_MARKUP_PERCENT", 0),
		DefaultTimezone:      envString("DEFAULT_TIMEZONE", "America/New_York"),
		PolicyFile:           os.Getenv("POLICY_FILE"),

		Provider:        envString("PROVIDER", ProviderSandbox),
		ProviderTimeout: envDuration("PROVIDER_TIMEOUT", 15*time.Second),
		RelayBaseURL:    os.Getenv("RELAY_BASE_URL"),
		RelayAPIKey:     os.Getenv("RELAY_API_KEY"),

		S3: S3Config{
			Bucket:    os.Getenv("S3_BUCKET"),
			Region:    envString("S3_REGION", "us-east-1"),
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			PublicURL: os.Getenv("S3_PUBLIC_URL"),
		},

		RedisURL:     os.Getenv("REDIS_URL"),
		AMQPURL:      os.Getenv("AMQP_URL"),
		AMQPExchange: envString("AMQP_EXCHANGE", "switchboard.audit"),

		RateLimitRPS:   envFloat("RATE_LIMIT_RPS", 100),
		RateLimitBurst: envInt("RATE_LIMIT_BURST", 20),
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" && !c.DemoMode {
		return fmt.Errorf("DATABASE_URL is required outside demo mode")
	}
	if !c.DemoMode && c.OrchestratorToken == "" {
		return fmt.Errorf("ORCHESTRATOR_TOKEN is required outside demo mode")
	}
	switch c.Provider {
	case ProviderSandbox:
	case ProviderRelay:
		if c.RelayBaseURL == "" {
			return fmt.Errorf("RELAY_BASE_URL is required for the relay provider")
		}
	default:
		return fmt.Errorf("unknown PROVIDER %q: expected sandbox or relay", c.Provider)
	}
	if c.DefaultMarkupPercent < 0 {
		return fmt.Errorf("DEFAULT_MARKUP_PERCENT must be >= 0")
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		return fmt.Errorf("DEFAULT_TIMEZONE: %w", err)
	}
	return nil
}

// InMemory reports whether the gateway runs without Postgres.
func (c *Config) InMemory() bool {
	return c.DatabaseURL == ""
}

func (c *Config) ServerAddr() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func envFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return v
}

func envBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

// envDuration accepts Go durations ("15s") or a bare number of seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
