// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format   string `yaml:"format" validate:"oneof=json console"`
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	Driver         string        `yaml:"driver" validate:"oneof=postgres memory"`
	URL            string        `yaml:"url" validate:"required_if=Driver postgres"`
	MaxConns       int32         `yaml:"max_conns" validate:"gte=0"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"` // empty disables redis (in-process locks, no cache)
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

type HTTPConfig struct {
	Addr           string        `yaml:"addr"`
	APIKey         string        `yaml:"api_key"`
	JWTSecret      string        `yaml:"jwt_secret"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// SyncRunTimeout bounds POST /projects/{id}/runs.
	SyncRunTimeout time.Duration `yaml:"sync_run_timeout"`
}

type WorkerConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Workers           int           `yaml:"workers" validate:"gte=0,lte=64"`
	ID                string        `yaml:"id"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	StaleTimeout      time.Duration `yaml:"stale_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ErrorBackoff      time.Duration `yaml:"error_backoff"`
	StatsInterval     time.Duration `yaml:"stats_interval"`
}

type WorkspaceConfig struct {
	Root              string        `yaml:"root"`
	CommandTimeout    time.Duration `yaml:"command_timeout"`
	CommandRetries    int           `yaml:"command_retries" validate:"gte=0,lte=10"`
	AutoPush          bool          `yaml:"auto_push"`
	Remote            string        `yaml:"remote"`
	ValidationCommand string        `yaml:"validation_command"`
	GitUserName       string        `yaml:"git_user_name"`
	GitUserEmail      string        `yaml:"git_user_email"`
}

type ModelBackendConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type ProviderConfig struct {
	Name            string             `yaml:"name" validate:"oneof=rule_based openai gemini"`
	Fallback        bool               `yaml:"fallback"`
	Timeout         time.Duration      `yaml:"timeout"`
	MaxPromptTokens int                `yaml:"max_prompt_tokens"`
	MaxOutputTokens int                `yaml:"max_output_tokens"`
	ConcurrentLimit int                `yaml:"concurrent_limit"` // max concurrent model calls
	OpenAI          ModelBackendConfig `yaml:"openai"`
	Gemini          ModelBackendConfig `yaml:"gemini"`
}

type NATSConfig struct {
	URL           string `yaml:"url"` // empty disables event fan-out
	SubjectPrefix string `yaml:"subject_prefix"`
}

type TelegramConfig struct {
	Token  string `yaml:"token"` // empty disables alerts
	ChatID int64  `yaml:"chat_id"`
}

type JobsConfig struct {
	DefaultMaxItems    int `yaml:"default_max_items" validate:"gte=1,lte=50"`
	DefaultMaxAttempts int `yaml:"default_max_attempts" validate:"gte=1,lte=10"`
}

// ScheduleConfig enqueues an autopilot job for a project on a cron spec.
type ScheduleConfig struct {
	ProjectID   string `yaml:"project_id" validate:"required"`
	Cron        string `yaml:"cron" validate:"required"`
	MaxItems    int    `yaml:"max_items" validate:"gte=0,lte=50"`
	MaxAttempts int    `yaml:"max_attempts" validate:"gte=0,lte=10"`
}

type Config struct {
	Log       LogConfig        `yaml:"log"`
	Database  DatabaseConfig   `yaml:"database"`
	Redis     RedisConfig      `yaml:"redis"`
	HTTP      HTTPConfig       `yaml:"http"`
	Worker    WorkerConfig     `yaml:"worker"`
	Workspace WorkspaceConfig  `yaml:"workspace"`
	Provider  ProviderConfig   `yaml:"provider"`
	NATS      NATSConfig       `yaml:"nats"`
	Telegram  TelegramConfig   `yaml:"telegram"`
	Jobs      JobsConfig       `yaml:"jobs"`
	Schedules []ScheduleConfig `yaml:"schedules" validate:"dive"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path (a missing file is allowed and yields
// defaults), overlays AGENT_HUB_* environment overrides and validates.
func LoadConfig(path string, dev bool) (*Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	cfg.Runtime.Dev = dev
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
		if cfg.Database.URL == "" {
			cfg.Database.Driver = "memory"
		}
	}
	if cfg.Database.ConnectTimeout <= 0 {
		cfg.Database.ConnectTimeout = 5 * time.Second
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 15 * time.Second
	}
	if cfg.HTTP.SyncRunTimeout <= 0 {
		cfg.HTTP.SyncRunTimeout = 10 * time.Minute
	}
	if cfg.Worker.Workers <= 0 {
		cfg.Worker.Workers = 1
	}
	if cfg.Worker.PollInterval <= 0 {
		cfg.Worker.PollInterval = time.Second
	}
	if cfg.Worker.StaleTimeout <= 0 {
		cfg.Worker.StaleTimeout = 15 * time.Minute
	}
	if cfg.Worker.HeartbeatInterval <= 0 {
		cfg.Worker.HeartbeatInterval = 30 * time.Second
	}
	if cfg.Redis.LockTTL <= 0 {
		cfg.Redis.LockTTL = 4 * cfg.Worker.HeartbeatInterval
	}
	if cfg.Worker.ErrorBackoff <= 0 {
		cfg.Worker.ErrorBackoff = cfg.Worker.PollInterval
	}
	if cfg.Worker.StatsInterval <= 0 {
		cfg.Worker.StatsInterval = 15 * time.Second
	}
	if cfg.Workspace.Root == "" {
		cfg.Workspace.Root = "./.workspaces"
	}
	if cfg.Workspace.CommandTimeout <= 0 {
		cfg.Workspace.CommandTimeout = 60 * time.Second
	}
	if cfg.Workspace.CommandRetries == 0 {
		cfg.Workspace.CommandRetries = 1
	}
	if cfg.Workspace.Remote == "" {
		cfg.Workspace.Remote = "origin"
	}
	if cfg.Workspace.GitUserName == "" {
		cfg.Workspace.GitUserName = "Agent Hub Bot"
	}
	if cfg.Workspace.GitUserEmail == "" {
		cfg.Workspace.GitUserEmail = "agent-hub@example.local"
	}
	if cfg.Provider.Name == "" {
		cfg.Provider.Name = "rule_based"
	}
	if cfg.Provider.Timeout <= 0 {
		cfg.Provider.Timeout = 45 * time.Second
	}
	if cfg.Provider.MaxPromptTokens <= 0 {
		cfg.Provider.MaxPromptTokens = 6000
	}
	if cfg.Provider.MaxOutputTokens <= 0 {
		cfg.Provider.MaxOutputTokens = 1200
	}
	if cfg.Provider.ConcurrentLimit <= 0 {
		cfg.Provider.ConcurrentLimit = 4
	}
	if cfg.Provider.OpenAI.Model == "" {
		cfg.Provider.OpenAI.Model = "gpt-4.1-mini"
	}
	if cfg.Provider.Gemini.Model == "" {
		cfg.Provider.Gemini.Model = "gemini-2.0-flash"
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "agenthub.events"
	}
	if cfg.Jobs.DefaultMaxItems <= 0 {
		cfg.Jobs.DefaultMaxItems = 3
	}
	if cfg.Jobs.DefaultMaxAttempts <= 0 {
		cfg.Jobs.DefaultMaxAttempts = 1
	}
}

// applyEnv lets deployments keep secrets and endpoints out of the YAML file.
func applyEnv(cfg *Config) error {
	str := map[string]*string{
		"AGENT_HUB_DATABASE_URL":   &cfg.Database.URL,
		"AGENT_HUB_REDIS_URL":      &cfg.Redis.URL,
		"AGENT_HUB_REDIS_PASSWORD": &cfg.Redis.Password,
		"AGENT_HUB_API_KEY":        &cfg.HTTP.APIKey,
		"AGENT_HUB_JWT_SECRET":     &cfg.HTTP.JWTSecret,
		"AGENT_HUB_PROVIDER":       &cfg.Provider.Name,
		"AGENT_HUB_OPENAI_API_KEY": &cfg.Provider.OpenAI.APIKey,
		"AGENT_HUB_OPENAI_MODEL":   &cfg.Provider.OpenAI.Model,
		"AGENT_HUB_GEMINI_API_KEY": &cfg.Provider.Gemini.APIKey,
		"AGENT_HUB_NATS_URL":       &cfg.NATS.URL,
		"AGENT_HUB_TELEGRAM_TOKEN": &cfg.Telegram.Token,
		"AGENT_HUB_WORKSPACE_ROOT": &cfg.Workspace.Root,
		"AGENT_HUB_TEST_CMD":       &cfg.Workspace.ValidationCommand,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	bools := map[string]*bool{
		"AGENT_HUB_PROVIDER_FALLBACK": &cfg.Provider.Fallback,
		"AGENT_HUB_AUTO_PUSH":         &cfg.Workspace.AutoPush,
		"AGENT_HUB_JOB_WORKER":        &cfg.Worker.Enabled,
	}
	for key, dst := range bools {
		if v, ok := os.LookupEnv(key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("env %s: %w", key, err)
			}
			*dst = b
		}
	}

	if v, ok := os.LookupEnv("AGENT_HUB_TELEGRAM_CHAT_ID"); ok {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("env AGENT_HUB_TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.Telegram.ChatID = id
	}
	return nil
}

var validate = validator.New()

// Validate checks struct tags and the timing relations the reaper depends on.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Worker.StaleTimeout <= c.Worker.HeartbeatInterval {
		return errors.New("invalid config: worker.stale_timeout must exceed worker.heartbeat_interval")
	}
	if c.Worker.StaleTimeout <= c.Workspace.CommandTimeout {
		return errors.New("invalid config: worker.stale_timeout must exceed workspace.command_timeout")
	}
	if c.Redis.LockTTL >= c.Worker.StaleTimeout {
		return errors.New("invalid config: redis.lock_ttl must be shorter than worker.stale_timeout")
	}
	if c.Worker.StaleTimeout <= c.Provider.Timeout {
		return errors.New("invalid config: worker.stale_timeout must exceed provider.timeout")
	}
	if c.Jobs.DefaultMaxItems > 50 || c.Jobs.DefaultMaxAttempts > 10 {
		return errors.New("invalid config: jobs defaults out of range")
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
