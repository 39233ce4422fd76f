package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file LoadDefault looks for.
const DefaultPath = "flowboard.yaml"

// Config holds the top-level application configuration.
type Config struct {
	API       APIConfig       `yaml:"api"`
	Execution ExecutionConfig `yaml:"execution"`
	Notices   NoticesConfig   `yaml:"notices"`
	Log       LogConfig       `yaml:"log"`
	DevServer DevServerConfig `yaml:"devserver"`
}

// APIConfig describes how to reach the remote workflow service.
type APIConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	RetryCount int           `yaml:"retry_count"`
	TokenFile  string        `yaml:"token_file"` // empty: user config dir
	// Token overrides the saved token. Only settable from the environment.
	Token string `yaml:"-"`
}

// ExecutionConfig tunes the poll loop.
type ExecutionConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	MaxPollFailures int           `yaml:"max_poll_failures"` // consecutive; 0 disables the limit
}

type NoticesConfig struct {
	Duration time.Duration `yaml:"duration"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// DevServerConfig holds settings for the reference backend.
type DevServerConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	DatabaseURL string        `yaml:"database_url"` // empty: in-memory storage
	JWTSecret   string        `yaml:"jwt_secret"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
	StepDelay   time.Duration `yaml:"step_delay"`

	// GeminiAPIKey enables real prompt generation; empty echoes prompts.
	GeminiAPIKey string `yaml:"gemini_api_key"`
	GeminiModel  string `yaml:"gemini_model"`
}

// defaults returns a Config populated with sensible default values.
func defaults() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:    "http://localhost:8000",
			Timeout:    30 * time.Second,
			RetryCount: 2,
		},
		Execution: ExecutionConfig{
			PollInterval:    time.Second,
			MaxPollFailures: 10,
		},
		Notices: NoticesConfig{Duration: 5 * time.Second},
		Log:     LogConfig{Level: "info", Format: "text"},
		DevServer: DevServerConfig{
			Host:        "127.0.0.1",
			Port:        8000,
			JWTSecret:   "dev-secret-change-me",
			TokenTTL:    30 * time.Minute,
			StepDelay:   500 * time.Millisecond,
			GeminiModel: "gemini-2.0-flash",
		},
	}
}

// Load reads a YAML configuration file at path and applies environment
// overrides on top of it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	applyEnv(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads a .env file and "flowboard.yaml" from the current
// directory. Missing files are not an error; any other error (permission
// denied, malformed YAML) is returned.
func LoadDefault() (*Config, error) {
	if err := LoadEnvFile(".env"); err != nil {
		return nil, err
	}
	cfg, err := Load(DefaultPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = defaults()
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile exports the variables of a dotenv file that are not already
// set in the environment. A missing file is ignored.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("FLOWBOARD_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("FLOWBOARD_TOKEN"); v != "" {
		cfg.API.Token = v
	}
	if v := os.Getenv("FLOWBOARD_JWT_SECRET"); v != "" {
		cfg.DevServer.JWTSecret = v
	}
	if v := os.Getenv("FLOWBOARD_DATABASE_URL"); v != "" {
		cfg.DevServer.DatabaseURL = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.DevServer.GeminiAPIKey = v
	}
}

func (c *Config) validate() error {
	if c.Execution.PollInterval <= 0 {
		return fmt.Errorf("execution.poll_interval must be positive, got %s", c.Execution.PollInterval)
	}
	if c.Execution.MaxPollFailures < 0 {
		return fmt.Errorf("execution.max_poll_failures must not be negative")
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	return nil
}

// Addr returns the dev server listen address.
func (c DevServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
