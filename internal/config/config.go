package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/park285/linebox-server/internal/obslog"
)

type AppConfig struct {
	ListenAddr     string   `env:"LISTEN_ADDR" envDefault:":8080"`
	AdminAddr      string   `env:"ADMIN_ADDR" envDefault:":8081"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	RedisURL    string `env:"REDIS_URL"`
	DatabaseURL string `env:"DATABASE_URL"`

	GridSize         int `env:"GRID_SIZE" envDefault:"6"`
	TurnSeconds      int `env:"TURN_SECONDS" envDefault:"30"`
	IdleTimeoutSec   int `env:"IDLE_TIMEOUT_SEC" envDefault:"600"`
	SweepIntervalSec int `env:"SWEEP_INTERVAL_SEC" envDefault:"60"`
	DispatchBuffer   int `env:"DISPATCH_BUFFER" envDefault:"64"`

	MessagesDir string `env:"MESSAGES_DIR"`

	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat  string `env:"LOG_FORMAT" envDefault:"console"`
	LogConsole bool   `env:"LOG_TO_CONSOLE" envDefault:"true"`
	LogFile    string `env:"LOG_FILE"`
	LogCaller  bool   `env:"LOG_CALLER" envDefault:"false"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return errors.New("LISTEN_ADDR is required")
	}
	if c.GridSize < 2 {
		return fmt.Errorf("GRID_SIZE must be at least 2, got %d", c.GridSize)
	}
	if c.TurnSeconds <= 0 {
		return fmt.Errorf("TURN_SECONDS must be positive, got %d", c.TurnSeconds)
	}
	if c.IdleTimeoutSec <= 0 {
		return fmt.Errorf("IDLE_TIMEOUT_SEC must be positive, got %d", c.IdleTimeoutSec)
	}
	if c.SweepIntervalSec <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL_SEC must be positive, got %d", c.SweepIntervalSec)
	}
	if c.DispatchBuffer <= 0 {
		c.DispatchBuffer = 64
	}
	return nil
}

func (c *AppConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSec) * time.Second
}

func (c *AppConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSec) * time.Second
}

func (c *AppConfig) LogOptions() obslog.Options {
	return obslog.Options{
		Level:   c.LogLevel,
		Format:  c.LogFormat,
		Console: c.LogConsole,
		File:    c.LogFile,
		Caller:  c.LogCaller,
	}
}
