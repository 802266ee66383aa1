package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/joho/godotenv"
	"github.com/pscheid92/sinecast/internal/domain"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"4000"`
	AppURL    string `env:"APP_URL"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	AdvanceMode    string        `env:"ADVANCE_MODE" default:"session"`
	StreamInterval time.Duration `env:"STREAM_INTERVAL" default:"10ms"`
	AdvanceStep    float64       `env:"ADVANCE_STEP" default:"0.005"`

	MaxStreamConnections      int     `env:"MAX_STREAM_CONNECTIONS" default:"10000"`
	MaxStreamConnectionsPerIP int     `env:"MAX_STREAM_CONNECTIONS_PER_IP" default:"100"`
	StreamConnectRate         float64 `env:"STREAM_CONNECT_RATE" default:"10"`
	StreamConnectBurst        int     `env:"STREAM_CONNECT_BURST" default:"20"`

	RegistrationRate  float64 `env:"REGISTRATION_RATE" default:"50"`
	RegistrationBurst int     `env:"REGISTRATION_BURST" default:"100"`
}

// IsProduction reports whether APP_ENV is "production".
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Mode returns the parsed advance mode. Load has already validated it.
func (c *Config) Mode() domain.AdvanceMode {
	mode, _ := domain.ParseAdvanceMode(c.AdvanceMode)
	return mode
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Port == "" {
		return errors.New("PORT is required")
	}

	if _, err := domain.ParseAdvanceMode(cfg.AdvanceMode); err != nil {
		return fmt.Errorf("ADVANCE_MODE: %w", err)
	}

	if cfg.StreamInterval <= 0 {
		return fmt.Errorf("STREAM_INTERVAL must be positive, got %s", cfg.StreamInterval)
	}

	if math.IsNaN(cfg.AdvanceStep) || math.IsInf(cfg.AdvanceStep, 0) {
		return errors.New("ADVANCE_STEP must be a finite number")
	}

	positive := map[string]float64{
		"MAX_STREAM_CONNECTIONS":        float64(cfg.MaxStreamConnections),
		"MAX_STREAM_CONNECTIONS_PER_IP": float64(cfg.MaxStreamConnectionsPerIP),
		"STREAM_CONNECT_RATE":           cfg.StreamConnectRate,
		"STREAM_CONNECT_BURST":          float64(cfg.StreamConnectBurst),
		"REGISTRATION_RATE":             cfg.RegistrationRate,
		"REGISTRATION_BURST":            float64(cfg.RegistrationBurst),
	}
	for name, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	return nil
}
