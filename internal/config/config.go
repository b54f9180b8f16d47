// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/mmynk/scopewise/internal/calculator"
)

// Config holds the server settings.
type Config struct {
	Port          int
	DBPath        string
	LogLevel      string
	Tolerance     float64
	MaxPasses     int
	CalcTimeout   time.Duration
	PlanCacheSize int
	Workers       int
}

// Load reads settings from the environment. Values in a .env file in the
// working directory are applied first when the file exists; real environment
// variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Port:          8080,
		DBPath:        "./data/scopes.db",
		LogLevel:      getenv("LOG_LEVEL"),
		Tolerance:     calculator.DefaultTolerance,
		MaxPasses:     calculator.DefaultMaxPasses,
		CalcTimeout:   5 * time.Second,
		PlanCacheSize: 128,
		Workers:       4,
	}
	if v := getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}

	var err error
	if cfg.Port, err = intVar(getenv, "PORT", cfg.Port); err != nil {
		return nil, err
	}
	if cfg.MaxPasses, err = intVar(getenv, "CALC_MAX_PASSES", cfg.MaxPasses); err != nil {
		return nil, err
	}
	if cfg.PlanCacheSize, err = intVar(getenv, "PLAN_CACHE_SIZE", cfg.PlanCacheSize); err != nil {
		return nil, err
	}
	if cfg.Workers, err = intVar(getenv, "RECALC_WORKERS", cfg.Workers); err != nil {
		return nil, err
	}
	if v := getenv("CALC_TOLERANCE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return nil, fmt.Errorf("CALC_TOLERANCE must be a positive number, got %q", v)
		}
		cfg.Tolerance = f
	}
	if v := getenv("CALC_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("CALC_TIMEOUT must be a positive duration, got %q", v)
		}
		cfg.CalcTimeout = d
	}
	return cfg, nil
}

func intVar(getenv func(string) string, key string, fallback int) (int, error) {
	v := getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

// CalculatorOptions returns the totals loop settings.
func (c *Config) CalculatorOptions() calculator.Options {
	return calculator.Options{Tolerance: c.Tolerance, MaxPasses: c.MaxPasses}
}
