// Package plotnikconfig loads fuel budgets and module-cache connection
// settings from the environment, the same os.Getenv+strconv pattern the
// teacher's internal/config package uses for its own tunables, plus a
// .env loader for local development (SPEC_FULL.md §0.1).
package plotnikconfig

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds every environment-tunable knob the compiler and VM accept.
type Config struct {
	ParseFuel     int
	ExecFuel      int
	RecursionFuel int
	CacheDSN      string
}

// LoadConfig loads configuration from the environment, first merging in a
// .env file if one is present in the working directory (ignored silently
// if absent, mirroring godotenv.Load's own convention).
func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		ParseFuel:     1_000_000,
		ExecFuel:      10_000_000,
		RecursionFuel: 4096,
	}

	if v := os.Getenv("PLOTNIK_PARSE_FUEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ParseFuel = n
		}
	}
	if v := os.Getenv("PLOTNIK_EXEC_FUEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ExecFuel = n
		}
	}
	if v := os.Getenv("PLOTNIK_RECURSION_FUEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RecursionFuel = n
		}
	}
	cfg.CacheDSN = os.Getenv("PLOTNIK_CACHE_DSN")

	return cfg
}
