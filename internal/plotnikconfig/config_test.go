package plotnikconfig_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plotnik-lang/plotnik/internal/plotnikconfig"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PLOTNIK_PARSE_FUEL", "")
	t.Setenv("PLOTNIK_EXEC_FUEL", "")
	t.Setenv("PLOTNIK_RECURSION_FUEL", "")
	t.Setenv("PLOTNIK_CACHE_DSN", "")

	cfg := plotnikconfig.LoadConfig()
	require.Equal(t, 1_000_000, cfg.ParseFuel)
	require.Equal(t, 10_000_000, cfg.ExecFuel)
	require.Equal(t, 4096, cfg.RecursionFuel)
	require.Equal(t, "", cfg.CacheDSN)
}

func TestLoadConfigOverridesFromEnv(t *testing.T) {
	t.Setenv("PLOTNIK_PARSE_FUEL", "42")
	t.Setenv("PLOTNIK_EXEC_FUEL", "99")
	t.Setenv("PLOTNIK_RECURSION_FUEL", "7")
	t.Setenv("PLOTNIK_CACHE_DSN", "cache.db")

	cfg := plotnikconfig.LoadConfig()
	require.Equal(t, 42, cfg.ParseFuel)
	require.Equal(t, 99, cfg.ExecFuel)
	require.Equal(t, 7, cfg.RecursionFuel)
	require.Equal(t, "cache.db", cfg.CacheDSN)
}

func TestLoadConfigIgnoresInvalidOrNonPositiveValues(t *testing.T) {
	t.Setenv("PLOTNIK_PARSE_FUEL", "not-a-number")
	t.Setenv("PLOTNIK_EXEC_FUEL", "-5")
	t.Setenv("PLOTNIK_RECURSION_FUEL", "0")

	cfg := plotnikconfig.LoadConfig()
	require.Equal(t, 1_000_000, cfg.ParseFuel)
	require.Equal(t, 10_000_000, cfg.ExecFuel)
	require.Equal(t, 4096, cfg.RecursionFuel)
}
