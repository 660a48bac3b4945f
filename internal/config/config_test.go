package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "SPY", cfg.Underlying)
	assert.Equal(t, "synthetic", cfg.Market.Provider)
	assert.Equal(t, 60*time.Second, cfg.Market.Timeout)
	assert.Equal(t, 0.0, cfg.Engine.RiskFreeRate)
	assert.Equal(t, 1e-6, cfg.Engine.Solver.LowerBound)
	assert.Equal(t, 4.0, cfg.Engine.Solver.UpperBound)
	assert.Equal(t, 100, cfg.Engine.Solver.MaxIterations)
	assert.Equal(t, 100, cfg.Surface.Resolution)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
underlying: IBEX
market:
  provider: files
  secondary: synthetic
  dir: ./testdata
engine:
  workers: 3
  risk_free_rate: 0.01
  solver:
    upper_bound: 5
surface:
  resolution: 50
logging:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "IBEX", cfg.Underlying)
	assert.Equal(t, "files", cfg.Market.Provider)
	assert.Equal(t, "synthetic", cfg.Market.Secondary)
	assert.Equal(t, 3, cfg.Engine.Workers)
	assert.Equal(t, 0.01, cfg.Engine.RiskFreeRate)
	assert.Equal(t, 5.0, cfg.Engine.Solver.UpperBound)
	assert.Equal(t, 1e-6, cfg.Engine.Solver.LowerBound, "unset keys keep defaults")
	assert.Equal(t, 50, cfg.Surface.Resolution)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("VOLSURFACE_ENGINE_RISK_FREE_RATE", "0.03")
	t.Setenv("VOLSURFACE_SERVER_ADDR", "127.0.0.1:9000")

	cfg, err := Load(writeConfig(t, "engine:\n  risk_free_rate: 0.01\n"))
	require.NoError(t, err)
	assert.Equal(t, 0.03, cfg.Engine.RiskFreeRate)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("VOLSURFACE_MARKET_API_KEY=from-dotenv\n"), 0o600))
	t.Chdir(dir)
	t.Cleanup(func() { _ = os.Unsetenv("VOLSURFACE_MARKET_API_KEY") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Market.APIKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"empty underlying":   func(c *Config) { c.Underlying = "" },
		"unknown provider":   func(c *Config) { c.Market.Provider = "bloomberg" },
		"unknown secondary":  func(c *Config) { c.Market.Secondary = "bloomberg" },
		"negative workers":   func(c *Config) { c.Engine.Workers = -1 },
		"inverted bracket":   func(c *Config) { c.Engine.Solver.LowerBound = 5 },
		"zero tolerance":     func(c *Config) { c.Engine.Solver.Tolerance = 0 },
		"resolution too low": func(c *Config) { c.Surface.Resolution = 1 },
		"no db path":         func(c *Config) { c.Storage.DBPath = "" },
		"bad log level":      func(c *Config) { c.Logging.Level = "loud" },
		"bad log format":     func(c *Config) { c.Logging.Format = "xml" },
		"negative retries":   func(c *Config) { c.Market.Retries = -2 },
		"empty server addr":  func(c *Config) { c.Server.Addr = "" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
