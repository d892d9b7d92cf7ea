package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exocortex/exoql/internal/config"
	"github.com/exocortex/exoql/pkg/errors"
	"github.com/exocortex/exoql/pkg/sparql/complexity"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 1000, cfg.Store.CacheSize)
	assert.True(t, cfg.Query.Optimize)
	assert.True(t, cfg.Query.Admission)
	assert.Equal(t, "localhost:27124", cfg.Server.Listen)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, complexity.DefaultThresholds(), cfg.Thresholds())
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "exoql.yaml")

	content := `
log:
  level: debug
  format: json
complexity:
  max_triple_patterns: 10
  max_execution_ms: 500
  max_time_class: "O(n^2)"
server:
  listen: "0.0.0.0:9999"
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9999", cfg.Server.Listen)

	th := cfg.Thresholds()
	assert.Equal(t, 10, th.MaxTriplePatterns)
	assert.Equal(t, 500*time.Millisecond, th.MaxExecutionTime)
	assert.Equal(t, complexity.Quadratic, th.MaxTimeClass)
	assert.Equal(t, 1000, th.MaxCost)

	logger := cfg.Logger()
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("EXOQL_SERVER_LISTEN", "10.0.0.1:8080")
	t.Setenv("EXOQL_QUERY_ADMISSION", "false")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:8080", cfg.Server.Listen)
	assert.False(t, cfg.Query.Admission)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeConfigLoadReadFailure))
}

func TestLoad_ValidationCalledAtLoadTime(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "exoql.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("log:\n  format: xml\n"), 0o644))

	_, err := config.Load(cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.format")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
		want   string
	}{
		{"unknown level", func(c *config.Config) { c.Log.Level = "loud" }, "log.level"},
		{"zero cache", func(c *config.Config) { c.Store.CacheSize = 0 }, "store.cache_size"},
		{"negative cost", func(c *config.Config) { c.Complexity.MaxCost = -1 }, "complexity.max_cost"},
		{"zero memory", func(c *config.Config) { c.Complexity.MaxMemoryBytes = 0 }, "complexity.max_memory_bytes"},
		{"unknown class", func(c *config.Config) { c.Complexity.MaxTimeClass = "O(n!)" }, "complexity.max_time_class"},
		{"bad listen", func(c *config.Config) { c.Server.Listen = "nowhere" }, "server.listen"},
		{"port range", func(c *config.Config) { c.Server.Listen = "localhost:70000" }, "between 1 and 65535"},
	}

	require.Empty(t, config.Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)

			errs := cfg.Validate()
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0].Error(), tt.want)
			assert.True(t, errors.IsInvalidInput(errs[0]))
		})
	}
}
