package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactkeval/option-volsurface/internal/logger"
)

func TestApplyVerbosity(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() {
		logger.Init("info", "text")
		logger.SetOutput(os.Stderr)
	})

	logger.Init("warn", "text")
	applyVerbosity(0)
	logger.Infof("kept quiet")
	assert.NotContains(t, buf.String(), "kept quiet")

	applyVerbosity(1)
	logger.Debugf("debug shown")
	logger.Tracef("trace hidden")
	assert.Contains(t, buf.String(), "debug shown")
	assert.NotContains(t, buf.String(), "trace hidden")

	applyVerbosity(2)
	logger.Tracef("trace shown")
	assert.Contains(t, buf.String(), "trace shown")
}

func TestComputeVerboseFlag(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "volsurface.yaml")
	cfg := fmt.Sprintf("underlying: SPY\nmarket:\n  provider: synthetic\nstorage:\n  db_path: %s\nlogging:\n  level: info\n",
		filepath.Join(dir, "vol.db"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	var logs, out bytes.Buffer
	logger.SetOutput(&logs)
	t.Cleanup(func() {
		verbosity = 0
		logger.Init("info", "text")
		logger.SetOutput(os.Stderr)
	})

	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"compute", "-vv", "--config", cfgPath})
	require.NoError(t, rootCmd.Execute())

	assert.Equal(t, 2, verbosity)
	assert.Contains(t, logs.String(), "level=trace")
	assert.Contains(t, out.String(), "SPY")
}
