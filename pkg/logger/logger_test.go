package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSetsLevelAndFormat(t *testing.T) {
	cfg := Config{Level: "debug", Format: "json", Output: "stdout"}
	log := New(cfg)
	require.Equal(t, "debug", log.GetLevel().String())
}

func TestNewCreatesLogFile(t *testing.T) {
	originalWD, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(originalWD) })

	temp := t.TempDir()
	require.NoError(t, os.Chdir(temp))

	log := New(Config{Level: "info", Format: "text", Output: "file", FilePrefix: "test"})
	log.Info("hello")

	data, err := os.ReadFile(filepath.Join("logs", "test.log"))
	require.NoError(t, err)
	require.NotEmpty(t, data)
}

func TestComponentTagsEntries(t *testing.T) {
	log := NewDefault("arena")
	entry := log.Component("arena-orchestrator")
	require.Equal(t, "arena-orchestrator", entry.Data["component"])
}
