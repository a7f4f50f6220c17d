package deferred

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageDisabledByDefault(t *testing.T) {
	s := NewStage(t.TempDir())

	assert.False(t, s.Enabled())
	// Caller must write directly when staging is off.
	assert.False(t, s.Stage("a.txt", "x"))
	assert.Equal(t, 0, s.StagedCount())
}

func TestStageFlushWritesAllFiles(t *testing.T) {
	root := t.TempDir()
	s := NewStage(root)
	require.NoError(t, s.Enable("conv-1"))

	require.True(t, s.Stage("a.txt", "alpha"))
	require.True(t, s.Stage("sub/b.txt", "beta"))
	require.True(t, s.Stage("c.txt", "gamma"))
	assert.Equal(t, 3, s.StagedCount())

	report := s.Flush()

	assert.Equal(t, 3, report.FileCount)
	assert.Empty(t, report.Errors)
	assert.False(t, s.Enabled())
	assert.Equal(t, 0, s.StagedCount())

	data, err := os.ReadFile(filepath.Join(root, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "beta", string(data))
}

func TestStageLastWritePerPathWins(t *testing.T) {
	root := t.TempDir()
	s := NewStage(root)
	require.NoError(t, s.Enable("conv-1"))

	s.Stage("a.txt", "first")
	s.Stage("a.txt", "second")
	assert.Equal(t, 1, s.StagedCount())

	report := s.Flush()
	require.Equal(t, 1, report.FileCount)

	data, err := os.ReadFile(filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestStageDisableDiscards(t *testing.T) {
	root := t.TempDir()
	s := NewStage(root)
	require.NoError(t, s.Enable("conv-1"))
	s.Stage("a.txt", "x")

	s.Disable()

	assert.False(t, s.Enabled())
	assert.Equal(t, 0, s.StagedCount())
	_, err := os.Stat(filepath.Join(root, "a.txt"))
	assert.True(t, os.IsNotExist(err))

	// Idempotent on every exit path.
	s.Disable()
	s.Disable()
}

func TestStageEnableHeldByAnotherConversation(t *testing.T) {
	s := NewStage(t.TempDir())
	require.NoError(t, s.Enable("conv-1"))

	err := s.Enable("conv-2")
	assert.Error(t, err)

	// Re-enabling for the holder is fine.
	assert.NoError(t, s.Enable("conv-1"))
}

func TestStageFlushAfterDisableIsEmpty(t *testing.T) {
	s := NewStage(t.TempDir())
	require.NoError(t, s.Enable("conv-1"))
	s.Stage("a.txt", "x")
	s.Disable()

	report := s.Flush()
	assert.Equal(t, 0, report.FileCount)
}
