package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournal_MissingDatabase(t *testing.T) {
	_, _, err := execute(t, "journal", filepath.Join(t.TempDir(), "missing.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "journal not found")
}

func TestJournal_NoPath(t *testing.T) {
	t.Setenv("TIMEBOX_JOURNAL", "")

	_, _, err := execute(t, "journal")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestJournal_SourceAndLimit(t *testing.T) {
	db := filepath.Join(t.TempDir(), "rounds.db")
	_, _, err := execute(t, "run", scenariosDir, "--journal", db)
	require.NoError(t, err)

	out, _, err := execute(t, "journal", db, "--source", "fallback_rounds", "--limit", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "trusted (priority 2)")
	assert.NotContains(t, out, "[first_choice]")
	assert.Contains(t, out, "3 round(s)", "stats ignore the limit")

	_, _, err = execute(t, "journal", db, "--limit", "-1")
	require.Error(t, err)
}
