package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/timebox/internal/decl"
)

func writeCUE(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reactions.cue")
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

func TestValidate_Valid(t *testing.T) {
	out, _, err := execute(t, "validate", petsCUE)
	require.NoError(t, err)
	assert.Contains(t, out, "✓")
	assert.Contains(t, out, "4 reaction(s) valid")
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	path := writeCUE(t, `
reaction: {
	a: priority: 1
	b: priority: 1
	c: {priority: 2, slots: [{type: "Dog", guard: {lua: "value.age >"}}]}
}`)

	out, _, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, decl.ErrDuplicatePriority)
	assert.Contains(t, out, decl.ErrInvalidGuard)
}

func TestValidate_JSON(t *testing.T) {
	path := writeCUE(t, `reaction: {a: priority: 1, b: priority: 1}`)

	out, _, err := execute(t, "--format", "json", "validate", path)
	require.Error(t, err)

	var resp struct {
		Status string             `json:"status"`
		Data   []ValidationResult `json:"data"`
		Error  *CLIError          `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.Len(t, resp.Data, 1)
	assert.False(t, resp.Data[0].Valid)
	require.NotNil(t, resp.Error)
	assert.Equal(t, decl.ErrDuplicatePriority, resp.Error.Code)
}

func TestValidate_ShadowWarning(t *testing.T) {
	path := writeCUE(t, `
reaction: {
	dog: {priority: 2, slots: [{type: "Dog"}]}
	old: {priority: 1, slots: [{type: "Dog", guard: {lua: "value.age > 5"}}]}
}`)

	out, _, err := execute(t, "validate", path)
	require.NoError(t, err, "warnings alone pass")
	assert.Contains(t, out, "warning:")
	assert.Contains(t, out, `"old"`)

	_, _, err = execute(t, "validate", "--strict", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestValidate_CompileError(t *testing.T) {
	path := writeCUE(t, `reaction: a: {priority: "high"}`)

	out, _, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeCompile+"]")
}

func TestValidate_MissingFile(t *testing.T) {
	_, _, err := execute(t, "validate", filepath.Join(t.TempDir(), "missing.cue"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
