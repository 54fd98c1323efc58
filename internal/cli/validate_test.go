package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeQConfigDir(t *testing.T, cue string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quantize.cue"), []byte(cue), 0o644))
	return dir
}

func TestValidateCommandAcceptsValidConfig(t *testing.T) {
	dir := writeQConfigDir(t, linearInt8CUE)

	out, err := executeCommand(t, "validate", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "config valid: 1 rule(s)")
}

func TestValidateCommandJSON(t *testing.T) {
	dir := writeQConfigDir(t, linearInt8CUE)

	out, err := executeCommand(t, "--format", "json", "validate", dir)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	data := resp.Data.(map[string]any)
	assert.Equal(t, true, data["valid"])
	assert.Equal(t, float64(1), data["rules"])
}

func TestValidateCommandReportsErrors(t *testing.T) {
	dir := writeQConfigDir(t, `
quantize: rules: [{
	name: "bad"
	match: {op: "call_kernel"}
	input: {dtype: "int7"}
}]
`)

	out, err := executeCommand(t, "validate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Validation failed")
	assert.Contains(t, out, "E202")
	assert.Contains(t, out, "E204")
}

func TestValidateCommandMissingDirIsCommandError(t *testing.T) {
	_, err := executeCommand(t, "validate", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
