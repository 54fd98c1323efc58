package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspectCommandPrintsDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(tinyGraphYAML), 0o644))

	out, err := executeCommand(t, "inspect", path)
	require.NoError(t, err)

	assert.Contains(t, out, "module tiny")
	assert.Contains(t, out, "%lin = call_function[target=aten.linear](%x)")
	assert.NotContains(t, out, "activation_post_process")
}

func TestInspectCommandJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(tinyGraphYAML), 0o644))

	out, err := executeCommand(t, "--format", "json", "inspect", path)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "tiny", data["graph"])
	assert.Equal(t, float64(3), data["nodes"])
}

func TestInspectCommandMissingFile(t *testing.T) {
	_, err := executeCommand(t, "inspect", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
