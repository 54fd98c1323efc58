package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinearInt8Golden(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/linear_int8.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.False(t, result.Trace.IsQAT)
}

func TestBranchSharedGolden(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/branch_shared.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.Equal(t, "branch", result.Trace.GraphName)
}
