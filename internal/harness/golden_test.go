package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Golden scenarios live in testdata/scenarios; their expected traces in
// testdata/golden. Regenerate with: go test ./internal/harness -update
func TestGoldenScenarios(t *testing.T) {
	paths, err := DiscoverScenarios("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		scenario, err := LoadScenario(path)
		require.NoError(t, err, path)

		t.Run(scenario.Name, func(t *testing.T) {
			require.NoError(t, RunWithGolden(t, scenario))
		})
	}
}

func TestSnapshotJSON_IsDeterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/bounded_send_backpressure.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	first, err := snapshotJSON(scenario.Name, result)
	require.NoError(t, err)

	again, err := Run(scenario)
	require.NoError(t, err)
	second, err := snapshotJSON(scenario.Name, again)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}
