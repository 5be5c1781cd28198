package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindScenarios_SkipsGolden(t *testing.T) {
	files, err := FindScenarios("testdata")
	require.NoError(t, err)
	for _, f := range files {
		assert.NotContains(t, f, "golden")
	}
	assert.Contains(t, files, filepath.Join("testdata", "scenarios", "cash_flows.yaml"))
}

func TestRunSuite(t *testing.T) {
	res, err := RunSuite(filepath.Join("testdata", "scenarios"), "")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 4, res.Passed)
	assert.Zero(t, res.Failed)
}

func TestRunSuite_Filter(t *testing.T) {
	res, err := RunSuite(filepath.Join("testdata", "scenarios"), "cash")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
}

func TestRunSuite_CountsFailures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: [\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "failing.yml"), []byte(`
name: failing
description: d
genesis: {parties: [{id: a}]}
steps: [{op: withdraw, party: a, amount: 1}]
`), 0o644))

	res, err := RunSuite(dir, "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 2, res.Failed)
	require.Len(t, res.Failures, 2)
	assert.Equal(t, "broken.yaml", res.Failures[0].Scenario)
	assert.Equal(t, "failing", res.Failures[1].Scenario)
	assert.Contains(t, res.Failures[1].Errors[0], "expected success, got INSUFFICIENT_FUNDS")
}
