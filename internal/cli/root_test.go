package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGenesis = `party: alice: {name: "Alice", cash: 1000}
party: bob: {name: "Bob"}

asset: real_estate: re_1: {owner: "bob", valuation: 900}
`

// executeCommand runs the root command with args and stdin, capturing output.
func executeCommand(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"run", "test", "validate", "journal"})
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	path := writeFile(t, t.TempDir(), "genesis.cue", testGenesis)

	_, _, err := executeCommand(t, "", "validate", path, "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "yaml"`)
}

func TestRootCommand_InvalidLogLevel(t *testing.T) {
	t.Setenv("ESCROW_LOG_LEVEL", "loud")
	path := writeFile(t, t.TempDir(), "genesis.cue", testGenesis)

	_, _, err := executeCommand(t, "", "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "ESCROW_LOG_LEVEL")
}

func TestRootCommand_Help(t *testing.T) {
	stdout, _, err := executeCommand(t, "", "--help")
	require.NoError(t, err)
	assert.Contains(t, stdout, "escrow")
	assert.Contains(t, stdout, "journal")
}
