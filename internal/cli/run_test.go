package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/escrow/internal/engine"
	"github.com/roach88/escrow/internal/journal"
)

type runOutput struct {
	stdout []CLIResponse
	stderr string
}

// runWith executes the run command with fixed exchange ids.
func runWith(t *testing.T, opts *RunOptions, stdin string) (runOutput, error) {
	t.Helper()
	cmd := &cobra.Command{}
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := runEngine(opts, cmd)

	var out runOutput
	out.stderr = stderr.String()
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		var resp CLIResponse
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp), scanner.Text())
		out.stdout = append(out.stdout, resp)
	}
	return out, err
}

func runOptions(t *testing.T, dir string, ids ...string) *RunOptions {
	t.Helper()
	root := &RootOptions{Format: "json"}
	root.Config.LogLevel = "info"
	return &RunOptions{
		RootOptions: root,
		Genesis:     writeFile(t, dir, "genesis.cue", testGenesis),
		IDGenerator: engine.NewFixedGenerator(ids...),
	}
}

const settleSession = `{"op":"create","from":"alice","to":"bob","offering":{"type":"cash","amount":"400"},"requesting":{"type":"asset","asset_class":"real_estate","asset_id":"re_1"}}
{"op":"accept","id":"ex-1","party":"bob"}

{"op":"snapshot","party":"bob"}
{"op":"get","id":"missing"}
`

func TestRun_ServesRequests(t *testing.T) {
	opts := runOptions(t, t.TempDir(), "ex-1")

	out, err := runWith(t, opts, settleSession)
	require.NoError(t, err)
	require.Len(t, out.stdout, 4)

	assert.Equal(t, "ok", out.stdout[0].Status)
	assert.Equal(t, "pending", out.stdout[0].Data.(map[string]any)["status"])
	assert.Equal(t, "accepted", out.stdout[1].Data.(map[string]any)["status"])

	snap := out.stdout[2].Data.(map[string]any)
	assert.Equal(t, "bob", snap["party_id"])
	assert.Equal(t, "400", snap["cash_available"])

	assert.Equal(t, "error", out.stdout[3].Status)
	assert.Equal(t, string(engine.CodeNotFound), out.stdout[3].Error.Code)

	assert.Contains(t, out.stderr, "engine started")
	assert.Contains(t, out.stderr, "engine stopped gracefully")
}

func TestRun_WritesJournal(t *testing.T) {
	dir := t.TempDir()
	opts := runOptions(t, dir, "ex-1")
	opts.Journal = filepath.Join(dir, "escrow.db")

	_, err := runWith(t, opts, settleSession)
	require.NoError(t, err)

	// The dispatcher drains before the journal is closed.
	j, err := journal.Open(opts.Journal)
	require.NoError(t, err)
	defer j.Close()

	records, err := j.ReadExchange(t.Context(), "ex-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "pending", records[0].Status)
	assert.Equal(t, "accepted", records[1].Status)

	n, err := j.Count(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	checked, err := j.Verify(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 6, checked)
}

// lockedBuffer is written by the logger and the event printer concurrently.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRun_EventsToStderr(t *testing.T) {
	opts := runOptions(t, t.TempDir(), "ex-1")
	opts.Events = true

	cmd := &cobra.Command{}
	stderr := &lockedBuffer{}
	cmd.SetIn(strings.NewReader(`{"op":"deposit","party":"bob","amount":"7"}` + "\n"))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(stderr)

	require.NoError(t, runEngine(opts, cmd))
	// The printer drains the closed subscription after run returns.
	assert.Eventually(t, func() bool {
		return strings.Contains(stderr.String(), `"type":"inventory_update"`)
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, stderr.String(), `"cash_available":"7"`)
}

func TestRun_TextFormat(t *testing.T) {
	opts := runOptions(t, t.TempDir(), "ex-1")
	opts.Format = "text"

	cmd := &cobra.Command{}
	stdout := &bytes.Buffer{}
	cmd.SetIn(strings.NewReader(`{"op":"snapshot","party":"alice"}` + "\n" + `{"op":"bogus"}` + "\n"))
	cmd.SetOut(stdout)
	cmd.SetErr(&bytes.Buffer{})

	require.NoError(t, runEngine(opts, cmd))
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "alice available=1000 escrowed=0 assets=[] escrowed_assets=[]", lines[0])
	assert.Equal(t, `Error [BAD_REQUEST]: unknown op "bogus"`, lines[1])
}

func TestRun_Errors(t *testing.T) {
	t.Run("no genesis", func(t *testing.T) {
		_, _, err := executeCommand(t, "", "run")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, err.Error(), "--genesis is required")
	})
	t.Run("missing genesis", func(t *testing.T) {
		_, _, err := executeCommand(t, "", "run", "--genesis", filepath.Join(t.TempDir(), "nope.cue"))
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})
	t.Run("invalid genesis", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "genesis.cue", `party: alice: {cash: -1}`)
		_, _, err := executeCommand(t, "", "run", "--genesis", path)
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, err.Error(), "failed to apply genesis")
	})
}

func TestRun_GenesisFromEnvironment(t *testing.T) {
	path := writeFile(t, t.TempDir(), "genesis.cue", testGenesis)
	t.Setenv("ESCROW_GENESIS", path)

	stdout, _, err := executeCommand(t, `{"op":"list"}`+"\n", "run", "--format", "json")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []any{}, resp.Data)
}
