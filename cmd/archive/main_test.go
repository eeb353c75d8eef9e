package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd, a := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	require.NoError(t, a.close())
	return out.String(), err
}

func TestImportThenList(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	db := filepath.Join(dir, "archive.db")

	scrape := filepath.Join(dir, "october.yaml")
	require.NoError(t, os.WriteFile(scrape, []byte(`
months:
  - month: october
    year: 2023
    url: https://www.humblebundle.com/membership/october-2023
    items: [Game A, Game B]
`), 0o644))

	out, err := run(t, "import", "--db", db, "--driver", "sqlite", "--log-level", "off", scrape)
	require.NoError(t, err)
	assert.Contains(t, out, "October 2023 (new): 2 new games")
	assert.Contains(t, out, "  + Game A")

	// Importing the same scrape again changes nothing.
	out, err = run(t, "import", "--db", db, "--driver", "sqlite", "--log-level", "off", scrape)
	require.NoError(t, err)
	assert.Contains(t, out, "October 2023 (updated): 0 new games")

	out, err = run(t, "list", "--db", db, "--driver", "sqlite", "--log-level", "off")
	require.NoError(t, err)
	assert.Contains(t, out, "October 2023  https://www.humblebundle.com/membership/october-2023")
	assert.Contains(t, out, "  - Game A\n  - Game B\n")
}

func TestList_Empty(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	out, err := run(t, "list", "--db", filepath.Join(dir, "empty.db"), "--driver", "sqlite", "--log-level", "off")
	require.NoError(t, err)
	assert.Equal(t, "No months archived.\n", out)
}

func TestImport_Errors(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	_, err := run(t, "import", "--db", filepath.Join(dir, "a.db"), "--log-level", "off")
	assert.Error(t, err, "at least one file is required")

	_, err = run(t, "import", "--db", filepath.Join(dir, "a.db"), "--driver", "sqlite", "--log-level", "off", filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	_, err = run(t, "list", "--driver", "postgres")
	assert.Error(t, err)
}

// =============================================================================
// FLAGS
// =============================================================================

// parseServe parses serve flags and loads config without starting the server.
func parseServe(t *testing.T, args ...string) *app {
	t.Helper()
	root, a := newRootCmd()
	serve, rest, err := root.Find(append([]string{"serve"}, args...))
	require.NoError(t, err)
	require.NoError(t, serve.ParseFlags(rest))
	require.NoError(t, a.init())
	t.Cleanup(func() { _ = a.close() })
	return a
}

func TestServe_IngestFlagEnablesScheduler(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	// GIVEN: only a directory
	a := parseServe(t, "--ingest-dir", dir, "--log-level", "off")
	// THEN: ingest stays off
	assert.False(t, a.cfg.Ingest.Enabled)
	assert.Equal(t, dir, a.cfg.Ingest.Dir)

	// GIVEN: the directory and --ingest
	a = parseServe(t, "--ingest", "--ingest-dir", dir, "--ingest-interval", "5m", "--log-level", "off")
	// THEN: ingest is on with the given interval
	assert.True(t, a.cfg.Ingest.Enabled)
	assert.Equal(t, 5*time.Minute, a.cfg.Ingest.Interval)
}

func TestServe_IngestFlagRequiresDir(t *testing.T) {
	t.Chdir(t.TempDir())

	root, a := newRootCmd()
	serve, rest, err := root.Find([]string{"serve", "--ingest", "--log-level", "off"})
	require.NoError(t, err)
	require.NoError(t, serve.ParseFlags(rest))
	assert.ErrorContains(t, a.init(), "ingest.dir is required")
}

func TestLogOutputFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	logPath := filepath.Join(dir, "archive.log")

	// WHEN: a command runs with a log file
	_, err := run(t, "list", "--db", filepath.Join(dir, "a.db"), "--driver", "sqlite",
		"--log-level", "debug", "--log-format", "json", "--log-output", logPath)
	require.NoError(t, err)

	// THEN: entries land in the file, which run has already closed
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"service":"archive"`)
}
