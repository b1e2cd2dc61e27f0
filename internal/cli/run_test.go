package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the CLI with args and returns combined output and error.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRun_AllPass(t *testing.T) {
	out, err := execute(t, "run", filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)
	assert.Contains(t, out, "notes")
	assert.Contains(t, out, "All scenarios passed")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestRun_Failure(t *testing.T) {
	out, err := execute(t, "run", filepath.Join("testdata", "failing"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "FAIL wrong")
	assert.Contains(t, out, "notes.body = hello, expected goodbye")
}

func TestRun_MissingDirectory(t *testing.T) {
	_, err := execute(t, "run", filepath.Join("testdata", "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestRun_FilterExcludesEverything(t *testing.T) {
	out, err := execute(t, "run", filepath.Join("testdata", "scenarios"), "--filter", "zzz-*")
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestRun_InvalidScenarioReported(t *testing.T) {
	out, err := execute(t, "run", filepath.Join("testdata", "invalid"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Load error")
}

func TestRun_JSONOutput(t *testing.T) {
	out, err := execute(t, "--format", "json", "run", filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)

	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "ok", response.Status)
	assert.Nil(t, response.Error)
}

func TestRun_JSONOutputFailure(t *testing.T) {
	out, err := execute(t, "--format", "json", "run", filepath.Join("testdata", "failing"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "error", response.Status)
	require.NotNil(t, response.Error)
	assert.Equal(t, "E_SCENARIO_FAILED", response.Error.Code)
}

func TestRun_GoldenUpdateAndCompare(t *testing.T) {
	dir := t.TempDir()
	src, err := os.ReadFile(filepath.Join("testdata", "scenarios", "notes.yaml"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.yaml"), src, 0644))

	// First pass writes the golden file.
	out, err := execute(t, "run", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "golden updated")

	goldenPath := filepath.Join(dir, "golden", "notes.golden")
	golden, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"scenario": "notes"`)
	assert.Contains(t, string(golden), `"run_token": "run-default"`)

	// Second pass compares against it and passes.
	out, err = execute(t, "run", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "All scenarios passed")

	// A tampered golden file fails the comparison.
	require.NoError(t, os.WriteFile(goldenPath, append(golden, '!'), 0644))
	out, err = execute(t, "run", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "does not match golden file")
}

func TestGoldenFilePath(t *testing.T) {
	got := goldenFilePath(filepath.Join("scenarios", "checkout.yaml"))
	assert.Equal(t, filepath.Join("scenarios", "golden", "checkout.golden"), got)
}

func TestFindScenarioFiles_SkipsGoldenDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("x"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "a.yaml"), []byte("x"), 0644))

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join(dir, "a.yaml"), files[0])
}
