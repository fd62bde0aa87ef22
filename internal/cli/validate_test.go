package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCommand_ValidFile(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "pass.yaml", passingScenario)

	stdout, _, err := executeCommand("validate", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "ok    "+path)
}

func TestValidateCommand_UnknownFieldFails(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "typo.yaml", `
name: typo
description: top-level typo
stepz:
  - advance: 1s
`)

	stdout, _, err := executeCommand("validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "validation failed for 1 file(s)")
	assert.Contains(t, stdout, "FAIL  "+path)
}

func TestValidateCommand_BadPollOpFails(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "badop.yaml", `
name: badop
description: poll op outside the enum
steps:
  - poll:
      op: accept
      target: ch
`)

	stdout, _, err := executeCommand("validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "FAIL  "+path)
}

func TestValidateCommand_MixedDirectory(t *testing.T) {
	dir := t.TempDir()
	good := writeScenario(t, dir, "a_good.yaml", passingScenario)
	bad := writeScenario(t, dir, "b_bad.yaml", "name: incomplete\n")

	stdout, _, err := executeCommand("validate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "ok    "+good)
	assert.Contains(t, stdout, "FAIL  "+bad)
}

func TestValidateCommand_MissingPathExitsTwo(t *testing.T) {
	_, _, err := executeCommand("validate", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidateCommand_JSONOutput(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "pass.yaml", passingScenario)

	stdout, _, err := executeCommand("validate", path, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	require.Len(t, resp.Data.Files, 1)
	assert.True(t, resp.Data.Files[0].Valid)
	assert.Empty(t, resp.Data.Files[0].Issues)
}
