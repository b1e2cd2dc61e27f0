package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMock_RequiresStubsFlag(t *testing.T) {
	_, err := execute(t, "mock")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stubs")
}

func TestMock_MissingStubFile(t *testing.T) {
	_, err := execute(t, "mock", "--stubs", "no-such.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "stub file not found")
}
