package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_ResolvesFixturePaths(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "checkout.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "checkout", s.Name)
	assert.Equal(t, filepath.Join("testdata", "fixtures", "schema.sql"), s.Fixtures.Schema)
	assert.Equal(t, filepath.Join("testdata", "fixtures", "seed.yaml"), s.Fixtures.Seed)
	assert.Equal(t, filepath.Join("testdata", "fixtures", "stubs.yaml"), s.Fixtures.Stubs)
	assert.Len(t, s.Flow, 4)
	assert.Len(t, s.Assertions, 5)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join("testdata", "scenarios", "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_UnknownField(t *testing.T) {
	yaml := `
name: bad
description: has a typo
flows:
  - sql: SELECT 1
`
	_, err := ParseScenario([]byte(yaml), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_RequiresFlowAndAssertions(t *testing.T) {
	yaml := `
name: empty
description: no steps
flow: []
assertions: []
`
	_, err := ParseScenario([]byte(yaml), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flow list is required")
}

func TestParseScenario_StepMustBeOneOf(t *testing.T) {
	yaml := `
name: ambiguous
description: step sets two actions
flow:
  - sql: SELECT 1
    publish:
      topic: orders
assertions:
  - type: trace_count
    op: sql
    count: 1
`
	_, err := ParseScenario([]byte(yaml), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one of")
}

func TestParseScenario_ExpectRequiresHTTP(t *testing.T) {
	yaml := `
name: bad-expect
description: expect on a sql step
flow:
  - sql: SELECT 1
    expect:
      status: 200
assertions:
  - type: trace_count
    op: sql
    count: 1
`
	_, err := ParseScenario([]byte(yaml), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expect is only valid with http steps")
}

func TestParseScenario_SeedRequiresSchema(t *testing.T) {
	yaml := `
name: bad-fixtures
description: seed without schema
fixtures:
  seed: seed.yaml
flow:
  - sql: SELECT 1
assertions:
  - type: trace_count
    op: sql
    count: 1
`
	_, err := ParseScenario([]byte(yaml), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fixtures.seed requires fixtures.schema")
}

func TestParseScenario_FixtureFileMustExist(t *testing.T) {
	yaml := `
name: missing-fixture
description: schema file does not exist
fixtures:
  schema: no-such.sql
flow:
  - sql: SELECT 1
assertions:
  - type: trace_count
    op: sql
    count: 1
`
	_, err := ParseScenario([]byte(yaml), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fixture file not found")
}

func TestParseScenario_UnknownAssertionType(t *testing.T) {
	yaml := `
name: bad-assertion
description: unknown assertion type
flow:
  - sql: SELECT 1
assertions:
  - type: row_matches
`
	_, err := ParseScenario([]byte(yaml), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown assertion type "row_matches"`)
}

func TestParseScenario_InvalidExpectMessageTimeout(t *testing.T) {
	yaml := `
name: bad-timeout
description: unparseable timeout
flow:
  - expect_message:
      topic: orders
      timeout: soon
assertions:
  - type: message_count
    topic: orders
    count: 0
`
	_, err := ParseScenario([]byte(yaml), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid timeout")
}

func TestStepLabel_Defaults(t *testing.T) {
	assert.Equal(t, "sql", (&Step{SQL: "SELECT 1"}).label())
	assert.Equal(t, "GET /users", (&Step{HTTP: &HTTPStep{Method: "GET", Path: "/users"}}).label())
	assert.Equal(t, "publish orders", (&Step{Publish: &PublishStep{Topic: "orders"}}).label())
	assert.Equal(t, "consume orders", (&Step{ExpectMessage: &ExpectMessageStep{Topic: "orders"}}).label())
	assert.Equal(t, "custom", (&Step{Name: "custom", SQL: "SELECT 1"}).label())
}
