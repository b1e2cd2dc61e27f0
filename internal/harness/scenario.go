package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines an integration-test scenario.
//
// A scenario bootstraps fixtures (SQL schema and seed, REST stubs), drives
// a flow of steps against them, and asserts on the resulting trace and
// final state.
type Scenario struct {
	// Name uniquely identifies this scenario; it also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// RunToken is an optional fixed token recorded in the trace snapshot.
	// Defaults to "run-default" for deterministic golden comparison.
	RunToken string `yaml:"run_token,omitempty"`

	// Fixtures declares the files to bootstrap before any step runs.
	Fixtures Fixtures `yaml:"fixtures,omitempty"`

	// Setup steps run before the main flow and must succeed; a failing
	// setup step aborts the scenario rather than failing an assertion.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow is the main test flow.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Fixtures lists fixture files, resolved relative to the scenario file.
type Fixtures struct {
	// Schema is a .sql file applied to the scenario's in-memory database.
	Schema string `yaml:"schema,omitempty"`

	// Seed is a sqlharness seed YAML file. Requires Schema.
	Seed string `yaml:"seed,omitempty"`

	// Stubs is a restmock stub YAML file.
	Stubs string `yaml:"stubs,omitempty"`
}

// Step is one scenario step. Exactly one of SQL, HTTP, Publish, or
// ExpectMessage must be set.
type Step struct {
	// Name overrides the step's trace label.
	Name string `yaml:"name,omitempty"`

	// SQL executes a statement against the scenario database.
	SQL string `yaml:"sql,omitempty"`

	// HTTP sends a request to the scenario's mock server.
	HTTP *HTTPStep `yaml:"http,omitempty"`

	// Publish sends a message to the scenario broker.
	Publish *PublishStep `yaml:"publish,omitempty"`

	// ExpectMessage consumes one message from the scenario broker,
	// failing the scenario when none arrives in time.
	ExpectMessage *ExpectMessageStep `yaml:"expect_message,omitempty"`

	// Expect validates the HTTP response. Only valid with HTTP.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// HTTPStep describes a request against the mock server.
type HTTPStep struct {
	Method  string            `yaml:"method"`
	Path    string            `yaml:"path"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Body    string            `yaml:"body,omitempty"`
}

// PublishStep describes a broker message to publish.
type PublishStep struct {
	Topic   string            `yaml:"topic"`
	Key     string            `yaml:"key,omitempty"`
	Value   string            `yaml:"value,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// ExpectMessageStep describes a message consumption with a deadline.
type ExpectMessageStep struct {
	Topic string `yaml:"topic"`

	// Group is the consumer group. Defaults to "harness".
	Group string `yaml:"group,omitempty"`

	// Timeout bounds the wait ("500ms", "2s"). Defaults to 2s.
	Timeout string `yaml:"timeout,omitempty"`
}

// ExpectClause validates an HTTP response.
type ExpectClause struct {
	// Status is the expected response status code.
	Status int `yaml:"status"`

	// BodyContains requires the response body to contain the substring.
	BodyContains string `yaml:"body_contains,omitempty"`
}

// Assertion validates trace, database, mock, or broker state.
type Assertion struct {
	// Type specifies the assertion type:
	//   - "trace_contains": an op appears in the trace
	//   - "trace_order": ops appear in order (gaps allowed)
	//   - "trace_count": an op appears exactly N times
	//   - "final_state": a database row matches expected values
	//   - "request_count": the mock server saw N requests to method+path
	//   - "message_count": a broker topic holds N messages
	Type string `yaml:"type"`

	// Op is the trace label (trace_contains, trace_count).
	Op string `yaml:"op,omitempty"`

	// Ops is the expected order (trace_order).
	Ops []string `yaml:"ops,omitempty"`

	// Count is the expected occurrence count (trace_count, request_count,
	// message_count).
	Count int `yaml:"count,omitempty"`

	// Table, Where, Expect drive final_state row matching.
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`

	// Method and Path select requests for request_count.
	Method string `yaml:"method,omitempty"`
	Path   string `yaml:"path,omitempty"`

	// Topic selects the topic for message_count.
	Topic string `yaml:"topic,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertRequestCount  = "request_count"
	AssertMessageCount  = "message_count"
)

const defaultExpectTimeout = 2 * time.Second

// LoadScenario reads and parses a scenario YAML file. Fixture paths are
// resolved relative to the scenario file's directory.
// Returns an error if the file is malformed, contains unknown fields
// (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario parses scenario YAML, resolving fixture paths against
// baseDir.
func ParseScenario(data []byte, baseDir string) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields (catches typos)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) || baseDir == "" {
			return p
		}
		return filepath.Join(baseDir, p)
	}
	scenario.Fixtures.Schema = resolve(scenario.Fixtures.Schema)
	scenario.Fixtures.Seed = resolve(scenario.Fixtures.Seed)
	scenario.Fixtures.Stubs = resolve(scenario.Fixtures.Stubs)

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.Fixtures.Seed != "" && s.Fixtures.Schema == "" {
		return fmt.Errorf("fixtures.seed requires fixtures.schema")
	}
	for _, path := range []string{s.Fixtures.Schema, s.Fixtures.Seed, s.Fixtures.Stubs} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return fmt.Errorf("fixture file not found: %s", path)
		}
	}

	for i, step := range s.Setup {
		if err := validateStep(&step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(&step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateStep checks the one-of step shape and per-kind requirements.
func validateStep(step *Step) error {
	kinds := 0
	if step.SQL != "" {
		kinds++
	}
	if step.HTTP != nil {
		kinds++
	}
	if step.Publish != nil {
		kinds++
	}
	if step.ExpectMessage != nil {
		kinds++
	}
	if kinds != 1 {
		return fmt.Errorf("exactly one of sql, http, publish, expect_message is required")
	}

	if step.Expect != nil && step.HTTP == nil {
		return fmt.Errorf("expect is only valid with http steps")
	}

	if step.HTTP != nil {
		if step.HTTP.Method == "" {
			return fmt.Errorf("http: method is required")
		}
		if step.HTTP.Path == "" {
			return fmt.Errorf("http: path is required")
		}
		if step.Expect != nil && (step.Expect.Status < 100 || step.Expect.Status > 599) {
			return fmt.Errorf("expect: status must be a valid HTTP status")
		}
	}
	if step.Publish != nil && step.Publish.Topic == "" {
		return fmt.Errorf("publish: topic is required")
	}
	if step.ExpectMessage != nil {
		if step.ExpectMessage.Topic == "" {
			return fmt.Errorf("expect_message: topic is required")
		}
		if step.ExpectMessage.Timeout != "" {
			if _, err := time.ParseDuration(step.ExpectMessage.Timeout); err != nil {
				return fmt.Errorf("expect_message: invalid timeout %q: %w", step.ExpectMessage.Timeout, err)
			}
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertRequestCount:
		if a.Method == "" || a.Path == "" {
			return fmt.Errorf("assertions[%d]: method and path are required for request_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for request_count", index)
		}
	case AssertMessageCount:
		if a.Topic == "" {
			return fmt.Errorf("assertions[%d]: topic is required for message_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for message_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// label returns the step's trace label.
func (s *Step) label() string {
	if s.Name != "" {
		return s.Name
	}
	switch {
	case s.SQL != "":
		return "sql"
	case s.HTTP != nil:
		return s.HTTP.Method + " " + s.HTTP.Path
	case s.Publish != nil:
		return "publish " + s.Publish.Topic
	case s.ExpectMessage != nil:
		return "consume " + s.ExpectMessage.Topic
	}
	return "unknown"
}
