// Package harness executes integration-test scenarios against hermetic
// in-process infrastructure.
//
// Each run gets a fresh in-memory SQL database, a programmable HTTP mock
// server, and an in-process message broker. Scenario steps drive these
// fixtures and every step is recorded as a trace event with a deterministic
// sequence number, so a run's trace can be compared against a golden file.
package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/qakit/qakit/internal/broker"
	"github.com/qakit/qakit/internal/restmock"
	"github.com/qakit/qakit/internal/sqlharness"
	"github.com/qakit/qakit/internal/testutil"
)

// defaultGroup names the consumer group used when an expect_message step
// doesn't specify one.
const defaultGroup = "harness"

// Harness owns the per-run fixture stack.
type Harness struct {
	db     *sqlharness.DB
	mock   *restmock.Server
	broker *broker.Broker
	clock  *testutil.SeqClock
	logger *slog.Logger

	// consumers caches one consumer per group and topic. Re-subscribing an
	// existing group would rewind it to its committed offsets and replay
	// already-consumed messages mid-scenario.
	consumers map[string]*broker.Consumer
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the harness logger. Defaults to a discarding logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) { h.logger = logger }
}

// New creates a harness with a fresh in-memory database, mock server, and
// broker. Callers must Close it.
func New(opts ...Option) (*Harness, error) {
	db, err := sqlharness.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open scenario database: %w", err)
	}

	h := &Harness{
		db:        db,
		broker:    broker.New(),
		clock:     testutil.NewSeqClock(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		consumers: make(map[string]*broker.Consumer),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.mock = restmock.NewServer(restmock.WithLogger(h.logger))
	return h, nil
}

// Close tears down the fixture stack.
func (h *Harness) Close() {
	for _, c := range h.consumers {
		c.Close()
	}
	h.broker.Close()
	h.mock.Close()
	h.db.Close()
}

// DB returns the scenario database.
func (h *Harness) DB() *sqlharness.DB { return h.db }

// Mock returns the scenario mock server.
func (h *Harness) Mock() *restmock.Server { return h.mock }

// Broker returns the scenario broker.
func (h *Harness) Broker() *broker.Broker { return h.broker }

// Run executes a scenario on a fresh harness and returns its result.
// Infrastructure failures (bad fixtures, failing setup steps) are returned
// as errors; expect clause and assertion failures are recorded in the
// result instead.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	h, err := New(opts...)
	if err != nil {
		return nil, err
	}
	defer h.Close()
	return h.Execute(ctx, scenario)
}

// Execute runs a scenario against this harness.
func (h *Harness) Execute(ctx context.Context, scenario *Scenario) (*Result, error) {
	result := NewResult()
	result.Token = testutil.NewFixedTokenGenerator(scenario.RunToken).Generate()

	h.logger.Info("scenario starting", "name", scenario.Name, "token", result.Token)

	if err := h.applyFixtures(ctx, scenario); err != nil {
		return nil, err
	}

	for i, step := range scenario.Setup {
		if _, err := h.runStep(ctx, &step, result); err != nil {
			return nil, fmt.Errorf("setup[%d] (%s): %w", i, step.label(), err)
		}
	}

	for i := range scenario.Flow {
		step := &scenario.Flow[i]
		event, err := h.runStep(ctx, step, result)
		if err != nil {
			result.AddError(fmt.Sprintf("step %q: %v", step.label(), err))
			continue
		}
		if step.Expect != nil {
			h.checkExpect(step, event, result)
		}
	}

	h.evalAssertions(ctx, scenario, result)

	h.logger.Info("scenario finished", "name", scenario.Name, "pass", result.Pass)
	return result, nil
}

// applyFixtures bootstraps schema, seed, and stub files.
func (h *Harness) applyFixtures(ctx context.Context, scenario *Scenario) error {
	if scenario.Fixtures.Schema != "" {
		if err := h.db.ApplySchema(ctx, scenario.Fixtures.Schema); err != nil {
			return fmt.Errorf("failed to apply schema fixture: %w", err)
		}
	}
	if scenario.Fixtures.Seed != "" {
		if err := h.db.LoadSeed(ctx, scenario.Fixtures.Seed); err != nil {
			return fmt.Errorf("failed to load seed fixture: %w", err)
		}
	}
	if scenario.Fixtures.Stubs != "" {
		if err := h.mock.LoadStubs(scenario.Fixtures.Stubs); err != nil {
			return fmt.Errorf("failed to load stub fixture: %w", err)
		}
	}
	return nil
}

// runStep executes one step and appends its trace event.
func (h *Harness) runStep(ctx context.Context, step *Step, result *Result) (*TraceEvent, error) {
	var (
		event TraceEvent
		err   error
	)
	switch {
	case step.SQL != "":
		event, err = h.runSQL(ctx, step)
	case step.HTTP != nil:
		event, err = h.runHTTP(ctx, step)
	case step.Publish != nil:
		event, err = h.runPublish(ctx, step)
	case step.ExpectMessage != nil:
		event, err = h.runExpectMessage(ctx, step)
	default:
		return nil, fmt.Errorf("step has no action")
	}
	if err != nil {
		return nil, err
	}

	result.AddTrace(event)
	return &result.Trace[len(result.Trace)-1], nil
}

func (h *Harness) runSQL(ctx context.Context, step *Step) (TraceEvent, error) {
	if err := h.db.Exec(ctx, step.SQL); err != nil {
		return TraceEvent{}, err
	}
	return TraceEvent{
		Type:   EventSQL,
		Op:     step.label(),
		Seq:    h.clock.Next(),
		Detail: map[string]any{"statement": step.SQL},
	}, nil
}

func (h *Harness) runHTTP(ctx context.Context, step *Step) (TraceEvent, error) {
	var body io.Reader
	if step.HTTP.Body != "" {
		body = strings.NewReader(step.HTTP.Body)
	}
	req, err := http.NewRequestWithContext(ctx, step.HTTP.Method, h.mock.URL()+step.HTTP.Path, body)
	if err != nil {
		return TraceEvent{}, fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range step.HTTP.Headers {
		req.Header.Set(k, v)
	}

	resp, err := h.mock.Client().Do(req)
	if err != nil {
		return TraceEvent{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return TraceEvent{}, fmt.Errorf("failed to read response body: %w", err)
	}

	return TraceEvent{
		Type:   EventHTTP,
		Op:     step.label(),
		Seq:    h.clock.Next(),
		Status: resp.StatusCode,
		Detail: map[string]any{"body": string(respBody)},
	}, nil
}

func (h *Harness) runPublish(ctx context.Context, step *Step) (TraceEvent, error) {
	msg := broker.Message{
		Topic:   step.Publish.Topic,
		Key:     step.Publish.Key,
		Headers: step.Publish.Headers,
	}
	if step.Publish.Value != "" {
		msg.Value = []byte(step.Publish.Value)
	}

	published, err := h.broker.Publish(ctx, msg)
	if err != nil {
		return TraceEvent{}, err
	}

	return TraceEvent{
		Type: EventPublish,
		Op:   step.label(),
		Seq:  h.clock.Next(),
		Detail: map[string]any{
			"topic":  published.Topic,
			"offset": published.Offset,
		},
	}, nil
}

func (h *Harness) runExpectMessage(ctx context.Context, step *Step) (TraceEvent, error) {
	consumer, err := h.consumerFor(step.ExpectMessage)
	if err != nil {
		return TraceEvent{}, err
	}

	timeout := defaultExpectTimeout
	if step.ExpectMessage.Timeout != "" {
		timeout, _ = time.ParseDuration(step.ExpectMessage.Timeout)
	}

	msg, err := consumer.Expect(timeout)
	if err != nil {
		return TraceEvent{}, err
	}

	return TraceEvent{
		Type: EventMessage,
		Op:   step.label(),
		Seq:  h.clock.Next(),
		Detail: map[string]any{
			"topic": msg.Topic,
			"value": string(msg.Value),
		},
	}, nil
}

// consumerFor returns the cached consumer for the step's group and topic,
// creating the topic and consumer on first use.
func (h *Harness) consumerFor(step *ExpectMessageStep) (*broker.Consumer, error) {
	group := step.Group
	if group == "" {
		group = defaultGroup
	}

	key := group + "|" + step.Topic
	if c, ok := h.consumers[key]; ok {
		return c, nil
	}

	if err := h.broker.CreateTopic(step.Topic, broker.DefaultPartitions); err != nil {
		return nil, err
	}
	c, err := h.broker.Subscribe(group, step.Topic)
	if err != nil {
		return nil, err
	}
	h.consumers[key] = c
	return c, nil
}

// checkExpect validates an HTTP step's expect clause against its event.
func (h *Harness) checkExpect(step *Step, event *TraceEvent, result *Result) {
	label := step.label()
	if event.Status != step.Expect.Status {
		result.AddError(fmt.Sprintf("step %q: expected status %d, got %d",
			label, step.Expect.Status, event.Status))
	}
	if step.Expect.BodyContains != "" {
		body, _ := event.Detail["body"].(string)
		if !strings.Contains(body, step.Expect.BodyContains) {
			result.AddError(fmt.Sprintf("step %q: response body does not contain %q (got %q)",
				label, step.Expect.BodyContains, body))
		}
	}
}
