package harness

// Event type names used in trace events.
const (
	EventSQL     = "sql"
	EventHTTP    = "http"
	EventPublish = "publish"
	EventMessage = "message"
)

// TraceEvent is one executed step in a scenario's trace.
//
// Op is the step's stable label ("POST /orders", "publish orders") used by
// trace assertions and golden comparison. Detail carries step-specific
// payload: the SQL statement, the response body, the message value.
type TraceEvent struct {
	Type   string         `json:"type"`
	Op     string         `json:"op"`
	Seq    int64          `json:"seq"`
	Status int            `json:"status,omitempty"`
	Detail map[string]any `json:"detail,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: all expect clauses and assertions held.
	Pass bool `json:"pass"`

	// Token identifies the run in snapshots. Fixed per scenario so golden
	// files stay stable.
	Token string `json:"token"`

	// Trace contains all executed steps in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an event to the trace.
func (r *Result) AddTrace(event TraceEvent) {
	r.Trace = append(r.Trace, event)
}
