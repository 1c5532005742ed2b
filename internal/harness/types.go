package harness

// TraceEvent records one flow step and its outcome.
type TraceEvent struct {
	Seq  int               `json:"seq"`
	Op   string            `json:"op"`
	Args map[string]string `json:"args,omitempty"`

	// Outcome is "ok" or the error code the step failed with.
	Outcome string `json:"outcome"`

	// Detail holds step-specific counters. Values are scalars and never IDs so the
	// trace stays stable across runs.
	Detail map[string]any `json:"detail,omitempty"`
}

// OutcomeOK marks a step that succeeded.
const OutcomeOK = "ok"

// OutcomeError marks a failure that carried no domain error code.
const OutcomeError = "ERROR"

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every step behaved as expected and
	// every assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per executed flow step.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
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

// AddTrace appends an event, numbering it from 1.
func (r *Result) AddTrace(op string, args map[string]string, outcome string, detail map[string]any) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:     len(r.Trace) + 1,
		Op:      op,
		Args:    args,
		Outcome: outcome,
		Detail:  detail,
	})
}
