package harness

import "github.com/roach88/rulepack/internal/ir"

// Trace event types.
const (
	EventInvocation = "invocation"
	EventCompletion = "completion"
)

// TraceEvent is one entry of a scenario trace: either the invocation of
// an operation or its completion.
type TraceEvent struct {
	Type   string    `json:"type"`
	Op     string    `json:"op,omitempty"`
	Args   ir.Object `json:"args,omitempty"`
	Case   string    `json:"case,omitempty"`
	Result ir.Object `json:"result,omitempty"`
	Seq    int64     `json:"seq"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds invocations and completions in order.
	Trace []TraceEvent `json:"trace"`

	// Errors is empty if Pass is true.
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

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddInvocationTrace adds an invocation to the trace.
func (r *Result) AddInvocationTrace(op string, args ir.Object, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type: EventInvocation,
		Op:   op,
		Args: args,
		Seq:  seq,
	})
}

// AddCompletionTrace adds a completion to the trace.
func (r *Result) AddCompletionTrace(c Completion, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:   EventCompletion,
		Case:   c.Case,
		Result: c.Result,
		Seq:    seq,
	})
}

// Completion is the actual outcome of one operation.
type Completion struct {
	Case   string
	Result ir.Object
}

// Completion cases.
const (
	CaseDeployed        = "Deployed"
	CaseRejected        = "Rejected"
	CaseFound           = "Found"
	CaseNotFound        = "NotFound"
	CaseRemoved         = "Removed"
	CaseNoSuchRule      = "NoSuchRule"
	CaseNoSuchFunction  = "NoSuchFunction"
	CaseUnknownRuleFlow = "UnknownRuleFlow"
	CaseRoundTripped    = "RoundTripped"
	CaseUndeployed      = "Undeployed"
	CaseFlushed         = "Flushed"
)
