package review

import (
	"encoding/json"
	"strings"
)

// Result is the outcome of one review. Immutable once returned.
type Result struct {
	Text             string         `json:"text"`
	StructuredOutput map[string]any `json:"structured_output,omitempty"`
	InputTokens      int64          `json:"input_tokens"`
	OutputTokens     int64          `json:"output_tokens"`
	TotalTokens      int64          `json:"total_tokens"`
	TotalCostUSD     float64        `json:"total_cost_usd"`
	DurationMS       int64          `json:"duration_ms"`

	// rawStructured is the payload captured from the stream, kept until
	// validation attaches it as StructuredOutput.
	rawStructured json.RawMessage
}

// SessionMetrics implements session.Metrics for the history index.
func (r *Result) SessionMetrics() (int64, float64, int64) {
	return r.TotalTokens, r.TotalCostUSD, r.DurationMS
}

// Passed reports the review verdict. With structured output the "passed"
// field decides; otherwise the text verdict heuristic applies.
func (r *Result) Passed() bool {
	if r.StructuredOutput != nil {
		passed, _ := r.StructuredOutput["passed"].(bool)
		return passed
	}
	return TextVerdict(r.Text)
}

// TextVerdict applies the pass/fail heuristic to unstructured review text:
// a "STATUS: FAIL" marker or a leading "FAIL" fails the review, everything
// else passes. Case-insensitive.
func TextVerdict(text string) bool {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "status: fail") {
		return false
	}
	if strings.Contains(lower, "status: pass") {
		return true
	}

	trimmed := strings.TrimSpace(lower)
	if strings.HasPrefix(trimmed, "fail") {
		return false
	}
	return true
}
