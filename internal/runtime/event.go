package runtime

import "encoding/json"

// Kind classifies runtime stream events.
type Kind int

const (
	KindText       Kind = iota // assistant text fragment
	KindToolUse                // tool invocation by the agent
	KindToolResult             // tool output returned to the agent
	KindUsage                  // terminal metrics (tokens, cost, duration)
	KindStructured             // structured output payload
	KindUnknown                // unrecognized or malformed line
)

// String returns the event kind name.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindToolUse:
		return "tool_use"
	case KindToolResult:
		return "tool_result"
	case KindUsage:
		return "usage"
	case KindStructured:
		return "structured"
	default:
		return "unknown"
	}
}

// Event is one item from the runtime stream. Kind selects which fields
// are meaningful; Raw always holds the originating line for transcripts.
type Event struct {
	Kind Kind

	// KindText
	Text string

	// KindToolUse / KindToolResult
	ToolName  string
	ToolInput json.RawMessage
	ToolText  string

	// KindUsage
	InputTokens  int64
	OutputTokens int64
	TotalCostUSD float64
	DurationMS   int64
	ResultText   string
	HasResult    bool

	// KindStructured
	Payload json.RawMessage

	// Raw is the undecoded stream line.
	Raw []byte
}
