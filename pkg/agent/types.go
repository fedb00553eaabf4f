package agent

// ChatMessage represents one entry in the conversation buffer sent to the
// model boundary. The buffer grows within a single run and is discarded at
// run end; only user/assistant turns are persisted by the caller.
type ChatMessage struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall records one model-requested tool invocation. Immutable once
// appended to a run's accumulated record.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
	Result    interface{}            `json:"result,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// TokenUsage tracks token consumption across a run.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// RunResult is the outcome of one complete agent run.
type RunResult struct {
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls"`
	Reasoning  string     `json:"reasoning"`
	TraceID    string     `json:"trace_id"`
	Iterations int        `json:"iterations"`
	Usage      TokenUsage `json:"usage"`
}

// ToolCallEvent is emitted to the observer sink when a tool call starts and
// finishes. Purely observational; the sink cannot influence the loop.
type ToolCallEvent struct {
	Phase     string   `json:"phase"` // started or finished
	SessionID string   `json:"session_id,omitempty"`
	Iteration int      `json:"iteration"`
	Call      ToolCall `json:"call"`
}

// Sink receives tool-call progress events synchronously, one per transition.
type Sink func(event ToolCallEvent)

const (
	// PhaseStarted marks a tool call dispatched to the executor.
	PhaseStarted = "started"
	// PhaseFinished marks a tool call resolved, successfully or not.
	PhaseFinished = "finished"
)
