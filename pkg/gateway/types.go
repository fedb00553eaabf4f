package gateway

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatResponse is the success body of POST /api/chat.
type ChatResponse struct {
	Content       string `json:"content"`
	ToolCallCount int    `json:"tool_call_count"`
	TraceID       string `json:"trace_id"`
	SessionID     string `json:"session_id"`
}

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Clients  int    `json:"ws_clients"`
}

// ProgressEvent is the payload broadcast to websocket clients while an agent
// run is in flight.
type ProgressEvent struct {
	Type      string                 `json:"type"` // tool_call_started or tool_call_finished
	SessionID string                 `json:"session_id"`
	Iteration int                    `json:"iteration"`
	Tool      string                 `json:"tool"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
	Error     string                 `json:"error,omitempty"`
}
