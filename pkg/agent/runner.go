// Package agent drives a language model through iterative tool calls until it
// produces a final answer or the iteration cap forces one.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/probelab/scout/internal/observability"
	"github.com/probelab/scout/internal/tracing"
	"github.com/probelab/scout/pkg/session"
	"github.com/probelab/scout/pkg/tools"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	// DefaultMaxIterations bounds cost and latency against a model that keeps
	// requesting tools.
	DefaultMaxIterations = 5

	// DefaultSystemPrompt is used when the caller supplies none.
	DefaultSystemPrompt = "You are a research assistant. Use the available tools to gather " +
		"information before answering, and cite the sources you used."

	finalAnswerInstruction = "You have reached the tool call limit. Synthesize a final answer " +
		"now from the information gathered so far. Do not request any more tools."
)

// HistoryStore is the slice of the session store the runner reads.
type HistoryStore interface {
	GetSession(id string) (*session.Session, bool)
}

// Runner orchestrates agent execution: model calls, tool dispatch, tracing.
type Runner struct {
	store    HistoryStore
	executor *tools.Executor
	provider LLMProvider
	logger   zerolog.Logger

	model         string
	finalModel    string
	maxIterations int
	systemPrompt  string
	temperature   float64
	maxTokens     int
	sink          Sink
}

// Config holds runner configuration
type Config struct {
	Store    HistoryStore // optional; nil means every run starts with empty history
	Executor *tools.Executor
	Provider LLMProvider
	Logger   zerolog.Logger

	Model string
	// FinalModel is used for the forced tool-free call when the iteration cap
	// is exhausted. Defaults to Model.
	FinalModel    string
	MaxIterations int
	SystemPrompt  string
	Temperature   float64
	MaxTokens     int
	// Sink receives tool-call started/finished events, synchronously.
	Sink Sink
}

// NewRunner creates a new agent runner
func NewRunner(cfg Config) (*Runner, error) {
	observability.EnsureRegistered()

	if cfg.Executor == nil {
		return nil, fmt.Errorf("tool executor is required")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("model provider is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model cannot be empty")
	}
	if cfg.Temperature < 0 || cfg.Temperature > 1 {
		return nil, fmt.Errorf("temperature must be between 0 and 1")
	}
	if cfg.MaxIterations < 0 {
		return nil, fmt.Errorf("max iterations cannot be negative")
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.FinalModel == "" {
		cfg.FinalModel = cfg.Model
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}

	return &Runner{
		store:         cfg.Store,
		executor:      cfg.Executor,
		provider:      cfg.Provider,
		logger:        cfg.Logger,
		model:         cfg.Model,
		finalModel:    cfg.FinalModel,
		maxIterations: cfg.MaxIterations,
		systemPrompt:  cfg.SystemPrompt,
		temperature:   cfg.Temperature,
		maxTokens:     cfg.MaxTokens,
		sink:          cfg.Sink,
	}, nil
}

// Run executes one complete agent run for a user query. A missing or expired
// session is treated as empty history, never as a failure. A model boundary
// failure is fatal to the run and is not retried.
func (r *Runner) Run(ctx context.Context, query, sessionID string) (RunResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if tracing.GetTraceID(ctx) == "" {
		ctx = tracing.NewRequestContext(ctx)
	}
	ctx = tracing.NewAgentRunContext(ctx)
	if sessionID != "" {
		ctx = tracing.WithSessionID(ctx, sessionID)
	}

	ctx, span := tracing.StartSpan(
		ctx,
		"agent.run",
		attribute.String("session_id", sessionID),
		attribute.String("query", query),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, r.logger)
	start := time.Now()

	result, err := r.execute(ctx, logger, query, sessionID)
	observability.RecordAgentRun(time.Since(start), result.Iterations, err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Msg("Agent run failed")
		return RunResult{}, err
	}

	span.SetAttributes(
		attribute.Int("iterations", result.Iterations),
		attribute.Int("tool_calls", len(result.ToolCalls)),
	)
	result.TraceID = tracing.GetTraceID(ctx)

	logger.Info().
		Int("iterations", result.Iterations).
		Int("tool_calls", len(result.ToolCalls)).
		Msg("Agent run completed")

	return result, nil
}

func (r *Runner) execute(ctx context.Context, logger zerolog.Logger, query, sessionID string) (RunResult, error) {
	buffer := r.buildBuffer(query, sessionID)
	toolDefs := r.executor.Definitions()

	result := RunResult{ToolCalls: []ToolCall{}}

	for n := 1; n <= r.maxIterations; n++ {
		response, err := r.callModel(ctx, r.model, buffer, toolDefs)
		if err != nil {
			return result, fmt.Errorf("model call failed: %w", err)
		}
		result.Usage.InputTokens += response.Usage.InputTokens
		result.Usage.OutputTokens += response.Usage.OutputTokens

		// No tool requests: natural completion.
		if len(response.ToolCalls) == 0 {
			result.Content = response.Content
			result.Iterations = n
			result.Reasoning = reasoning(len(result.ToolCalls), n)
			return result, nil
		}

		buffer = append(buffer, ChatMessage{
			Role:      "assistant",
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
		})

		// Dispatch sequentially so tool-result ordering matches the order the
		// model requested them.
		for _, tc := range response.ToolCalls {
			record, message := r.dispatchToolCall(ctx, logger, n, sessionID, tc)
			result.ToolCalls = append(result.ToolCalls, record)
			buffer = append(buffer, message)
		}
	}

	// Iteration cap exhausted while the model still wants tools: force one
	// tool-free call so the caller always receives an answer.
	logger.Warn().
		Int("max_iterations", r.maxIterations).
		Msg("Iteration cap reached, forcing final answer")

	buffer = append(buffer, ChatMessage{
		Role:    "user",
		Content: finalAnswerInstruction,
	})

	response, err := r.callModel(ctx, r.finalModel, buffer, nil)
	if err != nil {
		return result, fmt.Errorf("forced final call failed: %w", err)
	}
	result.Usage.InputTokens += response.Usage.InputTokens
	result.Usage.OutputTokens += response.Usage.OutputTokens

	result.Content = response.Content
	result.Iterations = r.maxIterations + 1
	result.Reasoning = reasoning(len(result.ToolCalls), result.Iterations)
	return result, nil
}

// buildBuffer assembles the initial conversation buffer: system prompt,
// persisted history, current query.
func (r *Runner) buildBuffer(query, sessionID string) []ChatMessage {
	buffer := []ChatMessage{{Role: "system", Content: r.systemPrompt}}

	if r.store != nil && sessionID != "" {
		if sess, ok := r.store.GetSession(sessionID); ok {
			for _, msg := range sess.Messages {
				buffer = append(buffer, ChatMessage{Role: msg.Role, Content: msg.Content})
			}
		}
	}

	return append(buffer, ChatMessage{Role: "user", Content: query})
}

// callModel makes one model boundary call wrapped in a span.
func (r *Runner) callModel(ctx context.Context, model string, buffer []ChatMessage, toolDefs []tools.Definition) (*LLMResponse, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"agent.model_call",
		attribute.String("model", model),
		attribute.Int("messages", len(buffer)),
		attribute.Int("tools", len(toolDefs)),
	)
	defer span.End()

	start := time.Now()
	response, err := r.provider.Call(ctx, LLMRequest{
		Model:        model,
		Messages:     buffer,
		Tools:        toolDefs,
		Temperature:  r.temperature,
		MaxTokens:    r.maxTokens,
		SystemPrompt: r.systemPrompt,
	})
	observability.RecordModelCall(r.provider.Provider(), time.Since(start), err == nil)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("tool_requests", len(response.ToolCalls)))
	return response, nil
}

// dispatchToolCall executes one tool call and folds its outcome back into the
// conversation. A failure never aborts the run; it becomes context the model
// can adapt to.
func (r *Runner) dispatchToolCall(ctx context.Context, logger zerolog.Logger, iteration int, sessionID string, tc ToolCall) (ToolCall, ChatMessage) {
	r.notify(ToolCallEvent{Phase: PhaseStarted, SessionID: sessionID, Iteration: iteration, Call: tc})

	ctx, span := tracing.StartSpan(
		ctx,
		"tool.execute",
		attribute.String("tool", tc.Name),
		attribute.String("tool_call_id", tc.ID),
	)
	defer span.End()

	res := r.executor.Execute(ctx, tc.Name, tc.Arguments)

	record := ToolCall{
		ID:        tc.ID,
		Name:      tc.Name,
		Arguments: tc.Arguments,
	}

	var message ChatMessage
	if res.OK {
		record.Result = res.Output
		message = ChatMessage{
			Role:       "tool",
			Content:    renderToolOutput(res.Output),
			ToolCallID: tc.ID,
		}
	} else {
		record.Error = res.Err
		span.SetStatus(codes.Error, res.Err)
		logger.Warn().
			Str("tool", tc.Name).
			Str("error", res.Err).
			Msg("Tool call failed, continuing run")
		message = ChatMessage{
			Role:       "tool",
			Content:    fmt.Sprintf("Error: %s", res.Err),
			ToolCallID: tc.ID,
		}
	}

	r.notify(ToolCallEvent{Phase: PhaseFinished, SessionID: sessionID, Iteration: iteration, Call: record})
	return record, message
}

func (r *Runner) notify(event ToolCallEvent) {
	if r.sink != nil {
		r.sink(event)
	}
}

func renderToolOutput(output interface{}) string {
	if s, ok := output.(string); ok {
		return s
	}
	data, err := json.Marshal(output)
	if err != nil {
		return fmt.Sprintf("%v", output)
	}
	return string(data)
}

// reasoning builds the informational summary attached to every result. It is
// generated, not model-authored, and plays no part in control flow.
func reasoning(toolCalls, iterations int) string {
	return fmt.Sprintf("Generated answer using %d tool(s) across %d iteration(s).", toolCalls, iterations)
}
