// Package tools dispatches model-requested tool calls to a fixed set of
// external capabilities. Every failure path produces a Result with a
// descriptive error; the caller decides what to do with it, the executor
// never aborts a run.
package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/probelab/scout/internal/observability"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

// Handler is the function signature for tool execution.
type Handler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Definition declares a tool: its name, what it does, and the JSON schema of
// its arguments. The schema is what the model boundary receives.
type Definition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
	Handler     Handler                `json:"-"`
}

// Result represents the outcome of one tool dispatch.
type Result struct {
	OK       bool          `json:"ok"`
	Output   interface{}   `json:"output,omitempty"`
	Err      string        `json:"error,omitempty"`
	Duration time.Duration `json:"-"`
}

// Executor manages and executes the registered capabilities.
type Executor struct {
	mu      sync.RWMutex
	tools   map[string]*Definition
	schemas map[string]*gojsonschema.Schema
	logger  zerolog.Logger
}

// New creates a new Executor.
func New(logger zerolog.Logger) *Executor {
	observability.EnsureRegistered()
	return &Executor{
		tools:   make(map[string]*Definition),
		schemas: make(map[string]*gojsonschema.Schema),
		logger:  logger,
	}
}

// Register adds a tool to the executor.
func (e *Executor) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}
	if def.InputSchema == nil {
		return fmt.Errorf("tool input schema cannot be nil")
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def.InputSchema))
	if err != nil {
		return fmt.Errorf("invalid input schema for tool %s: %w", def.Name, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.tools[def.Name] = &def
	e.schemas[def.Name] = schema

	e.logger.Info().Str("tool", def.Name).Msg("Tool registered")
	return nil
}

// Definitions returns the declared tools, for handing to the model boundary.
func (e *Executor) Definitions() []Definition {
	e.mu.RLock()
	defer e.mu.RUnlock()

	defs := make([]Definition, 0, len(e.tools))
	for _, def := range e.tools {
		defs = append(defs, *def)
	}
	return defs
}

// Has reports whether a tool with the given name is registered.
func (e *Executor) Has(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.tools[name]
	return ok
}

// Execute dispatches one tool call. Unknown names, schema-invalid arguments
// and handler failures all come back as Result.Err, never as a panic or a
// propagated error.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]interface{}) Result {
	start := time.Now()

	e.mu.RLock()
	tool := e.tools[name]
	schema := e.schemas[name]
	e.mu.RUnlock()

	if tool == nil {
		e.logger.Warn().Str("tool", name).Msg("Unknown tool requested")
		observability.RecordToolExecution(name, time.Since(start), false)
		return Result{
			OK:       false,
			Err:      fmt.Sprintf("Unknown tool: %s", name),
			Duration: time.Since(start),
		}
	}

	if args == nil {
		args = map[string]interface{}{}
	}

	if err := validateArgs(schema, args); err != nil {
		e.logger.Warn().Str("tool", name).Err(err).Msg("Tool argument validation failed")
		observability.RecordToolExecution(name, time.Since(start), false)
		return Result{
			OK:       false,
			Err:      fmt.Sprintf("invalid arguments for %s: %v", name, err),
			Duration: time.Since(start),
		}
	}

	e.logger.Debug().Str("tool", name).Msg("Executing tool")

	output, err := tool.Handler(ctx, args)
	duration := time.Since(start)
	observability.RecordToolExecution(name, duration, err == nil)

	if err != nil {
		e.logger.Warn().
			Str("tool", name).
			Dur("duration", duration).
			Err(err).
			Msg("Tool execution failed")
		return Result{OK: false, Err: err.Error(), Duration: duration}
	}

	e.logger.Debug().
		Str("tool", name).
		Dur("duration", duration).
		Msg("Tool execution completed")

	return Result{OK: true, Output: output, Duration: duration}
}

func validateArgs(schema *gojsonschema.Schema, args map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return err
	}
	if !result.Valid() {
		msgs := []string{}
		for _, verr := range result.Errors() {
			msgs = append(msgs, verr.String())
		}
		return fmt.Errorf("validation errors: %v", msgs)
	}
	return nil
}
