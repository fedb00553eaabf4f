package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceContext(t *testing.T) {
	t.Run("should round trip ids through the context", func(t *testing.T) {
		ctx := context.Background()
		ctx = WithTraceID(ctx, "trace-1")
		ctx = WithRunID(ctx, "run-1")
		ctx = WithSessionID(ctx, "sess-1")

		assert.Equal(t, "trace-1", GetTraceID(ctx))
		assert.Equal(t, "run-1", GetRunID(ctx))
		assert.Equal(t, "sess-1", GetSessionID(ctx))

		tc := FromContext(ctx)
		assert.Equal(t, "trace-1", tc.TraceID)
		assert.Equal(t, "run-1", tc.RunID)
		assert.Equal(t, "sess-1", tc.SessionID)
	})

	t.Run("should return empty strings from a bare context", func(t *testing.T) {
		ctx := context.Background()

		assert.Empty(t, GetTraceID(ctx))
		assert.Empty(t, GetRunID(ctx))
		assert.Empty(t, GetSessionID(ctx))
	})

	t.Run("should mint fresh ids per request and run", func(t *testing.T) {
		first := NewRequestContext(context.Background())
		second := NewRequestContext(context.Background())

		assert.NotEmpty(t, GetTraceID(first))
		assert.NotEqual(t, GetTraceID(first), GetTraceID(second))

		run := NewAgentRunContext(first)
		assert.NotEmpty(t, GetRunID(run))
		assert.Equal(t, GetTraceID(first), GetTraceID(run), "run context keeps the trace id")
	})
}

func TestPropagateToLogger(t *testing.T) {
	t.Run("should stamp trace fields onto log lines", func(t *testing.T) {
		var buf bytes.Buffer
		logger := zerolog.New(&buf)

		ctx := WithSessionID(WithTraceID(context.Background(), "trace-9"), "sess-9")
		stamped := LoggerFromContext(ctx, logger)
		stamped.Info().Msg("hello")

		line := buf.String()
		require.NotEmpty(t, line)
		assert.Contains(t, line, `"trace_id":"trace-9"`)
		assert.Contains(t, line, `"session_id":"sess-9"`)
		assert.NotContains(t, line, "run_id")
	})

	t.Run("should leave the logger untouched for a bare context", func(t *testing.T) {
		var buf bytes.Buffer
		logger := zerolog.New(&buf)

		plain := LoggerFromContext(context.Background(), logger)
		plain.Info().Msg("hello")

		assert.NotContains(t, buf.String(), "trace_id")
	})
}
