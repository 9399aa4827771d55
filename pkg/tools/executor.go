package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/parley/pkg/chat"
)

const defaultToolTimeout = 60 * time.Second

// Executor runs tool calls against a registry. Failures never surface as
// errors to the caller: a failed call produces an error-text result keyed by
// the call ID, so the model can react to it.
type Executor struct {
	registry *Registry
	timeout  time.Duration
}

type ExecutorOption func(*Executor)

func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.timeout = d
	}
}

func NewExecutor(registry *Registry, options ...ExecutorOption) *Executor {
	ret := &Executor{
		registry: registry,
		timeout:  defaultToolTimeout,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

// Execute runs one tool call and always returns a response.
func (e *Executor) Execute(ctx context.Context, call chat.ToolCall) chat.ToolResponse {
	resp := chat.ToolResponse{
		ToolCallID: call.ID,
		Tool:       call.Name,
	}

	def, err := e.registry.Get(call.Name)
	if err != nil {
		resp.Content = fmt.Sprintf("Error: unknown tool %q", call.Name)
		return resp
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	started := time.Now()
	result, err := def.Run(runCtx, call.Arguments)
	if err != nil {
		log.Warn().Err(err).Str("tool", call.Name).Str("call_id", call.ID).
			Msg("tool execution failed")
		resp.Content = fmt.Sprintf("Error: %s", err.Error())
		return resp
	}

	log.Debug().Str("tool", call.Name).Str("call_id", call.ID).
		Dur("duration", time.Since(started)).Msg("tool executed")

	resp.Content = result.Content
	resp.Data = result.Data
	return resp
}

// ExecuteBatch runs the calls strictly in order. A failed call does not stop
// the batch.
func (e *Executor) ExecuteBatch(ctx context.Context, calls []chat.ToolCall) []chat.ToolResponse {
	ret := make([]chat.ToolResponse, 0, len(calls))
	for _, call := range calls {
		ret = append(ret, e.Execute(ctx, call))
	}
	return ret
}
