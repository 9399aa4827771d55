package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/parley/pkg/chat"
)

func echoTool(t *testing.T, registry *Registry) {
	t.Helper()
	require.NoError(t, registry.Register(Definition{
		Name:        "echo",
		Description: "repeats its input",
		Run: func(_ context.Context, args json.RawMessage) (Result, error) {
			var req struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(args, &req); err != nil {
				return Result{}, err
			}
			return Result{Content: req.Text}, nil
		},
	}))
}

func TestExecuteUnknownToolProducesErrorResult(t *testing.T) {
	executor := NewExecutor(NewRegistry())

	resp := executor.Execute(context.Background(), chat.ToolCall{
		ID: "call-1", Name: "does_not_exist", Arguments: json.RawMessage(`{}`),
	})

	require.Equal(t, "call-1", resp.ToolCallID)
	require.Equal(t, "does_not_exist", resp.Tool)
	require.Contains(t, resp.Content, "unknown tool")
}

func TestExecuteFailingToolProducesErrorResult(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(Definition{
		Name:        "flaky",
		Description: "always fails",
		Run: func(context.Context, json.RawMessage) (Result, error) {
			return Result{}, errors.New("upstream timed out")
		},
	}))

	resp := NewExecutor(registry).Execute(context.Background(), chat.ToolCall{
		ID: "call-1", Name: "flaky", Arguments: json.RawMessage(`{}`),
	})

	require.Equal(t, "Error: upstream timed out", resp.Content)
}

func TestExecuteBatchRunsInOrderAndSurvivesFailures(t *testing.T) {
	registry := NewRegistry()
	echoTool(t, registry)
	require.NoError(t, registry.Register(Definition{
		Name:        "broken",
		Description: "always fails",
		Run: func(context.Context, json.RawMessage) (Result, error) {
			return Result{}, errors.New("nope")
		},
	}))

	responses := NewExecutor(registry).ExecuteBatch(context.Background(), []chat.ToolCall{
		{ID: "c1", Name: "echo", Arguments: json.RawMessage(`{"text":"one"}`)},
		{ID: "c2", Name: "broken", Arguments: json.RawMessage(`{}`)},
		{ID: "c3", Name: "echo", Arguments: json.RawMessage(`{"text":"three"}`)},
	})

	require.Len(t, responses, 3)
	require.Equal(t, "one", responses[0].Content)
	require.Equal(t, "Error: nope", responses[1].Content)
	require.Equal(t, "three", responses[2].Content)
	require.Equal(t, []string{"c1", "c2", "c3"}, []string{
		responses[0].ToolCallID, responses[1].ToolCallID, responses[2].ToolCallID,
	})
}

func TestRegisterValidatesDefinition(t *testing.T) {
	registry := NewRegistry()

	require.Error(t, registry.Register(Definition{Name: ""}))
	require.Error(t, registry.Register(Definition{Name: "no_run"}))
}

func TestSpecDefaultsToEmptyObjectSchema(t *testing.T) {
	def := Definition{
		Name:        "bare",
		Description: "takes no arguments",
		Run: func(context.Context, json.RawMessage) (Result, error) {
			return Result{}, nil
		},
	}

	spec, err := def.Spec()
	require.NoError(t, err)
	require.Equal(t, "bare", spec.Name)
	require.JSONEq(t, `{"type":"object","properties":{}}`, string(spec.Parameters))
}

func TestSpecsFiltersByEnabledNames(t *testing.T) {
	registry := NewRegistry()
	echoTool(t, registry)
	require.NoError(t, registry.Register(Definition{
		Name:        "other",
		Description: "something else",
		Run: func(context.Context, json.RawMessage) (Result, error) {
			return Result{}, nil
		},
	}))

	all, err := registry.Specs(nil)
	require.NoError(t, err)
	require.Len(t, all, 2)

	only, err := registry.Specs([]string{"echo"})
	require.NoError(t, err)
	require.Len(t, only, 1)
	require.Equal(t, "echo", only[0].Name)
}
