package streaming

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/parley/pkg/chat"
	"github.com/go-go-golems/parley/pkg/events"
	"github.com/go-go-golems/parley/pkg/providers"
	"github.com/go-go-golems/parley/pkg/tools"
)

// scriptedClock returns pre-programmed instants in order, sticking at the
// last one once the script runs out.
type scriptedClock struct {
	times []time.Time
	idx   int
}

func (c *scriptedClock) Now() time.Time {
	if c.idx >= len(c.times) {
		return c.times[len(c.times)-1]
	}
	t := c.times[c.idx]
	c.idx++
	return t
}

// fakeService replays one scripted producer per completion round and records
// the conversations each round was asked to complete.
type fakeService struct {
	mu       sync.Mutex
	rounds   []func(ctx context.Context, st *providers.Stream)
	requests [][]*chat.Conversation
}

func (f *fakeService) StreamResponse(ctx context.Context, conversations []*chat.Conversation, _ *chat.SessionConfig) (*providers.Stream, error) {
	f.mu.Lock()
	round := len(f.requests)
	f.requests = append(f.requests, conversations)
	f.mu.Unlock()

	st := providers.NewStream()
	go f.rounds[round](ctx, st)
	return st, nil
}

func (f *fakeService) NonStreamingResponse(ctx context.Context, conversations []*chat.Conversation, _ *chat.SessionConfig) (*providers.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, conversations)
	f.mu.Unlock()
	return &providers.Response{Content: "one-shot answer"}, nil
}

func (f *fakeService) RefreshModels(context.Context, *chat.Provider) ([]chat.Model, error) {
	return nil, nil
}

func (f *fakeService) TestModel(context.Context, *chat.Provider, chat.Model) bool {
	return true
}

func (f *fakeService) roundCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingSink) PublishEvent(event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingSink) ofType(t events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ret []events.Event
	for _, ev := range r.events {
		if ev.Type() == t {
			ret = append(ret, ev)
		}
	}
	return ret
}

type handlerFixture struct {
	session   *chat.Session
	assistant *chat.Conversation
	sink      *recordingSink
}

func newHandlerFixture(t *testing.T, prompt string) *handlerFixture {
	t.Helper()

	config := chat.NewSessionConfig(chat.NewProvider(chat.ProviderOpenAI))
	s := chat.NewSession(config)
	s.AddGroup(chat.NewConversation(chat.RoleUser, prompt))

	assistant := chat.NewConversation(chat.RoleAssistant, "",
		chat.WithModel(config.Model.Code), chat.WithReplying())
	s.AddGroup(assistant)

	return &handlerFixture{
		session:   s,
		assistant: assistant,
		sink:      &recordingSink{},
	}
}

func (f *handlerFixture) newHandler(t *testing.T, service providers.Service, extra ...HandlerOption) *Handler {
	t.Helper()

	options := append([]HandlerOption{
		WithSession(f.session),
		WithService(service),
		WithConversations(chat.ContextFor(f.session, chat.WithoutTrailingGroup())),
		WithAssistant(f.assistant),
		WithConfig(f.session.Config),
		WithSinks(f.sink),
	}, extra...)

	h, err := NewHandler(options...)
	require.NoError(t, err)
	return h
}

func TestStreamingRunPacesFlushes(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := &scriptedClock{times: []time.Time{
		base, // stream start
		base.Add(50 * time.Millisecond),
		base.Add(200 * time.Millisecond),
		base.Add(250 * time.Millisecond),
	}}

	service := &fakeService{rounds: []func(context.Context, *providers.Stream){
		func(ctx context.Context, st *providers.Stream) {
			st.Emit(ctx, providers.ContentDelta{Text: "The"})
			st.Emit(ctx, providers.ContentDelta{Text: " quick"})
			st.Emit(ctx, providers.ContentDelta{Text: " fox"})
			st.Close(nil)
		},
	}}

	f := newHandlerFixture(t, "tell me about foxes")
	h := f.newHandler(t, service,
		WithFlushInterval(150*time.Millisecond), WithClock(clock))

	require.NoError(t, h.Run(context.Background()))

	require.Equal(t, "The quick fox", f.assistant.Content)
	require.False(t, f.assistant.IsReplying)
	require.Equal(t, StateFinalized, h.State())

	// The first delta arrives 50ms after stream start and is coalesced, the
	// second crosses the interval and flushes, the third is coalesced again
	// and lands in the final flush.
	require.Equal(t, 2, h.FlushCount())
	require.Len(t, f.sink.ofType(events.EventTypePartialCompletion), 1)
	require.Len(t, f.sink.ofType(events.EventTypeFinal), 1)
}

func TestFirstDeltaWaitsOutFlushInterval(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := &scriptedClock{times: []time.Time{
		base, // stream start
		base.Add(50 * time.Millisecond),
		base.Add(100 * time.Millisecond),
	}}

	service := &fakeService{rounds: []func(context.Context, *providers.Stream){
		func(ctx context.Context, st *providers.Stream) {
			st.Emit(ctx, providers.ContentDelta{Text: "Hi"})
			st.Emit(ctx, providers.ContentDelta{Text: " there"})
			st.Close(nil)
		},
	}}

	f := newHandlerFixture(t, "hi")
	h := f.newHandler(t, service,
		WithFlushInterval(200*time.Millisecond), WithClock(clock))

	require.NoError(t, h.Run(context.Background()))

	// Both deltas arrive inside the interval, so only the final flush applies.
	require.Equal(t, 1, h.FlushCount())
	require.Empty(t, f.sink.ofType(events.EventTypePartialCompletion))
	require.Equal(t, "Hi there", f.assistant.Content)
}

func TestOneShotRunAppliesWholeCompletion(t *testing.T) {
	service := &fakeService{}
	f := newHandlerFixture(t, "hello")
	f.session.Config.Stream = false

	h := f.newHandler(t, service)
	require.NoError(t, h.Run(context.Background()))

	require.Equal(t, "one-shot answer", f.assistant.Content)
	require.Equal(t, 1, h.FlushCount())
	require.Equal(t, StateFinalized, h.State())
	require.Len(t, f.sink.ofType(events.EventTypeFinal), 1)
}

func TestCancelledRunKeepsOnlyFlushedContent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := &scriptedClock{times: []time.Time{
		base, // stream start
		base.Add(200 * time.Millisecond),
	}}

	service := &fakeService{rounds: []func(context.Context, *providers.Stream){
		func(ctx context.Context, st *providers.Stream) {
			st.Emit(ctx, providers.ContentDelta{Text: "partial answer"})
			cancel()
			st.Close(context.Canceled)
		},
	}}

	f := newHandlerFixture(t, "a long question")
	h := f.newHandler(t, service, WithClock(clock))

	err := h.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, StateCancelled, h.State())
	require.Equal(t, "partial answer", f.assistant.Content)

	interrupts := f.sink.ofType(events.EventTypeInterrupt)
	require.Len(t, interrupts, 1)
	interrupt, ok := interrupts[0].(*events.EventInterrupt)
	require.True(t, ok)
	require.Equal(t, "partial answer", interrupt.Text)
}

func TestStreamErrorEndsRunAsErrored(t *testing.T) {
	service := &fakeService{rounds: []func(context.Context, *providers.Stream){
		func(ctx context.Context, st *providers.Stream) {
			st.Emit(ctx, providers.ContentDelta{Text: "beginning of"})
			st.Close(&providers.ProviderError{
				Kind: providers.ErrKindRateLimit, StatusCode: 429, Message: "slow down",
			})
		},
	}}

	f := newHandlerFixture(t, "hi")
	h := f.newHandler(t, service)

	err := h.Run(context.Background())
	require.Error(t, err)

	var provErr *providers.ProviderError
	require.ErrorAs(t, err, &provErr)
	require.Equal(t, providers.ErrKindRateLimit, provErr.Kind)
	require.Equal(t, StateErrored, h.State())
	require.Len(t, f.sink.ofType(events.EventTypeError), 1)
}

func TestToolLoopRecordsResultsAndContinues(t *testing.T) {
	registry := tools.NewRegistry()
	var executed []string
	require.NoError(t, registry.Register(tools.Definition{
		Name:        "weather",
		Description: "current weather for a city",
		Run: func(_ context.Context, args json.RawMessage) (tools.Result, error) {
			var req struct {
				City string `json:"city"`
			}
			if err := json.Unmarshal(args, &req); err != nil {
				return tools.Result{}, err
			}
			executed = append(executed, req.City)
			return tools.Result{Content: "sunny in " + req.City}, nil
		},
	}))

	calls := []chat.ToolCall{
		{ID: "call-1", Name: "weather", Arguments: json.RawMessage(`{"city":"Paris"}`)},
		{ID: "call-2", Name: "weather", Arguments: json.RawMessage(`{"city":"Oslo"}`)},
	}

	service := &fakeService{rounds: []func(context.Context, *providers.Stream){
		func(ctx context.Context, st *providers.Stream) {
			st.Emit(ctx, providers.ToolCallsRequested{Calls: calls})
			st.Close(nil)
		},
		func(ctx context.Context, st *providers.Stream) {
			st.Emit(ctx, providers.ContentDelta{Text: "Sunny in both cities."})
			st.Close(nil)
		},
	}}

	f := newHandlerFixture(t, "weather in Paris and Oslo?")
	h := f.newHandler(t, service, WithExecutor(tools.NewExecutor(registry)))

	require.NoError(t, h.Run(context.Background()))
	require.Equal(t, StateFinalized, h.State())
	require.Equal(t, []string{"Paris", "Oslo"}, executed)

	// user, assistant with tool calls, two tool results, final assistant
	groups := f.session.Groups()
	require.Len(t, groups, 5)
	require.Equal(t, calls, f.assistant.ToolCalls)
	require.False(t, f.assistant.IsReplying)

	first := groups[2].ActiveConversation()
	require.Equal(t, chat.RoleTool, first.Role)
	require.NotNil(t, first.ToolResponse)
	require.Equal(t, "call-1", first.ToolResponse.ToolCallID)
	require.Equal(t, "sunny in Paris", first.ToolResponse.Content)

	second := groups[3].ActiveConversation()
	require.Equal(t, "call-2", second.ToolResponse.ToolCallID)

	final := h.Assistant()
	require.NotSame(t, f.assistant, final)
	require.Equal(t, "Sunny in both cities.", final.Content)
	require.False(t, final.IsReplying)
	require.Same(t, final, f.session.LastGroup().ActiveConversation())

	// The continuation round sees the tool results but not its own placeholder.
	require.Equal(t, 2, service.roundCount())
	continuation := service.requests[1]
	require.Equal(t, chat.RoleTool, continuation[len(continuation)-1].Role)

	require.Len(t, f.sink.ofType(events.EventTypeToolCall), 2)
	require.Len(t, f.sink.ofType(events.EventTypeToolCallExecute), 2)
	require.Len(t, f.sink.ofType(events.EventTypeToolCallExecutionResult), 2)
	require.Len(t, f.sink.ofType(events.EventTypeStart), 2)
}

func TestBinaryToolResultSkipsContinuation(t *testing.T) {
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(tools.Definition{
		Name:        "render_chart",
		Description: "renders a chart image",
		Run: func(context.Context, json.RawMessage) (tools.Result, error) {
			return tools.Result{
				Content: "chart rendered",
				Data: []chat.TypedData{{
					FileName: "chart.png",
					MimeType: "image/png",
					Kind:     chat.FileKindImage,
					Data:     []byte{0x89, 0x50},
				}},
			}, nil
		},
	}))

	service := &fakeService{rounds: []func(context.Context, *providers.Stream){
		func(ctx context.Context, st *providers.Stream) {
			st.Emit(ctx, providers.ToolCallsRequested{Calls: []chat.ToolCall{
				{ID: "call-1", Name: "render_chart", Arguments: json.RawMessage(`{}`)},
			}})
			st.Close(nil)
		},
	}}

	f := newHandlerFixture(t, "plot this")
	h := f.newHandler(t, service, WithExecutor(tools.NewExecutor(registry)))

	require.NoError(t, h.Run(context.Background()))
	require.Equal(t, StateFinalized, h.State())

	// Only one backend round: the binary artifact ends the exchange.
	require.Equal(t, 1, service.roundCount())

	final := h.Assistant()
	require.Len(t, final.DataFiles, 1)
	require.Equal(t, "chart.png", final.DataFiles[0].FileName)
	require.False(t, final.IsReplying)
}

func TestToolCallsWithoutExecutorFail(t *testing.T) {
	service := &fakeService{rounds: []func(context.Context, *providers.Stream){
		func(ctx context.Context, st *providers.Stream) {
			st.Emit(ctx, providers.ToolCallsRequested{Calls: []chat.ToolCall{
				{ID: "call-1", Name: "anything", Arguments: json.RawMessage(`{}`)},
			}})
			st.Close(nil)
		},
	}}

	f := newHandlerFixture(t, "hi")
	h := f.newHandler(t, service)

	err := h.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "no executor")
	require.Equal(t, StateErrored, h.State())
}
