package streaming

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/parley/pkg/chat"
	"github.com/go-go-golems/parley/pkg/events"
	"github.com/go-go-golems/parley/pkg/providers"
	"github.com/go-go-golems/parley/pkg/tools"
)

const (
	// DefaultFlushInterval paces how often accumulated deltas are applied to
	// the assistant conversation.
	DefaultFlushInterval = 150 * time.Millisecond

	// maxToolRounds bounds the completion/tool loop.
	maxToolRounds = 8
)

type RunState int32

const (
	StateIdle RunState = iota
	StateStreaming
	StateToolDispatch
	StateFinalized
	StateCancelled
	StateErrored
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateToolDispatch:
		return "tool-dispatch"
	case StateFinalized:
		return "finalized"
	case StateCancelled:
		return "cancelled"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Handler drives one generation run: it feeds the backend stream into the
// assistant conversation, paces updates through the flush gate, and runs the
// tool loop until the model produces a plain completion.
type Handler struct {
	session       *chat.Session
	service       providers.Service
	conversations []*chat.Conversation
	assistant     *chat.Conversation
	config        *chat.SessionConfig
	executor      *tools.Executor
	sinks         []events.EventSink

	flushInterval time.Duration
	clock         Clock

	state atomic.Int32

	accumulated string
	flushed     string
	lastFlush   time.Time
	flushCount  int

	pendingToolCalls []chat.ToolCall
}

type HandlerOption func(*Handler)

func WithSession(s *chat.Session) HandlerOption {
	return func(h *Handler) {
		h.session = s
	}
}

func WithService(service providers.Service) HandlerOption {
	return func(h *Handler) {
		h.service = service
	}
}

func WithConversations(conversations []*chat.Conversation) HandlerOption {
	return func(h *Handler) {
		h.conversations = conversations
	}
}

func WithAssistant(assistant *chat.Conversation) HandlerOption {
	return func(h *Handler) {
		h.assistant = assistant
	}
}

func WithConfig(config *chat.SessionConfig) HandlerOption {
	return func(h *Handler) {
		h.config = config
	}
}

func WithExecutor(executor *tools.Executor) HandlerOption {
	return func(h *Handler) {
		h.executor = executor
	}
}

func WithSinks(sinks ...events.EventSink) HandlerOption {
	return func(h *Handler) {
		h.sinks = append(h.sinks, sinks...)
	}
}

func WithFlushInterval(d time.Duration) HandlerOption {
	return func(h *Handler) {
		h.flushInterval = d
	}
}

func WithClock(clock Clock) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

func NewHandler(options ...HandlerOption) (*Handler, error) {
	ret := &Handler{
		flushInterval: DefaultFlushInterval,
		clock:         SystemClock(),
	}
	for _, o := range options {
		o(ret)
	}

	if ret.session == nil {
		return nil, errors.New("handler needs a session")
	}
	if ret.service == nil {
		return nil, errors.New("handler needs a provider service")
	}
	if ret.assistant == nil {
		return nil, errors.New("handler needs an assistant conversation")
	}
	if ret.config == nil {
		return nil, errors.New("handler needs a session config")
	}

	return ret, nil
}

func (h *Handler) State() RunState {
	return RunState(h.state.Load())
}

func (h *Handler) setState(s RunState) {
	h.state.Store(int32(s))
}

// FlushCount reports how many times deltas were applied to the assistant
// conversation.
func (h *Handler) FlushCount() int {
	return h.flushCount
}

// Assistant returns the conversation currently receiving the completion. The
// tool loop moves this to a fresh placeholder for each continuation round.
func (h *Handler) Assistant() *chat.Conversation {
	return h.assistant
}

func (h *Handler) metadata() events.EventMetadata {
	return events.EventMetadata{
		ID:        h.assistant.ID,
		SessionID: h.session.ID,
		Model:     h.config.Model.Code,
	}
}

func (h *Handler) publishEvent(ctx context.Context, event events.Event) {
	for _, sink := range h.sinks {
		if err := sink.PublishEvent(event); err != nil {
			log.Warn().Err(err).Str("event_type", string(event.Type())).
				Msg("failed to publish event to sink")
		}
	}
	events.PublishEventToContext(ctx, event)
}

// Run performs the whole generation, including tool continuation rounds.
func (h *Handler) Run(ctx context.Context) error {
	return h.run(ctx, 0)
}

func (h *Handler) run(ctx context.Context, round int) error {
	if round >= maxToolRounds {
		err := errors.Errorf("tool call loop exceeded %d rounds", maxToolRounds)
		h.publishEvent(ctx, events.NewErrorEvent(h.metadata(), err))
		h.setState(StateErrored)
		return err
	}

	h.setState(StateStreaming)
	h.publishEvent(ctx, events.NewStartEvent(h.metadata()))

	var err error
	if h.config.Stream {
		err = h.streamCompletion(ctx)
	} else {
		err = h.oneShotCompletion(ctx)
	}
	if err != nil {
		return err
	}

	if len(h.pendingToolCalls) > 0 {
		return h.dispatchTools(ctx, round)
	}

	h.assistant.IsReplying = false
	h.setState(StateFinalized)
	return nil
}

func (h *Handler) streamCompletion(ctx context.Context) error {
	stream, err := h.service.StreamResponse(ctx, h.conversations, h.config)
	if err != nil {
		h.publishEvent(ctx, events.NewErrorEvent(h.metadata(), err))
		h.setState(StateErrored)
		return err
	}

	h.pendingToolCalls = nil
	h.lastFlush = h.clock.Now()

	for event := range stream.Events() {
		switch ev := event.(type) {
		case providers.ContentDelta:
			h.accumulated += ev.Text
			now := h.clock.Now()
			if shouldFlush(h.lastFlush, now, h.flushInterval) {
				h.flush(now)
				h.publishEvent(ctx, events.NewPartialCompletionEvent(
					h.metadata(), ev.Text, h.accumulated))
			}
		case providers.ToolCallsRequested:
			h.pendingToolCalls = ev.Calls
		}
	}

	if err := stream.Err(); err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			// the assistant keeps exactly what was flushed before the cancel
			h.publishEvent(ctx, events.NewInterruptEvent(h.metadata(), h.flushed))
			h.setState(StateCancelled)
			return context.Canceled
		}
		h.publishEvent(ctx, events.NewErrorEvent(h.metadata(), err))
		h.setState(StateErrored)
		return err
	}

	h.flush(h.clock.Now())
	h.publishEvent(ctx, events.NewFinalEvent(h.metadata(), h.accumulated))
	return nil
}

func (h *Handler) flush(now time.Time) {
	h.assistant.Content = h.accumulated
	h.flushed = h.accumulated
	h.lastFlush = now
	h.flushCount++
}

func (h *Handler) oneShotCompletion(ctx context.Context) error {
	resp, err := h.service.NonStreamingResponse(ctx, h.conversations, h.config)
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			h.publishEvent(ctx, events.NewInterruptEvent(h.metadata(), ""))
			h.setState(StateCancelled)
			return context.Canceled
		}
		h.publishEvent(ctx, events.NewErrorEvent(h.metadata(), err))
		h.setState(StateErrored)
		return err
	}

	h.accumulated = resp.Content
	h.flush(h.clock.Now())
	h.pendingToolCalls = resp.ToolCalls
	h.publishEvent(ctx, events.NewFinalEvent(h.metadata(), resp.Content))
	return nil
}

// dispatchTools executes the requested calls strictly in order, records each
// result as a tool conversation, and continues the run on a fresh assistant
// placeholder.
func (h *Handler) dispatchTools(ctx context.Context, round int) error {
	h.setState(StateToolDispatch)

	calls := h.pendingToolCalls
	h.pendingToolCalls = nil

	h.assistant.ToolCalls = calls
	for _, call := range calls {
		h.publishEvent(ctx, events.NewToolCallEvent(h.metadata(), events.ToolCall{
			ID:    call.ID,
			Name:  call.Name,
			Input: string(call.Arguments),
		}))
	}
	h.assistant.IsReplying = false

	if h.executor == nil {
		err := errors.New("model requested tool calls but no executor is configured")
		h.publishEvent(ctx, events.NewErrorEvent(h.metadata(), err))
		h.setState(StateErrored)
		return err
	}

	var binaryData []chat.TypedData
	for _, call := range calls {
		if ctx.Err() != nil {
			h.publishEvent(ctx, events.NewInterruptEvent(h.metadata(), h.flushed))
			h.setState(StateCancelled)
			return context.Canceled
		}

		h.publishEvent(ctx, events.NewToolCallExecuteEvent(h.metadata(), events.ToolCall{
			ID:    call.ID,
			Name:  call.Name,
			Input: string(call.Arguments),
		}))

		resp := h.executor.Execute(ctx, call)
		binaryData = append(binaryData, resp.Data...)

		h.publishEvent(ctx, events.NewToolCallExecutionResultEvent(h.metadata(), events.ToolResult{
			ID:     call.ID,
			Result: resp.Content,
		}))

		respCopy := resp
		toolConv := chat.NewConversation(chat.RoleTool, resp.Content,
			chat.WithToolResponse(&respCopy))
		h.session.AddGroup(toolConv)
	}

	next := chat.NewConversation(chat.RoleAssistant, "",
		chat.WithModel(h.config.Model.Code), chat.WithReplying())
	h.session.AddGroup(next)

	if len(binaryData) > 0 {
		// binary artifacts go straight to the user, no continuation round
		next.DataFiles = binaryData
		next.IsReplying = false
		h.assistant = next
		h.setState(StateFinalized)
		return nil
	}

	h.assistant = next
	h.conversations = chat.ContextFor(h.session, chat.WithoutTrailingGroup())
	h.accumulated = ""
	h.flushed = ""

	return h.run(ctx, round+1)
}
