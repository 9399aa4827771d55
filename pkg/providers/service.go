package providers

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/parley/pkg/chat"
)

// StreamEvent is one item of a streaming response. The concrete types are
// ContentDelta and ToolCallsRequested.
type StreamEvent interface {
	streamEvent()
}

// ContentDelta carries one increment of assistant text.
type ContentDelta struct {
	Text string
}

func (ContentDelta) streamEvent() {}

// ToolCallsRequested carries the complete set of tool calls the model asked
// for. It is emitted at most once, after all call arguments have been
// assembled from the stream.
type ToolCallsRequested struct {
	Calls []chat.ToolCall
}

func (ToolCallsRequested) streamEvent() {}

// Stream delivers StreamEvents from a backend. After the events channel is
// closed, Err reports whether the stream ended cleanly.
type Stream struct {
	events chan StreamEvent
	err    error
}

func NewStream() *Stream {
	return &Stream{
		events: make(chan StreamEvent),
	}
}

// Events returns the channel of stream items. It is closed when the backend
// response ends, whether cleanly or not.
func (s *Stream) Events() <-chan StreamEvent {
	return s.events
}

// Err returns the terminal error of the stream. Only valid after Events has
// been closed.
func (s *Stream) Err() error {
	return s.err
}

// Emit delivers ev to the consumer. Returns false when ctx is done, in which
// case the producer should stop.
func (s *Stream) Emit(ctx context.Context, ev StreamEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Close ends the stream with the given terminal error (nil for a clean end).
// Must be called exactly once, by the producer.
func (s *Stream) Close(err error) {
	s.err = err
	close(s.events)
}

// Response is a complete non-streaming backend answer.
type Response struct {
	Content   string
	ToolCalls []chat.ToolCall
}

// Service is the contract each backend adapter implements. Conversations are
// already selected and ordered by the caller; adapters only translate and
// transport.
type Service interface {
	// StreamResponse starts a streaming completion. The returned stream is
	// fed from a goroutine owned by the adapter.
	StreamResponse(ctx context.Context, conversations []*chat.Conversation, config *chat.SessionConfig) (*Stream, error)

	// NonStreamingResponse performs a one-shot completion.
	NonStreamingResponse(ctx context.Context, conversations []*chat.Conversation, config *chat.SessionConfig) (*Response, error)

	// RefreshModels lists the models the backend currently offers. Callers
	// that only want a catalog update should go through ListModels, which
	// treats failures as best-effort.
	RefreshModels(ctx context.Context, provider *chat.Provider) ([]chat.Model, error)

	// TestModel checks that a model answers at all, with a minimal prompt.
	TestModel(ctx context.Context, provider *chat.Provider, model chat.Model) bool
}

// ListModels refreshes the provider's model catalog best-effort: a dead or
// misconfigured endpoint yields an empty list instead of an error.
func ListModels(ctx context.Context, service Service, provider *chat.Provider) []chat.Model {
	models, err := service.RefreshModels(ctx, provider)
	if err != nil {
		log.Debug().Err(err).Str("provider", string(provider.Kind)).Msg("model refresh failed")
		return nil
	}
	return models
}
