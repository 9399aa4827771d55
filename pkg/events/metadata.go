package events

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Usage holds token accounting common across backends.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// EventMetadata travels with every event of one completion run, so consumers
// can correlate events with the session and message they belong to.
type EventMetadata struct {
	ID        uuid.UUID `json:"message_id"`
	SessionID uuid.UUID `json:"session_id"`

	Model      string  `json:"model,omitempty"`
	StopReason *string `json:"stop_reason,omitempty"`
	Usage      *Usage  `json:"usage,omitempty"`
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("message_id", em.ID.String())
	e.Str("session_id", em.SessionID.String())
	if em.Model != "" {
		e.Str("model", em.Model)
	}
	if em.StopReason != nil && *em.StopReason != "" {
		e.Str("stop_reason", *em.StopReason)
	}
	if em.Usage != nil {
		e.Int("input_tokens", em.Usage.InputTokens)
		e.Int("output_tokens", em.Usage.OutputTokens)
	}
}
