package claude

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

type StreamingEventType string

const (
	PingType              StreamingEventType = "ping"
	MessageStartType      StreamingEventType = "message_start"
	ContentBlockStartType StreamingEventType = "content_block_start"
	ContentBlockDeltaType StreamingEventType = "content_block_delta"
	ContentBlockStopType  StreamingEventType = "content_block_stop"
	MessageDeltaType      StreamingEventType = "message_delta"
	MessageStopType       StreamingEventType = "message_stop"
	ErrorType             StreamingEventType = "error"
)

type StreamingDeltaType string

const (
	TextDeltaType      StreamingDeltaType = "text_delta"
	InputJSONDeltaType StreamingDeltaType = "input_json_delta"
)

type StreamingEvent struct {
	Type         StreamingEventType `json:"type"`
	Message      *MessageResponse   `json:"message,omitempty"`
	Delta        *Delta             `json:"delta,omitempty"`
	Error        *StreamingError    `json:"error,omitempty"`
	Index        int                `json:"index,omitempty"`
	Usage        *Usage             `json:"usage,omitempty"`
	ContentBlock *Content           `json:"content_block,omitempty"`
}

type StreamingError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type Delta struct {
	Type        StreamingDeltaType `json:"type"`
	Text        string             `json:"text,omitempty"`
	PartialJSON string             `json:"partial_json"`
	StopReason  string             `json:"stop_reason,omitempty"`
}

// streamEvents reads the SSE body and delivers parsed events. Events are
// delimited by blank lines, data fields accumulate across lines.
func streamEvents(ctx context.Context, resp *http.Response, events chan StreamingEvent) {
	defer close(events)
	defer func(body io.ReadCloser) {
		_ = body.Close()
	}(resp.Body)

	reader := bufio.NewReader(resp.Body)
	var eventLines [][]byte
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF {
				log.Debug().Err(err).Msg("streaming read ended")
			}
			return
		}

		if len(bytes.TrimSpace(line)) != 0 {
			eventLines = append(eventLines, line)
			continue
		}

		var event StreamingEvent
		if parseErr := parseSSEEvent(eventLines, &event); parseErr != nil {
			log.Debug().Err(parseErr).Msg("failed to parse SSE event")
			eventLines = eventLines[:0]
			continue
		}
		eventLines = eventLines[:0]

		select {
		case events <- event:
		case <-ctx.Done():
			return
		}
	}
}

func parseSSEEvent(lines [][]byte, event *StreamingEvent) error {
	eventData := ""
	for _, line := range lines {
		line = bytes.TrimSuffix(line, []byte("\n"))
		line = bytes.TrimSuffix(line, []byte("\r"))

		parts := bytes.SplitN(line, []byte(": "), 2)
		if len(parts) != 2 {
			continue
		}

		field, value := parts[0], parts[1]
		if string(field) == "data" {
			eventData += string(value) + "\n"
		}
	}

	eventData = strings.TrimSuffix(eventData, "\n")

	return json.Unmarshal([]byte(eventData), event)
}
