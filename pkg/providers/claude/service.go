package claude

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/parley/pkg/chat"
	"github.com/go-go-golems/parley/pkg/providers"
)

// Service talks to the Anthropic messages API.
type Service struct{}

var _ providers.Service = (*Service)(nil)

func NewService() *Service {
	return &Service{}
}

func newClient(p *chat.Provider) *Client {
	return NewClient(p.Host, p.APIKey)
}

// toolUseAccumulator rebuilds one tool_use block from streamed
// input_json_delta fragments.
type toolUseAccumulator struct {
	id    string
	name  string
	input string
}

func (s *Service) StreamResponse(
	ctx context.Context,
	conversations []*chat.Conversation,
	config *chat.SessionConfig,
) (*providers.Stream, error) {
	client := newClient(config.Provider)
	req := makeMessageRequest(conversations, config)

	events, err := client.StreamMessage(ctx, req)
	if err != nil {
		return nil, err
	}

	stream := providers.NewStream()
	go func() {
		blocks := map[int]*toolUseAccumulator{}
		var blockOrder []int

		for event := range events {
			switch event.Type {
			case ContentBlockStartType:
				if event.ContentBlock != nil && event.ContentBlock.Type == "tool_use" {
					blocks[event.Index] = &toolUseAccumulator{
						id:   event.ContentBlock.ID,
						name: event.ContentBlock.Name,
					}
					blockOrder = append(blockOrder, event.Index)
				}

			case ContentBlockDeltaType:
				if event.Delta == nil {
					continue
				}
				switch event.Delta.Type {
				case TextDeltaType:
					if !stream.Emit(ctx, providers.ContentDelta{Text: event.Delta.Text}) {
						stream.Close(ctx.Err())
						return
					}
				case InputJSONDeltaType:
					if acc, ok := blocks[event.Index]; ok {
						acc.input += event.Delta.PartialJSON
					}
				}

			case ErrorType:
				message := "stream error"
				if event.Error != nil {
					message = event.Error.Message
				}
				stream.Close(&providers.ProviderError{
					Kind:    providers.ErrKindUnknown,
					Message: message,
				})
				return

			case MessageStopType:
				calls := assembleToolCalls(blocks, blockOrder)
				if len(calls) > 0 {
					if !stream.Emit(ctx, providers.ToolCallsRequested{Calls: calls}) {
						stream.Close(ctx.Err())
						return
					}
				}
				stream.Close(nil)
				return
			}
		}

		// channel closed without message_stop
		if err := ctx.Err(); err != nil {
			stream.Close(errors.Wrap(err, "stream ended unexpectedly"))
			return
		}
		stream.Close(&providers.ProviderError{
			Kind:    providers.ErrKindUnavailable,
			Message: "stream ended unexpectedly",
		})
	}()

	return stream, nil
}

func assembleToolCalls(blocks map[int]*toolUseAccumulator, order []int) []chat.ToolCall {
	var ret []chat.ToolCall
	for _, index := range order {
		acc := blocks[index]
		input := acc.input
		if input == "" {
			input = "{}"
		}
		ret = append(ret, chat.ToolCall{
			ID:        acc.id,
			Name:      acc.name,
			Arguments: json.RawMessage(input),
		})
	}
	return ret
}

func (s *Service) NonStreamingResponse(
	ctx context.Context,
	conversations []*chat.Conversation,
	config *chat.SessionConfig,
) (*providers.Response, error) {
	client := newClient(config.Provider)
	req := makeMessageRequest(conversations, config)

	resp, err := client.SendMessage(ctx, req)
	if err != nil {
		return nil, err
	}

	ret := &providers.Response{}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			if block.Text != nil {
				ret.Content += *block.Text
			}
		case "tool_use":
			ret.ToolCalls = append(ret.ToolCalls, chat.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: block.Input,
			})
		}
	}
	return ret, nil
}

func (s *Service) RefreshModels(ctx context.Context, provider *chat.Provider) ([]chat.Model, error) {
	client := newClient(provider)

	models, err := client.ListModels(ctx)
	if err != nil {
		return nil, err
	}

	var ret []chat.Model
	for _, m := range models.Data {
		name := m.DisplayName
		if name == "" {
			name = m.ID
		}
		ret = append(ret, chat.Model{
			Code: m.ID,
			Name: name,
			Kind: chat.ModelKindChat,
		})
	}
	return ret, nil
}

func (s *Service) TestModel(ctx context.Context, provider *chat.Provider, model chat.Model) bool {
	client := newClient(provider)

	_, err := client.SendMessage(ctx, &MessageRequest{
		Model:     model.Code,
		MaxTokens: 1,
		Messages: []Message{
			{Role: "user", Content: []Content{NewTextContent("hi")}},
		},
	})
	if err != nil {
		log.Debug().Err(err).Str("model", model.Code).Msg("model test failed")
		return false
	}
	return true
}
