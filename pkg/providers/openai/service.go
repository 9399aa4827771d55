package openai

import (
	"context"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"

	"github.com/go-go-golems/parley/pkg/chat"
	"github.com/go-go-golems/parley/pkg/providers"
)

// Service talks to the OpenAI chat completions API, or any endpoint speaking
// the same protocol.
type Service struct{}

var _ providers.Service = (*Service)(nil)

func NewService() *Service {
	return &Service{}
}

func newClient(p *chat.Provider) *go_openai.Client {
	config := go_openai.DefaultConfig(p.APIKey)
	if p.Host != "" {
		config.BaseURL = p.Host
	}
	return go_openai.NewClientWithConfig(config)
}

func (s *Service) StreamResponse(
	ctx context.Context,
	conversations []*chat.Conversation,
	config *chat.SessionConfig,
) (*providers.Stream, error) {
	client := newClient(config.Provider)
	req := makeCompletionRequest(conversations, config)
	req.Stream = true

	apiStream, err := client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, wrapError(err)
	}

	stream := providers.NewStream()
	go func() {
		defer apiStream.Close()

		merger := newToolCallMerger()
		for {
			response, err := apiStream.Recv()
			if errors.Is(err, io.EOF) {
				calls, err := merger.result()
				if err != nil {
					stream.Close(wrapError(err))
					return
				}
				if len(calls) > 0 {
					if !stream.Emit(ctx, providers.ToolCallsRequested{Calls: calls}) {
						stream.Close(ctx.Err())
						return
					}
				}
				stream.Close(nil)
				return
			}
			if err != nil {
				stream.Close(wrapError(err))
				return
			}

			if len(response.Choices) == 0 {
				continue
			}
			delta := response.Choices[0].Delta
			if len(delta.ToolCalls) > 0 {
				merger.addToolCalls(delta.ToolCalls)
			}
			if delta.Content != "" {
				if !stream.Emit(ctx, providers.ContentDelta{Text: delta.Content}) {
					stream.Close(ctx.Err())
					return
				}
			}
		}
	}()

	return stream, nil
}

func (s *Service) NonStreamingResponse(
	ctx context.Context,
	conversations []*chat.Conversation,
	config *chat.SessionConfig,
) (*providers.Response, error) {
	client := newClient(config.Provider)
	req := makeCompletionRequest(conversations, config)

	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &providers.ProviderError{
			Kind:    providers.ErrKindUnknown,
			Message: "response contained no choices",
		}
	}

	msg := resp.Choices[0].Message
	return &providers.Response{
		Content:   msg.Content,
		ToolCalls: convertResponseToolCalls(msg.ToolCalls),
	}, nil
}

func (s *Service) RefreshModels(ctx context.Context, provider *chat.Provider) ([]chat.Model, error) {
	client := newClient(provider)

	list, err := client.ListModels(ctx)
	if err != nil {
		return nil, wrapError(err)
	}

	var ret []chat.Model
	for _, m := range list.Models {
		ret = append(ret, chat.Model{
			Code: m.ID,
			Name: m.ID,
			Kind: modelKind(m.ID),
		})
	}
	return ret, nil
}

func modelKind(id string) chat.ModelKind {
	if strings.HasPrefix(id, "dall-e") {
		return chat.ModelKindImage
	}
	return chat.ModelKindChat
}

func (s *Service) TestModel(ctx context.Context, provider *chat.Provider, model chat.Model) bool {
	client := newClient(provider)

	_, err := client.CreateChatCompletion(ctx, go_openai.ChatCompletionRequest{
		Model: model.Code,
		Messages: []go_openai.ChatCompletionMessage{
			{Role: go_openai.ChatMessageRoleUser, Content: "hi"},
		},
		MaxTokens: 1,
	})
	if err != nil {
		log.Debug().Err(err).Str("model", model.Code).Msg("model test failed")
		return false
	}
	return true
}

func wrapError(err error) error {
	var apiErr *go_openai.APIError
	if errors.As(err, &apiErr) {
		return &providers.ProviderError{
			Kind:       providers.KindForStatus(apiErr.HTTPStatusCode),
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
			Err:        err,
		}
	}

	var reqErr *go_openai.RequestError
	if errors.As(err, &reqErr) {
		return &providers.ProviderError{
			Kind:       providers.KindForStatus(reqErr.HTTPStatusCode),
			StatusCode: reqErr.HTTPStatusCode,
			Message:    reqErr.Error(),
			Err:        err,
		}
	}

	return &providers.ProviderError{
		Kind:    providers.ErrKindUnknown,
		Message: err.Error(),
		Err:     err,
	}
}
