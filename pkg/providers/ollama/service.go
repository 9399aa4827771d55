package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/jmorganca/ollama/api"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/parley/pkg/chat"
	"github.com/go-go-golems/parley/pkg/providers"
)

const unsupportedFilesStandIn = "%d files are not supported yet. Notify the user."

// Service talks to a local ollama daemon. Tool calls are not supported, the
// daemon only streams text.
type Service struct{}

var _ providers.Service = (*Service)(nil)

func NewService() *Service {
	return &Service{}
}

func newClient(p *chat.Provider) (*api.Client, error) {
	base, err := url.Parse(p.Host)
	if err != nil {
		return nil, errors.Wrap(err, "invalid ollama host")
	}
	return api.NewClient(base, http.DefaultClient), nil
}

func convertConversations(conversations []*chat.Conversation, config *chat.SessionConfig) []api.Message {
	var ret []api.Message

	if config.SystemPrompt != "" {
		ret = append(ret, api.Message{
			Role:    string(chat.RoleSystem),
			Content: config.SystemPrompt,
		})
	}

	for _, c := range conversations {
		role := c.Role
		if role == chat.RoleTool {
			// no tool protocol, degrade to a user message
			role = chat.RoleUser
		}

		msg := api.Message{
			Role:    string(role),
			Content: c.Content,
		}
		other := 0
		for _, f := range c.DataFiles {
			if !f.IsImage() {
				other++
				continue
			}
			msg.Images = append(msg.Images, api.ImageData(f.Data))
		}
		if other > 0 {
			msg.Content = fmt.Sprintf(unsupportedFilesStandIn, other) + "\n\n" + msg.Content
		}
		ret = append(ret, msg)
	}

	return ret
}

func makeChatRequest(conversations []*chat.Conversation, config *chat.SessionConfig, stream bool) *api.ChatRequest {
	options := map[string]interface{}{}
	if config.Temperature != nil {
		options["temperature"] = *config.Temperature
	}
	if config.TopP != nil {
		options["top_p"] = *config.TopP
	}
	if config.MaxTokens != nil {
		options["num_predict"] = *config.MaxTokens
	}

	return &api.ChatRequest{
		Model:    config.Model.Code,
		Messages: convertConversations(conversations, config),
		Stream:   &stream,
		Options:  options,
	}
}

func (s *Service) StreamResponse(
	ctx context.Context,
	conversations []*chat.Conversation,
	config *chat.SessionConfig,
) (*providers.Stream, error) {
	client, err := newClient(config.Provider)
	if err != nil {
		return nil, err
	}

	req := makeChatRequest(conversations, config, true)

	stream := providers.NewStream()
	go func() {
		err := client.Chat(ctx, req, func(resp api.ChatResponse) error {
			if resp.Message.Content == "" {
				return nil
			}
			if !stream.Emit(ctx, providers.ContentDelta{Text: resp.Message.Content}) {
				return ctx.Err()
			}
			return nil
		})
		if err != nil {
			stream.Close(wrapError(err))
			return
		}
		stream.Close(nil)
	}()

	return stream, nil
}

func (s *Service) NonStreamingResponse(
	ctx context.Context,
	conversations []*chat.Conversation,
	config *chat.SessionConfig,
) (*providers.Response, error) {
	client, err := newClient(config.Provider)
	if err != nil {
		return nil, err
	}

	req := makeChatRequest(conversations, config, false)

	content := ""
	err = client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content += resp.Message.Content
		return nil
	})
	if err != nil {
		return nil, wrapError(err)
	}

	return &providers.Response{Content: content}, nil
}

func (s *Service) RefreshModels(ctx context.Context, provider *chat.Provider) ([]chat.Model, error) {
	client, err := newClient(provider)
	if err != nil {
		return nil, err
	}

	list, err := client.List(ctx)
	if err != nil {
		return nil, wrapError(err)
	}

	var ret []chat.Model
	for _, m := range list.Models {
		ret = append(ret, chat.Model{
			Code: m.Name,
			Name: m.Name,
			Kind: chat.ModelKindChat,
		})
	}
	return ret, nil
}

func (s *Service) TestModel(ctx context.Context, provider *chat.Provider, model chat.Model) bool {
	client, err := newClient(provider)
	if err != nil {
		return false
	}

	stream := false
	err = client.Chat(ctx, &api.ChatRequest{
		Model: model.Code,
		Messages: []api.Message{
			{Role: string(chat.RoleUser), Content: "hi"},
		},
		Stream: &stream,
	}, func(api.ChatResponse) error { return nil })
	if err != nil {
		log.Debug().Err(err).Str("model", model.Code).Msg("model test failed")
		return false
	}
	return true
}

func wrapError(err error) error {
	return &providers.ProviderError{
		Kind:    providers.ErrKindUnavailable,
		Message: err.Error(),
		Err:     err,
	}
}
