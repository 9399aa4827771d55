package gemini

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/go-go-golems/parley/pkg/chat"
	"github.com/go-go-golems/parley/pkg/providers"
)

// Service talks to the Gemini API through the generative-ai-go SDK.
type Service struct{}

var _ providers.Service = (*Service)(nil)

func NewService() *Service {
	return &Service{}
}

func newClient(ctx context.Context, p *chat.Provider) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(p.APIKey))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create gemini client")
	}
	return client, nil
}

func configureModel(client *genai.Client, config *chat.SessionConfig) *genai.GenerativeModel {
	model := client.GenerativeModel(config.Model.Code)

	if config.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(config.SystemPrompt)},
		}
	}

	cfg := genai.GenerationConfig{}
	if config.Temperature != nil {
		v := *config.Temperature
		cfg.Temperature = &v
	}
	if config.TopP != nil {
		v := *config.TopP
		cfg.TopP = &v
	}
	if config.MaxTokens != nil {
		v := int32(*config.MaxTokens)
		cfg.MaxOutputTokens = &v
	}
	model.GenerationConfig = cfg

	model.Tools = convertTools(config.Tools)

	return model
}

func (s *Service) StreamResponse(
	ctx context.Context,
	conversations []*chat.Conversation,
	config *chat.SessionConfig,
) (*providers.Stream, error) {
	client, err := newClient(ctx, config.Provider)
	if err != nil {
		return nil, err
	}

	model := configureModel(client, config)
	history, parts := convertHistory(conversations)
	if len(parts) == 0 {
		_ = client.Close()
		return nil, errors.New("no message to send")
	}

	cs := model.StartChat()
	cs.History = history
	iter := cs.SendMessageStream(ctx, parts...)

	stream := providers.NewStream()
	go func() {
		defer func() {
			if err := client.Close(); err != nil {
				log.Debug().Err(err).Msg("failed to close gemini client")
			}
		}()

		var calls []chat.ToolCall
		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) || errors.Is(err, io.EOF) {
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

			for _, cand := range resp.Candidates {
				if cand.Content == nil {
					continue
				}
				for _, p := range cand.Content.Parts {
					switch v := p.(type) {
					case genai.Text:
						if string(v) == "" {
							continue
						}
						if !stream.Emit(ctx, providers.ContentDelta{Text: string(v)}) {
							stream.Close(ctx.Err())
							return
						}
					case genai.FunctionCall:
						calls = append(calls, convertFunctionCall(v))
					}
				}
			}
		}
	}()

	return stream, nil
}

// convertFunctionCall maps a genai function call onto the internal form. The
// API has no call IDs so one is generated; responses are matched by name.
func convertFunctionCall(v genai.FunctionCall) chat.ToolCall {
	args := v.Args
	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		raw = []byte("{}")
	}
	return chat.ToolCall{
		ID:        uuid.NewString(),
		Name:      v.Name,
		Arguments: raw,
	}
}

func (s *Service) NonStreamingResponse(
	ctx context.Context,
	conversations []*chat.Conversation,
	config *chat.SessionConfig,
) (*providers.Response, error) {
	client, err := newClient(ctx, config.Provider)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = client.Close()
	}()

	model := configureModel(client, config)
	history, parts := convertHistory(conversations)
	if len(parts) == 0 {
		return nil, errors.New("no message to send")
	}

	cs := model.StartChat()
	cs.History = history
	resp, err := cs.SendMessage(ctx, parts...)
	if err != nil {
		return nil, wrapError(err)
	}

	ret := &providers.Response{}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			switch v := p.(type) {
			case genai.Text:
				ret.Content += string(v)
			case genai.FunctionCall:
				ret.ToolCalls = append(ret.ToolCalls, convertFunctionCall(v))
			}
		}
	}
	return ret, nil
}

func (s *Service) RefreshModels(ctx context.Context, provider *chat.Provider) ([]chat.Model, error) {
	client, err := newClient(ctx, provider)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = client.Close()
	}()

	var ret []chat.Model
	iter := client.ListModels(ctx)
	for {
		info, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, wrapError(err)
		}

		supported := false
		for _, m := range info.SupportedGenerationMethods {
			if m == "generateContent" {
				supported = true
				break
			}
		}
		if !supported {
			continue
		}

		code := strings.TrimPrefix(info.Name, "models/")
		name := info.DisplayName
		if name == "" {
			name = code
		}
		ret = append(ret, chat.Model{
			Code: code,
			Name: name,
			Kind: chat.ModelKindChat,
		})
	}
	return ret, nil
}

func (s *Service) TestModel(ctx context.Context, provider *chat.Provider, model chat.Model) bool {
	client, err := newClient(ctx, provider)
	if err != nil {
		return false
	}
	defer func() {
		_ = client.Close()
	}()

	m := client.GenerativeModel(model.Code)
	_, err = m.GenerateContent(ctx, genai.Text("hi"))
	if err != nil {
		log.Debug().Err(err).Str("model", model.Code).Msg("model test failed")
		return false
	}
	return true
}

func wrapError(err error) error {
	return &providers.ProviderError{
		Kind:    providers.ErrKindUnknown,
		Message: err.Error(),
		Err:     err,
	}
}
