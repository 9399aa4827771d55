package openai

import (
	"encoding/base64"
	"fmt"

	"github.com/pkg/errors"
	go_openai "github.com/sashabaranov/go-openai"

	"github.com/go-go-golems/parley/pkg/chat"
)

const unsupportedFilesStandIn = "%d files are not supported yet. Notify the user."

func convertConversations(conversations []*chat.Conversation, config *chat.SessionConfig) []go_openai.ChatCompletionMessage {
	var ret []go_openai.ChatCompletionMessage

	if config.SystemPrompt != "" {
		ret = append(ret, go_openai.ChatCompletionMessage{
			Role:    go_openai.ChatMessageRoleSystem,
			Content: config.SystemPrompt,
		})
	}

	for _, c := range conversations {
		ret = append(ret, convertConversation(c))
	}

	return ret
}

func convertConversation(c *chat.Conversation) go_openai.ChatCompletionMessage {
	switch c.Role {
	case chat.RoleTool:
		msg := go_openai.ChatCompletionMessage{
			Role:    go_openai.ChatMessageRoleTool,
			Content: c.Content,
		}
		if c.ToolResponse != nil {
			msg.ToolCallID = c.ToolResponse.ToolCallID
			msg.Content = c.ToolResponse.Content
		}
		return msg

	case chat.RoleAssistant:
		msg := go_openai.ChatCompletionMessage{
			Role:    go_openai.ChatMessageRoleAssistant,
			Content: c.Content,
		}
		for _, tc := range c.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, go_openai.ToolCall{
				ID:   tc.ID,
				Type: go_openai.ToolTypeFunction,
				Function: go_openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		return msg

	default:
		return convertUserConversation(c)
	}
}

// convertUserConversation builds the user message. Image attachments become
// data URL parts, anything else degrades to a text stand-in since the chat
// completions API has no generic file part.
func convertUserConversation(c *chat.Conversation) go_openai.ChatCompletionMessage {
	images, other := splitDataFiles(c.DataFiles)

	content := c.Content
	if other > 0 {
		content = fmt.Sprintf(unsupportedFilesStandIn, other) + "\n\n" + content
	}

	if len(images) == 0 {
		return go_openai.ChatCompletionMessage{
			Role:    go_openai.ChatMessageRoleUser,
			Content: content,
		}
	}

	parts := []go_openai.ChatMessagePart{
		{Type: go_openai.ChatMessagePartTypeText, Text: content},
	}
	for _, img := range images {
		url := fmt.Sprintf("data:%s;base64,%s", img.MimeType,
			base64.StdEncoding.EncodeToString(img.Data))
		parts = append(parts, go_openai.ChatMessagePart{
			Type: go_openai.ChatMessagePartTypeImageURL,
			ImageURL: &go_openai.ChatMessageImageURL{
				URL:    url,
				Detail: go_openai.ImageURLDetailAuto,
			},
		})
	}

	return go_openai.ChatCompletionMessage{
		Role:         go_openai.ChatMessageRoleUser,
		MultiContent: parts,
	}
}

func splitDataFiles(files []chat.TypedData) ([]chat.TypedData, int) {
	var images []chat.TypedData
	other := 0
	for _, f := range files {
		if f.IsImage() {
			images = append(images, f)
		} else {
			other++
		}
	}
	return images, other
}

func convertTools(specs []chat.ToolSpec) []go_openai.Tool {
	var ret []go_openai.Tool
	for _, spec := range specs {
		ret = append(ret, go_openai.Tool{
			Type: go_openai.ToolTypeFunction,
			Function: &go_openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.Parameters,
			},
		})
	}
	return ret
}

func makeCompletionRequest(conversations []*chat.Conversation, config *chat.SessionConfig) go_openai.ChatCompletionRequest {
	req := go_openai.ChatCompletionRequest{
		Model:    config.Model.Code,
		Messages: convertConversations(conversations, config),
		Tools:    convertTools(config.Tools),
	}

	if config.Temperature != nil {
		req.Temperature = *config.Temperature
	}
	if config.TopP != nil {
		req.TopP = *config.TopP
	}
	if config.FrequencyPenalty != nil {
		req.FrequencyPenalty = *config.FrequencyPenalty
	}
	if config.PresencePenalty != nil {
		req.PresencePenalty = *config.PresencePenalty
	}
	if config.MaxTokens != nil {
		req.MaxTokens = *config.MaxTokens
	}

	return req
}

// mergeToolCalls assembles the chat tool calls out of streamed fragments,
// keyed by the index field since IDs only arrive on the first fragment.
type toolCallMerger struct {
	toolCalls map[int]go_openai.ToolCall
	order     []int
}

func newToolCallMerger() *toolCallMerger {
	return &toolCallMerger{
		toolCalls: make(map[int]go_openai.ToolCall),
	}
}

func (tcm *toolCallMerger) addToolCalls(toolCalls []go_openai.ToolCall) {
	for _, call := range toolCalls {
		index := 0
		if call.Index != nil {
			index = *call.Index
		}
		if existing, found := tcm.toolCalls[index]; found {
			existing.Function.Name += call.Function.Name
			existing.Function.Arguments += call.Function.Arguments
			tcm.toolCalls[index] = existing
		} else {
			tcm.toolCalls[index] = call
			tcm.order = append(tcm.order, index)
		}
	}
}

func (tcm *toolCallMerger) result() ([]chat.ToolCall, error) {
	var ret []chat.ToolCall
	for _, index := range tcm.order {
		call := tcm.toolCalls[index]
		if call.Function.Name == "" {
			return nil, errors.Errorf("tool call %d has no function name", index)
		}
		args := call.Function.Arguments
		if args == "" {
			args = "{}"
		}
		ret = append(ret, chat.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: []byte(args),
		})
	}
	return ret, nil
}

func convertResponseToolCalls(toolCalls []go_openai.ToolCall) []chat.ToolCall {
	var ret []chat.ToolCall
	for _, call := range toolCalls {
		ret = append(ret, chat.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: []byte(call.Function.Arguments),
		})
	}
	return ret
}
