package claude

import (
	"encoding/base64"
	"fmt"

	"github.com/go-go-golems/parley/pkg/chat"
)

// defaultMaxTokens applies when the session does not set a limit; the
// messages API requires one.
const defaultMaxTokens = 4096

const unsupportedFilesStandIn = "%d files are not supported yet. Notify the user."

func convertConversations(conversations []*chat.Conversation) []Message {
	var ret []Message
	for _, c := range conversations {
		ret = append(ret, convertConversation(c))
	}
	return ret
}

func convertConversation(c *chat.Conversation) Message {
	switch c.Role {
	case chat.RoleTool:
		// tool results ride on a user message
		content := ""
		toolUseID := ""
		if c.ToolResponse != nil {
			content = c.ToolResponse.Content
			toolUseID = c.ToolResponse.ToolCallID
		}
		return Message{
			Role:    "user",
			Content: []Content{NewToolResultContent(toolUseID, content)},
		}

	case chat.RoleAssistant:
		var blocks []Content
		if c.Content != "" {
			blocks = append(blocks, NewTextContent(c.Content))
		}
		for _, tc := range c.ToolCalls {
			blocks = append(blocks, NewToolUseContent(tc.ID, tc.Name, tc.Arguments))
		}
		return Message{Role: "assistant", Content: blocks}

	default:
		text := c.Content
		other := 0
		var images []Content
		for _, f := range c.DataFiles {
			if !f.IsImage() {
				other++
				continue
			}
			images = append(images, NewImageContent(f.MimeType,
				base64.StdEncoding.EncodeToString(f.Data)))
		}
		if other > 0 {
			// the messages API has no generic file block
			text = fmt.Sprintf(unsupportedFilesStandIn, other) + "\n\n" + text
		}
		blocks := append([]Content{NewTextContent(text)}, images...)
		return Message{Role: "user", Content: blocks}
	}
}

func convertTools(specs []chat.ToolSpec) []Tool {
	var ret []Tool
	for _, spec := range specs {
		ret = append(ret, Tool{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: spec.Parameters,
		})
	}
	return ret
}

func makeMessageRequest(conversations []*chat.Conversation, config *chat.SessionConfig) *MessageRequest {
	req := &MessageRequest{
		Model:     config.Model.Code,
		Messages:  convertConversations(conversations),
		MaxTokens: defaultMaxTokens,
		System:    config.SystemPrompt,
		Tools:     convertTools(config.Tools),
	}

	if config.MaxTokens != nil {
		req.MaxTokens = *config.MaxTokens
	}
	if config.Temperature != nil {
		t := float64(*config.Temperature)
		req.Temperature = &t
	}
	if config.TopP != nil {
		t := float64(*config.TopP)
		req.TopP = &t
	}

	return req
}
