package gemini

import (
	"encoding/json"
	"fmt"

	"github.com/google/generative-ai-go/genai"

	"github.com/go-go-golems/parley/pkg/chat"
)

const unsupportedFilesStandIn = "%d files are not supported yet. Notify the user."

func convertRole(role chat.Role) string {
	switch role {
	case chat.RoleAssistant:
		return "model"
	case chat.RoleTool:
		return "function"
	default:
		return "user"
	}
}

func convertParts(c *chat.Conversation) []genai.Part {
	switch c.Role {
	case chat.RoleTool:
		name := ""
		content := ""
		if c.ToolResponse != nil {
			name = c.ToolResponse.Tool
			content = c.ToolResponse.Content
		}
		return []genai.Part{genai.FunctionResponse{
			Name:     name,
			Response: map[string]any{"content": content},
		}}

	case chat.RoleAssistant:
		var parts []genai.Part
		if c.Content != "" {
			parts = append(parts, genai.Text(c.Content))
		}
		for _, tc := range c.ToolCalls {
			args := map[string]any{}
			_ = json.Unmarshal(tc.Arguments, &args)
			parts = append(parts, genai.FunctionCall{Name: tc.Name, Args: args})
		}
		return parts

	default:
		text := c.Content
		other := 0
		var blobs []genai.Part
		for _, f := range c.DataFiles {
			if !f.IsImage() {
				other++
				continue
			}
			blobs = append(blobs, genai.Blob{MIMEType: f.MimeType, Data: f.Data})
		}
		if other > 0 {
			text = fmt.Sprintf(unsupportedFilesStandIn, other) + "\n\n" + text
		}
		return append([]genai.Part{genai.Text(text)}, blobs...)
	}
}

// convertHistory splits the context into chat history plus the parts of the
// final message, which the genai SDK wants passed to SendMessage directly.
func convertHistory(conversations []*chat.Conversation) ([]*genai.Content, []genai.Part) {
	if len(conversations) == 0 {
		return nil, nil
	}

	var history []*genai.Content
	for _, c := range conversations[:len(conversations)-1] {
		parts := convertParts(c)
		if len(parts) == 0 {
			continue
		}
		history = append(history, &genai.Content{
			Role:  convertRole(c.Role),
			Parts: parts,
		})
	}

	last := conversations[len(conversations)-1]
	return history, convertParts(last)
}

// rawSchema is the subset of JSON schema the genai SDK can represent.
type rawSchema struct {
	Type        string               `json:"type"`
	Description string               `json:"description"`
	Properties  map[string]rawSchema `json:"properties"`
	Items       *rawSchema           `json:"items"`
	Required    []string             `json:"required"`
	Enum        []string             `json:"enum"`
}

func convertRawSchema(raw json.RawMessage) *genai.Schema {
	if len(raw) == 0 {
		return nil
	}
	var s rawSchema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return convertSchema(&s)
}

func convertSchema(s *rawSchema) *genai.Schema {
	if s == nil {
		return nil
	}

	gs := &genai.Schema{
		Description: s.Description,
		Required:    s.Required,
	}

	switch s.Type {
	case "string":
		gs.Type = genai.TypeString
		gs.Enum = s.Enum
	case "number":
		gs.Type = genai.TypeNumber
	case "integer":
		gs.Type = genai.TypeInteger
	case "boolean":
		gs.Type = genai.TypeBoolean
	case "array":
		gs.Type = genai.TypeArray
		gs.Items = convertSchema(s.Items)
	default:
		gs.Type = genai.TypeObject
		if len(s.Properties) > 0 {
			gs.Properties = map[string]*genai.Schema{}
			for k, v := range s.Properties {
				v := v
				gs.Properties[k] = convertSchema(&v)
			}
		}
	}

	return gs
}

func convertTools(specs []chat.ToolSpec) []*genai.Tool {
	var decls []*genai.FunctionDeclaration
	for _, spec := range specs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  convertRawSchema(spec.Parameters),
		})
	}
	if len(decls) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}
