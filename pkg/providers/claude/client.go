package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-go-golems/parley/pkg/providers"
)

const defaultAPIVersion = "2023-06-01"

// Client is a minimal Anthropic messages API client. Only what the adapter
// needs: send one message request, streaming or not, and list models.
type Client struct {
	BaseURL    string
	APIKey     string
	APIVersion string

	httpClient *http.Client
}

func NewClient(baseURL string, apiKey string) *Client {
	return &Client{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		APIVersion: defaultAPIVersion,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", c.APIVersion)
	req.Header.Set("content-type", "application/json")
}

type MessageRequest struct {
	Model         string    `json:"model"`
	Messages      []Message `json:"messages"`
	MaxTokens     int       `json:"max_tokens"`
	StopSequences []string  `json:"stop_sequences,omitempty"`
	Stream        bool      `json:"stream"`
	System        string    `json:"system,omitempty"`
	Temperature   *float64  `json:"temperature,omitempty"`
	Tools         []Tool    `json:"tools,omitempty"`
	TopP          *float64  `json:"top_p,omitempty"`
}

type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type Message struct {
	Role    string    `json:"role"`
	Content []Content `json:"content"`
}

// Content is one content block. Which fields apply depends on Type: text,
// image, tool_use or tool_result.
type Content struct {
	Type string `json:"type"`

	Text *string `json:"text,omitempty"`

	Source *ImageSource `json:"source,omitempty"`

	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	ToolUseID  string  `json:"tool_use_id,omitempty"`
	ToolResult *string `json:"content,omitempty"`
}

type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

func NewTextContent(text string) Content {
	return Content{Type: "text", Text: &text}
}

func NewImageContent(mediaType string, base64Data string) Content {
	return Content{
		Type: "image",
		Source: &ImageSource{
			Type:      "base64",
			MediaType: mediaType,
			Data:      base64Data,
		},
	}
}

func NewToolUseContent(id string, name string, input json.RawMessage) Content {
	return Content{Type: "tool_use", ID: id, Name: name, Input: input}
}

func NewToolResultContent(toolUseID string, result string) Content {
	return Content{Type: "tool_result", ToolUseID: toolUseID, ToolResult: &result}
}

type MessageResponse struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Role       string    `json:"role"`
	Content    []Content `json:"content"`
	Model      string    `json:"model"`
	StopReason string    `json:"stop_reason,omitempty"`
	Usage      Usage     `json:"usage"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type ErrorResponse struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, req *MessageRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/messages", bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer func(body io.ReadCloser) {
			_ = body.Close()
		}(resp.Body)
		return nil, errorFromResponse(resp)
	}

	return resp, nil
}

func errorFromResponse(resp *http.Response) error {
	respBody, _ := io.ReadAll(resp.Body)

	var errorResp ErrorResponse
	message := string(respBody)
	if err := json.Unmarshal(respBody, &errorResp); err == nil && errorResp.Error.Message != "" {
		message = errorResp.Error.Message
	}

	return &providers.ProviderError{
		Kind:       providers.KindForStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Message:    message,
	}
}

// SendMessage performs a non-streaming completion.
func (c *Client) SendMessage(ctx context.Context, req *MessageRequest) (*MessageResponse, error) {
	req.Stream = false

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func(body io.ReadCloser) {
		_ = body.Close()
	}(resp.Body)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var messageResp MessageResponse
	if err := json.Unmarshal(respBody, &messageResp); err != nil {
		return nil, err
	}

	return &messageResp, nil
}

// StreamMessage performs a streaming completion and returns the channel of
// parsed server-sent events. The channel closes when the response ends.
func (c *Client) StreamMessage(ctx context.Context, req *MessageRequest) (<-chan StreamingEvent, error) {
	req.Stream = true

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}

	events := make(chan StreamingEvent)
	go streamEvents(ctx, resp, events)
	return events, nil
}

type modelsResponse struct {
	Data []struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
	} `json:"data"`
}

// ListModels queries the models endpoint.
func (c *Client) ListModels(ctx context.Context) (*modelsResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/models", nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func(body io.ReadCloser) {
		_ = body.Close()
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, errorFromResponse(resp)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var models modelsResponse
	if err := json.Unmarshal(respBody, &models); err != nil {
		return nil, err
	}
	return &models, nil
}
