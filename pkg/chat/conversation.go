package chat

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/huandu/go-clone"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// FileKind classifies an attachment so adapters can decide between inline
// media parts and textual stand-ins.
type FileKind string

const (
	FileKindImage FileKind = "image"
	FileKindText  FileKind = "text"
	FileKindPDF   FileKind = "pdf"
	FileKindOther FileKind = "other"
)

// TypedData is a typed binary attachment on a conversation (an uploaded
// image, a file dropped into the prompt, or data produced by a tool).
type TypedData struct {
	FileName string   `json:"fileName"`
	MimeType string   `json:"mimeType"`
	Kind     FileKind `json:"kind"`
	Data     []byte   `json:"data"`
}

func (d TypedData) IsImage() bool {
	return d.Kind == FileKindImage
}

// ToolCall is a provider-requested tool invocation, as normalized from the
// backend wire format.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (tc ToolCall) String() string {
	return fmt.Sprintf("ToolCall{ID: %s, Name: %s, Arguments: %s}", tc.ID, tc.Name, tc.Arguments)
}

// ToolResponse is the materialized outcome of a single tool call, stored on a
// tool-role conversation.
type ToolResponse struct {
	ToolCallID string      `json:"toolCallID"`
	Tool       string      `json:"tool"`
	Content    string      `json:"content"`
	Data       []TypedData `json:"data,omitempty"`
}

// ToolSpec is the provider-facing description of an enabled tool. The
// Parameters field carries the JSON schema of the tool's arguments so
// adapters can embed it in backend requests without depending on the tool
// implementation.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Conversation is one concrete message: role, text content, attachments and
// optional tool data. It is exclusively owned by its ConversationGroup.
type Conversation struct {
	ID      uuid.UUID `json:"id"`
	Date    time.Time `json:"date"`
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	Model   string    `json:"model,omitempty"`

	DataFiles    []TypedData   `json:"dataFiles,omitempty"`
	ToolCalls    []ToolCall    `json:"toolCalls,omitempty"`
	ToolResponse *ToolResponse `json:"toolResponse,omitempty"`

	// IsReplying is true while a generation is streaming into this message.
	IsReplying bool `json:"-"`

	group *ConversationGroup
}

type ConversationOption func(*Conversation)

func WithID(id uuid.UUID) ConversationOption {
	return func(c *Conversation) {
		c.ID = id
	}
}

func WithDate(date time.Time) ConversationOption {
	return func(c *Conversation) {
		c.Date = date
	}
}

func WithModel(model string) ConversationOption {
	return func(c *Conversation) {
		c.Model = model
	}
}

func WithDataFiles(files []TypedData) ConversationOption {
	return func(c *Conversation) {
		c.DataFiles = files
	}
}

func WithToolResponse(resp *ToolResponse) ConversationOption {
	return func(c *Conversation) {
		c.ToolResponse = resp
	}
}

func WithReplying() ConversationOption {
	return func(c *Conversation) {
		c.IsReplying = true
	}
}

func NewConversation(role Role, content string, options ...ConversationOption) *Conversation {
	ret := &Conversation{
		ID:      uuid.New(),
		Date:    time.Now(),
		Role:    role,
		Content: content,
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

// Group returns the owning ConversationGroup, nil for detached messages.
func (c *Conversation) Group() *ConversationGroup {
	return c.group
}

// Copy returns a deep copy with a fresh ID, detached from any group.
func (c *Conversation) Copy() *Conversation {
	ret := &Conversation{
		ID:      uuid.New(),
		Date:    c.Date,
		Role:    c.Role,
		Content: c.Content,
		Model:   c.Model,
	}
	if c.DataFiles != nil {
		ret.DataFiles = clone.Clone(c.DataFiles).([]TypedData)
	}
	if c.ToolCalls != nil {
		ret.ToolCalls = clone.Clone(c.ToolCalls).([]ToolCall)
	}
	if c.ToolResponse != nil {
		ret.ToolResponse = clone.Clone(c.ToolResponse).(*ToolResponse)
	}
	return ret
}
