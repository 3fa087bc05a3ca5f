package application

import "context"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParamSpec describes one property of a tool's input object.
type ParamSpec struct {
	Type        string // string, integer, number, boolean or object
	Description string
	Enum        []string
}

// ToolSpec is a provider-neutral tool definition. Model backends translate
// it to their own schema dialect.
type ToolSpec struct {
	Name        string
	Description string
	Params      map[string]ParamSpec
	Required    []string
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolResult answers one ToolCall. Failures are reported with IsError set
// rather than aborting the conversation.
type ToolResult struct {
	CallID  string
	Name    string
	Content string
	IsError bool
}

type ChatMessage struct {
	Role        Role
	Text        string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

type ChatRequest struct {
	System   string
	Tools    []ToolSpec
	Messages []ChatMessage
}

// ChatResponse is one model turn. A non-empty ToolCalls means the model
// needs tool results before it can finish.
type ChatResponse struct {
	Text      string
	ToolCalls []ToolCall
}

// ChatModel requests the next model turn.
type ChatModel interface {
	Next(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}
