// Package llm defines the model completion interface used by the
// orchestrator and workflow engine, plus the OpenAI-compatible client.
package llm

import "context"

// Message roles on the chat wire.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry of an ordered chat sequence.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a tool invocation requested by the model. Arguments is the
// raw JSON string as the model produced it; it is parsed at execution time.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the tool and carries its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool is a callable descriptor handed to the model.
type Tool struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// FunctionDef describes one tool function with a JSON-schema parameter object.
type FunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Result is the model's reply, decided once at the client boundary:
// either plain text or a list of requested tool calls.
type Result struct {
	Text      string
	ToolCalls []ToolCall
}

// HasToolCalls reports whether the model asked for tool execution.
func (r Result) HasToolCalls() bool { return len(r.ToolCalls) > 0 }

// AssistantMessage renders the result back into the message sequence, as
// required before tool results can be appended.
func (r Result) AssistantMessage() Message {
	return Message{Role: RoleAssistant, Content: r.Text, ToolCalls: r.ToolCalls}
}

// Client is the model completion interface. Chat attaches the given tool
// descriptors when non-empty (automatic tool selection); StreamChat never
// attaches tools and forwards text deltas in arrival order.
type Client interface {
	Chat(ctx context.Context, messages []Message, tools []Tool) (Result, error)
	StreamChat(ctx context.Context, messages []Message, onDelta func(string)) (string, error)
}
