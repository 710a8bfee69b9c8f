// Package llm classifies transactions with a remote language model that may
// call a web lookup tool before answering.
package llm

import "context"

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// ToolCall is a function invocation requested by the model. Signature is
// opaque provider state that must be echoed back with the call.
type ToolCall struct {
	ID        string
	Name      string
	Args      map[string]any
	Signature []byte
}

// ToolResult answers one ToolCall.
type ToolResult struct {
	CallID string
	Name   string
	Output string
}

// Message is one conversation turn. A model turn carries Text and/or Calls;
// a user turn carries Text or the Results for the previous model turn.
type Message struct {
	Role    Role
	Text    string
	Calls   []ToolCall
	Results []ToolResult
}

// Tool declares a function with a single required string parameter.
type Tool struct {
	Name        string
	Description string
	Param       string
	ParamDesc   string
}

type Request struct {
	System   string
	Messages []Message
	Tools    []Tool
}

// Reply is the model's turn. Calls is empty on a final answer.
type Reply struct {
	Text  string
	Calls []ToolCall
}

// Model is a chat completion backend with function calling.
type Model interface {
	Generate(ctx context.Context, req Request) (Reply, error)
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, req Request) (Reply, error)

func (f ModelFunc) Generate(ctx context.Context, req Request) (Reply, error) { return f(ctx, req) }
