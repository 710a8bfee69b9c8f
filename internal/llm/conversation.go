package llm

import (
	"context"
	"errors"
	"fmt"
)

// State is the position of a Conversation in its request/tool cycle.
type State int

const (
	AwaitingModel State = iota
	ExecutingTools
	Done
)

func (s State) String() string {
	switch s {
	case AwaitingModel:
		return "awaiting_model"
	case ExecutingTools:
		return "executing_tools"
	case Done:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrTooManyRounds is returned when the model keeps requesting tools past the limit.
var ErrTooManyRounds = errors.New("llm: tool round limit exceeded")

// ToolFunc executes a tool call and returns the text handed back to the model.
// Failures are reported in the text; a tool never aborts the conversation.
type ToolFunc func(ctx context.Context, args map[string]any) string

// Conversation drives one request through as many tool rounds as the model
// asks for, up to maxRounds.
type Conversation struct {
	model     Model
	tools     map[string]ToolFunc
	maxRounds int

	req     Request
	state   State
	rounds  int
	pending []ToolCall
	answer  string
}

func NewConversation(model Model, req Request, tools map[string]ToolFunc, maxRounds int) *Conversation {
	return &Conversation{model: model, req: req, tools: tools, maxRounds: maxRounds}
}

func (c *Conversation) State() State { return c.state }

// Rounds is the number of tool rounds executed so far.
func (c *Conversation) Rounds() int { return c.rounds }

// Messages returns the transcript so far.
func (c *Conversation) Messages() []Message { return c.req.Messages }

// Run steps the conversation until the model gives a final answer.
func (c *Conversation) Run(ctx context.Context) (string, error) {
	for c.state != Done {
		if err := c.step(ctx); err != nil {
			return "", err
		}
	}
	return c.answer, nil
}

func (c *Conversation) step(ctx context.Context) error {
	switch c.state {
	case AwaitingModel:
		reply, err := c.model.Generate(ctx, c.req)
		if err != nil {
			return fmt.Errorf("generate: %w", err)
		}
		c.req.Messages = append(c.req.Messages, Message{Role: RoleModel, Text: reply.Text, Calls: reply.Calls})
		if len(reply.Calls) == 0 {
			c.answer = reply.Text
			c.state = Done
			return nil
		}
		if c.rounds >= c.maxRounds {
			return fmt.Errorf("%w (%d)", ErrTooManyRounds, c.maxRounds)
		}
		c.pending = reply.Calls
		c.state = ExecutingTools
	case ExecutingTools:
		results := make([]ToolResult, 0, len(c.pending))
		for _, call := range c.pending {
			if err := ctx.Err(); err != nil {
				return err
			}
			out := fmt.Sprintf("unknown tool %q", call.Name)
			if fn, ok := c.tools[call.Name]; ok {
				out = fn(ctx, call.Args)
			}
			results = append(results, ToolResult{CallID: call.ID, Name: call.Name, Output: out})
		}
		c.req.Messages = append(c.req.Messages, Message{Role: RoleUser, Results: results})
		c.pending = nil
		c.rounds++
		c.state = AwaitingModel
	}
	return nil
}
