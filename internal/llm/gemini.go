package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/jask/bookkeeper/internal/config"
)

const (
	defaultGeminiModel = "gemini-2.5-flash"
	// Thinking tokens count against the output cap, so the cap leaves room
	// for the bounded thinking budget plus the one-line answer.
	thinkingBudget     = 512
	maxOutputTokens    = 2048
)

// Gemini is a Model backed by the Gemini API.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGemini creates a client for cfg.Model. cfg.BaseURL overrides the API
// endpoint, for proxies and local test servers.
func NewGemini(ctx context.Context, cfg config.LLMConfig, apiKey string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: missing API key")
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Gemini{client: client, model: model, timeout: cfg.Timeout}, nil
}

func (g *Gemini) Generate(ctx context.Context, req Request) (Reply, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	temperature := float32(0)
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: maxOutputTokens,
		ThinkingConfig:  &genai.ThinkingConfig{ThinkingBudget: genai.Ptr[int32](thinkingBudget)},
		Tools:           toGeminiTools(req.Tools),
	}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, toGeminiContents(req.Messages), cfg)
	if err != nil {
		return Reply{}, fmt.Errorf("gemini: generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Reply{}, errors.New("gemini: empty response")
	}

	var reply Reply
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.FunctionCall == nil {
			continue
		}
		reply.Calls = append(reply.Calls, ToolCall{
			ID:        p.FunctionCall.ID,
			Name:      p.FunctionCall.Name,
			Args:      p.FunctionCall.Args,
			Signature: p.ThoughtSignature,
		})
	}
	if len(reply.Calls) == 0 {
		reply.Text = resp.Text()
		if reply.Text == "" {
			return Reply{}, errors.New("gemini: empty response")
		}
	}
	return reply, nil
}

func toGeminiTools(tools []Tool) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					t.Param: {Type: genai.TypeString, Description: t.ParamDesc},
				},
				Required: []string{t.Param},
			},
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func toGeminiContents(msgs []Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		c := &genai.Content{Role: string(m.Role)}
		if m.Text != "" {
			c.Parts = append(c.Parts, &genai.Part{Text: m.Text})
		}
		for _, call := range m.Calls {
			c.Parts = append(c.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					ID:   call.ID,
					Name: call.Name,
					Args: call.Args,
				},
				ThoughtSignature: call.Signature,
			})
		}
		for _, r := range m.Results {
			c.Parts = append(c.Parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       r.CallID,
				Name:     r.Name,
				Response: map[string]any{"output": r.Output},
			}})
		}
		if len(c.Parts) > 0 {
			out = append(out, c)
		}
	}
	return out
}
