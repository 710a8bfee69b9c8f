package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/jask/bookkeeper/internal/config"
)

// generateBody is the part of a generateContent request body the tests inspect.
type generateBody struct {
	Contents          []*genai.Content `json:"contents"`
	SystemInstruction *genai.Content   `json:"systemInstruction"`
	Tools             []*genai.Tool    `json:"tools"`
	GenerationConfig  struct {
		Temperature     *float64 `json:"temperature"`
		MaxOutputTokens int      `json:"maxOutputTokens"`
		ThinkingConfig  *struct {
			ThinkingBudget *int `json:"thinkingBudget"`
		} `json:"thinkingConfig"`
	} `json:"generationConfig"`
}

// geminiServer answers generateContent calls with the given bodies in order
// and keeps every decoded request.
type geminiServer struct {
	mu       sync.Mutex
	replies  []string
	requests []generateBody
	paths    []string
}

func (s *geminiServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body generateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, body)
	s.paths = append(s.paths, r.URL.Path)
	if len(s.replies) == 0 {
		http.Error(w, `{"error":{"code":500,"message":"script exhausted"}}`, http.StatusInternalServerError)
		return
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, reply)
}

func newTestGemini(t *testing.T, replies ...string) (*Gemini, *geminiServer) {
	t.Helper()
	gs := &geminiServer{replies: replies}
	srv := httptest.NewServer(gs)
	t.Cleanup(srv.Close)

	g, err := NewGemini(context.Background(), config.LLMConfig{BaseURL: srv.URL + "/"}, "test-key")
	require.NoError(t, err)
	return g, gs
}

const lookupCallReply = `{"candidates":[{"content":{"role":"model","parts":[
	{"functionCall":{"id":"call-1","name":"web_lookup","args":{"query":"Blue Bottle Coffee"}},
	 "thoughtSignature":"c2lnbmF0dXJl"}]}}]}`

const answerReply = `{"candidates":[{"content":{"role":"model","parts":[{"text":"Dining|0.9"}]}}]}`

func TestGeminiToolRoundTrip(t *testing.T) {
	t.Parallel()

	g, gs := newTestGemini(t, lookupCallReply, answerReply)
	lookup := fastRetry(lookupFunc(func(_ context.Context, q string) (string, error) {
		return q + " is a coffee shop.", nil
	}))

	got := NewClassifier(g, lookup, 0).Classify(context.Background(), testTxn(), testCategories)
	require.Equal(t, Prediction{Category: "Dining", Confidence: 0.9, Rounds: 1}, got)
	require.Len(t, gs.requests, 2)
	require.True(t, strings.HasSuffix(gs.paths[0], "models/"+defaultGeminiModel+":generateContent"), gs.paths[0])

	first := gs.requests[0]
	require.NotNil(t, first.SystemInstruction)
	require.Equal(t, systemPrompt, first.SystemInstruction.Parts[0].Text)
	require.NotNil(t, first.GenerationConfig.Temperature)
	require.Zero(t, *first.GenerationConfig.Temperature)
	require.Equal(t, maxOutputTokens, first.GenerationConfig.MaxOutputTokens)
	require.NotNil(t, first.GenerationConfig.ThinkingConfig)
	require.NotNil(t, first.GenerationConfig.ThinkingConfig.ThinkingBudget)
	require.Equal(t, thinkingBudget, *first.GenerationConfig.ThinkingConfig.ThinkingBudget)
	require.Less(t, thinkingBudget, maxOutputTokens)

	require.Len(t, first.Tools, 1)
	require.Len(t, first.Tools[0].FunctionDeclarations, 1)
	decl := first.Tools[0].FunctionDeclarations[0]
	require.Equal(t, lookupToolName, decl.Name)
	require.NotNil(t, decl.Parameters)
	require.Equal(t, genai.TypeObject, decl.Parameters.Type)
	require.Equal(t, []string{"query"}, decl.Parameters.Required)
	require.Equal(t, genai.TypeString, decl.Parameters.Properties["query"].Type)

	second := gs.requests[1]
	require.Len(t, second.Contents, 3)
	require.Equal(t, "user", second.Contents[0].Role)

	call := second.Contents[1]
	require.Equal(t, "model", call.Role)
	require.Len(t, call.Parts, 1)
	require.NotNil(t, call.Parts[0].FunctionCall)
	require.Equal(t, "call-1", call.Parts[0].FunctionCall.ID)
	require.Equal(t, "Blue Bottle Coffee", call.Parts[0].FunctionCall.Args["query"])
	require.Equal(t, []byte("signature"), call.Parts[0].ThoughtSignature)

	result := second.Contents[2]
	require.Equal(t, "user", result.Role)
	require.Len(t, result.Parts, 1)
	fr := result.Parts[0].FunctionResponse
	require.NotNil(t, fr)
	require.Equal(t, "call-1", fr.ID)
	require.Equal(t, lookupToolName, fr.Name)
	require.Equal(t, "Blue Bottle Coffee is a coffee shop.", fr.Response["output"])
}

func TestGeminiEmptyResponse(t *testing.T) {
	t.Parallel()

	for name, body := range map[string]string{
		"no candidates": `{"candidates":[]}`,
		"no content":    `{"candidates":[{"finishReason":"SAFETY"}]}`,
		"no text":       `{"candidates":[{"content":{"role":"model","parts":[{"text":""}]}}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			g, _ := newTestGemini(t, body)
			_, err := g.Generate(context.Background(), Request{
				Messages: []Message{{Role: RoleUser, Text: "hi"}},
			})
			require.ErrorContains(t, err, "empty response")
		})
	}
}

func TestGeminiServerError(t *testing.T) {
	t.Parallel()

	g, _ := newTestGemini(t)
	_, err := g.Generate(context.Background(), Request{Messages: []Message{{Role: RoleUser, Text: "hi"}}})
	require.ErrorContains(t, err, "gemini: generate content")
}

func TestNewGeminiRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := NewGemini(context.Background(), config.LLMConfig{}, "")
	require.Error(t, err)
}
