package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/genai"

	"agent-hub/internal/domain/ports/adapter"
	"agent-hub/internal/infra/metrics"
)

const GeminiName = "gemini"

var _ adapter.ChatModel = (*GeminiChatModel)(nil)

type GeminiChatModel struct {
	client *genai.Client
	model  string
	maxOut int
}

// NewGeminiChatModel creates a Gemini backend using the official SDK.
func NewGeminiChatModel(ctx context.Context, apiKey, baseURL, model string, maxOut int) (*GeminiChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiChatModel{client: c, model: model, maxOut: maxOut}, nil
}

func (g *GeminiChatModel) Name() string  { return GeminiName }
func (g *GeminiChatModel) Model() string { return g.model }

func (g *GeminiChatModel) CountTokens(ctx context.Context, messages []adapter.Message) (int, error) {
	system, history := splitSystem(messages)
	contents := toGenAIHistory(history)
	if system != "" {
		contents = append([]*genai.Content{genai.NewContentFromText(system, genai.RoleUser)}, contents...)
	}
	resp, err := g.client.Models.CountTokens(ctx, g.model, contents, nil)
	if err != nil {
		return 0, err
	}
	return int(resp.TotalTokens), nil
}

// ChatWithUsage replays all but the last message as history and sends the
// last one, which must come from the user. System messages become the
// system instruction.
func (g *GeminiChatModel) ChatWithUsage(ctx context.Context, messages []adapter.Message) (string, adapter.Usage, error) {
	system, turns := splitSystem(messages)
	if len(turns) == 0 {
		return "", adapter.Usage{}, errors.New("gemini: no messages")
	}
	last := turns[len(turns)-1]
	if strings.ToLower(last.Role) != "user" {
		return "", adapter.Usage{}, errors.New("gemini: last message must be from user")
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0.2),
		ResponseMIMEType: "application/json",
	}
	if g.maxOut > 0 {
		cfg.MaxOutputTokens = int32(g.maxOut)
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	start := time.Now()
	chat, err := g.client.Chats.Create(ctx, g.model, cfg, toGenAIHistory(turns[:len(turns)-1]))
	if err != nil {
		metrics.ObserveChatUsage(GeminiName, g.model, 0, 0, time.Since(start).Milliseconds(), false)
		return "", adapter.Usage{}, err
	}
	resp, err := chat.SendMessage(ctx, genai.Part{Text: last.Content})
	latency := time.Since(start).Milliseconds()
	if err != nil {
		metrics.ObserveChatUsage(GeminiName, g.model, 0, 0, latency, false)
		return "", adapter.Usage{}, err
	}

	u := adapter.Usage{}
	if resp.UsageMetadata != nil {
		u.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		u.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		u.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	metrics.ObserveChatUsage(GeminiName, g.model, u.PromptTokens, u.CompletionTokens, latency, true)
	text := resp.Text()
	if text == "" {
		return "", u, errors.New("gemini: empty response")
	}
	return text, u, nil
}

func splitSystem(messages []adapter.Message) (string, []adapter.Message) {
	var system []string
	rest := make([]adapter.Message, 0, len(messages))
	for _, m := range messages {
		if strings.ToLower(m.Role) == "system" {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}

func toGenAIHistory(msgs []adapter.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := genai.RoleUser
		if r := strings.ToLower(m.Role); r == "assistant" || r == "model" {
			role = genai.RoleModel
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return out
}
