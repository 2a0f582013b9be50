package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/pkoukk/tiktoken-go"

	"agent-hub/internal/domain/ports/adapter"
	"agent-hub/internal/infra/metrics"
)

const OpenAIName = "openai"

var _ adapter.ChatModel = (*OpenAIChatModel)(nil)

// OpenAIChatModel calls the Chat Completions API.
type OpenAIChatModel struct {
	client openai.Client
	model  string
	maxOut int

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
}

func NewOpenAIChatModel(apiKey, baseURL, model string, maxOut int) (*OpenAIChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openai: api key is required")
	}
	if model == "" {
		model = "gpt-4.1-mini"
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIChatModel{
		client: openai.NewClient(opts...),
		model:  model,
		maxOut: maxOut,
	}, nil
}

func (o *OpenAIChatModel) Name() string  { return OpenAIName }
func (o *OpenAIChatModel) Model() string { return o.model }

// CountTokens uses the model's tiktoken encoding, falling back to cl100k_base
// and then to a length estimate when no encoding can be loaded.
func (o *OpenAIChatModel) CountTokens(ctx context.Context, messages []adapter.Message) (int, error) {
	o.encOnce.Do(func() {
		enc, err := tiktoken.EncodingForModel(o.model)
		if err != nil {
			enc, err = tiktoken.GetEncoding("cl100k_base")
		}
		if err == nil {
			o.enc = enc
		}
	})
	total := 0
	for _, m := range messages {
		// role and message framing
		total += 4
		if o.enc != nil {
			total += len(o.enc.Encode(m.Content, nil, nil))
		} else {
			total += estimateTokens(m.Content)
		}
	}
	return total + 2, nil
}

func (o *OpenAIChatModel) ChatWithUsage(ctx context.Context, messages []adapter.Message) (string, adapter.Usage, error) {
	if len(messages) == 0 {
		return "", adapter.Usage{}, errors.New("openai: no messages")
	}
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(o.model),
		Messages:    toOpenAIMessages(messages),
		Temperature: openai.Float(0.2),
	}
	if o.maxOut > 0 {
		params.MaxCompletionTokens = openai.Int(int64(o.maxOut))
	}

	start := time.Now()
	resp, err := o.client.Chat.Completions.New(ctx, params)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		metrics.ObserveChatUsage(OpenAIName, o.model, 0, 0, latency, false)
		return "", adapter.Usage{}, err
	}
	u := adapter.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	metrics.ObserveChatUsage(OpenAIName, o.model, u.PromptTokens, u.CompletionTokens, latency, true)
	for _, c := range resp.Choices {
		if c.Message.Content != "" {
			return c.Message.Content, u, nil
		}
	}
	return "", u, errors.New("openai: no choice content")
}

func toOpenAIMessages(msgs []adapter.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// estimateTokens is the usual four-characters-per-token approximation.
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}
