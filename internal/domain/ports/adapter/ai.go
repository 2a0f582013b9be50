package adapter

import "context"

// Message is one turn of a chat prompt.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// Usage for a single chat call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatModel is the port for an external LLM backend. Model-backed content
// providers are built on top of it.
type ChatModel interface {
	Name() string
	Model() string

	// CountTokens returns prompt tokens for the provided messages
	// (best-effort when the backend has no exact counter).
	CountTokens(ctx context.Context, messages []Message) (int, error)

	// ChatWithUsage returns assistant text + usage as reported by the backend.
	ChatWithUsage(ctx context.Context, messages []Message) (string, Usage, error)
}
