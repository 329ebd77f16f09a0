// Package llm provides completion-provider client implementations.
package llm

// Message represents a chat message for the provider.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// Options are per-request model parameters.
type Options struct {
	// MaxTokens caps the completion length. Zero lets the provider
	// decide.
	MaxTokens int
	// Temperature is passed through when non-zero.
	Temperature float64
}

// ChatResponse is the unified response from any provider. Wire-format
// conversion happens at provider boundaries (openai.go, ollama.go).
type ChatResponse struct {
	Model   string
	Message Message

	// Token usage (provider-neutral; zero when not reported)
	InputTokens  int
	OutputTokens int
}
