// Package llm defines the Provider interface for language-model backends.
//
// A provider wraps a remote or local model API (an Ollama instance, a
// llama.cpp server, OpenAI) and exposes a uniform interface for the intent
// resolver to perform completions without coupling to any specific SDK.
//
// Implementors must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed by the implementation when the stream ends
// or when the supplied context is cancelled.
package llm

import "context"

// Usage holds token accounting returned by the backend. Counts are in the
// model's native token unit and may differ between providers for the same text.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// CompletionRequest carries everything the model needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is
	// typically from the "user" role and drives the response.
	Messages []Message

	// Tools is the set of function definitions offered to the model. Providers
	// that do not support tool calling should ignore this field; callers should
	// check Capabilities().SupportsToolCalling first.
	Tools []ToolDefinition

	// Temperature controls output randomness in [0.0, 2.0]. Zero requests the
	// provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means provider default.
	MaxTokens int

	// SystemPrompt is an optional instruction injected before the history.
	// Providers without a dedicated system field prepend it as a "system" message.
	SystemPrompt string
}

// Chunk is a single fragment emitted by a streaming completion. A chunk may
// carry text, a finish signal, tool calls, or any combination.
type Chunk struct {
	// Text is the incremental text content. May be empty.
	Text string

	// FinishReason is set on the final chunk: "stop", "length", "tool_calls",
	// "error", or "" for non-final chunks.
	FinishReason string

	// ToolCalls contains any tool invocations the model is requesting.
	ToolCalls []ToolCall
}

// CompletionResponse is returned by the non-streaming Complete method.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply. Empty when the model
	// responds exclusively with tool calls.
	Content string

	// ToolCalls lists all tool invocations requested by the model.
	ToolCalls []ToolCall

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any model backend.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly.
type Provider interface {
	// StreamCompletion sends req to the model and returns a read-only channel
	// emitting Chunk values as they arrive. The implementation closes the
	// channel when generation finishes or ctx is cancelled. Errors occurring
	// after the channel opens surface as a Chunk with FinishReason "error";
	// the error return is non-nil only when the stream cannot start.
	//
	// Callers must drain the channel to avoid goroutine leaks. The returned
	// channel is never nil when error is nil.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete sends req to the model and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates how many tokens messages would consume in the
	// model's context window. The result need not be exact but should not
	// undercount.
	CountTokens(messages []Message) (int, error)

	// Capabilities returns static metadata about the underlying model, assumed
	// constant for the lifetime of the Provider.
	Capabilities() ModelCapabilities
}
