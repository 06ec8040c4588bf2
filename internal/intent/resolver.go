// Package intent turns a fast-path miss into a structured decision by asking
// the model to pick a capability. The resolver only decides; it never executes
// a handler. Tool-call arguments are validated against the capability schema
// here, before the decision becomes an invocation; the dispatcher re-validates
// defensively at execution time.
//
// Local inference is the bottleneck of the whole gateway, so Resolve is
// serialized by default with a small bounded admission queue: a turn that
// cannot get a slot fails fast with [ErrBusy] instead of piling up behind a
// slow model.
package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/voxgate/voxgate/internal/capability"
	"github.com/voxgate/voxgate/pkg/provider/llm"
)

// ErrBusy is returned by [Resolver.Resolve] and [Resolver.Chat] when the
// admission queue is full. Callers should reply with a try-again message
// rather than retrying internally.
var ErrBusy = errors.New("intent: inference queue is full")

// Decision reasons for Kind == KindInvalid.
const (
	// ReasonUnparseableArguments marks a tool call whose argument payload was
	// not valid JSON.
	ReasonUnparseableArguments = "unparseable_arguments"

	// ReasonUnknownCapability marks a tool call naming a capability that is
	// not in the registry.
	ReasonUnknownCapability = "unknown_capability_selected"
)

const defaultSystemPrompt = `You are the intent resolver of a voice assistant. ` +
	`Decide whether the user's utterance maps to exactly one of the available tools. ` +
	`If it does, call that tool with arguments taken only from the utterance. ` +
	`If no tool fits, answer the user directly in one or two short spoken sentences. ` +
	`Never call more than one tool and never invent tool names or arguments.`

const defaultChatPrompt = `You are a helpful voice assistant. ` +
	`Answer in one or two short sentences suitable for being read aloud. ` +
	`Do not use markdown, lists, or emoji.`

// Kind classifies a resolver decision.
type Kind int

const (
	// KindNoAction means the model answered conversationally; Reply holds the text.
	KindNoAction Kind = iota
	// KindInvoke means the model selected a capability; Capability and Args are set.
	KindInvoke
	// KindInvalid means the model produced a tool call the gateway cannot act
	// on; Reason explains why. The turn layer replies with a safe template.
	KindInvalid
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindNoAction:
		return "no-action"
	case KindInvoke:
		return "invoke"
	case KindInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Decision is the outcome of one resolution. Exactly one of the three shapes
// applies, selected by Kind.
type Decision struct {
	Kind Kind

	// Reply is the model's conversational answer (KindNoAction only). May be
	// empty when the model returned neither text nor a usable tool call.
	Reply string

	// Capability is the registry name the model selected (KindInvoke), or the
	// unknown name it asked for (KindInvalid with ReasonUnknownCapability).
	Capability string

	// Args are the tool-call arguments (KindInvoke only), already validated
	// against the capability schema with defaults applied.
	Args map[string]any

	// Reason explains a KindInvalid decision.
	Reason string
}

// Resolver asks the model to select a capability for an utterance the fast
// path missed. Safe for concurrent use; concurrency toward the model itself
// is bounded by the internal semaphore.
type Resolver struct {
	provider llm.Provider
	registry *capability.Registry

	sem         *semaphore.Weighted
	pending     atomic.Int64
	concurrency int64
	maxQueue    int64

	systemPrompt string
	chatPrompt   string
	temperature  float64
	maxTokens    int
}

// Option is a functional option for configuring a Resolver.
type Option func(*Resolver)

// WithConcurrency sets how many model calls may run at once. Default 1,
// matching single-GPU local inference.
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = int64(n)
		}
	}
}

// WithMaxQueue sets how many callers may wait for a slot beyond the ones
// currently running. Default 8. Zero means no waiting at all.
func WithMaxQueue(n int) Option {
	return func(r *Resolver) {
		if n >= 0 {
			r.maxQueue = int64(n)
		}
	}
}

// WithSystemPrompt overrides the tool-selection system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(r *Resolver) {
		if prompt != "" {
			r.systemPrompt = prompt
		}
	}
}

// WithChatPrompt overrides the system prompt used by [Resolver.Chat].
func WithChatPrompt(prompt string) Option {
	return func(r *Resolver) {
		if prompt != "" {
			r.chatPrompt = prompt
		}
	}
}

// WithTemperature sets the sampling temperature for both resolution and chat.
func WithTemperature(t float64) Option {
	return func(r *Resolver) { r.temperature = t }
}

// WithMaxTokens caps the model's output length.
func WithMaxTokens(n int) Option {
	return func(r *Resolver) { r.maxTokens = n }
}

// NewResolver creates a Resolver over the given provider and registry. The
// semaphore is sized after all options are applied.
func NewResolver(provider llm.Provider, registry *capability.Registry, opts ...Option) *Resolver {
	r := &Resolver{
		provider:     provider,
		registry:     registry,
		concurrency:  1,
		maxQueue:     8,
		systemPrompt: defaultSystemPrompt,
		chatPrompt:   defaultChatPrompt,
		temperature:  0.2,
	}
	for _, o := range opts {
		o(r)
	}
	r.sem = semaphore.NewWeighted(r.concurrency)
	return r
}

// Resolve sends exactly one completion request offering the registry's tool
// schemas and classifies the response. A provider failure is returned as an
// error; everything the model can get wrong on its own (unknown tool, broken
// or schema-invalid arguments) becomes a KindInvalid decision instead, so the turn layer
// can answer with a template rather than an apology for an outage.
func (r *Resolver) Resolve(ctx context.Context, text string, history []llm.Message) (Decision, error) {
	release, err := r.acquire(ctx)
	if err != nil {
		return Decision{}, err
	}
	defer release()

	req := llm.CompletionRequest{
		SystemPrompt: r.systemPrompt,
		Messages:     appendUser(history, text),
		Tools:        r.registry.Tools(),
		Temperature:  r.temperature,
		MaxTokens:    r.maxTokens,
	}

	resp, err := r.provider.Complete(ctx, req)
	if err != nil {
		return Decision{}, fmt.Errorf("intent: completion failed: %w", err)
	}

	return r.classify(resp), nil
}

// Chat sends a plain conversational completion without tools. Used when the
// resolver decided no capability applies but returned no usable reply text.
func (r *Resolver) Chat(ctx context.Context, text string, history []llm.Message) (string, error) {
	release, err := r.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	req := llm.CompletionRequest{
		SystemPrompt: r.chatPrompt,
		Messages:     appendUser(history, text),
		Temperature:  r.temperature,
		MaxTokens:    r.maxTokens,
	}

	resp, err := r.provider.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("intent: chat completion failed: %w", err)
	}
	return resp.Content, nil
}

// acquire admits the caller into the bounded queue and takes a model slot.
// The returned func releases both.
func (r *Resolver) acquire(ctx context.Context) (func(), error) {
	if n := r.pending.Add(1); n > r.concurrency+r.maxQueue {
		r.pending.Add(-1)
		return nil, ErrBusy
	}
	if err := r.sem.Acquire(ctx, 1); err != nil {
		r.pending.Add(-1)
		return nil, fmt.Errorf("intent: waiting for inference slot: %w", err)
	}
	return func() {
		r.sem.Release(1)
		r.pending.Add(-1)
	}, nil
}

// classify maps a completion response onto a Decision. Only the first tool
// call is honored; the prompt forbids multiples but small local models do not
// always listen.
func (r *Resolver) classify(resp *llm.CompletionResponse) Decision {
	if resp == nil || len(resp.ToolCalls) == 0 {
		var content string
		if resp != nil {
			content = resp.Content
		}
		return Decision{Kind: KindNoAction, Reply: content}
	}

	call := resp.ToolCalls[0]
	if len(resp.ToolCalls) > 1 {
		slog.Warn("model returned multiple tool calls, using the first",
			"selected", call.Name, "total", len(resp.ToolCalls))
	}

	desc, err := r.registry.Resolve(call.Name)
	if err != nil {
		return Decision{
			Kind:       KindInvalid,
			Capability: call.Name,
			Reason:     ReasonUnknownCapability,
		}
	}

	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			slog.Debug("tool-call arguments are not valid JSON",
				"capability", desc.Name, "error", err)
			return Decision{
				Kind:       KindInvalid,
				Capability: desc.Name,
				Reason:     ReasonUnparseableArguments,
			}
		}
	}

	validated, err := desc.ValidateArgs(args)
	if err != nil {
		slog.Debug("tool-call arguments do not satisfy the capability schema",
			"capability", desc.Name, "error", err)
		return Decision{
			Kind:       KindInvalid,
			Capability: desc.Name,
			Reason:     err.Error(),
		}
	}

	return Decision{Kind: KindInvoke, Capability: desc.Name, Args: validated}
}

func appendUser(history []llm.Message, text string) []llm.Message {
	msgs := make([]llm.Message, len(history)+1)
	copy(msgs, history)
	msgs[len(history)] = llm.Message{Role: "user", Content: text}
	return msgs
}
