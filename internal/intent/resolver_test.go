package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/voxgate/voxgate/internal/capability"
	"github.com/voxgate/voxgate/pkg/provider/llm"
	llmmock "github.com/voxgate/voxgate/pkg/provider/llm/mock"
)

func testRegistry(t *testing.T) *capability.Registry {
	t.Helper()

	r := capability.NewRegistry()
	err := r.Register(&capability.Descriptor{
		Name:        "timer.start",
		Description: "Start a countdown timer.",
		Handler:     func(ctx context.Context, args map[string]any) (any, error) { return nil, nil },
		Params: []capability.Param{
			{Name: "duration", Type: capability.TypeString, Required: true},
		},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return r
}

func TestResolveInvoke(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			ToolCalls: []llm.ToolCall{
				{ID: "call_1", Name: "timer.start", Arguments: `{"duration":"5 minutes"}`},
			},
		},
	}
	r := NewResolver(provider, testRegistry(t))

	dec, err := r.Resolve(context.Background(), "set a timer for five minutes", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if dec.Kind != KindInvoke {
		t.Fatalf("Kind = %v, want invoke", dec.Kind)
	}
	if dec.Capability != "timer.start" {
		t.Errorf("Capability = %q", dec.Capability)
	}
	if dec.Args["duration"] != "5 minutes" {
		t.Errorf("Args = %v", dec.Args)
	}
	if n := provider.CountCompleteCalls(); n != 1 {
		t.Errorf("Complete calls = %d, want exactly 1", n)
	}

	req := provider.CompleteCalls[0].Req
	if len(req.Tools) != 1 || req.Tools[0].Name != "timer.start" {
		t.Errorf("tool schemas not offered to the model: %+v", req.Tools)
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != "user" || last.Content != "set a timer for five minutes" {
		t.Errorf("last message = %+v", last)
	}
}

func TestResolveNoAction(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "It is a lovely day."},
	}
	r := NewResolver(provider, testRegistry(t))

	dec, err := r.Resolve(context.Background(), "how are you", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if dec.Kind != KindNoAction || dec.Reply != "It is a lovely day." {
		t.Errorf("Decision = %+v", dec)
	}
	if n := provider.CountCompleteCalls(); n != 1 {
		t.Errorf("Complete calls = %d, want exactly 1", n)
	}
}

func TestResolveUnknownCapability(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			ToolCalls: []llm.ToolCall{{Name: "ghost.capability", Arguments: `{}`}},
		},
	}
	r := NewResolver(provider, testRegistry(t))

	dec, err := r.Resolve(context.Background(), "do the thing", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if dec.Kind != KindInvalid || dec.Reason != ReasonUnknownCapability {
		t.Errorf("Decision = %+v", dec)
	}
	if dec.Capability != "ghost.capability" {
		t.Errorf("Capability = %q", dec.Capability)
	}
	if n := provider.CountCompleteCalls(); n != 1 {
		t.Errorf("Complete calls = %d, want exactly 1", n)
	}
}

func TestResolveUnparseableArguments(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			ToolCalls: []llm.ToolCall{{Name: "timer.start", Arguments: `{"duration":`}},
		},
	}
	r := NewResolver(provider, testRegistry(t))

	dec, err := r.Resolve(context.Background(), "set a timer", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if dec.Kind != KindInvalid || dec.Reason != ReasonUnparseableArguments {
		t.Errorf("Decision = %+v", dec)
	}
}

func TestResolveSchemaInvalidArguments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args string
	}{
		{"missing required field", `{}`},
		{"wrong type", `{"duration":300}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			provider := &llmmock.Provider{
				CompleteResponse: &llm.CompletionResponse{
					ToolCalls: []llm.ToolCall{{Name: "timer.start", Arguments: tt.args}},
				},
			}
			r := NewResolver(provider, testRegistry(t))

			dec, err := r.Resolve(context.Background(), "set a timer", nil)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if dec.Kind != KindInvalid {
				t.Fatalf("Kind = %v, want invalid", dec.Kind)
			}
			if dec.Capability != "timer.start" {
				t.Errorf("Capability = %q", dec.Capability)
			}
			if dec.Reason == "" {
				t.Error("Reason is empty, want the validation failure")
			}
		})
	}
}

func TestResolveMultipleToolCallsUsesFirst(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			ToolCalls: []llm.ToolCall{
				{Name: "timer.start", Arguments: `{"duration":"1 minute"}`},
				{Name: "timer.start", Arguments: `{"duration":"2 minutes"}`},
			},
		},
	}
	r := NewResolver(provider, testRegistry(t))

	dec, err := r.Resolve(context.Background(), "set timers", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if dec.Kind != KindInvoke || dec.Args["duration"] != "1 minute" {
		t.Errorf("Decision = %+v", dec)
	}
}

func TestResolveProviderError(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{CompleteErr: errors.New("backend down")}
	r := NewResolver(provider, testRegistry(t))

	if _, err := r.Resolve(context.Background(), "hello", nil); err == nil {
		t.Error("expected provider error to propagate")
	}
}

func TestResolveBusy(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	provider := &llmmock.Provider{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			close(started)
			<-release
			return &llm.CompletionResponse{Content: "done"}, nil
		},
	}
	r := NewResolver(provider, testRegistry(t), WithConcurrency(1), WithMaxQueue(0))

	firstDone := make(chan error, 1)
	go func() {
		_, err := r.Resolve(context.Background(), "first", nil)
		firstDone <- err
	}()
	<-started

	// The single slot is taken and the queue holds nobody: reject immediately.
	if _, err := r.Resolve(context.Background(), "second", nil); !errors.Is(err, ErrBusy) {
		t.Errorf("err = %v, want ErrBusy", err)
	}

	close(release)
	if err := <-firstDone; err != nil {
		t.Errorf("first Resolve: %v", err)
	}
}

func TestChat(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "Hi there."},
	}
	r := NewResolver(provider, testRegistry(t), WithChatPrompt("Be brief."))

	reply, err := r.Chat(context.Background(), "hello", []llm.Message{
		{Role: "user", Content: "earlier"},
		{Role: "assistant", Content: "yes?"},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply != "Hi there." {
		t.Errorf("reply = %q", reply)
	}

	req := provider.CompleteCalls[0].Req
	if req.SystemPrompt != "Be brief." {
		t.Errorf("SystemPrompt = %q", req.SystemPrompt)
	}
	if len(req.Tools) != 0 {
		t.Error("chat completion must not offer tools")
	}
	if len(req.Messages) != 3 {
		t.Errorf("messages = %d, want history plus utterance", len(req.Messages))
	}
}
