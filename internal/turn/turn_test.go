package turn

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voxgate/voxgate/internal/capability"
	"github.com/voxgate/voxgate/internal/dispatch"
	"github.com/voxgate/voxgate/internal/fastpath"
	"github.com/voxgate/voxgate/internal/intent"
	"github.com/voxgate/voxgate/pkg/provider/llm"
	llmmock "github.com/voxgate/voxgate/pkg/provider/llm/mock"
)

// testHarness wires a registry, the default rules, and a mock model into an
// orchestrator.
type testHarness struct {
	registry *capability.Registry
	provider *llmmock.Provider
}

func (h *testHarness) orchestrator(t *testing.T, opts ...Option) *Orchestrator {
	t.Helper()
	matcher := fastpath.NewMatcher(h.registry, fastpath.DefaultRules())
	resolver := intent.NewResolver(h.provider, h.registry)
	dispatcher := dispatch.NewDispatcher(h.registry)
	return New(matcher, resolver, dispatcher, opts...)
}

func newHarness(t *testing.T, descriptors ...*capability.Descriptor) *testHarness {
	t.Helper()
	h := &testHarness{
		registry: capability.NewRegistry(),
		provider: &llmmock.Provider{},
	}
	for _, d := range descriptors {
		if err := h.registry.Register(d); err != nil {
			t.Fatalf("Register(%q): %v", d.Name, err)
		}
	}
	return h
}

func TestHandleTurnFastPathSkipsModel(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &capability.Descriptor{
		Name: "light.turn_on",
		Params: []capability.Param{
			{Name: "room", Type: capability.TypeString, Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return "The " + args["room"].(string) + " lights are on.", nil
		},
	})
	o := h.orchestrator(t)

	resp := o.HandleTurn(context.Background(), Utterance{
		Text:      "turn on the kitchen lights",
		SessionID: "s1",
	})

	if resp.ResolvedBy != "fast-path" {
		t.Errorf("ResolvedBy = %q", resp.ResolvedBy)
	}
	if resp.Capability != "light.turn_on" {
		t.Errorf("Capability = %q", resp.Capability)
	}
	if resp.Reply != "The kitchen lights are on." {
		t.Errorf("Reply = %q", resp.Reply)
	}
	if n := h.provider.CountCompleteCalls(); n != 0 {
		t.Errorf("model was consulted %d times on a fast-path hit", n)
	}
}

func TestHandleTurnModelInvoke(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &capability.Descriptor{
		Name: "weather.current",
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return "It is 21 degrees and sunny.", nil
		},
	})
	h.provider.CompleteResponse = &llm.CompletionResponse{
		ToolCalls: []llm.ToolCall{{Name: "weather.current", Arguments: `{}`}},
	}
	o := h.orchestrator(t)

	resp := o.HandleTurn(context.Background(), Utterance{
		Text:      "is it nice outside",
		SessionID: "s1",
	})

	if resp.ResolvedBy != "model" || resp.Capability != "weather.current" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Reply != "It is 21 degrees and sunny." {
		t.Errorf("Reply = %q", resp.Reply)
	}
	if n := h.provider.CountCompleteCalls(); n != 1 {
		t.Errorf("Complete calls = %d, want exactly 1", n)
	}
}

func TestHandleTurnNoActionReply(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.provider.CompleteResponse = &llm.CompletionResponse{Content: "You're welcome."}
	o := h.orchestrator(t)

	resp := o.HandleTurn(context.Background(), Utterance{Text: "thanks a lot", SessionID: "s1"})
	if resp.ResolvedBy != "model" || resp.Reply != "You're welcome." {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHandleTurnChatFallback(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	var calls int
	var mu sync.Mutex
	h.provider.CompleteFunc = func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			// Tool-selection pass: neither a tool call nor text.
			return &llm.CompletionResponse{}, nil
		}
		return &llm.CompletionResponse{Content: "Let me think about that."}, nil
	}
	o := h.orchestrator(t, WithChatFallback(true))

	resp := o.HandleTurn(context.Background(), Utterance{Text: "tell me something", SessionID: "s1"})
	if resp.Reply != "Let me think about that." {
		t.Errorf("Reply = %q", resp.Reply)
	}
	if calls != 2 {
		t.Errorf("Complete calls = %d, want tool pass plus chat pass", calls)
	}
}

func TestHandleTurnEmptyUtterance(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	o := h.orchestrator(t)

	resp := o.HandleTurn(context.Background(), Utterance{Text: "   ", SessionID: "s1"})
	if resp.Reply != replyEmpty {
		t.Errorf("Reply = %q", resp.Reply)
	}
	if n := h.provider.CountCompleteCalls(); n != 0 {
		t.Errorf("model consulted for empty utterance")
	}
}

func TestHandleTurnModelErrorUsesTemplate(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.provider.CompleteErr = errors.New("connection refused to 10.0.0.5:11434")
	o := h.orchestrator(t)

	resp := o.HandleTurn(context.Background(), Utterance{Text: "hello there", SessionID: "s1"})
	if resp.Reply != replyUnavailable {
		t.Errorf("Reply = %q", resp.Reply)
	}
	if strings.Contains(resp.Reply, "10.0.0.5") {
		t.Error("raw error detail leaked into the reply")
	}
	if resp.ResolvedBy != "fallback" {
		t.Errorf("ResolvedBy = %q", resp.ResolvedBy)
	}
}

func TestHandleTurnHandlerErrorNeverSurfaces(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &capability.Descriptor{
		Name: "media.pause",
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return nil, errors.New("mpd socket /run/mpd.sock: broken pipe")
		},
	})
	o := h.orchestrator(t)

	resp := o.HandleTurn(context.Background(), Utterance{Text: "pause the music", SessionID: "s1"})
	if resp.Reply != replyFailed {
		t.Errorf("Reply = %q", resp.Reply)
	}
	if strings.Contains(resp.Reply, "mpd") {
		t.Error("raw handler error leaked into the reply")
	}
	if resp.Outcome == nil || resp.Outcome.Failure != dispatch.FailHandlerError {
		t.Errorf("Outcome = %+v", resp.Outcome)
	}
}

func TestHandleTurnInvalidDecision(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.provider.CompleteResponse = &llm.CompletionResponse{
		ToolCalls: []llm.ToolCall{{Name: "made.up", Arguments: `{}`}},
	}
	o := h.orchestrator(t)

	resp := o.HandleTurn(context.Background(), Utterance{Text: "do the thing", SessionID: "s1"})
	if resp.Reply != replyUnsupported {
		t.Errorf("Reply = %q", resp.Reply)
	}
}

func TestHandleTurnBusy(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	started := make(chan struct{})
	release := make(chan struct{})
	h.provider.CompleteFunc = func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		close(started)
		<-release
		return &llm.CompletionResponse{Content: "done"}, nil
	}

	matcher := fastpath.NewMatcher(h.registry, fastpath.DefaultRules())
	resolver := intent.NewResolver(h.provider, h.registry,
		intent.WithConcurrency(1), intent.WithMaxQueue(0))
	o := New(matcher, resolver, dispatch.NewDispatcher(h.registry))

	firstDone := make(chan Response, 1)
	go func() {
		firstDone <- o.HandleTurn(context.Background(), Utterance{Text: "question one", SessionID: "a"})
	}()
	<-started

	// Different session so FIFO ordering does not serialize ahead of the queue.
	resp := o.HandleTurn(context.Background(), Utterance{Text: "question two", SessionID: "b"})
	if resp.Reply != replyBusy {
		t.Errorf("Reply = %q, want busy template", resp.Reply)
	}

	close(release)
	if first := <-firstDone; first.Reply != "done" {
		t.Errorf("first turn reply = %q", first.Reply)
	}
}

func TestHandleTurnSessionFIFO(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var order []string
	firstStarted := make(chan struct{})
	firstRelease := make(chan struct{})

	h := newHarness(t, &capability.Descriptor{
		Name: "media.play",
		Params: []capability.Param{
			{Name: "query", Type: capability.TypeString, Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			q := args["query"].(string)
			if q == "first" {
				close(firstStarted)
				<-firstRelease
			}
			mu.Lock()
			order = append(order, q)
			mu.Unlock()
			return "playing " + q, nil
		},
	})
	o := h.orchestrator(t)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		o.HandleTurn(context.Background(), Utterance{Text: "play first", SessionID: "s"})
	}()
	<-firstStarted
	go func() {
		defer wg.Done()
		o.HandleTurn(context.Background(), Utterance{Text: "play second", SessionID: "s"})
	}()

	// An unrelated session must not be blocked behind session "s".
	other := o.HandleTurn(context.Background(), Utterance{Text: "play third", SessionID: "t"})
	if other.Reply != "playing third" {
		t.Errorf("cross-session turn reply = %q", other.Reply)
	}

	close(firstRelease)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != "third" && order[0] != "first" {
		t.Fatalf("order = %v", order)
	}
	// Within session "s", first must precede second.
	var inSession []string
	for _, q := range order {
		if q != "third" {
			inSession = append(inSession, q)
		}
	}
	if len(inSession) != 2 || inSession[0] != "first" || inSession[1] != "second" {
		t.Errorf("session order = %v, want [first second]", inSession)
	}
}

func TestHandleTurnCancelledWaiterKeepsOrder(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var order []string
	firstStarted := make(chan struct{})
	firstRelease := make(chan struct{})

	h := newHarness(t, &capability.Descriptor{
		Name: "media.play",
		Params: []capability.Param{
			{Name: "query", Type: capability.TypeString, Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			q := args["query"].(string)
			if q == "first" {
				close(firstStarted)
				<-firstRelease
			}
			mu.Lock()
			order = append(order, q)
			mu.Unlock()
			return "playing " + q, nil
		},
	})
	o := h.orchestrator(t)

	firstDone := make(chan Response, 1)
	go func() {
		firstDone <- o.HandleTurn(context.Background(), Utterance{Text: "play first", SessionID: "s"})
	}()
	<-firstStarted

	// Second turn gives up while queued behind the first.
	cancelCtx, cancel := context.WithCancel(context.Background())
	cancelledDone := make(chan Response, 1)
	go func() {
		cancelledDone <- o.HandleTurn(cancelCtx, Utterance{Text: "play never", SessionID: "s"})
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	if resp := <-cancelledDone; resp.Reply != replyCancelled {
		t.Fatalf("cancelled turn reply = %q", resp.Reply)
	}

	// A third turn must still wait behind the first; the abandoned slot is
	// not a shortcut into the session.
	thirdDone := make(chan Response, 1)
	go func() {
		thirdDone <- o.HandleTurn(context.Background(), Utterance{Text: "play second", SessionID: "s"})
	}()
	select {
	case resp := <-thirdDone:
		t.Fatalf("third turn finished (%q) while the first was still running", resp.Reply)
	case <-time.After(50 * time.Millisecond):
	}

	close(firstRelease)
	<-firstDone
	<-thirdDone

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("order = %v, want [first second]", order)
	}
}

func TestHandleTurnReachesDoneOnPanic(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	var mu sync.Mutex
	states := map[string][]State{}
	observer := func(turnID string, s State) {
		mu.Lock()
		states[turnID] = append(states[turnID], s)
		mu.Unlock()
	}

	// A nil matcher makes the pipeline panic mid-turn.
	resolver := intent.NewResolver(h.provider, h.registry)
	o := New(nil, resolver, dispatch.NewDispatcher(h.registry), WithStateObserver(observer))

	resp := o.HandleTurn(context.Background(), Utterance{Text: "boom", SessionID: "s1"})
	if resp.Reply != replyInternal {
		t.Errorf("Reply = %q", resp.Reply)
	}

	mu.Lock()
	defer mu.Unlock()
	seq := states[resp.TurnID]
	if len(seq) == 0 || seq[len(seq)-1] != StateDone {
		t.Errorf("states = %v, want terminal done", seq)
	}
}

func TestHandleTurnDetachedReply(t *testing.T) {
	t.Parallel()

	done := make(chan struct{})
	h := newHarness(t, &capability.Descriptor{
		Name: "media.play",
		Mode: capability.ModeFireAndForget,
		Params: []capability.Param{
			{Name: "query", Type: capability.TypeString, Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			close(done)
			return nil, nil
		},
	})
	o := h.orchestrator(t)

	resp := o.HandleTurn(context.Background(), Utterance{Text: "play some jazz", SessionID: "s1"})
	if resp.Reply != replyDetached {
		t.Errorf("Reply = %q", resp.Reply)
	}
	if resp.Outcome == nil || !resp.Outcome.Detached {
		t.Errorf("Outcome = %+v", resp.Outcome)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("detached handler never ran")
	}
}
