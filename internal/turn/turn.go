// Package turn is the conversational core of the gateway. It takes one
// utterance through the fast path, the model resolver on a miss, and the
// dispatcher, and always produces a speakable reply.
//
// Two invariants hold regardless of what fails underneath:
//
//   - HandleTurn never returns an error and never panics outward. Every
//     failure becomes a reply template; raw error text is never spoken.
//   - Turns within one session run strictly in order. Turns across sessions
//     run concurrently.
package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/voxgate/voxgate/internal/dispatch"
	"github.com/voxgate/voxgate/internal/fastpath"
	"github.com/voxgate/voxgate/internal/intent"
	"github.com/voxgate/voxgate/internal/observe"
	"github.com/voxgate/voxgate/pkg/provider/llm"
)

// State tracks where a turn is in its lifecycle. Terminal state is always
// StateDone, reached on every path including panics.
type State int

const (
	StateReceived State = iota
	StateMatching
	StateResolving
	StateDispatching
	StateDone
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateMatching:
		return "matching"
	case StateResolving:
		return "resolving"
	case StateDispatching:
		return "dispatching"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Utterance is one user input entering the orchestrator.
type Utterance struct {
	// Text is the transcribed or typed user input.
	Text string

	// SessionID groups turns into an ordered conversation. Empty means an
	// anonymous one-off turn with no ordering guarantees against others.
	SessionID string

	// Source records where the utterance came from ("voice", "text").
	Source string

	// Context is the recent conversation window the resolver may use. The
	// orchestrator holds no conversational state itself; callers assemble
	// this from the history store.
	Context []llm.Message
}

// Response is the normalized result of one turn.
type Response struct {
	// TurnID uniquely identifies the turn for log correlation.
	TurnID string

	// Reply is the speakable answer. Never empty and never raw error text.
	Reply string

	// Capability is the capability that was invoked, if any.
	Capability string

	// ResolvedBy records the path that produced the reply: "fast-path",
	// "model", or "fallback" when neither could run to completion.
	ResolvedBy string

	// Outcome is the dispatch result when a capability was invoked.
	Outcome *dispatch.Outcome

	// Elapsed is the end-to-end turn latency.
	Elapsed time.Duration
}

// Reply templates. Outcomes map onto these; handler and provider errors stay
// in the logs.
const (
	replyEmpty       = "Sorry, I didn't catch that."
	replyBusy        = "I'm still working on the previous request. Try again in a moment."
	replyUnavailable = "Sorry, I'm having trouble thinking right now."
	replyUnsupported = "I'm not sure how to do that yet."
	replyDetached    = "On it."
	replyDone        = "Done."
	replyTimeout     = "That's taking longer than it should. I've stopped waiting."
	replyCancelled   = "Okay, never mind."
	replyBadArgs     = "I'm missing some details for that. Try rephrasing."
	replyFailed      = "Sorry, that didn't work."
	replyInternal    = "Sorry, something went wrong on my end."
)

// Orchestrator wires the fast path, resolver, and dispatcher into the
// single-utterance pipeline. Safe for concurrent use.
type Orchestrator struct {
	matcher    *fastpath.Matcher
	resolver   *intent.Resolver
	dispatcher *dispatch.Dispatcher
	metrics    *observe.Metrics

	chatEnabled bool
	observer    func(turnID string, s State)

	mu    sync.Mutex
	tails map[string]chan struct{}
}

// Option is a functional option for configuring an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics records turn and fast-path metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithChatFallback enables a plain chat completion when the resolver decides
// no capability applies but returns no reply text.
func WithChatFallback(enabled bool) Option {
	return func(o *Orchestrator) { o.chatEnabled = enabled }
}

// WithStateObserver registers a callback invoked on every state transition.
// Used by tests; keep it fast.
func WithStateObserver(fn func(turnID string, s State)) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// New creates an Orchestrator.
func New(matcher *fastpath.Matcher, resolver *intent.Resolver, dispatcher *dispatch.Dispatcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		matcher:    matcher,
		resolver:   resolver,
		dispatcher: dispatcher,
		tails:      make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// HandleTurn runs one utterance through the pipeline and always returns a
// Response with a speakable Reply. It blocks until earlier turns of the same
// session have finished.
func (o *Orchestrator) HandleTurn(ctx context.Context, utt Utterance) (resp Response) {
	start := time.Now()
	resp.TurnID = uuid.NewString()
	resp.ResolvedBy = "fallback"
	o.setState(resp.TurnID, StateReceived)

	defer func() {
		if r := recover(); r != nil {
			observe.Logger(ctx).Error("turn handling panicked", "turn_id", resp.TurnID, "panic", r)
			resp.Reply = replyInternal
			resp.ResolvedBy = "fallback"
		}
		resp.Elapsed = time.Since(start)
		if o.metrics != nil {
			o.metrics.TurnDuration.Record(ctx, resp.Elapsed.Seconds(),
				metric.WithAttributes(observe.Attr("resolved_by", resp.ResolvedBy)))
		}
		o.setState(resp.TurnID, StateDone)
	}()

	release, ok := o.enqueue(ctx, utt.SessionID)
	if !ok {
		resp.Reply = replyCancelled
		return resp
	}
	defer release()

	if o.metrics != nil {
		o.metrics.ActiveSessions.Add(ctx, 1)
		defer o.metrics.ActiveSessions.Add(ctx, -1)
	}

	text := strings.TrimSpace(utt.Text)
	if text == "" {
		resp.Reply = replyEmpty
		return resp
	}

	o.setState(resp.TurnID, StateMatching)
	if match := o.matcher.Match(text); match.Matched {
		if o.metrics != nil {
			o.metrics.RecordFastPath(ctx, "hit")
		}
		observe.Logger(ctx).Debug("fast-path hit",
			"turn_id", resp.TurnID, "rule", match.Rule, "capability", match.Capability)

		resp.ResolvedBy = "fast-path"
		resp.Capability = match.Capability
		o.invoke(ctx, &resp, match.Capability, match.Args)
		return resp
	}
	if o.metrics != nil {
		o.metrics.RecordFastPath(ctx, "miss")
	}

	o.setState(resp.TurnID, StateResolving)
	dec, err := o.resolver.Resolve(ctx, text, utt.Context)
	if err != nil {
		if errors.Is(err, intent.ErrBusy) {
			if o.metrics != nil {
				o.metrics.ResolverRejected.Add(ctx, 1)
			}
			resp.Reply = replyBusy
			return resp
		}
		if o.metrics != nil {
			o.metrics.RecordResolution(ctx, "error")
		}
		observe.Logger(ctx).Warn("resolution failed", "turn_id", resp.TurnID, "error", err)
		resp.Reply = replyUnavailable
		return resp
	}
	resp.ResolvedBy = "model"
	if o.metrics != nil {
		o.metrics.RecordResolution(ctx, resolutionStatus(dec.Kind))
	}

	switch dec.Kind {
	case intent.KindInvoke:
		resp.Capability = dec.Capability
		o.invoke(ctx, &resp, dec.Capability, dec.Args)

	case intent.KindInvalid:
		observe.Logger(ctx).Debug("model produced an unusable tool call",
			"turn_id", resp.TurnID, "capability", dec.Capability, "reason", dec.Reason)
		resp.Reply = replyUnsupported

	default: // KindNoAction
		resp.Reply = dec.Reply
		if resp.Reply == "" && o.chatEnabled {
			reply, err := o.resolver.Chat(ctx, text, utt.Context)
			switch {
			case errors.Is(err, intent.ErrBusy):
				resp.Reply = replyBusy
			case err != nil:
				observe.Logger(ctx).Warn("chat fallback failed", "turn_id", resp.TurnID, "error", err)
				resp.Reply = replyUnavailable
			default:
				resp.Reply = reply
			}
		}
		if resp.Reply == "" {
			resp.Reply = replyUnsupported
		}
	}
	return resp
}

// invoke dispatches and fills Reply from the outcome.
func (o *Orchestrator) invoke(ctx context.Context, resp *Response, name string, args map[string]any) {
	o.setState(resp.TurnID, StateDispatching)
	out := o.dispatcher.Invoke(ctx, name, args)
	resp.Outcome = &out
	resp.Reply = replyForOutcome(out)
}

// replyForOutcome maps a dispatch outcome onto a reply template. A handler
// that returns a non-empty string speaks for itself; everything else gets a
// fixed phrase.
func replyForOutcome(out dispatch.Outcome) string {
	switch out.Kind {
	case dispatch.KindSuccess:
		if out.Detached {
			return replyDetached
		}
		if s, ok := out.Payload.(string); ok && s != "" {
			return s
		}
		return replyDone

	case dispatch.KindTimeout:
		return replyTimeout

	default:
		switch out.Failure {
		case dispatch.FailCancelled:
			return replyCancelled
		case dispatch.FailInvalidArguments:
			return replyBadArgs
		case dispatch.FailUnknownCapability:
			return replyUnsupported
		default:
			return replyFailed
		}
	}
}

func resolutionStatus(k intent.Kind) string {
	switch k {
	case intent.KindInvoke:
		return "invoke"
	case intent.KindInvalid:
		return "invalid"
	default:
		return "no_action"
	}
}

// enqueue serializes turns per session by chaining on the previous turn's
// completion channel. Returns ok=false when ctx is cancelled while waiting.
func (o *Orchestrator) enqueue(ctx context.Context, sessionID string) (func(), bool) {
	if sessionID == "" {
		return func() {}, true
	}

	o.mu.Lock()
	prev := o.tails[sessionID]
	cur := make(chan struct{})
	o.tails[sessionID] = cur
	o.mu.Unlock()

	release := func() {
		close(cur)
		o.mu.Lock()
		if o.tails[sessionID] == cur {
			delete(o.tails, sessionID)
		}
		o.mu.Unlock()
	}

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			// Successors chain on cur. Closing it now would admit them while
			// the predecessor is still running, so hand the close off to the
			// predecessor's completion instead.
			go func() {
				<-prev
				release()
			}()
			return nil, false
		}
	}
	return release, true
}

func (o *Orchestrator) setState(turnID string, s State) {
	if o.observer != nil {
		o.observer(turnID, s)
	}
}
