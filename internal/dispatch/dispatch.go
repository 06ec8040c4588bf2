// Package dispatch executes resolved capability invocations and normalizes
// everything a handler can do wrong into an Outcome. Handlers run behind a
// panic guard and a per-capability timeout; the dispatcher itself never
// panics and never returns a Go error, because every result, good or bad,
// must become a spoken reply.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/voxgate/voxgate/internal/capability"
	"github.com/voxgate/voxgate/internal/observe"
)

const defaultTimeout = 10 * time.Second

// Kind classifies an invocation outcome.
type Kind int

const (
	// KindSuccess means the handler returned, or a fire-and-forget invocation
	// was accepted and detached.
	KindSuccess Kind = iota
	// KindFailure covers every non-timeout failure; Failure names the cause.
	KindFailure
	// KindTimeout means the handler exceeded its deadline. Its goroutine may
	// still be running; the result is discarded.
	KindTimeout
)

// String implements fmt.Stringer. The values feed the outcome label of the
// dispatch metrics.
func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindFailure:
		return "failure"
	case KindTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Failure causes for Kind == KindFailure.
const (
	FailUnknownCapability = "unknown_capability"
	FailInvalidArguments  = "invalid_arguments"
	FailHandlerError      = "handler_error"
	FailCancelled         = "cancelled"
)

// Outcome is the normalized result of one invocation.
type Outcome struct {
	Kind Kind

	// Payload is the handler's return value (KindSuccess, wait mode only).
	Payload any

	// Detached is true for accepted fire-and-forget invocations; the handler
	// result arrives later via the completion hook.
	Detached bool

	// Failure names the cause for KindFailure.
	Failure string

	// Message carries failure detail for logs. It is never spoken verbatim;
	// the turn layer maps outcomes to reply templates.
	Message string

	// Elapsed is the time from dispatch to outcome.
	Elapsed time.Duration
}

// CompletionHook receives the terminal outcome of a detached invocation.
// Called from the invocation's goroutine; keep it fast.
type CompletionHook func(capability string, outcome Outcome)

// Dispatcher validates arguments and runs capability handlers. Safe for
// concurrent use.
type Dispatcher struct {
	registry *capability.Registry
	metrics  *observe.Metrics
	timeout  time.Duration
	hook     CompletionHook
}

// Option is a functional option for configuring a Dispatcher.
type Option func(*Dispatcher)

// WithDefaultTimeout sets the deadline for descriptors that do not carry
// their own. Default 10s.
func WithDefaultTimeout(d time.Duration) Option {
	return func(dp *Dispatcher) {
		if d > 0 {
			dp.timeout = d
		}
	}
}

// WithMetrics records dispatch outcomes and durations.
func WithMetrics(m *observe.Metrics) Option {
	return func(dp *Dispatcher) { dp.metrics = m }
}

// WithCompletionHook registers the sink for detached invocation results.
func WithCompletionHook(h CompletionHook) Option {
	return func(dp *Dispatcher) { dp.hook = h }
}

// NewDispatcher creates a Dispatcher over the given registry.
func NewDispatcher(registry *capability.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{registry: registry, timeout: defaultTimeout}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Invoke resolves name, validates args against the capability schema, and
// runs the handler according to its execution mode. Validation failures never
// reach the handler, and a context already cancelled before the handler
// starts guarantees no side effects.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args map[string]any) Outcome {
	start := time.Now()

	desc, err := d.registry.Resolve(name)
	if err != nil {
		return d.finish(ctx, name, start, Outcome{
			Kind:    KindFailure,
			Failure: FailUnknownCapability,
			Message: err.Error(),
		})
	}

	validated, err := desc.ValidateArgs(args)
	if err != nil {
		return d.finish(ctx, desc.Name, start, Outcome{
			Kind:    KindFailure,
			Failure: FailInvalidArguments,
			Message: err.Error(),
		})
	}

	if err := ctx.Err(); err != nil {
		return d.finish(ctx, desc.Name, start, Outcome{
			Kind:    KindFailure,
			Failure: FailCancelled,
			Message: err.Error(),
		})
	}

	if desc.Mode == capability.ModeFireAndForget {
		return d.fireAndForget(ctx, desc, validated, start)
	}
	return d.wait(ctx, desc, validated, start)
}

// wait runs the handler and blocks until it returns, the deadline passes, or
// the caller's context is cancelled. After a timeout or cancellation the
// handler goroutine is abandoned; it sees the cancelled context and is
// expected to unwind on its own.
func (d *Dispatcher) wait(ctx context.Context, desc *capability.Descriptor, args map[string]any, start time.Time) Outcome {
	hctx, cancel := context.WithTimeout(ctx, d.timeoutFor(desc))
	defer cancel()

	type result struct {
		payload any
		err     error
	}
	resultCh := make(chan result, 1)
	go func() {
		payload, err := runGuarded(hctx, desc, args)
		resultCh <- result{payload, err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return d.finish(ctx, desc.Name, start, Outcome{
				Kind:    KindFailure,
				Failure: FailHandlerError,
				Message: res.err.Error(),
			})
		}
		return d.finish(ctx, desc.Name, start, Outcome{Kind: KindSuccess, Payload: res.payload})

	case <-hctx.Done():
		if errors.Is(hctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return d.finish(ctx, desc.Name, start, Outcome{
				Kind:    KindTimeout,
				Message: fmt.Sprintf("dispatch: %s exceeded %s", desc.Name, d.timeoutFor(desc)),
			})
		}
		return d.finish(ctx, desc.Name, start, Outcome{
			Kind:    KindFailure,
			Failure: FailCancelled,
			Message: ctx.Err().Error(),
		})
	}
}

// fireAndForget acknowledges immediately and runs the handler on a context
// detached from the caller, so hanging up the turn does not abort work the
// user already confirmed. The terminal outcome goes to logs, metrics, and the
// completion hook.
func (d *Dispatcher) fireAndForget(ctx context.Context, desc *capability.Descriptor, args map[string]any, start time.Time) Outcome {
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeoutFor(desc))

	go func() {
		defer cancel()
		bgStart := time.Now()

		payload, err := runGuarded(hctx, desc, args)
		outcome := Outcome{Kind: KindSuccess, Payload: payload, Elapsed: time.Since(bgStart)}
		if err != nil {
			outcome = Outcome{
				Kind:    KindFailure,
				Failure: FailHandlerError,
				Message: err.Error(),
				Elapsed: time.Since(bgStart),
			}
			slog.Warn("detached invocation failed",
				"capability", desc.Name, "error", err, "elapsed", outcome.Elapsed)
		} else {
			slog.Debug("detached invocation finished",
				"capability", desc.Name, "elapsed", outcome.Elapsed)
		}
		if d.metrics != nil {
			d.metrics.RecordDispatch(hctx, desc.Name, outcome.Kind.String(), outcome.Elapsed.Seconds())
		}
		if d.hook != nil {
			d.hook(desc.Name, outcome)
		}
	}()

	// The acknowledgement itself counts as a successful dispatch.
	return d.finish(ctx, desc.Name, start, Outcome{Kind: KindSuccess, Detached: true})
}

// runGuarded executes the handler behind a panic guard. A panicking handler
// becomes an ordinary handler error.
func runGuarded(ctx context.Context, desc *capability.Descriptor, args map[string]any) (payload any, err error) {
	defer func() {
		if r := recover(); r != nil {
			payload = nil
			err = fmt.Errorf("dispatch: handler %s panicked: %v", desc.Name, r)
		}
	}()
	return desc.Handler(ctx, args)
}

func (d *Dispatcher) timeoutFor(desc *capability.Descriptor) time.Duration {
	if desc.Timeout > 0 {
		return desc.Timeout
	}
	return d.timeout
}

// finish stamps the elapsed time and records metrics.
func (d *Dispatcher) finish(ctx context.Context, name string, start time.Time, out Outcome) Outcome {
	out.Elapsed = time.Since(start)
	if d.metrics != nil {
		d.metrics.RecordDispatch(ctx, name, out.Kind.String(), out.Elapsed.Seconds())
	}
	if out.Kind != KindSuccess {
		slog.Debug("dispatch did not succeed",
			"capability", name, "outcome", out.Kind.String(),
			"failure", out.Failure, "detail", out.Message)
	}
	return out
}
