package skills

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxgate/voxgate/internal/capability"
)

// Timers manages countdown timers. Expiry fires a callback; the default just
// logs, a gateway wires it to whatever notification path it has.
type Timers struct {
	mu     sync.Mutex
	active map[string]*timerEntry

	onExpire func(label string, d time.Duration)
	now      func() time.Time
}

type timerEntry struct {
	id       string
	label    string
	duration time.Duration
	deadline time.Time
	stop     *time.Timer
}

// TimersOption is a functional option for configuring Timers.
type TimersOption func(*Timers)

// WithExpiryFunc sets the callback fired when a timer elapses.
func WithExpiryFunc(fn func(label string, d time.Duration)) TimersOption {
	return func(t *Timers) { t.onExpire = fn }
}

// withClock overrides the time source. Tests only.
func withClock(now func() time.Time) TimersOption {
	return func(t *Timers) { t.now = now }
}

// NewTimers creates an empty timer manager.
func NewTimers(opts ...TimersOption) *Timers {
	t := &Timers{
		active: make(map[string]*timerEntry),
		now:    time.Now,
		onExpire: func(label string, d time.Duration) {
			slog.Info("timer expired", "label", label, "duration", d)
		},
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Start parses phrase ("5 minutes", "ninety seconds") and schedules a timer.
// Returns the spoken confirmation.
func (t *Timers) Start(phrase, label string) (string, error) {
	d, err := ParseDurationPhrase(phrase)
	if err != nil {
		return "", err
	}
	if label == "" {
		label = "timer"
	}

	id := uuid.NewString()
	entry := &timerEntry{
		id:       id,
		label:    label,
		duration: d,
		deadline: t.now().Add(d),
	}
	entry.stop = time.AfterFunc(d, func() {
		t.mu.Lock()
		delete(t.active, id)
		t.mu.Unlock()
		t.onExpire(label, d)
	})

	t.mu.Lock()
	t.active[id] = entry
	t.mu.Unlock()

	return fmt.Sprintf("Timer set for %s.", speakDuration(d)), nil
}

// List returns a spoken summary of running timers, soonest first.
func (t *Timers) List() string {
	t.mu.Lock()
	entries := make([]*timerEntry, 0, len(t.active))
	for _, e := range t.active {
		entries = append(entries, e)
	}
	t.mu.Unlock()

	if len(entries) == 0 {
		return "No timers are running."
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].deadline.Before(entries[j].deadline)
	})

	parts := make([]string, len(entries))
	for i, e := range entries {
		remaining := e.deadline.Sub(t.now())
		if remaining < 0 {
			remaining = 0
		}
		parts[i] = fmt.Sprintf("%s with %s left", e.label, speakDuration(remaining))
	}
	if len(parts) == 1 {
		return "One timer: " + parts[0] + "."
	}
	return fmt.Sprintf("%d timers: %s.", len(parts), strings.Join(parts, ", "))
}

// CancelAll stops every running timer and returns how many were cancelled.
func (t *Timers) CancelAll() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.active)
	for id, e := range t.active {
		e.stop.Stop()
		delete(t.active, id)
	}
	return n
}

// Descriptors returns the timer capability set.
func (t *Timers) Descriptors() []*capability.Descriptor {
	return []*capability.Descriptor{
		{
			Name:        "timer.start",
			Aliases:     []string{"set_timer"},
			Description: "Start a countdown timer.",
			Params: []capability.Param{
				{Name: "duration", Type: capability.TypeString, Description: "How long, e.g. \"5 minutes\" or \"ninety seconds\".", Required: true},
				{Name: "label", Type: capability.TypeString, Description: "Optional name for the timer.", Default: ""},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				label, _ := args["label"].(string)
				return t.Start(args["duration"].(string), label)
			},
		},
		{
			Name:        "timer.list",
			Aliases:     []string{"get_timers"},
			Description: "List the running timers.",
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return t.List(), nil
			},
		},
		{
			Name:        "timer.cancel",
			Aliases:     []string{"cancel_timers"},
			Description: "Cancel all running timers.",
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				n := t.CancelAll()
				switch n {
				case 0:
					return "No timers to cancel.", nil
				case 1:
					return "Timer cancelled.", nil
				default:
					return fmt.Sprintf("Cancelled %d timers.", n), nil
				}
			},
		},
	}
}

var numberWords = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11,
	"twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15, "sixteen": 16,
	"seventeen": 17, "eighteen": 18, "nineteen": 19, "twenty": 20, "thirty": 30,
	"forty": 40, "fifty": 50, "sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
}

// ParseDurationPhrase turns a spoken duration ("5 minutes", "ninety seconds",
// "twenty five minutes", "an hour") into a time.Duration.
func ParseDurationPhrase(phrase string) (time.Duration, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(phrase)), "-", " ")
	fields := strings.Fields(normalized)
	if len(fields) < 2 {
		return 0, fmt.Errorf("skills: cannot parse duration %q", phrase)
	}

	unit := fields[len(fields)-1]
	var per time.Duration
	switch strings.TrimSuffix(unit, "s") {
	case "second", "sec":
		per = time.Second
	case "minute", "min":
		per = time.Minute
	case "hour", "hr":
		per = time.Hour
	default:
		return 0, fmt.Errorf("skills: unknown duration unit %q", unit)
	}

	amount := 0
	for _, word := range fields[:len(fields)-1] {
		if word == "and" {
			continue
		}
		if n, err := strconv.Atoi(word); err == nil {
			amount += n
			continue
		}
		n, ok := numberWords[word]
		if !ok {
			return 0, fmt.Errorf("skills: cannot parse duration %q", phrase)
		}
		amount += n
	}
	if amount <= 0 {
		return 0, fmt.Errorf("skills: duration %q is not positive", phrase)
	}
	return time.Duration(amount) * per, nil
}

// speakDuration renders d the way a timer reply should sound.
func speakDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	var parts []string
	if h > 0 {
		parts = append(parts, plural(h, "hour"))
	}
	if m > 0 {
		parts = append(parts, plural(m, "minute"))
	}
	if s > 0 || len(parts) == 0 {
		parts = append(parts, plural(s, "second"))
	}
	return strings.Join(parts, " and ")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
