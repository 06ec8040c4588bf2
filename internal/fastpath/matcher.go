// Package fastpath implements the deterministic first stage of turn handling:
// an ordered list of regex rules checked against the utterance before any
// model is consulted. A hit resolves directly to a capability invocation in
// microseconds; a miss falls through to the model-assisted resolver.
//
// The matcher never performs I/O. An optional phonetic normalizer rewrites
// common STT mis-hearings of capability keywords before matching.
package fastpath

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/voxgate/voxgate/internal/capability"
)

// Rule is one (pattern, capability, extraction) triple. Rules are evaluated
// in order; the first whose pattern matches and whose extracted arguments
// validate wins.
type Rule struct {
	// Name is a human-readable label for logging.
	Name string

	// Pattern is the compiled case-insensitive regex.
	Pattern *regexp.Regexp

	// Capability is the registry name the rule resolves to.
	Capability string

	// Extract builds capability arguments from the submatch slice
	// (Pattern.FindStringSubmatch output). Nil means no arguments. An error
	// makes the rule fall through as if it had not matched.
	Extract func(matches []string) (map[string]any, error)
}

// Match is the result of one fast-path evaluation.
type Match struct {
	// Matched is false when no rule applied; the turn then goes to the model.
	Matched bool

	// Capability is the resolved registry name.
	Capability string

	// Args are the validated, normalized arguments for dispatch.
	Args map[string]any

	// Rule is the name of the rule that matched.
	Rule string
}

// Matcher evaluates rules against utterances. It is read-only after
// construction and safe for concurrent use.
type Matcher struct {
	rules      []Rule
	registry   *capability.Registry
	normalizer *Normalizer
}

// Option is a functional option for configuring a Matcher.
type Option func(*Matcher)

// WithNormalizer enables phonetic keyword normalization before matching.
func WithNormalizer(n *Normalizer) Option {
	return func(m *Matcher) { m.normalizer = n }
}

// NewMatcher creates a Matcher over the given rules. The registry is used for
// argument validation at match time and rule validation at startup.
func NewMatcher(reg *capability.Registry, rules []Rule, opts ...Option) *Matcher {
	m := &Matcher{rules: rules, registry: reg}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Validate checks that every rule names a registered capability. Call it
// after registration, before serving; a rule pointing at nothing is a
// configuration error, not a runtime fall-through.
func (m *Matcher) Validate() error {
	for _, r := range m.rules {
		if r.Pattern == nil {
			return fmt.Errorf("fastpath: rule %q has no pattern", r.Name)
		}
		if _, err := m.registry.Resolve(r.Capability); err != nil {
			return fmt.Errorf("fastpath: rule %q: %w", r.Name, err)
		}
	}
	return nil
}

// Match evaluates the rules against text in order and returns the first hit
// whose extracted arguments validate against the target capability's schema.
// Extraction or validation failure on one rule falls through to the next
// rule, and ultimately to a miss — never to an error. The model resolver is
// the safety net for anything the rule table cannot express.
func (m *Matcher) Match(text string) Match {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Match{}
	}
	if m.normalizer != nil {
		trimmed = m.normalizer.Normalize(trimmed)
	}

	for _, r := range m.rules {
		matches := r.Pattern.FindStringSubmatch(trimmed)
		if matches == nil {
			continue
		}

		var args map[string]any
		if r.Extract != nil {
			var err error
			args, err = r.Extract(matches)
			if err != nil {
				slog.Debug("fastpath: extraction failed, falling through",
					"rule", r.Name, "error", err)
				continue
			}
		}

		desc, err := m.registry.Resolve(r.Capability)
		if err != nil {
			// Validate() should have caught this; treat as a miss.
			slog.Warn("fastpath: rule names unknown capability", "rule", r.Name, "capability", r.Capability)
			continue
		}
		validated, err := desc.ValidateArgs(args)
		if err != nil {
			slog.Debug("fastpath: extracted args failed validation, falling through",
				"rule", r.Name, "error", err)
			continue
		}

		return Match{
			Matched:    true,
			Capability: desc.Name,
			Args:       validated,
			Rule:       r.Name,
		}
	}

	return Match{}
}
