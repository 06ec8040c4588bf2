package fastpath

import (
	"context"
	"regexp"
	"testing"

	"github.com/voxgate/voxgate/internal/capability"
)

func noopHandler(ctx context.Context, args map[string]any) (any, error) {
	return nil, nil
}

func testRegistry(t *testing.T) *capability.Registry {
	t.Helper()

	r := capability.NewRegistry()
	descriptors := []*capability.Descriptor{
		{Name: "media.play", Handler: noopHandler, Params: []capability.Param{
			{Name: "query", Type: capability.TypeString, Required: true},
		}},
		{Name: "media.pause", Handler: noopHandler},
		{Name: "media.skip", Handler: noopHandler},
		{Name: "media.resume", Handler: noopHandler},
		{Name: "clock.time", Handler: noopHandler},
		{Name: "timer.start", Handler: noopHandler, Params: []capability.Param{
			{Name: "duration", Type: capability.TypeString, Required: true},
		}},
		{Name: "timer.list", Handler: noopHandler},
		{Name: "light.turn_on", Handler: noopHandler, Params: []capability.Param{
			{Name: "room", Type: capability.TypeString, Required: true},
		}},
		{Name: "light.turn_off", Handler: noopHandler, Params: []capability.Param{
			{Name: "room", Type: capability.TypeString, Required: true},
		}},
	}
	for _, d := range descriptors {
		if err := r.Register(d); err != nil {
			t.Fatalf("Register(%q): %v", d.Name, err)
		}
	}
	return r
}

func TestMatchDefaultRules(t *testing.T) {
	t.Parallel()

	m := NewMatcher(testRegistry(t), DefaultRules())
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	cases := []struct {
		name       string
		text       string
		capability string
		args       map[string]any
	}{
		{"play with query", "play bohemian rhapsody", "media.play", map[string]any{"query": "bohemian rhapsody"}},
		{"play trailing punct", "Play the white album.", "media.play", map[string]any{"query": "the white album"}},
		{"bare stop", "Stop", "media.pause", nil},
		{"halt the music", "halt the music!", "media.pause", nil},
		{"skip track", "skip this song", "media.skip", nil},
		{"resume", "resume playback", "media.resume", nil},
		{"time question", "What time is it?", "clock.time", nil},
		{"time contraction", "what's the time", "clock.time", nil},
		{"timer numeric", "set a timer for 5 minutes", "timer.start", map[string]any{"duration": "5 minutes"}},
		{"timer worded", "start timer for ninety seconds", "timer.start", map[string]any{"duration": "ninety seconds"}},
		{"timer list", "get my timers", "timer.list", nil},
		{"lights on prefix", "turn on the kitchen lights", "light.turn_on", map[string]any{"room": "kitchen"}},
		{"lights on suffix", "turn the Living Room lights on", "light.turn_on", map[string]any{"room": "living room"}},
		{"lights off", "turn off the bedroom light", "light.turn_off", map[string]any{"room": "bedroom"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := m.Match(tc.text)
			if !got.Matched {
				t.Fatalf("Match(%q) missed", tc.text)
			}
			if got.Capability != tc.capability {
				t.Errorf("capability = %q, want %q", got.Capability, tc.capability)
			}
			for k, want := range tc.args {
				if got.Args[k] != want {
					t.Errorf("arg %q = %v, want %v", k, got.Args[k], want)
				}
			}
		})
	}
}

func TestMatchMisses(t *testing.T) {
	t.Parallel()

	m := NewMatcher(testRegistry(t), DefaultRules())

	cases := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"free-form question", "what's the weather like in Berlin"},
		{"playback embedded mid-sentence", "could you maybe stop at some point"},
		{"unparseable duration falls through", "set a timer for a really long while please"},
		{"fractional duration falls through", "set a timer for one and a half hours"},
		{"half an hour falls through", "set a timer for half an hour"},
		{"vague count falls through", "set a timer for a couple of minutes"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := m.Match(tc.text); got.Matched {
				t.Errorf("Match(%q) = %+v, want miss", tc.text, got)
			}
		})
	}
}

func TestMatchFirstRuleWins(t *testing.T) {
	t.Parallel()

	rules := []Rule{
		{Name: "first", Pattern: regexp.MustCompile(`(?i)^stop$`), Capability: "media.pause"},
		{Name: "second", Pattern: regexp.MustCompile(`(?i)^stop$`), Capability: "media.skip"},
	}
	m := NewMatcher(testRegistry(t), rules)

	got := m.Match("stop")
	if !got.Matched || got.Rule != "first" || got.Capability != "media.pause" {
		t.Errorf("Match = %+v, want first rule", got)
	}
}

func TestMatchValidationFailureFallsThrough(t *testing.T) {
	t.Parallel()

	rules := []Rule{
		{
			Name:       "bad-args",
			Pattern:    regexp.MustCompile(`(?i)^stop$`),
			Capability: "media.pause",
			Extract: func(matches []string) (map[string]any, error) {
				return map[string]any{"volume": 11}, nil
			},
		},
		{Name: "fallback", Pattern: regexp.MustCompile(`(?i)^stop$`), Capability: "media.pause"},
	}
	m := NewMatcher(testRegistry(t), rules)

	got := m.Match("stop")
	if !got.Matched || got.Rule != "fallback" {
		t.Errorf("Match = %+v, want fall-through to fallback rule", got)
	}
}

func TestValidateRejectsUnknownCapability(t *testing.T) {
	t.Parallel()

	rules := []Rule{
		{Name: "ghost", Pattern: regexp.MustCompile(`^x$`), Capability: "does.not.exist"},
	}
	m := NewMatcher(testRegistry(t), rules)
	if err := m.Validate(); err == nil {
		t.Error("expected error for rule naming an unregistered capability")
	}
}

func TestMatchWithNormalizer(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(DefaultVocabulary(), WithThreshold(0.8))
	m := NewMatcher(testRegistry(t), DefaultRules(), WithNormalizer(n))

	got := m.Match("pawse the music")
	if !got.Matched || got.Capability != "media.pause" {
		t.Errorf("Match = %+v, want media.pause via phonetic repair", got)
	}
}
