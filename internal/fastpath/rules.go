package fastpath

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/voxgate/voxgate/internal/skills"
)

// DefaultRules is the built-in rule table covering the high-frequency
// commands: media transport, clock, timers, and lights. Order matters; more
// specific patterns come before catch-alls like the bare "play" prefix.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:       "timer-start",
			Pattern:    regexp.MustCompile(`(?i)^(?:set|start)(?: a| another)? timer for (.+?)[.!?]?$`),
			Capability: "timer.start",
			Extract: func(matches []string) (map[string]any, error) {
				// Gate with the same parser the timer handler uses, so a
				// phrase it cannot handle falls through to the model instead
				// of failing mid-dispatch.
				phrase := strings.TrimSpace(matches[1])
				if _, err := skills.ParseDurationPhrase(phrase); err != nil {
					return nil, err
				}
				return map[string]any{"duration": phrase}, nil
			},
		},
		{
			Name:       "timer-list",
			Pattern:    regexp.MustCompile(`(?i)^(?:get|list|show)(?: my| the| all)? timers[.!?]?$`),
			Capability: "timer.list",
		},
		{
			Name:       "clock-time",
			Pattern:    regexp.MustCompile(`(?i)^what(?:(?:'s| is) the time|\s+time is it)(?: right now)?[.!?]?$`),
			Capability: "clock.time",
		},
		{
			Name:       "lights-on",
			Pattern:    regexp.MustCompile(`(?i)^turn (?:on(?: the)? (.+?) lights?|(?:the )?(.+?) lights? on)[.!?]?$`),
			Capability: "light.turn_on",
			Extract:    extractRoom,
		},
		{
			Name:       "lights-off",
			Pattern:    regexp.MustCompile(`(?i)^turn (?:off(?: the)? (.+?) lights?|(?:the )?(.+?) lights? off)[.!?]?$`),
			Capability: "light.turn_off",
			Extract:    extractRoom,
		},
		{
			Name:       "media-pause",
			Pattern:    regexp.MustCompile(`(?i)^(?:stop|pause|halt)(?: (?:the )?(?:music|playback|song))?[.!?]?$`),
			Capability: "media.pause",
		},
		{
			Name:       "media-skip",
			Pattern:    regexp.MustCompile(`(?i)^(?:skip|next)(?: (?:this )?(?:song|track))?[.!?]?$`),
			Capability: "media.skip",
		},
		{
			Name:       "media-resume",
			Pattern:    regexp.MustCompile(`(?i)^(?:resume|continue|unpause)(?: (?:the )?(?:music|playback|song))?[.!?]?$`),
			Capability: "media.resume",
		},
		{
			Name:       "media-play",
			Pattern:    regexp.MustCompile(`(?i)^play\s+(.+?)[.!?]?$`),
			Capability: "media.play",
			Extract: func(matches []string) (map[string]any, error) {
				return map[string]any{"query": strings.TrimSpace(matches[1])}, nil
			},
		},
	}
}

// extractRoom picks whichever alternation branch captured the room name.
func extractRoom(matches []string) (map[string]any, error) {
	room := matches[1]
	if room == "" {
		room = matches[2]
	}
	room = strings.ToLower(strings.TrimSpace(room))
	if room == "" {
		return nil, fmt.Errorf("fastpath: no room captured")
	}
	return map[string]any{"room": room}, nil
}

// DefaultVocabulary lists the keywords the phonetic normalizer should repair
// toward. Kept to command anchors; free-text arguments like song titles must
// never be rewritten.
func DefaultVocabulary() []string {
	return []string{
		"play", "stop", "pause", "halt", "skip", "next",
		"resume", "continue", "timer", "timers", "time",
		"turn", "lights", "light",
	}
}
