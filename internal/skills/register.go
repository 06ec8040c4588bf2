package skills

import (
	"fmt"

	"github.com/voxgate/voxgate/internal/capability"
	"github.com/voxgate/voxgate/internal/config"
)

// Set holds the constructed skill instances so the gateway can reach them
// after registration (timer expiry wiring, shutdown).
type Set struct {
	Media  *Media
	Timers *Timers
	Clock  *Clock
	Lights *Lights
	Search *Search
	// Weather is nil unless enabled.
	Weather *Weather
}

// RegisterAll constructs every enabled skill and registers its capabilities.
// Call before the registry is frozen.
func RegisterAll(reg *capability.Registry, cfg config.SkillsConfig, opts ...RegisterOption) (*Set, error) {
	ro := &registerOptions{}
	for _, o := range opts {
		o(ro)
	}

	set := &Set{}
	var descriptors []*capability.Descriptor

	if cfg.Media.Enabled {
		set.Media = NewMedia(ro.mediaOpts...)
		descriptors = append(descriptors, set.Media.Descriptors()...)
	}
	if cfg.Timers.Enabled {
		set.Timers = NewTimers(ro.timerOpts...)
		descriptors = append(descriptors, set.Timers.Descriptors()...)
	}
	if cfg.Clock.Enabled {
		clock, err := NewClock(cfg.Clock.Timezone)
		if err != nil {
			return nil, err
		}
		set.Clock = clock
		descriptors = append(descriptors, clock.Descriptors()...)
	}
	if cfg.Lights.Enabled {
		set.Lights = NewLights(cfg.Lights.BridgeURL, cfg.Lights.Username)
		descriptors = append(descriptors, set.Lights.Descriptors()...)
	}
	if cfg.Search.Enabled {
		var searchOpts []SearchOption
		if cfg.Search.MaxResults > 0 {
			searchOpts = append(searchOpts, WithMaxResults(cfg.Search.MaxResults))
		}
		set.Search = NewSearch(cfg.Search.InstanceURL, searchOpts...)
		descriptors = append(descriptors, set.Search.Descriptors()...)
	}
	if cfg.Weather.Enabled {
		set.Weather = NewWeather(cfg.Weather.Latitude, cfg.Weather.Longitude)
		descriptors = append(descriptors, set.Weather.Descriptors()...)
	}

	for _, d := range descriptors {
		if err := reg.Register(d); err != nil {
			return nil, fmt.Errorf("skills: register %s: %w", d.Name, err)
		}
	}
	return set, nil
}

type registerOptions struct {
	mediaOpts []MediaOption
	timerOpts []TimersOption
}

// RegisterOption tunes skill construction in RegisterAll.
type RegisterOption func(*registerOptions)

// WithMediaOptions forwards options to the media player.
func WithMediaOptions(opts ...MediaOption) RegisterOption {
	return func(ro *registerOptions) { ro.mediaOpts = opts }
}

// WithTimerOptions forwards options to the timer manager.
func WithTimerOptions(opts ...TimersOption) RegisterOption {
	return func(ro *registerOptions) { ro.timerOpts = opts }
}
