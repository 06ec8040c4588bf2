package skills

import (
	"testing"

	"github.com/voxgate/voxgate/internal/capability"
	"github.com/voxgate/voxgate/internal/config"
)

func TestRegisterAllDefaults(t *testing.T) {
	t.Parallel()

	reg := capability.NewRegistry()
	set, err := RegisterAll(reg, config.Default().Skills)
	if err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}

	// Defaults enable media, timers, and the clock.
	for _, name := range []string{
		"media.play", "media.pause", "media.resume", "media.skip",
		"timer.start", "timer.list", "timer.cancel",
		"clock.time",
	} {
		if _, err := reg.Resolve(name); err != nil {
			t.Errorf("Resolve(%q): %v", name, err)
		}
	}
	for _, name := range []string{"light.turn_on", "search.web", "weather.current"} {
		if _, err := reg.Resolve(name); err == nil {
			t.Errorf("%q registered despite being disabled", name)
		}
	}

	if set.Media == nil || set.Timers == nil || set.Clock == nil {
		t.Error("enabled skills missing from Set")
	}
	if set.Lights != nil || set.Search != nil || set.Weather != nil {
		t.Error("disabled skills present in Set")
	}
}

func TestRegisterAllEverythingEnabled(t *testing.T) {
	t.Parallel()

	cfg := config.Default().Skills
	cfg.Lights = config.LightsConfig{Enabled: true, BridgeURL: "http://bridge", Username: "u"}
	cfg.Search = config.SearchConfig{Enabled: true, InstanceURL: "http://searx"}
	cfg.Weather = config.WeatherConfig{Enabled: true, Latitude: 52.5, Longitude: 13.4}

	reg := capability.NewRegistry()
	if _, err := RegisterAll(reg, cfg); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}

	for _, name := range []string{"light.turn_on", "light.turn_off", "search.web", "weather.current"} {
		if _, err := reg.Resolve(name); err != nil {
			t.Errorf("Resolve(%q): %v", name, err)
		}
	}
}

func TestRegisterAllBadTimezone(t *testing.T) {
	t.Parallel()

	cfg := config.Default().Skills
	cfg.Clock.Timezone = "Mars/Olympus_Mons"

	if _, err := RegisterAll(capability.NewRegistry(), cfg); err == nil {
		t.Error("expected error for unknown timezone")
	}
}
