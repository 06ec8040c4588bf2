package capability

import (
	"context"
	"errors"
	"testing"
	"time"
)

func noopHandler(ctx context.Context, args map[string]any) (any, error) {
	return nil, nil
}

func testDescriptor(name string, aliases ...string) *Descriptor {
	return &Descriptor{
		Name:        name,
		Aliases:     aliases,
		Description: "test capability",
		Handler:     noopHandler,
	}
}

func TestRegisterAndResolve(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.Register(testDescriptor("media.play", "play", "spotify")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	for _, name := range []string{"media.play", "play", "spotify", "PLAY", "Media.Play"} {
		desc, err := r.Resolve(name)
		if err != nil {
			t.Errorf("Resolve(%q): %v", name, err)
			continue
		}
		if desc.Name != "media.play" {
			t.Errorf("Resolve(%q).Name = %q", name, desc.Name)
		}
	}
}

func TestResolveUnknown(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_, err := r.Resolve("nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRegisterDuplicateLeavesRegistryUnchanged(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.Register(testDescriptor("light.turn_on", "lights on")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Collides on the alias only; its fresh name must not be registered either.
	dup := testDescriptor("light.enable", "lights on")
	err := r.Register(dup)

	var dupErr *DuplicateError
	if !errors.As(err, &dupErr) {
		t.Fatalf("err = %v, want *DuplicateError", err)
	}
	if _, err := r.Resolve("light.enable"); !errors.Is(err, ErrNotFound) {
		t.Error("failed registration must not claim any key")
	}
	if got := len(r.List()); got != 1 {
		t.Errorf("List() len = %d, want 1", got)
	}
	if got := len(r.Tools()); got != 1 {
		t.Errorf("Tools() len = %d, want 1", got)
	}
}

func TestRegisterAfterFreezeFails(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Freeze()
	if err := r.Register(testDescriptor("x")); err == nil {
		t.Error("expected error registering into a frozen registry")
	}
}

func TestListPreservesRegistrationOrder(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	names := []string{"c.third", "a.first", "b.second"}
	for _, n := range names {
		if err := r.Register(testDescriptor(n)); err != nil {
			t.Fatalf("Register(%q): %v", n, err)
		}
	}
	for i, desc := range r.List() {
		if desc.Name != names[i] {
			t.Errorf("List()[%d] = %q, want %q", i, desc.Name, names[i])
		}
	}
}

func TestToolsSchema(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	desc := &Descriptor{
		Name:        "timer.start",
		Description: "Start a countdown timer.",
		Handler:     noopHandler,
		Params: []Param{
			{Name: "duration", Type: TypeString, Description: "How long.", Required: true},
			{Name: "label", Type: TypeString, Default: "timer"},
		},
	}
	if err := r.Register(desc); err != nil {
		t.Fatalf("Register: %v", err)
	}

	tools := r.Tools()
	if len(tools) != 1 {
		t.Fatalf("Tools() len = %d, want 1", len(tools))
	}
	td := tools[0]
	if td.Name != "timer.start" {
		t.Errorf("Name = %q", td.Name)
	}
	props, ok := td.Parameters["properties"].(map[string]any)
	if !ok {
		t.Fatalf("properties missing: %v", td.Parameters)
	}
	if _, ok := props["duration"]; !ok {
		t.Error("duration property missing")
	}
	required, _ := td.Parameters["required"].([]string)
	if len(required) != 1 || required[0] != "duration" {
		t.Errorf("required = %v, want [duration]", required)
	}
}

func TestValidateArgs(t *testing.T) {
	t.Parallel()

	desc := &Descriptor{
		Name:    "light.turn_on",
		Handler: noopHandler,
		Params: []Param{
			{Name: "room", Type: TypeString, Required: true},
			{Name: "brightness", Type: TypeInteger, Default: 254},
			{Name: "fade", Type: TypeBoolean},
		},
	}

	t.Run("defaults applied", func(t *testing.T) {
		t.Parallel()
		out, err := desc.ValidateArgs(map[string]any{"room": "kitchen"})
		if err != nil {
			t.Fatalf("ValidateArgs: %v", err)
		}
		if out["brightness"] != int64(254) {
			t.Errorf("brightness = %v (%T), want 254", out["brightness"], out["brightness"])
		}
		if _, present := out["fade"]; present {
			t.Error("absent optional without default must stay absent")
		}
	})

	t.Run("missing required", func(t *testing.T) {
		t.Parallel()
		if _, err := desc.ValidateArgs(map[string]any{}); err == nil {
			t.Error("expected error for missing required argument")
		}
	})

	t.Run("unknown field", func(t *testing.T) {
		t.Parallel()
		if _, err := desc.ValidateArgs(map[string]any{"room": "kitchen", "color": "red"}); err == nil {
			t.Error("expected error for unknown argument")
		}
	})

	t.Run("wrong type", func(t *testing.T) {
		t.Parallel()
		if _, err := desc.ValidateArgs(map[string]any{"room": 42}); err == nil {
			t.Error("expected error for wrong type")
		}
	})

	t.Run("integral float accepted as integer", func(t *testing.T) {
		t.Parallel()
		out, err := desc.ValidateArgs(map[string]any{"room": "kitchen", "brightness": float64(128)})
		if err != nil {
			t.Fatalf("ValidateArgs: %v", err)
		}
		if out["brightness"] != int64(128) {
			t.Errorf("brightness = %v, want 128", out["brightness"])
		}
	})

	t.Run("fractional float rejected as integer", func(t *testing.T) {
		t.Parallel()
		if _, err := desc.ValidateArgs(map[string]any{"room": "kitchen", "brightness": 1.5}); err == nil {
			t.Error("expected error for fractional integer argument")
		}
	})

	t.Run("input not mutated", func(t *testing.T) {
		t.Parallel()
		in := map[string]any{"room": "kitchen"}
		if _, err := desc.ValidateArgs(in); err != nil {
			t.Fatalf("ValidateArgs: %v", err)
		}
		if len(in) != 1 {
			t.Errorf("input map was mutated: %v", in)
		}
	})
}

func TestDescriptorValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		desc Descriptor
	}{
		{"empty name", Descriptor{Handler: noopHandler}},
		{"nil handler", Descriptor{Name: "x"}},
		{"bad param type", Descriptor{Name: "x", Handler: noopHandler, Params: []Param{{Name: "a", Type: "object"}}}},
		{"duplicate param", Descriptor{Name: "x", Handler: noopHandler, Params: []Param{
			{Name: "a", Type: TypeString}, {Name: "a", Type: TypeString},
		}}},
		{"default type mismatch", Descriptor{Name: "x", Handler: noopHandler, Params: []Param{
			{Name: "a", Type: TypeInteger, Default: "nope"},
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if err := tc.desc.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}

	good := Descriptor{Name: "x", Handler: noopHandler, Timeout: time.Second}
	if err := good.Validate(); err != nil {
		t.Errorf("valid descriptor rejected: %v", err)
	}
}
