// Package capability defines the descriptors, argument validation, and
// registry for everything the gateway can do on behalf of an utterance.
//
// Capabilities are registered once at startup — built-in skills first, then
// tools imported from external MCP servers — and the registry is frozen before
// serving begins. After Freeze the read path is lock-free, which keeps lookup
// off the turn hot path's contention profile.
package capability

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ParamType is the JSON-Schema primitive type of a capability parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
)

// IsValid reports whether t is a recognised parameter type.
func (t ParamType) IsValid() bool {
	switch t {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeArray:
		return true
	}
	return false
}

// ExecMode selects how the dispatcher treats a capability invocation.
type ExecMode int

const (
	// ModeWait blocks the turn until the handler returns or times out.
	ModeWait ExecMode = iota

	// ModeFireAndForget acknowledges immediately after handoff; the handler
	// keeps running in the background and its completion is reported out of
	// band.
	ModeFireAndForget
)

// String returns the human-readable name of the mode.
func (m ExecMode) String() string {
	switch m {
	case ModeWait:
		return "wait"
	case ModeFireAndForget:
		return "fire-and-forget"
	default:
		return "unknown"
	}
}

// Handler executes a capability with validated arguments. The returned payload
// becomes the reply material for the turn; string payloads are used verbatim.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Param describes one parameter of a capability.
type Param struct {
	// Name is the argument key.
	Name string

	// Type is the expected JSON-Schema primitive type.
	Type ParamType

	// Description is surfaced to the model in the tool schema.
	Description string

	// Required marks the parameter as mandatory.
	Required bool

	// Default is applied when an optional parameter is absent. Must match Type.
	Default any
}

// Descriptor is the complete registration record of one capability.
type Descriptor struct {
	// Name is the unique identifier, e.g. "light.turn_on".
	Name string

	// Aliases are alternative names that resolve to this capability.
	Aliases []string

	// Description is surfaced to the model in the tool schema.
	Description string

	// Params is the parameter schema in declaration order.
	Params []Param

	// Handler executes the capability.
	Handler Handler

	// Mode selects wait vs fire-and-forget dispatch.
	Mode ExecMode

	// Timeout bounds handler execution. Zero falls back to the dispatcher's
	// configured default.
	Timeout time.Duration
}

// Validate checks the descriptor for registration errors.
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return errors.New("capability: descriptor name must not be empty")
	}
	if d.Handler == nil {
		return fmt.Errorf("capability: %s: handler must not be nil", d.Name)
	}
	seen := make(map[string]struct{}, len(d.Params))
	for _, p := range d.Params {
		if p.Name == "" {
			return fmt.Errorf("capability: %s: parameter name must not be empty", d.Name)
		}
		if !p.Type.IsValid() {
			return fmt.Errorf("capability: %s: parameter %q has invalid type %q", d.Name, p.Name, p.Type)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("capability: %s: duplicate parameter %q", d.Name, p.Name)
		}
		seen[p.Name] = struct{}{}
		if p.Default != nil {
			if _, err := coerce(p.Default, p.Type); err != nil {
				return fmt.Errorf("capability: %s: parameter %q default: %w", d.Name, p.Name, err)
			}
		}
	}
	return nil
}

// ValidateArgs checks args against the parameter schema and returns a
// normalized copy: defaults filled in for absent optionals, numeric values
// coerced to the declared type. The input map is never mutated. Any unknown
// key, missing required parameter, or type mismatch is an error.
func (d *Descriptor) ValidateArgs(args map[string]any) (map[string]any, error) {
	byName := make(map[string]Param, len(d.Params))
	for _, p := range d.Params {
		byName[p.Name] = p
	}

	for key := range args {
		if _, ok := byName[key]; !ok {
			return nil, fmt.Errorf("capability: %s: unknown argument %q", d.Name, key)
		}
	}

	out := make(map[string]any, len(d.Params))
	for _, p := range d.Params {
		raw, present := args[p.Name]
		if !present || raw == nil {
			if p.Required {
				return nil, fmt.Errorf("capability: %s: missing required argument %q", d.Name, p.Name)
			}
			if p.Default != nil {
				v, _ := coerce(p.Default, p.Type)
				out[p.Name] = v
			}
			continue
		}
		v, err := coerce(raw, p.Type)
		if err != nil {
			return nil, fmt.Errorf("capability: %s: argument %q: %w", d.Name, p.Name, err)
		}
		out[p.Name] = v
	}
	return out, nil
}

// coerce converts v to the canonical Go representation of t. JSON decoding
// hands every number over as float64, so integral float64 values are accepted
// for integer parameters.
func coerce(v any, t ParamType) (any, error) {
	switch t {
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return s, nil

	case TypeInteger:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			if n != math.Trunc(n) {
				return nil, fmt.Errorf("expected integer, got %v", n)
			}
			return int64(n), nil
		default:
			return nil, fmt.Errorf("expected integer, got %T", v)
		}

	case TypeNumber:
		switch n := v.(type) {
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case float64:
			return n, nil
		default:
			return nil, fmt.Errorf("expected number, got %T", v)
		}

	case TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected boolean, got %T", v)
		}
		return b, nil

	case TypeArray:
		a, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("expected array, got %T", v)
		}
		return a, nil

	default:
		return nil, fmt.Errorf("unsupported parameter type %q", t)
	}
}

// normalizeKey lowercases a capability name or alias for index lookup.
func normalizeKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
