package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidInferenceProviders lists the backend names pkg/provider/llm/anyllm
// accepts. Used by [Validate] to warn about unrecognised names.
var ValidInferenceProviders = []string{
	"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// Load reads the YAML configuration file at path, applies it over [Default],
// and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over the defaults and validates
// the result. Useful in tests where configs are built from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Inference.Provider == "" {
		errs = append(errs, errors.New("inference.provider is required"))
	} else if !slices.Contains(ValidInferenceProviders, cfg.Inference.Provider) {
		slog.Warn("unknown inference provider — may be a typo",
			"provider", cfg.Inference.Provider,
			"known", ValidInferenceProviders,
		)
	}
	if cfg.Inference.Model == "" {
		errs = append(errs, errors.New("inference.model is required"))
	}
	if cfg.Inference.MaxQueue < 0 {
		errs = append(errs, fmt.Errorf("inference.max_queue %d must not be negative", cfg.Inference.MaxQueue))
	}
	for i, fb := range cfg.Inference.Fallbacks {
		if fb.Provider == "" || fb.Model == "" {
			errs = append(errs, fmt.Errorf("inference.fallbacks[%d]: provider and model are required", i))
		}
	}

	switch cfg.History.Backend {
	case "", "memory":
	case "postgres":
		if cfg.History.PostgresDSN == "" {
			errs = append(errs, errors.New("history.postgres_dsn is required when history.backend is postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("history.backend %q is invalid; valid values: memory, postgres", cfg.History.Backend))
	}

	if cfg.Dispatch.DefaultTimeout < 0 {
		errs = append(errs, errors.New("dispatch.default_timeout must not be negative"))
	}

	if cfg.FastPath.FuzzyThreshold < 0 || cfg.FastPath.FuzzyThreshold > 1 {
		errs = append(errs, fmt.Errorf("fast_path.fuzzy_threshold %.2f is out of range [0, 1]", cfg.FastPath.FuzzyThreshold))
	}

	if cfg.Skills.Lights.Enabled {
		if cfg.Skills.Lights.BridgeURL == "" {
			errs = append(errs, errors.New("skills.lights.bridge_url is required when lights are enabled"))
		}
		if cfg.Skills.Lights.Username == "" {
			errs = append(errs, errors.New("skills.lights.username is required when lights are enabled"))
		}
	}
	if cfg.Skills.Search.Enabled && cfg.Skills.Search.InstanceURL == "" {
		errs = append(errs, errors.New("skills.search.instance_url is required when search is enabled"))
	}
	if cfg.Skills.Weather.Enabled {
		if cfg.Skills.Weather.Latitude < -90 || cfg.Skills.Weather.Latitude > 90 {
			errs = append(errs, fmt.Errorf("skills.weather.latitude %.4f is out of range [-90, 90]", cfg.Skills.Weather.Latitude))
		}
		if cfg.Skills.Weather.Longitude < -180 || cfg.Skills.Weather.Longitude > 180 {
			errs = append(errs, fmt.Errorf("skills.weather.longitude %.4f is out of range [-180, 180]", cfg.Skills.Weather.Longitude))
		}
	}

	seen := make(map[string]int, len(cfg.MCP.Servers))
	for i, srv := range cfg.MCP.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := seen[srv.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of mcp.servers[%d]", prefix, srv.Name, prev))
			}
			seen[srv.Name] = i
		}
		if srv.Transport != "" && !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
		if srv.Transport == TransportStdio && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if srv.Transport == TransportStreamableHTTP && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
		}
	}

	return errors.Join(errs...)
}
