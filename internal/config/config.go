// Package config provides the configuration schema and loader for the voxgate
// gateway. Configuration is loaded once at startup and passed by reference
// into constructors; nothing reads it at import time.
package config

import "time"

// LogLevel controls log verbosity for the gateway.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure, typically loaded from a YAML
// file via [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Inference InferenceConfig `yaml:"inference"`
	Chat      ChatConfig      `yaml:"chat"`
	STT       STTConfig       `yaml:"stt"`
	TTS       TTSConfig       `yaml:"tts"`
	History   HistoryConfig   `yaml:"history"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	FastPath  FastPathConfig  `yaml:"fast_path"`
	Skills    SkillsConfig    `yaml:"skills"`
	MCP       MCPConfig       `yaml:"mcp"`
}

// ServerConfig holds network, logging, and auth settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the gateway listens on (e.g. ":8450").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// APIKey, when set, requires a matching Bearer token on /v1/* endpoints.
	// Falls back to the VOXGATE_API_KEY environment variable when empty.
	APIKey string `yaml:"api_key"`
}

// InferenceConfig selects and tunes the model backend used by the intent
// resolver and chat fallback.
type InferenceConfig struct {
	// Provider names the backend: "ollama", "llamacpp", "openai", and the
	// other names pkg/provider/llm/anyllm supports.
	Provider string `yaml:"provider"`

	// Model is the model identifier (e.g. "qwen3:4b").
	Model string `yaml:"model"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates against hosted providers.
	APIKey string `yaml:"api_key"`

	// Concurrent marks the backend as safe for parallel inference. Local
	// single-model servers stay serialized (the default).
	Concurrent bool `yaml:"concurrent"`

	// MaxQueue bounds how many resolutions may wait for the backend before new
	// ones are rejected. Zero selects the default of 8.
	MaxQueue int `yaml:"max_queue"`

	// Temperature for intent resolution. Zero means provider default.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps completion length. Zero means provider default.
	MaxTokens int `yaml:"max_tokens"`

	// Fallbacks are tried in order when the primary backend fails.
	Fallbacks []FallbackEntry `yaml:"fallbacks"`
}

// FallbackEntry names an alternative inference backend.
type FallbackEntry struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
}

// ChatConfig controls the conversational fallback used when no capability
// applies to an utterance.
type ChatConfig struct {
	// Enabled turns the model-backed chat reply on. When false, utterances
	// that match no capability get a canned reply.
	Enabled bool `yaml:"enabled"`

	// SystemPrompt overrides the default chat persona prompt.
	SystemPrompt string `yaml:"system_prompt"`

	// HistoryWindow is how many prior transcript entries accompany a chat or
	// resolution request. Zero selects the default of 12.
	HistoryWindow int `yaml:"history_window"`
}

// STTConfig configures the local transcription backend.
type STTConfig struct {
	// ModelPath is the whisper.cpp GGML model file. Empty disables the
	// /v1/audio/transcriptions endpoint.
	ModelPath string `yaml:"model_path"`

	// Language is the BCP-47 transcription language. Defaults to "en".
	Language string `yaml:"language"`
}

// TTSConfig configures the speech synthesis backend.
type TTSConfig struct {
	// BaseURL is the Kokoro-compatible server address. Empty disables the
	// /v1/audio/speech endpoint.
	BaseURL string `yaml:"base_url"`

	// Voice is the default voice profile.
	Voice string `yaml:"voice"`

	// Speed is the default playback-rate multiplier.
	Speed float64 `yaml:"speed"`
}

// HistoryConfig selects the transcript store.
type HistoryConfig struct {
	// Backend is "memory" (default) or "postgres".
	Backend string `yaml:"backend"`

	// PostgresDSN is required when Backend is "postgres".
	PostgresDSN string `yaml:"postgres_dsn"`
}

// DispatchConfig tunes capability execution.
type DispatchConfig struct {
	// DefaultTimeout bounds handler execution when a capability declares no
	// timeout of its own. Zero selects 10 s.
	DefaultTimeout Duration `yaml:"default_timeout"`
}

// FastPathConfig tunes the deterministic matcher.
type FastPathConfig struct {
	// Disabled turns the fast path off entirely; every turn goes to the model.
	Disabled bool `yaml:"disabled"`

	// Fuzzy enables phonetic normalization of capability keywords, so common
	// STT mis-hearings still hit the fast path.
	Fuzzy bool `yaml:"fuzzy"`

	// FuzzyThreshold is the minimum Jaro-Winkler similarity for a phonetic
	// keyword substitution. Zero selects 0.88.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`
}

// SkillsConfig gates the built-in capabilities. Each skill registers only
// when its block is enabled.
type SkillsConfig struct {
	Lights  LightsConfig  `yaml:"lights"`
	Media   MediaConfig   `yaml:"media"`
	Timers  TimersConfig  `yaml:"timers"`
	Clock   ClockConfig   `yaml:"clock"`
	Search  SearchConfig  `yaml:"search"`
	Weather WeatherConfig `yaml:"weather"`
}

// LightsConfig configures the Hue-style bridge integration.
type LightsConfig struct {
	Enabled bool `yaml:"enabled"`

	// BridgeURL is the bridge base address (e.g. "http://192.168.1.10").
	BridgeURL string `yaml:"bridge_url"`

	// Username is the bridge API user.
	Username string `yaml:"username"`
}

// MediaConfig configures the in-process media player capability.
type MediaConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TimersConfig configures the countdown timer capability.
type TimersConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ClockConfig configures the time-of-day capability.
type ClockConfig struct {
	Enabled bool `yaml:"enabled"`

	// Timezone is an IANA zone name. Empty uses the host's local zone.
	Timezone string `yaml:"timezone"`
}

// SearchConfig configures the SearxNG web-search capability.
type SearchConfig struct {
	Enabled bool `yaml:"enabled"`

	// InstanceURL is the SearxNG base address.
	InstanceURL string `yaml:"instance_url"`

	// MaxResults bounds how many results flow into the reply. Zero selects 3.
	MaxResults int `yaml:"max_results"`
}

// WeatherConfig configures the Open-Meteo forecast capability.
type WeatherConfig struct {
	Enabled bool `yaml:"enabled"`

	// Latitude and Longitude locate the default forecast point.
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// MCPTransport selects how an MCP server is reached.
type MCPTransport string

const (
	// TransportStdio launches the server as a child process.
	TransportStdio MCPTransport = "stdio"

	// TransportStreamableHTTP connects to a running HTTP server.
	TransportStreamableHTTP MCPTransport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t MCPTransport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// MCPConfig lists external MCP servers whose tools are imported as
// capabilities at startup.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes one MCP server connection.
type MCPServerConfig struct {
	// Name prefixes imported capability names ("<name>.<tool>").
	Name string `yaml:"name"`

	// Transport is "stdio" or "streamable-http". Defaults to stdio when a
	// command is given.
	Transport MCPTransport `yaml:"transport"`

	// Command and Args launch a stdio server.
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`

	// URL locates a streamable-http server.
	URL string `yaml:"url"`

	// FireAndForget marks all imported tools as acknowledge-then-run.
	FireAndForget bool `yaml:"fire_and_forget"`

	// Timeout bounds each imported tool call. Zero uses the dispatch default.
	Timeout Duration `yaml:"timeout"`
}

// Default returns a Config with the local-first defaults applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8450",
			LogLevel:   LogInfo,
		},
		Inference: InferenceConfig{
			Provider: "ollama",
			Model:    "qwen3:4b",
			MaxQueue: 8,
		},
		Chat: ChatConfig{
			Enabled:       true,
			HistoryWindow: 12,
		},
		History: HistoryConfig{
			Backend: "memory",
		},
		Dispatch: DispatchConfig{
			DefaultTimeout: Duration(10 * time.Second),
		},
		FastPath: FastPathConfig{
			FuzzyThreshold: 0.88,
		},
		Skills: SkillsConfig{
			Media:  MediaConfig{Enabled: true},
			Timers: TimersConfig{Enabled: true},
			Clock:  ClockConfig{Enabled: true},
		},
	}
}
