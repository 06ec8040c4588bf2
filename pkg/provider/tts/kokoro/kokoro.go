// Package kokoro provides a tts.Provider backed by a local Kokoro synthesis
// server (Kokoro-FastAPI or any OpenAI-compatible /v1/audio/speech endpoint).
// Synthesis is one HTTP call per utterance.
//
// Typical usage:
//
//	p := kokoro.New("http://localhost:8880",
//	    kokoro.WithVoice("af_heart"),
//	    kokoro.WithTimeout(30*time.Second),
//	)
//	clip, err := p.Synthesize(ctx, tts.Request{Text: "Hello."})
package kokoro

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voxgate/voxgate/pkg/provider/tts"
)

const (
	defaultVoice   = "af_heart"
	defaultTimeout = 30 * time.Second
	speechEndpoint = "/v1/audio/speech"
)

var _ tts.Provider = (*Provider)(nil)

// Provider implements tts.Provider against a Kokoro server.
type Provider struct {
	baseURL    string
	voice      string
	speed      float64
	model      string
	httpClient *http.Client
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithVoice sets the default voice used when a request leaves Voice empty.
func WithVoice(voice string) Option {
	return func(p *Provider) { p.voice = voice }
}

// WithSpeed sets the default playback-rate multiplier.
func WithSpeed(speed float64) Option {
	return func(p *Provider) { p.speed = speed }
}

// WithModel sets the model name sent to the server. Defaults to "kokoro".
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// New creates a Provider targeting the Kokoro server at baseURL.
func New(baseURL string, opts ...Option) *Provider {
	p := &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		voice:      defaultVoice,
		speed:      1.0,
		model:      "kokoro",
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	Speed          float64 `json:"speed,omitempty"`
	ResponseFormat string  `json:"response_format"`
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (tts.Clip, error) {
	if req.Text == "" {
		return tts.Clip{}, errors.New("kokoro: text must not be empty")
	}

	voice := req.Voice
	if voice == "" {
		voice = p.voice
	}
	speed := req.Speed
	if speed == 0 {
		speed = p.speed
	}

	body, err := json.Marshal(speechRequest{
		Model:          p.model,
		Input:          req.Text,
		Voice:          voice,
		Speed:          speed,
		ResponseFormat: "wav",
	})
	if err != nil {
		return tts.Clip{}, fmt.Errorf("kokoro: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+speechEndpoint, bytes.NewReader(body))
	if err != nil {
		return tts.Clip{}, fmt.Errorf("kokoro: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("kokoro: synthesis request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return tts.Clip{}, fmt.Errorf("kokoro: server returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("kokoro: read audio: %w", err)
	}

	return tts.Clip{Audio: audio, MIMEType: "audio/wav"}, nil
}
