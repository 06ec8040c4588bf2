// Package tts defines the Provider interface for text-to-speech backends.
//
// A TTS provider wraps a speech synthesis service (a local Kokoro server, or
// any OpenAI-compatible speech endpoint) behind a one-shot interface: text in,
// an encoded audio clip out. The gateway uses it to serve /v1/audio/speech.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Clip is one synthesised utterance.
type Clip struct {
	// Audio is the encoded audio payload.
	Audio []byte

	// MIMEType describes the encoding of Audio, e.g. "audio/wav".
	MIMEType string
}

// Request describes one synthesis call.
type Request struct {
	// Text is the text to speak. Must not be empty.
	Text string

	// Voice selects the voice profile. Empty means the provider default.
	Voice string

	// Speed is a playback-rate multiplier. Zero means the provider default (1.0).
	Speed float64
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders req.Text to audio. Returns an error if the backend is
	// unreachable, rejects the request, or ctx is cancelled first.
	Synthesize(ctx context.Context, req Request) (Clip, error)
}
