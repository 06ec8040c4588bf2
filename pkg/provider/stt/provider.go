// Package stt defines the Provider interface for speech-to-text backends.
//
// An STT provider wraps a transcription engine (a local whisper.cpp model, or
// any remote service) and exposes a uniform one-shot interface: a buffer of
// PCM samples in, a Transcript out. The gateway decodes and resamples uploaded
// audio before handing it to the provider.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"time"
)

// Transcript is the result of transcribing one audio buffer.
type Transcript struct {
	// Text is the recognised text, whitespace-trimmed. Empty when the audio
	// contained no recognisable speech.
	Text string

	// Language is the BCP-47 language code the engine transcribed in.
	Language string

	// AudioDuration is the duration of the input audio.
	AudioDuration time.Duration
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe runs recognition over a complete utterance. samples is mono
	// float32 PCM in [-1, 1] at sampleRate Hz; implementations may reject rates
	// they cannot process. Returns an error if inference fails or ctx is
	// cancelled before it completes.
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (Transcript, error)
}
