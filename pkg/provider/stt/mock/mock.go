// Package mock provides a test double for the stt.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/voxgate/voxgate/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Samples is the PCM buffer passed to Transcribe.
	Samples []float32
	// SampleRate is the rate passed to Transcribe.
	SampleRate int
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Transcript is returned by Transcribe.
	Transcript stt.Transcript

	// Err, if non-nil, is returned by Transcribe.
	Err error

	// Calls records every invocation of Transcribe in order.
	Calls []TranscribeCall
}

var _ stt.Provider = (*Provider)(nil)

// Transcribe records the call and returns the configured transcript.
func (p *Provider) Transcribe(ctx context.Context, samples []float32, sampleRate int) (stt.Transcript, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	buf := make([]float32, len(samples))
	copy(buf, samples)
	p.Calls = append(p.Calls, TranscribeCall{Samples: buf, SampleRate: sampleRate})
	return p.Transcript, p.Err
}
