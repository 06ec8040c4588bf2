// Package mock provides a test double for the tts.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/voxgate/voxgate/pkg/provider/tts"
)

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Clip is returned by Synthesize.
	Clip tts.Clip

	// Err, if non-nil, is returned by Synthesize.
	Err error

	// Calls records every request passed to Synthesize in order.
	Calls []tts.Request
}

var _ tts.Provider = (*Provider)(nil)

// Synthesize records the call and returns the configured clip.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (tts.Clip, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, req)
	return p.Clip, p.Err
}
