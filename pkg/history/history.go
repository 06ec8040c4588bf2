// Package history defines the conversation history store used to assemble the
// context passed to the intent resolver. The orchestrator core owns no
// conversational state; the gateway appends turns here and reads a recent
// window back when building a request.
//
// Implementations must be safe for concurrent use.
package history

import (
	"context"
	"time"
)

// Entry is one user or assistant message in a session transcript.
type Entry struct {
	// Role is "user" or "assistant".
	Role string

	// Content is the message text.
	Content string

	// Timestamp is when the entry was recorded.
	Timestamp time.Time
}

// Store persists per-session transcripts.
type Store interface {
	// Append records entry under sessionID.
	Append(ctx context.Context, sessionID string, entry Entry) error

	// Recent returns up to limit entries for sessionID in chronological order
	// (oldest first). A limit of zero or less returns an empty slice.
	Recent(ctx context.Context, sessionID string, limit int) ([]Entry, error)
}
