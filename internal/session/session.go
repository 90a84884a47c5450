// Package session stores conversation history keyed by (project, session).
package session

import "context"

// Message is one stored conversation entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MaxHistory caps the number of messages kept at rest. Appends beyond the
// cap drop the oldest entries first.
const MaxHistory = 20

// Store is the conversation history interface. Implementations must
// degrade rather than fail: a storage outage yields empty history on read
// and a logged no-op on write, so the conversation continues stateless.
type Store interface {
	// History returns the ordered history, or nil when the session is
	// absent, expired, or the backing store is unreachable.
	History(ctx context.Context, projectID, sessionID string) []Message
	// Append adds one message, truncates to the last MaxHistory entries
	// and resets the session TTL. Not isolated against concurrent appends
	// to the same session.
	Append(ctx context.Context, projectID, sessionID, role, content string)
	// Clear removes the session outright.
	Clear(ctx context.Context, projectID, sessionID string) error
}
