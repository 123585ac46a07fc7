// Package chat defines the transcript model shared by the session manager,
// the gateway and the CLI.
package chat

import "time"

// Message roles.
const (
	RoleUser   = "user"
	RoleBot    = "bot"
	RoleSystem = "system"
)

// PlaceholderText is the transient bot bubble shown while a reply is
// pending. It is overwritten in place, never appended twice.
const PlaceholderText = "…"

// Message is one transcript entry. Stamp is the creation time in RFC3339Nano
// and doubles as the lookup key for in-place updates, so it must be unique
// among messages of one transcript.
type Message struct {
	Role  string `json:"role"`
	Text  string `json:"text"`
	Stamp string `json:"ts"`
}

// NewMessage builds a message stamped at now.
func NewMessage(role, text string, now time.Time) Message {
	return Message{Role: role, Text: text, Stamp: now.UTC().Format(time.RFC3339Nano)}
}
