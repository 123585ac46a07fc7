package session

import "github.com/Alexandru89754/TestPV-V2/internal/chat"

// Sink receives transcript changes for display. The transcript model stays
// a plain ordered list; a sink reacts to appends and keyed in-place updates
// instead of re-rendering the world.
type Sink interface {
	// Reset replaces the rendered view with the given messages.
	Reset(messages []chat.Message)
	// Append renders one new message at the end.
	Append(msg chat.Message)
	// Update overwrites the text of the message with the given stamp.
	Update(stamp, text string)
	// Notice shows an out-of-transcript status line (success/error toasts).
	Notice(text string)
}

// NopSink discards all rendering. Used when a caller only wants the state
// side of the manager, e.g. the gateway's REST endpoints.
type NopSink struct{}

func (NopSink) Reset([]chat.Message)  {}
func (NopSink) Append(chat.Message)   {}
func (NopSink) Update(string, string) {}
func (NopSink) Notice(string)         {}
