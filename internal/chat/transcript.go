package chat

import (
	"encoding/json"
	"time"
)

// Transcript is the ordered message list for one identity. Insertion order
// is chronological order is display order; nothing is ever re-ordered or
// deleted short of a full reset.
type Transcript struct {
	messages []Message
}

// DecodeTranscript parses a stored transcript. Malformed JSON or a
// non-array payload yields an empty transcript: corrupt local state is a
// recoverable condition, not an error.
func DecodeTranscript(raw string) *Transcript {
	t := &Transcript{}
	if raw == "" {
		return t
	}
	var messages []Message
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		return t
	}
	t.messages = messages
	return t
}

// Encode serializes the transcript for storage.
func (t *Transcript) Encode() (string, error) {
	if t.messages == nil {
		return "[]", nil
	}
	data, err := json.Marshal(t.messages)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Len returns the number of messages.
func (t *Transcript) Len() int { return len(t.messages) }

// Messages returns a copy of the entries in display order.
func (t *Transcript) Messages() []Message {
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Append adds a message, adjusting its stamp if needed so stamps stay
// strictly increasing within the transcript (the stamp is the update key).
func (t *Transcript) Append(msg Message) Message {
	if n := len(t.messages); n > 0 && msg.Stamp <= t.messages[n-1].Stamp {
		msg.Stamp = bumpStamp(t.messages[n-1].Stamp)
	}
	t.messages = append(t.messages, msg)
	return msg
}

// UpdateByStamp overwrites the text of the message with the given stamp.
// Reports whether a message was found.
func (t *Transcript) UpdateByStamp(stamp, text string) bool {
	for i := range t.messages {
		if t.messages[i].Stamp == stamp {
			t.messages[i].Text = text
			return true
		}
	}
	return false
}

// Reset replaces the whole transcript with the single given message.
func (t *Transcript) Reset(msg Message) {
	t.messages = []Message{msg}
}

// bumpStamp returns a stamp strictly after prev. Falls back to appending a
// suffix when prev does not parse, which keeps ordering by string compare.
func bumpStamp(prev string) string {
	ts, err := time.Parse(time.RFC3339Nano, prev)
	if err != nil {
		return prev + "0"
	}
	return ts.Add(time.Nanosecond).UTC().Format(time.RFC3339Nano)
}
