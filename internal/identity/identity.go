// Package identity resolves and validates the string that scopes a chat
// transcript: a participant code or a signed-in account email.
package identity

import (
	"errors"
	"strings"
)

// Participant code bounds.
const (
	minCodeLen = 2
	maxCodeLen = 40
)

var (
	// ErrInvalidCode reports a participant code outside the accepted
	// format (2-40 chars, A-Z 0-9 _ -).
	ErrInvalidCode = errors.New("invalid participant code")
)

// AuthState is the locally stored auth material an identity is derived
// from.
type AuthState struct {
	ParticipantCode string
	AccountEmail    string
}

// Normalize canonicalizes a participant code: trimmed, uppercased, and
// restricted to alphanumerics, underscore and hyphen.
func Normalize(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) < minCodeLen || len(code) > maxCodeLen {
		return "", ErrInvalidCode
	}
	for _, r := range code {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return "", ErrInvalidCode
		}
	}
	return code, nil
}

// Resolve picks the active identity. Precedence is fixed: participant code
// when present, else account email. There is no token-derived fallback; a
// caller with neither value has no identity and must send the user back to
// the entry view.
func Resolve(state AuthState) (string, bool) {
	if code := strings.TrimSpace(state.ParticipantCode); code != "" {
		return code, true
	}
	if email := strings.TrimSpace(state.AccountEmail); email != "" {
		return email, true
	}
	return "", false
}
