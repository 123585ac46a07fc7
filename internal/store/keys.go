package store

// Key prefixes and scalar keys. These mirror the browser localStorage names
// so state exported from the web client stays readable. Building keys only
// here keeps identity scoping in one place instead of repeated string
// concatenation at call sites.
const (
	historyPrefix = "pv_chat_history_"
	sessionPrefix = "pv_chat_session_"
	anxietyPrefix = "pv_chat_anxiety_"

	keyToken       = "pv_access_token"
	keyUserEmail   = "pv_user_email"
	keyParticipant = "pv_participant_id"
	keyActiveTab   = "pv_active_tab"
)

// HistoryKey scopes a transcript to one identity.
func HistoryKey(identity string) string { return historyPrefix + identity }

// SessionKey scopes a session id to one identity.
func SessionKey(identity string) string { return sessionPrefix + identity }

// AnxietyKey scopes a pre-chat anxiety rating to one identity.
func AnxietyKey(identity string) string { return anxietyPrefix + identity }

// TokenKey is the bearer token scalar.
func TokenKey() string { return keyToken }

// UserEmailKey is the signed-in account email scalar.
func UserEmailKey() string { return keyUserEmail }

// ParticipantKey is the participant code scalar.
func ParticipantKey() string { return keyParticipant }

// ActiveTabKey remembers the last UI section.
func ActiveTabKey() string { return keyActiveTab }

// IdentityScopedKeys returns every key owned by one identity, for scoped
// removal on logout.
func IdentityScopedKeys(identity string) []string {
	return []string{
		HistoryKey(identity),
		SessionKey(identity),
		AnxietyKey(identity),
	}
}
