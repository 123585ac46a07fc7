// Package session implements the per-identity chat session manager: it owns
// the persisted transcript, mediates sends to the remote backend and the
// close/archive flow, and pushes every change through a rendering sink.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Alexandru89754/TestPV-V2/internal/chat"
	"github.com/Alexandru89754/TestPV-V2/internal/remote"
	"github.com/Alexandru89754/TestPV-V2/internal/store"
)

// Status is the manager's send state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusSending   Status = "sending"
	StatusReceiving Status = "receiving"
	StatusError     Status = "error"
)

// User-facing copy for the error taxonomy, matching the web client.
const (
	emptyReplyText   = "Réponse vide."
	errUnauthorized  = "Erreur: accès refusé (non connecté)."
	errValidation    = "Erreur: requête invalide (422)."
	errUnreachable   = "Erreur: serveur inaccessible."
	closedNoticeText = "Activité terminée et sauvegardée."
)

var (
	// ErrNotInitialized is returned when an operation runs before Initialize.
	ErrNotInitialized = errors.New("session not initialized")
	// ErrSendInFlight is returned when a send is attempted while another is
	// still pending. There is no request pipelining.
	ErrSendInFlight = errors.New("a send is already in flight")
	// ErrEmptyTranscript blocks closing a session with nothing to archive.
	ErrEmptyTranscript = errors.New("transcript is empty")
	// ErrNoSessionID blocks closing when no session id was ever minted.
	ErrNoSessionID = errors.New("no session id")
	// ErrNoIdentity blocks operations without a resolved identity.
	ErrNoIdentity = errors.New("no identity")
	// ErrInvalidAnxiety rejects ratings outside 1..10.
	ErrInvalidAnxiety = errors.New("anxiety level must be between 1 and 10")
)

// Backend is the slice of the remote client the manager needs.
type Backend interface {
	Chat(ctx context.Context, req remote.ChatRequest) (*remote.ChatReply, error)
	EndChat(ctx context.Context, req remote.EndChatRequest) error
	Logout(ctx context.Context) error
}

// Options configures a Manager.
type Options struct {
	Store   store.Store
	Backend Backend
	Sink    Sink
	Logger  zerolog.Logger

	// Greeting seeds a fresh transcript; Cleared replaces it on Clear.
	Greeting string
	Cleared  string

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Manager owns the chat session of one identity. All methods are safe for
// concurrent use; only one send may be in flight at a time.
type Manager struct {
	identity string
	store    store.Store
	backend  Backend
	sink     Sink
	log      zerolog.Logger
	greeting string
	cleared  string
	now      func() time.Time

	mu          sync.Mutex
	initialized bool
	transcript  *chat.Transcript
	sessionID   string
	status      Status
	inFlight    bool
	// generation is bumped by every operation that invalidates an
	// in-flight send (clear, close, logout). A send captures it at
	// dispatch and discards its outcome on mismatch, so late replies
	// never write into a reset transcript.
	generation uint64
}

// NewManager creates a manager for identity. Call Initialize before use.
func NewManager(identity string, opts Options) (*Manager, error) {
	if identity == "" {
		return nil, ErrNoIdentity
	}
	if opts.Store == nil || opts.Backend == nil {
		return nil, errors.New("store and backend are required")
	}
	sink := opts.Sink
	if sink == nil {
		sink = NopSink{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		identity: identity,
		store:    opts.Store,
		backend:  opts.Backend,
		sink:     sink,
		log:      opts.Logger.With().Str("identity", identity).Logger(),
		greeting: opts.Greeting,
		cleared:  opts.Cleared,
		now:      now,
		status:   StatusIdle,
	}, nil
}

// Identity returns the identity this manager is scoped to.
func (m *Manager) Identity() string { return m.identity }

// Status returns the current send state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// SessionID returns the current session id.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// Messages returns the transcript in display order.
func (m *Manager) Messages() []chat.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.transcript == nil {
		return nil
	}
	return m.transcript.Messages()
}

// Initialize loads the persisted transcript, seeding it with the greeting
// when empty. Seeding happens at most once per identity: a transcript that
// already has messages is never re-seeded. The session id is restored from
// storage or minted and persisted.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, _ := m.store.Get(store.HistoryKey(m.identity))
	m.transcript = chat.DecodeTranscript(raw)

	if m.transcript.Len() == 0 {
		m.transcript.Append(chat.NewMessage(chat.RoleBot, m.greeting, m.now()))
		if err := m.persistLocked(); err != nil {
			return err
		}
	}

	if sid, ok := m.store.Get(store.SessionKey(m.identity)); ok && sid != "" {
		m.sessionID = sid
	} else {
		m.sessionID = uuid.NewString()
		if err := m.store.Set(store.SessionKey(m.identity), m.sessionID); err != nil {
			return fmt.Errorf("persist session id: %w", err)
		}
	}

	m.initialized = true
	m.status = StatusIdle
	m.sink.Reset(m.transcript.Messages())
	return nil
}

// SetAnxietyLevel records a pre-chat anxiety rating (1..10) for this
// identity. It is attached to the first user message of the session, at
// most once.
func (m *Manager) SetAnxietyLevel(level int) error {
	if level < 1 || level > 10 {
		return ErrInvalidAnxiety
	}
	return m.store.Set(store.AnxietyKey(m.identity), strconv.Itoa(level))
}

// Send appends the user's message, calls the backend and appends (or fills
// in) the reply. Empty input is a complete no-op. The transcript is
// persisted after every mutation, so a crash mid-flow never loses the
// user's own message.
func (m *Manager) Send(ctx context.Context, text string) error {
	text = trimmed(text)
	if text == "" {
		return nil
	}

	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return ErrNotInitialized
	}
	if m.inFlight {
		m.mu.Unlock()
		return ErrSendInFlight
	}
	m.inFlight = true
	gen := m.generation
	sessionID := m.sessionID

	userMsg := m.transcript.Append(chat.NewMessage(chat.RoleUser, text, m.now()))
	if err := m.persistLocked(); err != nil {
		m.inFlight = false
		m.mu.Unlock()
		return err
	}
	m.sink.Append(userMsg)

	m.status = StatusSending
	placeholder := m.transcript.Append(chat.NewMessage(chat.RoleBot, chat.PlaceholderText, m.now()))
	if err := m.persistLocked(); err != nil {
		m.inFlight = false
		m.mu.Unlock()
		return err
	}
	m.sink.Append(placeholder)

	anxiety := m.pendingAnxietyLocked()
	if anxiety != 0 {
		// Consumed at dispatch: the rating rides at most one message per
		// session, even if the transcript is cleared afterwards.
		_ = m.store.Remove(store.AnxietyKey(m.identity))
	}
	m.mu.Unlock()

	reply, err := m.backend.Chat(ctx, remote.ChatRequest{
		Message:      text,
		UserID:       m.identity,
		AnxietyLevel: anxiety,
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight = false

	// Identity and session were captured at dispatch; if the session was
	// cleared, closed or logged out while the request was in flight, the
	// outcome belongs to a transcript that no longer exists.
	if gen != m.generation || sessionID != m.sessionID {
		m.log.Debug().Msg("discarding stale chat reply")
		return nil
	}

	if err != nil {
		m.applyFailureLocked(placeholder.Stamp, err)
		return nil
	}

	m.status = StatusReceiving
	replyText := reply.Reply
	if trimmed(replyText) == "" {
		replyText = emptyReplyText
	}
	m.transcript.UpdateByStamp(placeholder.Stamp, replyText)
	if err := m.persistLocked(); err != nil {
		m.status = StatusError
		return err
	}
	m.sink.Update(placeholder.Stamp, replyText)
	m.status = StatusIdle
	return nil
}

// applyFailureLocked turns a backend failure into transcript entries: the
// placeholder becomes the taxonomy-specific copy and a system diagnostic is
// appended. The user's own message stays.
func (m *Manager) applyFailureLocked(placeholderStamp string, err error) {
	text := failureText(err)
	m.transcript.UpdateByStamp(placeholderStamp, text)
	diag := m.transcript.Append(chat.NewMessage(chat.RoleSystem, err.Error(), m.now()))
	if perr := m.persistLocked(); perr != nil {
		m.log.Error().Err(perr).Msg("failed to persist after send failure")
	}
	m.sink.Update(placeholderStamp, text)
	m.sink.Append(diag)
	m.status = StatusError
	m.log.Warn().Err(err).Msg("chat send failed")
}

// failureText maps a backend error to the user-visible copy, distinguishing
// auth, validation, server and transport failures.
func failureText(err error) string {
	var apiErr *remote.APIError
	switch {
	case remote.IsUnauthorized(err):
		return errUnauthorized
	case remote.IsValidation(err):
		return errValidation
	case errors.As(err, &apiErr):
		return fmt.Sprintf("Erreur: serveur (%d).", apiErr.Status)
	default:
		return errUnreachable
	}
}

// Clear resets the transcript to a single "conversation cleared" message.
// The session id is kept: clearing is a display reset, not a new session.
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return ErrNotInitialized
	}

	m.generation++
	m.transcript.Reset(chat.NewMessage(chat.RoleBot, m.cleared, m.now()))
	if err := m.persistLocked(); err != nil {
		return err
	}
	m.status = StatusIdle
	m.sink.Reset(m.transcript.Messages())
	return nil
}

// CloseSession archives the transcript to the backend, then resets it to a
// fresh greeting under a newly minted session id. On failure nothing local
// changes.
func (m *Manager) CloseSession(ctx context.Context) error {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return ErrNotInitialized
	}
	if m.transcript.Len() == 0 {
		m.mu.Unlock()
		return ErrEmptyTranscript
	}
	if m.sessionID == "" {
		m.mu.Unlock()
		return ErrNoSessionID
	}

	req := remote.EndChatRequest{
		UserID:         m.identity,
		ConversationID: m.sessionID,
		Logs:           m.logsLocked(),
		Meta: map[string]string{
			"closed_at": m.now().UTC().Format(time.RFC3339),
		},
	}
	gen := m.generation
	m.mu.Unlock()

	if err := m.backend.EndChat(ctx, req); err != nil {
		m.sink.Notice(failureDetail(err))
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation {
		return nil
	}
	m.generation++

	_ = m.store.Remove(store.AnxietyKey(m.identity))
	m.sessionID = uuid.NewString()
	if err := m.store.Set(store.SessionKey(m.identity), m.sessionID); err != nil {
		return fmt.Errorf("persist session id: %w", err)
	}
	m.transcript.Reset(chat.NewMessage(chat.RoleBot, m.greeting, m.now()))
	if err := m.persistLocked(); err != nil {
		return err
	}
	m.status = StatusIdle
	m.sink.Reset(m.transcript.Messages())
	m.sink.Notice(closedNoticeText)
	return nil
}

// Logout removes every storage key scoped to this identity plus the auth
// scalars, after a best-effort remote logout. Other identities' transcripts
// are untouched.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.backend.Logout(ctx); err != nil {
		m.log.Debug().Err(err).Msg("remote logout failed, ignoring")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++

	for _, key := range store.IdentityScopedKeys(m.identity) {
		if err := m.store.Remove(key); err != nil {
			return fmt.Errorf("remove %s: %w", key, err)
		}
	}
	for _, key := range []string{store.TokenKey(), store.UserEmailKey(), store.ParticipantKey(), store.ActiveTabKey()} {
		if err := m.store.Remove(key); err != nil {
			return fmt.Errorf("remove %s: %w", key, err)
		}
	}

	m.initialized = false
	m.transcript = nil
	m.sessionID = ""
	m.status = StatusIdle
	return nil
}

// logsLocked serializes every message with non-empty text into archive log
// entries.
func (m *Manager) logsLocked() []remote.LogEntry {
	messages := m.transcript.Messages()
	logs := make([]remote.LogEntry, 0, len(messages))
	for _, msg := range messages {
		if trimmed(msg.Text) == "" {
			continue
		}
		encoded, err := json.Marshal(map[string]string{"role": msg.Role, "text": msg.Text})
		if err != nil {
			continue
		}
		logs = append(logs, remote.LogEntry{
			UserEmail: m.identity,
			SessionID: m.sessionID,
			Message:   string(encoded),
			CreatedAt: msg.Stamp,
		})
	}
	return logs
}

// pendingAnxietyLocked returns the stored anxiety rating if no user message
// has been sent yet this session, else 0. The rating rides on the very
// first user message only.
func (m *Manager) pendingAnxietyLocked() int {
	// The user message of the current send is already appended, so "first
	// message" means exactly one user entry.
	count := 0
	for _, msg := range m.transcript.Messages() {
		if msg.Role == chat.RoleUser {
			count++
		}
	}
	if count != 1 {
		return 0
	}
	raw, ok := m.store.Get(store.AnxietyKey(m.identity))
	if !ok {
		return 0
	}
	level, err := strconv.Atoi(raw)
	if err != nil || level < 1 || level > 10 {
		return 0
	}
	return level
}

// persistLocked writes the in-memory transcript to storage. Every mutation
// goes through here before control returns to the caller.
func (m *Manager) persistLocked() error {
	encoded, err := m.transcript.Encode()
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	if err := m.store.Set(store.HistoryKey(m.identity), encoded); err != nil {
		return fmt.Errorf("persist transcript: %w", err)
	}
	return nil
}

// failureDetail extracts the server detail for close/notice surfaces.
func failureDetail(err error) string {
	var apiErr *remote.APIError
	if errors.As(err, &apiErr) {
		return "Erreur lors de la sauvegarde: " + apiErr.Error()
	}
	return "Erreur lors de la sauvegarde."
}

func trimmed(s string) string { return strings.TrimSpace(s) }
