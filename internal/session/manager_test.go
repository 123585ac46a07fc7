package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Alexandru89754/TestPV-V2/internal/chat"
	"github.com/Alexandru89754/TestPV-V2/internal/remote"
	"github.com/Alexandru89754/TestPV-V2/internal/store"
)

const (
	testGreeting = "Bonjour. Je suis votre patient virtuel. Quelle est votre principale raison de consultation aujourd’hui ?"
	testCleared  = "Conversation effacée. Recommencez quand vous voulez."
)

// fakeBackend records calls and answers with a canned reply or error. When
// gate is set, Chat blocks until the gate closes, to hold a send in flight.
type fakeBackend struct {
	mu      sync.Mutex
	reply   string
	chatErr error
	endErr  error
	gate    chan struct{}
	chats   []remote.ChatRequest
	ends    []remote.EndChatRequest
	logouts int
}

func (b *fakeBackend) Chat(ctx context.Context, req remote.ChatRequest) (*remote.ChatReply, error) {
	b.mu.Lock()
	b.chats = append(b.chats, req)
	gate, err, reply := b.gate, b.chatErr, b.reply
	b.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return &remote.ChatReply{Reply: reply}, nil
}

func (b *fakeBackend) EndChat(ctx context.Context, req remote.EndChatRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ends = append(b.ends, req)
	return b.endErr
}

func (b *fakeBackend) Logout(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logouts++
	return nil
}

func (b *fakeBackend) chatRequests() []remote.ChatRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]remote.ChatRequest, len(b.chats))
	copy(out, b.chats)
	return out
}

// recSink records sink calls for assertions on the rendering contract.
type recSink struct {
	mu      sync.Mutex
	resets  [][]chat.Message
	appends []chat.Message
	updates []string
	notices []string
}

func (s *recSink) Reset(messages []chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets = append(s.resets, messages)
}

func (s *recSink) Append(msg chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appends = append(s.appends, msg)
}

func (s *recSink) Update(stamp, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, text)
}

func (s *recSink) Notice(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, text)
}

func (s *recSink) lastNotice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.notices) == 0 {
		return ""
	}
	return s.notices[len(s.notices)-1]
}

func newTestManager(t *testing.T, identity string, st store.Store, backend Backend, sink Sink) *Manager {
	t.Helper()
	mgr, err := NewManager(identity, Options{
		Store:    st,
		Backend:  backend,
		Sink:     sink,
		Logger:   zerolog.Nop(),
		Greeting: testGreeting,
		Cleared:  testCleared,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if err := mgr.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return mgr
}

func waitStatus(t *testing.T, mgr *Manager, want Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if mgr.Status() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("status never became %s (now %s)", want, mgr.Status())
}

func TestInitializeSeedsGreetingOnce(t *testing.T) {
	st := store.NewMemoryStore()
	backend := &fakeBackend{reply: "ok"}
	mgr := newTestManager(t, "P001", st, backend, NopSink{})

	msgs := mgr.Messages()
	if len(msgs) != 1 || msgs[0].Role != chat.RoleBot || msgs[0].Text != testGreeting {
		t.Fatalf("unexpected seeded transcript: %+v", msgs)
	}
	if mgr.SessionID() == "" {
		t.Fatal("no session id minted")
	}
	if raw, ok := st.Get(store.HistoryKey("P001")); !ok || !strings.Contains(raw, "Bonjour") {
		t.Fatalf("greeting not persisted: %q", raw)
	}
	if sid, ok := st.Get(store.SessionKey("P001")); !ok || sid != mgr.SessionID() {
		t.Fatalf("session id not persisted: %q", sid)
	}

	// A second manager over the same store must not re-seed or re-mint.
	again := newTestManager(t, "P001", st, backend, NopSink{})
	if len(again.Messages()) != 1 {
		t.Fatalf("re-initialize re-seeded: %+v", again.Messages())
	}
	if again.SessionID() != mgr.SessionID() {
		t.Fatalf("session id changed on re-open: %s vs %s", again.SessionID(), mgr.SessionID())
	}
}

func TestSendHappyPath(t *testing.T) {
	st := store.NewMemoryStore()
	backend := &fakeBackend{reply: "Depuis quand?"}
	sink := &recSink{}
	mgr := newTestManager(t, "P001", st, backend, sink)

	if err := mgr.Send(context.Background(), "J'ai mal à la tête"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	msgs := mgr.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected greeting+user+bot, got %d: %+v", len(msgs), msgs)
	}
	if msgs[1].Role != chat.RoleUser || msgs[1].Text != "J'ai mal à la tête" {
		t.Fatalf("unexpected user message: %+v", msgs[1])
	}
	if msgs[2].Role != chat.RoleBot || msgs[2].Text != "Depuis quand?" {
		t.Fatalf("unexpected reply: %+v", msgs[2])
	}
	if mgr.Status() != StatusIdle {
		t.Fatalf("status after send: %s", mgr.Status())
	}

	reqs := backend.chatRequests()
	if len(reqs) != 1 || reqs[0].UserID != "P001" || reqs[0].Message != "J'ai mal à la tête" {
		t.Fatalf("unexpected backend request: %+v", reqs)
	}

	// Reply overwrote the placeholder in place, and everything is on disk.
	raw, _ := st.Get(store.HistoryKey("P001"))
	if strings.Contains(raw, chat.PlaceholderText) {
		t.Fatalf("placeholder persisted past completion: %q", raw)
	}
	if !strings.Contains(raw, "Depuis quand?") {
		t.Fatalf("reply not persisted: %q", raw)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.appends) != 2 || sink.appends[1].Text != chat.PlaceholderText {
		t.Fatalf("sink did not see user+placeholder appends: %+v", sink.appends)
	}
	if len(sink.updates) != 1 || sink.updates[0] != "Depuis quand?" {
		t.Fatalf("sink did not see reply update: %v", sink.updates)
	}
}

func TestSendBlankIsNoOp(t *testing.T) {
	st := store.NewMemoryStore()
	backend := &fakeBackend{reply: "ok"}
	mgr := newTestManager(t, "P001", st, backend, NopSink{})

	for _, text := range []string{"", "   ", "\n\t"} {
		if err := mgr.Send(context.Background(), text); err != nil {
			t.Fatalf("Send(%q) failed: %v", text, err)
		}
	}
	if len(mgr.Messages()) != 1 {
		t.Fatalf("blank sends mutated the transcript: %+v", mgr.Messages())
	}
	if len(backend.chatRequests()) != 0 {
		t.Fatal("blank send reached the backend")
	}
}

func TestSendFailureTaxonomy(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"unauthorized", &remote.APIError{Status: 401}, "Erreur: accès refusé (non connecté)."},
		{"validation", &remote.APIError{Status: 422}, "Erreur: requête invalide (422)."},
		{"server", &remote.APIError{Status: 500, Detail: "db down"}, "Erreur: serveur (500)."},
		{"unreachable", context.DeadlineExceeded, "Erreur: serveur inaccessible."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := store.NewMemoryStore()
			backend := &fakeBackend{chatErr: tc.err}
			mgr := newTestManager(t, "P001", st, backend, NopSink{})

			if err := mgr.Send(context.Background(), "bonjour"); err != nil {
				t.Fatalf("Send returned transport error to caller: %v", err)
			}

			msgs := mgr.Messages()
			// greeting + user + error bubble + system diagnostic
			if len(msgs) != 4 {
				t.Fatalf("expected 4 messages, got %d: %+v", len(msgs), msgs)
			}
			if msgs[1].Role != chat.RoleUser || msgs[1].Text != "bonjour" {
				t.Fatalf("user message lost on failure: %+v", msgs[1])
			}
			if msgs[2].Role != chat.RoleBot || msgs[2].Text != tc.want {
				t.Fatalf("error copy: got %q, want %q", msgs[2].Text, tc.want)
			}
			if msgs[3].Role != chat.RoleSystem {
				t.Fatalf("missing system diagnostic: %+v", msgs[3])
			}
			if mgr.Status() != StatusError {
				t.Fatalf("status after failure: %s", mgr.Status())
			}
			// The failure state is persisted too.
			raw, _ := st.Get(store.HistoryKey("P001"))
			if !strings.Contains(raw, "bonjour") {
				t.Fatalf("user message not persisted: %q", raw)
			}
		})
	}
}

func TestSendEmptyReplyFallback(t *testing.T) {
	st := store.NewMemoryStore()
	backend := &fakeBackend{reply: "   "}
	mgr := newTestManager(t, "P001", st, backend, NopSink{})

	if err := mgr.Send(context.Background(), "bonjour"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	msgs := mgr.Messages()
	if msgs[2].Text != "Réponse vide." {
		t.Fatalf("expected empty-reply fallback, got %q", msgs[2].Text)
	}
	if mgr.Status() != StatusIdle {
		t.Fatalf("empty reply is not a failure, status: %s", mgr.Status())
	}
}

// rejectingStore fails writes whose value contains a marker, to hit the
// persist that runs after the reply arrived.
type rejectingStore struct {
	store.Store
	marker string
}

func (s *rejectingStore) Set(key, value string) error {
	if s.marker != "" && strings.Contains(value, s.marker) {
		return errors.New("disk full")
	}
	return s.Store.Set(key, value)
}

func TestSendPersistFailureEndsInErrorState(t *testing.T) {
	st := &rejectingStore{Store: store.NewMemoryStore(), marker: "Depuis quand?"}
	backend := &fakeBackend{reply: "Depuis quand?"}
	mgr := newTestManager(t, "P001", st, backend, NopSink{})

	if err := mgr.Send(context.Background(), "bonjour"); err == nil {
		t.Fatal("expected persist failure to surface")
	}
	if mgr.Status() != StatusError {
		t.Fatalf("status after persist failure: %s", mgr.Status())
	}
	// The next send must not be blocked by a stuck in-flight flag.
	st.marker = ""
	backend.mu.Lock()
	backend.reply = "ok"
	backend.mu.Unlock()
	if err := mgr.Send(context.Background(), "encore"); err != nil {
		t.Fatalf("follow-up send failed: %v", err)
	}
}

func TestSendRejectsConcurrent(t *testing.T) {
	st := store.NewMemoryStore()
	gate := make(chan struct{})
	backend := &fakeBackend{reply: "ok", gate: gate}
	mgr := newTestManager(t, "P001", st, backend, NopSink{})

	done := make(chan error, 1)
	go func() { done <- mgr.Send(context.Background(), "premier") }()
	waitStatus(t, mgr, StatusSending)

	if err := mgr.Send(context.Background(), "deuxième"); err != ErrSendInFlight {
		t.Fatalf("expected ErrSendInFlight, got %v", err)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("first send failed: %v", err)
	}
	// Only the first message reached the backend.
	if reqs := backend.chatRequests(); len(reqs) != 1 {
		t.Fatalf("expected 1 backend call, got %d", len(reqs))
	}
}

func TestClearKeepsSessionID(t *testing.T) {
	st := store.NewMemoryStore()
	backend := &fakeBackend{reply: "ok"}
	sink := &recSink{}
	mgr := newTestManager(t, "P001", st, backend, sink)
	sid := mgr.SessionID()

	if err := mgr.Send(context.Background(), "bonjour"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := mgr.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	msgs := mgr.Messages()
	if len(msgs) != 1 || msgs[0].Text != testCleared {
		t.Fatalf("unexpected transcript after clear: %+v", msgs)
	}
	if mgr.SessionID() != sid {
		t.Fatal("Clear changed the session id")
	}
	raw, _ := st.Get(store.HistoryKey("P001"))
	if !strings.Contains(raw, "effacée") {
		t.Fatalf("cleared state not persisted: %q", raw)
	}
}

func TestClearDiscardsInFlightReply(t *testing.T) {
	st := store.NewMemoryStore()
	gate := make(chan struct{})
	backend := &fakeBackend{reply: "trop tard", gate: gate}
	mgr := newTestManager(t, "P001", st, backend, NopSink{})

	done := make(chan error, 1)
	go func() { done <- mgr.Send(context.Background(), "bonjour") }()
	waitStatus(t, mgr, StatusSending)

	if err := mgr.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	msgs := mgr.Messages()
	if len(msgs) != 1 || msgs[0].Text != testCleared {
		t.Fatalf("stale reply wrote into cleared transcript: %+v", msgs)
	}
}

func TestCloseSessionArchivesAndResets(t *testing.T) {
	st := store.NewMemoryStore()
	backend := &fakeBackend{reply: "Depuis quand?"}
	sink := &recSink{}
	mgr := newTestManager(t, "P001", st, backend, sink)
	oldSID := mgr.SessionID()

	if err := mgr.SetAnxietyLevel(4); err != nil {
		t.Fatalf("SetAnxietyLevel failed: %v", err)
	}
	if err := mgr.Send(context.Background(), "bonjour"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := mgr.CloseSession(context.Background()); err != nil {
		t.Fatalf("CloseSession failed: %v", err)
	}

	backend.mu.Lock()
	ends := backend.ends
	backend.mu.Unlock()
	if len(ends) != 1 {
		t.Fatalf("expected 1 archive call, got %d", len(ends))
	}
	req := ends[0]
	if req.UserID != "P001" || req.ConversationID != oldSID {
		t.Fatalf("unexpected archive request: %+v", req)
	}
	// greeting + user + reply, all non-empty
	if len(req.Logs) != 3 {
		t.Fatalf("expected 3 log entries, got %d", len(req.Logs))
	}
	if !strings.Contains(req.Logs[1].Message, `"role":"user"`) || !strings.Contains(req.Logs[1].Message, "bonjour") {
		t.Fatalf("unexpected log encoding: %q", req.Logs[1].Message)
	}
	if req.Meta["closed_at"] == "" {
		t.Fatalf("missing closed_at meta: %+v", req.Meta)
	}

	// Local state: fresh greeting under a new session id, anxiety gone.
	msgs := mgr.Messages()
	if len(msgs) != 1 || msgs[0].Text != testGreeting {
		t.Fatalf("transcript not reset after close: %+v", msgs)
	}
	if mgr.SessionID() == oldSID || mgr.SessionID() == "" {
		t.Fatalf("session id not re-minted: %s", mgr.SessionID())
	}
	if _, ok := st.Get(store.AnxietyKey("P001")); ok {
		t.Fatal("anxiety rating survived close")
	}
	if sink.lastNotice() != "Activité terminée et sauvegardée." {
		t.Fatalf("unexpected notice: %q", sink.lastNotice())
	}
}

func TestCloseSessionFailureKeepsLocalState(t *testing.T) {
	st := store.NewMemoryStore()
	backend := &fakeBackend{reply: "ok", endErr: &remote.APIError{Status: 500, Detail: "db down"}}
	sink := &recSink{}
	mgr := newTestManager(t, "P001", st, backend, sink)
	sid := mgr.SessionID()

	if err := mgr.Send(context.Background(), "bonjour"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	before := len(mgr.Messages())

	if err := mgr.CloseSession(context.Background()); err == nil {
		t.Fatal("expected error from failed archive")
	}
	if len(mgr.Messages()) != before {
		t.Fatal("failed close mutated the transcript")
	}
	if mgr.SessionID() != sid {
		t.Fatal("failed close re-minted the session id")
	}
	if !strings.Contains(sink.lastNotice(), "Erreur lors de la sauvegarde") {
		t.Fatalf("unexpected notice: %q", sink.lastNotice())
	}
}

func TestLogoutRemovesOnlyOwnKeys(t *testing.T) {
	st := store.NewMemoryStore()
	backend := &fakeBackend{reply: "ok"}
	other := newTestManager(t, "P002", st, backend, NopSink{})
	mgr := newTestManager(t, "P001", st, backend, NopSink{})

	st.Set(store.TokenKey(), "tok")
	st.Set(store.UserEmailKey(), "a@b.fr")
	st.Set(store.ParticipantKey(), "P001")
	st.Set(store.ActiveTabKey(), "chat")

	if err := mgr.Logout(context.Background()); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	for _, key := range store.IdentityScopedKeys("P001") {
		if _, ok := st.Get(key); ok {
			t.Fatalf("key survived logout: %s", key)
		}
	}
	for _, key := range []string{store.TokenKey(), store.UserEmailKey(), store.ParticipantKey(), store.ActiveTabKey()} {
		if _, ok := st.Get(key); ok {
			t.Fatalf("auth scalar survived logout: %s", key)
		}
	}
	if _, ok := st.Get(store.HistoryKey("P002")); !ok {
		t.Fatal("logout touched another identity's transcript")
	}
	if backend.logouts != 1 {
		t.Fatalf("expected 1 remote logout, got %d", backend.logouts)
	}

	// De-initialized: further operations must fail fast.
	if err := mgr.Send(context.Background(), "bonjour"); err != ErrNotInitialized {
		t.Fatalf("expected ErrNotInitialized after logout, got %v", err)
	}
	_ = other
}

func TestAnxietyRidesFirstMessageOnly(t *testing.T) {
	st := store.NewMemoryStore()
	backend := &fakeBackend{reply: "ok"}
	mgr := newTestManager(t, "P001", st, backend, NopSink{})

	if err := mgr.SetAnxietyLevel(7); err != nil {
		t.Fatalf("SetAnxietyLevel failed: %v", err)
	}
	if err := mgr.Send(context.Background(), "premier"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := mgr.Send(context.Background(), "deuxième"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	reqs := backend.chatRequests()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 backend calls, got %d", len(reqs))
	}
	if reqs[0].AnxietyLevel != 7 {
		t.Fatalf("first message missing anxiety: %+v", reqs[0])
	}
	if reqs[1].AnxietyLevel != 0 {
		t.Fatalf("anxiety repeated on second message: %+v", reqs[1])
	}
}

func TestAnxietyNotResentAfterClear(t *testing.T) {
	st := store.NewMemoryStore()
	backend := &fakeBackend{reply: "ok"}
	mgr := newTestManager(t, "P001", st, backend, NopSink{})

	if err := mgr.SetAnxietyLevel(7); err != nil {
		t.Fatalf("SetAnxietyLevel failed: %v", err)
	}
	if err := mgr.Send(context.Background(), "premier"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	// Clear keeps the session id, so the rating must not ride again.
	if err := mgr.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if err := mgr.Send(context.Background(), "après effacement"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	reqs := backend.chatRequests()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 backend calls, got %d", len(reqs))
	}
	if reqs[0].AnxietyLevel != 7 {
		t.Fatalf("first message missing anxiety: %+v", reqs[0])
	}
	if reqs[1].AnxietyLevel != 0 {
		t.Fatalf("anxiety sent twice in one session: second request carried level %d", reqs[1].AnxietyLevel)
	}
	if _, ok := st.Get(store.AnxietyKey("P001")); ok {
		t.Fatal("anxiety rating survived being sent")
	}
}

func TestSetAnxietyLevelBounds(t *testing.T) {
	mgr := newTestManager(t, "P001", store.NewMemoryStore(), &fakeBackend{}, NopSink{})
	for _, level := range []int{0, -1, 11} {
		if err := mgr.SetAnxietyLevel(level); err != ErrInvalidAnxiety {
			t.Fatalf("SetAnxietyLevel(%d) = %v, want ErrInvalidAnxiety", level, err)
		}
	}
	for _, level := range []int{1, 10} {
		if err := mgr.SetAnxietyLevel(level); err != nil {
			t.Fatalf("SetAnxietyLevel(%d) failed: %v", level, err)
		}
	}
}

func TestIdentitiesAreIsolated(t *testing.T) {
	st := store.NewMemoryStore()
	backend := &fakeBackend{reply: "ok"}
	a := newTestManager(t, "P001", st, backend, NopSink{})
	b := newTestManager(t, "P002", st, backend, NopSink{})

	if err := a.Send(context.Background(), "message de P001"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(b.Messages()) != 1 {
		t.Fatalf("P002 transcript grew from P001's send: %+v", b.Messages())
	}
	if a.SessionID() == b.SessionID() {
		t.Fatal("identities share a session id")
	}
}

func TestTranscriptSurvivesRestart(t *testing.T) {
	st := store.NewMemoryStore()
	backend := &fakeBackend{reply: "Depuis quand?"}
	mgr := newTestManager(t, "P001", st, backend, NopSink{})
	if err := mgr.Send(context.Background(), "bonjour"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	reopened := newTestManager(t, "P001", st, backend, NopSink{})
	msgs := reopened.Messages()
	if len(msgs) != 3 || msgs[2].Text != "Depuis quand?" {
		t.Fatalf("transcript lost across restart: %+v", msgs)
	}
}

func TestOperationsBeforeInitialize(t *testing.T) {
	mgr, err := NewManager("P001", Options{
		Store:   store.NewMemoryStore(),
		Backend: &fakeBackend{},
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if err := mgr.Send(context.Background(), "x"); err != ErrNotInitialized {
		t.Fatalf("Send before init: %v", err)
	}
	if err := mgr.Clear(); err != ErrNotInitialized {
		t.Fatalf("Clear before init: %v", err)
	}
	if err := mgr.CloseSession(context.Background()); err != ErrNotInitialized {
		t.Fatalf("CloseSession before init: %v", err)
	}
}

func TestNewManagerRequiresIdentity(t *testing.T) {
	_, err := NewManager("", Options{Store: store.NewMemoryStore(), Backend: &fakeBackend{}})
	if err != ErrNoIdentity {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}
}
