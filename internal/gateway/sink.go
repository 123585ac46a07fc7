package gateway

import (
	"sync"

	"github.com/Alexandru89754/TestPV-V2/internal/chat"
	"github.com/Alexandru89754/TestPV-V2/internal/session"
)

// fanoutSink relays transcript changes to every subscribed listener,
// typically the websocket connections watching one identity's chat.
type fanoutSink struct {
	mu   sync.RWMutex
	subs map[session.Sink]struct{}
}

func newFanoutSink() *fanoutSink {
	return &fanoutSink{subs: make(map[session.Sink]struct{})}
}

// Subscribe registers a listener until the returned func runs.
func (f *fanoutSink) Subscribe(s session.Sink) (unsubscribe func()) {
	f.mu.Lock()
	f.subs[s] = struct{}{}
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.subs, s)
		f.mu.Unlock()
	}
}

func (f *fanoutSink) Reset(messages []chat.Message) {
	for _, s := range f.snapshot() {
		s.Reset(messages)
	}
}

func (f *fanoutSink) Append(msg chat.Message) {
	for _, s := range f.snapshot() {
		s.Append(msg)
	}
}

func (f *fanoutSink) Update(stamp, text string) {
	for _, s := range f.snapshot() {
		s.Update(stamp, text)
	}
}

func (f *fanoutSink) Notice(text string) {
	for _, s := range f.snapshot() {
		s.Notice(text)
	}
}

func (f *fanoutSink) snapshot() []session.Sink {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]session.Sink, 0, len(f.subs))
	for s := range f.subs {
		out = append(out, s)
	}
	return out
}
