package session

import (
	"sync"
	"testing"
	"time"
)

// collectWrites waits until the final write (partial == full) arrives.
type collectWrites struct {
	mu       sync.Mutex
	partials []string
	full     string
	done     chan struct{}
	once     sync.Once
}

func newCollectWrites(full string) *collectWrites {
	return &collectWrites{full: full, done: make(chan struct{})}
}

func (c *collectWrites) write(stamp, text string) {
	c.mu.Lock()
	c.partials = append(c.partials, text)
	c.mu.Unlock()
	if text == c.full {
		c.once.Do(func() { close(c.done) })
	}
}

func (c *collectWrites) wait(t *testing.T) []string {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("reveal never completed")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.partials))
	copy(out, c.partials)
	return out
}

func TestTypewriterRevealsInChunks(t *testing.T) {
	tw := NewTypewriter(2, time.Millisecond)
	c := newCollectWrites("bonjour")

	tw.Reveal("s1", "bonjour", c.write)
	partials := c.wait(t)

	if partials[len(partials)-1] != "bonjour" {
		t.Fatalf("last write is not the full text: %q", partials[len(partials)-1])
	}
	// Every write is a prefix of the full text, and they only grow.
	prev := 0
	for _, p := range partials {
		if p != "bonjour"[:len(p)] {
			t.Fatalf("write %q is not a prefix", p)
		}
		if len(p) < prev {
			t.Fatalf("writes shrank: %v", partials)
		}
		prev = len(p)
	}
	if len(partials) < 2 {
		t.Fatalf("expected chunked reveal, got %v", partials)
	}
}

func TestTypewriterHandlesMultiByteRunes(t *testing.T) {
	full := "réponse été …"
	tw := NewTypewriter(2, time.Millisecond)
	c := newCollectWrites(full)

	tw.Reveal("s1", full, c.write)
	for _, p := range c.wait(t) {
		// A byte-based split would produce invalid UTF-8 partials.
		for _, r := range p {
			if r == '�' {
				t.Fatalf("partial contains replacement rune: %q", p)
			}
		}
	}
}

func TestTypewriterFinalizeFlushes(t *testing.T) {
	tw := NewTypewriter(1, time.Hour) // would take forever without Finalize
	c := newCollectWrites("bonjour")

	tw.Reveal("s1", "bonjour", c.write)
	finished := make(chan struct{})
	go func() {
		tw.Finalize("s1")
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Finalize hung")
	}
	partials := c.wait(t)
	if partials[len(partials)-1] != "bonjour" {
		t.Fatalf("Finalize did not flush full text: %v", partials)
	}
}

func TestTypewriterFinalizeWithoutJob(t *testing.T) {
	tw := NewTypewriter(3, time.Millisecond)
	tw.Finalize("never-started")
	tw.FinalizeAll()
}

func TestTypewriterNewRevealCancelsOld(t *testing.T) {
	tw := NewTypewriter(1, time.Hour)
	first := newCollectWrites("premier")
	second := newCollectWrites("second")

	tw.Reveal("s1", "premier", first.write)
	// Same stamp: the old job must flush and stop before the new one runs.
	tw.Reveal("s1", "second", second.write)
	tw.Finalize("s1")

	got := first.wait(t)
	if got[len(got)-1] != "premier" {
		t.Fatalf("old job did not flush: %v", got)
	}
	gotSecond := second.wait(t)
	if gotSecond[len(gotSecond)-1] != "second" {
		t.Fatalf("new job did not flush: %v", gotSecond)
	}
}
