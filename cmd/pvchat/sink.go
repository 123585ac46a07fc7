package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/Alexandru89754/TestPV-V2/internal/chat"
	"github.com/Alexandru89754/TestPV-V2/internal/session"
)

// termSink renders the transcript to a terminal. Bot replies arrive as an
// in-place update of the placeholder message; the sink replays them through
// a typewriter so the terminal shows the same progressive reveal as the
// browser. Lines arriving while a reveal is open (system diagnostics,
// notices) are held back until the reveal completes, so they never land in
// the middle of a partially printed reply.
type termSink struct {
	out io.Writer
	tw  *session.Typewriter

	mu      sync.Mutex
	full    map[string]string
	printed map[string]int
	held    []string
	wg      sync.WaitGroup
}

func newTermSink(out io.Writer, tw *session.Typewriter) *termSink {
	return &termSink{
		out:     out,
		tw:      tw,
		full:    make(map[string]string),
		printed: make(map[string]int),
	}
}

func (s *termSink) Reset(messages []chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range messages {
		s.emitLocked(lineFor(msg))
	}
}

func (s *termSink) Append(msg chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case msg.Role == chat.RoleUser:
		// The user just typed this; echoing it back would double it.
	case msg.Role == chat.RoleBot && msg.Text == chat.PlaceholderText:
		// Reply pending: open the line and let Update fill it in.
		fmt.Fprint(s.out, "patient> ")
		s.printed[msg.Stamp] = 0
	default:
		s.emitLocked(lineFor(msg))
	}
}

func (s *termSink) Update(stamp, text string) {
	s.mu.Lock()
	if _, open := s.printed[stamp]; !open {
		// Update for a message we never opened (e.g. history replayed
		// elsewhere); print it whole.
		s.emitLocked(fmt.Sprintf("patient> %s\n", text))
		s.mu.Unlock()
		return
	}
	s.full[stamp] = text
	s.mu.Unlock()

	s.wg.Add(1)
	s.tw.Reveal(stamp, text, s.write)
}

func (s *termSink) Notice(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitLocked(fmt.Sprintf("-- %s\n", text))
}

// Wait blocks until every running reveal has printed its full text.
func (s *termSink) Wait() { s.wg.Wait() }

func (s *termSink) write(stamp, partial string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	full, ok := s.full[stamp]
	if !ok {
		return
	}
	runes := []rune(partial)
	done := s.printed[stamp]
	if len(runes) > done {
		fmt.Fprint(s.out, string(runes[done:]))
		s.printed[stamp] = len(runes)
	}
	if partial == full {
		fmt.Fprintln(s.out)
		delete(s.full, stamp)
		delete(s.printed, stamp)
		s.flushHeldLocked()
		s.wg.Done()
	}
}

// emitLocked prints a complete line, or holds it while a reveal owns the
// terminal.
func (s *termSink) emitLocked(line string) {
	if len(s.printed) > 0 {
		s.held = append(s.held, line)
		return
	}
	fmt.Fprint(s.out, line)
}

func (s *termSink) flushHeldLocked() {
	if len(s.printed) > 0 {
		return
	}
	for _, line := range s.held {
		fmt.Fprint(s.out, line)
	}
	s.held = nil
}

func lineFor(msg chat.Message) string {
	switch msg.Role {
	case chat.RoleUser:
		return fmt.Sprintf("you> %s\n", msg.Text)
	case chat.RoleBot:
		return fmt.Sprintf("patient> %s\n", msg.Text)
	default:
		return fmt.Sprintf("-- %s\n", msg.Text)
	}
}
