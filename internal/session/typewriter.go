package session

import (
	"sync"
	"time"
)

// Typewriter reveals reply text into a placeholder message in fixed-size
// rune chunks on a fixed tick. One reveal job runs per stamp; starting a
// new job or finalizing cancels the previous one first, so a message never
// has two concurrent writers.
type Typewriter struct {
	chunk int
	tick  time.Duration

	mu   sync.Mutex
	jobs map[string]*revealJob
}

type revealJob struct {
	full   string
	write  func(stamp, text string)
	cancel chan struct{}
	done   chan struct{}
}

// NewTypewriter creates a typewriter revealing chunk runes every tick.
func NewTypewriter(chunk int, tick time.Duration) *Typewriter {
	if chunk < 1 {
		chunk = 1
	}
	if tick <= 0 {
		tick = 30 * time.Millisecond
	}
	return &Typewriter{
		chunk: chunk,
		tick:  tick,
		jobs:  make(map[string]*revealJob),
	}
}

// Reveal starts revealing full into the message identified by stamp. write
// is invoked with growing prefixes and finally the full text.
func (t *Typewriter) Reveal(stamp, full string, write func(stamp, text string)) {
	t.Finalize(stamp)

	job := &revealJob{
		full:   full,
		write:  write,
		cancel: make(chan struct{}),
		done:   make(chan struct{}),
	}

	t.mu.Lock()
	t.jobs[stamp] = job
	t.mu.Unlock()

	go t.run(stamp, job)
}

// Finalize flushes the full text for stamp (if a job is running) and stops
// its ticker. Safe to call at any time, including with no job running.
func (t *Typewriter) Finalize(stamp string) {
	t.mu.Lock()
	job := t.jobs[stamp]
	delete(t.jobs, stamp)
	t.mu.Unlock()

	if job == nil {
		return
	}
	close(job.cancel)
	<-job.done
}

// FinalizeAll flushes every running job.
func (t *Typewriter) FinalizeAll() {
	t.mu.Lock()
	jobs := t.jobs
	t.jobs = make(map[string]*revealJob)
	t.mu.Unlock()

	for _, job := range jobs {
		close(job.cancel)
		<-job.done
	}
}

func (t *Typewriter) run(stamp string, job *revealJob) {
	defer close(job.done)
	defer t.forget(stamp, job)

	runes := []rune(job.full)
	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()

	for n := t.chunk; n < len(runes); n += t.chunk {
		job.write(stamp, string(runes[:n]))
		select {
		case <-ticker.C:
		case <-job.cancel:
			job.write(stamp, job.full)
			return
		}
	}
	job.write(stamp, job.full)
}

// forget drops the job entry once it finished on its own, so a later
// Finalize does not block on an already-closed job.
func (t *Typewriter) forget(stamp string, job *revealJob) {
	t.mu.Lock()
	if t.jobs[stamp] == job {
		delete(t.jobs, stamp)
	}
	t.mu.Unlock()
}
