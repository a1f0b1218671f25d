package main

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/term"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// statusLine keeps one self-overwriting progress line on a terminal, showing
// the current phase and the seconds elapsed (or left, when a deadline is set).
// It prints nothing when the writer is not a terminal.
//
//	s := newStatusLine(os.Stderr, "Scanning for BLE devices", 10*time.Second)
//	s.Start()
//	defer s.Stop()
type statusLine struct {
	w        io.Writer
	enabled  bool
	prefix   string
	deadline time.Duration

	phase    atomic.Value // string
	start    time.Time
	stop     chan struct{}
	done     chan struct{}
	started  atomic.Bool
	stopOnce sync.Once
}

func newStatusLine(w io.Writer, prefix string, deadline time.Duration) *statusLine {
	s := &statusLine{
		w:        w,
		enabled:  isTerminal(w),
		prefix:   prefix,
		deadline: deadline,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.phase.Store("")
	return s
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Start begins updating the line. Must be called at most once.
func (s *statusLine) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	if !s.enabled {
		close(s.done)
		return
	}
	s.start = time.Now()
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(progressUpdateInterval)
		defer ticker.Stop()
		for {
			s.render()
			select {
			case <-s.stop:
				fmt.Fprint(s.w, clearLineSequence)
				return
			case <-ticker.C:
			}
		}
	}()
}

// SetPhase changes the phase shown after the prefix.
func (s *statusLine) SetPhase(phase string) {
	s.phase.Store(phase)
}

// Stop clears the line. Safe to call more than once, or without Start.
func (s *statusLine) Stop() {
	if !s.started.Load() {
		return
	}
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *statusLine) render() {
	fmt.Fprintf(s.w, "%s%s", clearLineSequence, s.text(time.Since(s.start)))
}

func (s *statusLine) text(elapsed time.Duration) string {
	phase, _ := s.phase.Load().(string)
	seconds := int(elapsed.Seconds())
	if s.deadline > 0 {
		seconds = int((s.deadline - elapsed).Seconds() + 0.5)
		if seconds < 0 {
			seconds = 0
		}
	}
	if phase == "" {
		return fmt.Sprintf("%s (%ds)", s.prefix, seconds)
	}
	return fmt.Sprintf("%s (%s %ds)", s.prefix, phase, seconds)
}
