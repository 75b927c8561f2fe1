package main

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter redraws a single status line with a countdown or elapsed time.
//
// A ProgressPrinter is single-use: Start at most once, then Stop. Stop is
// safe to call multiple times.
type ProgressPrinter struct {
	out      io.Writer
	prefix   string
	status   atomic.Value  // string
	duration time.Duration // 0 counts up

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	done      chan struct{}
}

// NewProgressPrinter creates a printer counting down from duration, or up when duration is 0.
func NewProgressPrinter(out io.Writer, prefix, status string, duration time.Duration) *ProgressPrinter {
	p := &ProgressPrinter{
		out:      out,
		prefix:   prefix,
		duration: duration,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	p.status.Store(status)
	return p
}

// SetStatus replaces the status shown in parentheses. Safe for concurrent use.
func (p *ProgressPrinter) SetStatus(status string) {
	p.status.Store(status)
}

// Start begins redrawing in a background goroutine.
func (p *ProgressPrinter) Start() {
	p.startOnce.Do(func() {
		start := time.Now()
		ticker := time.NewTicker(progressUpdateInterval)
		p.draw(0)

		go func() {
			defer close(p.done)
			defer ticker.Stop()
			for {
				select {
				case <-p.stopCh:
					return
				case <-ticker.C:
					elapsed := time.Since(start)
					if p.duration == 0 {
						p.draw(int(elapsed.Seconds()))
						continue
					}
					remaining := p.duration - elapsed
					if remaining < 0 {
						remaining = 0
					}
					// round to the nearest second
					p.draw(int(remaining.Seconds() + 0.5))
				}
			}
		}()
	})
}

func (p *ProgressPrinter) draw(seconds int) {
	status := p.status.Load().(string)
	if seconds > 0 {
		fmt.Fprintf(p.out, "\r%s (%s %ds)   ", p.prefix, status, seconds)
	} else {
		fmt.Fprintf(p.out, "\r%s (%s...)   ", p.prefix, status)
	}
}

// Stop ends the redraw loop and clears the line.
func (p *ProgressPrinter) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		// release done when Start never ran
		p.startOnce.Do(func() { close(p.done) })
		<-p.done
		fmt.Fprint(p.out, clearLineSequence)
	})
}
