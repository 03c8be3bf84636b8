package main

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// palette colors output only when writing to a terminal.
type palette struct {
	enabled bool
}

func (p palette) paint(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if p.enabled {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}

func (p palette) ok() *color.Color   { return p.paint(color.FgGreen) }
func (p palette) warn() *color.Color { return p.paint(color.FgYellow) }
func (p palette) fail() *color.Color { return p.paint(color.FgRed, color.Bold) }

// ProgressPrinter redraws one status line with elapsed or remaining seconds.
//
// Usage:
//
//	p := NewProgressPrinter(w, "Connecting", "Scanning")
//	p.Start()
//	defer p.Stop()
//
// A ProgressPrinter is single-use. Stop is safe to call more than once.
type ProgressPrinter struct {
	w        io.Writer
	prefix   string
	phase    atomic.Value // string
	countUp  bool
	duration time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewProgressPrinter creates a progress printer that counts up (shows elapsed time).
func NewProgressPrinter(w io.Writer, prefix, phase string) *ProgressPrinter {
	p := &ProgressPrinter{w: w, prefix: prefix, countUp: true}
	p.phase.Store(phase)
	return p
}

// NewCountdownProgressPrinter creates a progress printer that counts down from duration.
func NewCountdownProgressPrinter(w io.Writer, prefix, phase string, duration time.Duration) *ProgressPrinter {
	p := &ProgressPrinter{w: w, prefix: prefix, duration: duration}
	p.phase.Store(phase)
	return p
}

// Start begins redrawing in a background goroutine.
func (p *ProgressPrinter) Start() {
	p.startOnce.Do(func() {
		p.stop = make(chan struct{})
		p.done = make(chan struct{})
		go p.loop(time.Now())
	})
}

func (p *ProgressPrinter) loop(start time.Time) {
	defer close(p.done)

	ticker := time.NewTicker(progressUpdateInterval)
	defer ticker.Stop()

	p.print(0)
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			elapsed := time.Since(start)
			if p.countUp {
				p.print(int(elapsed.Seconds()))
				continue
			}
			remaining := p.duration - elapsed
			if remaining < 0 {
				remaining = 0
			}
			// round to the nearest second
			p.print(int(remaining.Seconds() + 0.5))
		}
	}
}

func (p *ProgressPrinter) print(seconds int) {
	phase := p.phase.Load().(string)
	if seconds > 0 {
		fmt.Fprintf(p.w, "\r%s (%s %ds)   ", p.prefix, phase, seconds)
	} else {
		fmt.Fprintf(p.w, "\r%s (%s...)   ", p.prefix, phase)
	}
}

// Callback returns a function that updates the displayed phase.
func (p *ProgressPrinter) Callback() func(phase string) {
	return func(phase string) {
		p.phase.Store(phase)
	}
}

// Stop ends the redraw loop and clears the line.
func (p *ProgressPrinter) Stop() {
	p.stopOnce.Do(func() {
		if p.stop == nil {
			return
		}
		close(p.stop)
		<-p.done
		fmt.Fprint(p.w, clearLineSequence)
	})
}
