package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/MimeLyc/video-sub-translator/internal/service"
)

// progressPrinter writes stage changes and translation progress for the
// process command.
type progressPrinter struct {
	mu       sync.Mutex
	out      io.Writer
	colorize bool
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out, colorize: shouldColorize(out)}
}

func (p *progressPrinter) OnEvent(e service.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e.Kind {
	case service.EventStatus:
		p.line(text.FgCyan, "==> "+e.Status.Label())
	case service.EventProgress:
		if e.Total > 0 {
			fmt.Fprintf(p.out, "    %s %d/%d\n", e.Message, e.Done, e.Total)
		}
	default:
		switch e.Level {
		case "WARN":
			p.line(text.FgYellow, "    warning: "+e.Message)
		case "ERROR":
			p.line(text.FgRed, "    error: "+e.Message)
		}
	}
}

func (p *progressPrinter) line(color text.Color, s string) {
	if p.colorize {
		s = color.Sprint(s)
	}
	fmt.Fprintln(p.out, s)
}
