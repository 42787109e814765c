package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/eargollo/orgest/internal/pipeline"
)

const (
	redrawInterval = 100 * time.Millisecond
	logInterval    = 10 * time.Second
	maxLabelWidth  = 40
)

// progressPrinter renders job snapshots: a single rewritten line on a
// terminal, periodic log records otherwise. It is driven from the job
// goroutine only.
type progressPrinter struct {
	w   io.Writer
	tty bool
	log *slog.Logger

	stage    int
	lastDraw time.Time
	lastLog  time.Time
	width    int
}

func newProgressPrinter(w io.Writer, log *slog.Logger) *progressPrinter {
	return &progressPrinter{w: w, tty: isTerminal(w), log: log}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (p *progressPrinter) observe(s pipeline.State) {
	if s.Settled {
		p.clear()
		return
	}
	if s.Stage == 0 {
		return
	}
	changed := s.Stage != p.stage
	p.stage = s.Stage
	now := time.Now()

	if !p.tty {
		if changed || now.Sub(p.lastLog) >= logInterval {
			p.lastLog = now
			p.log.Info("progress", "stage", s.StageName, "index", s.Stage, "of", s.Stages,
				"current", s.Current, "total", s.Total, "percent", int(s.Fraction*100))
		}
		return
	}

	if !changed && now.Sub(p.lastDraw) < redrawInterval {
		return
	}
	p.lastDraw = now
	p.draw(progressLine(s))
}

func progressLine(s pipeline.State) string {
	line := fmt.Sprintf("[%d/%d] %s %3d%%", s.Stage, s.Stages, s.StageTitle, int(s.Fraction*100))
	if s.Total > 0 {
		line += fmt.Sprintf(" (%d/%d)", s.Current, s.Total)
	}
	if s.Label != "" {
		label := s.Label
		if r := []rune(label); len(r) > maxLabelWidth {
			label = "…" + string(r[len(r)-maxLabelWidth+1:])
		}
		line += " " + label
	}
	return line
}

func (p *progressPrinter) draw(line string) {
	pad := ""
	if n := len(line); n < p.width {
		pad = strings.Repeat(" ", p.width-n)
	} else {
		p.width = n
	}
	fmt.Fprint(p.w, "\r"+line+pad)
}

// clear erases the progress line so the next output starts clean.
func (p *progressPrinter) clear() {
	if !p.tty || p.width == 0 {
		return
	}
	fmt.Fprint(p.w, "\r"+strings.Repeat(" ", p.width)+"\r")
	p.width = 0
}
