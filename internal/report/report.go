// Package report renders the terminal dashboard: a full-screen refresh
// once per second driven by stats.Core.Tick.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vrurg/qnode-logproc/internal/stats"
)

const rule = "--------------------------------------------------------------------------------"

// clearScreen moves the cursor to (0,0) and erases the display, the same
// ANSI escape pair ("\033[2J\033[H") used by terminal dashboards that
// redraw in place rather than scroll.
const clearScreen = "\033[2J\033[H"

// Reporter ticks once a second, asking core for a fresh view and writing
// the fixed-layout report to out.
type Reporter struct {
	Core     *stats.Core
	Out      io.Writer
	Interval time.Duration

	last     stats.Snapshot
	haveLast bool
}

// New builds a Reporter over core, writing to out on a 1-second cadence.
func New(core *stats.Core, out io.Writer) *Reporter {
	return &Reporter{Core: core, Out: out, Interval: time.Second}
}

// Run ticks until the core stops, then renders one final frame from the
// last snapshot it held (if any) and returns.
func (r *Reporter) Run() {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for range ticker.C {
		res, ok := r.Core.Tick()
		if !ok {
			if r.haveLast {
				r.render(r.last)
			}
			return
		}
		if res.Empty {
			r.renderEmpty()
			continue
		}
		r.last = res.Snapshot
		r.haveLast = true
		r.render(res.Snapshot)
	}
}

func (r *Reporter) renderEmpty() {
	if _, err := fmt.Fprintf(r.Out, clearScreen+"No records yet, as of %s\n",
		time.Now().Format(`2006-01-02 15:04:05.000`)); err != nil {
		logrus.WithError(err).Error(`report: failed writing empty-tick message`)
	}
}

func (r *Reporter) render(s stats.Snapshot) {
	var b strings.Builder

	b.WriteString(clearScreen)
	fmt.Fprintf(&b, "Stats as of %s\n", time.UnixMilli(s.TakenAtMs).Format(`2006-01-02 15:04:05.000`))
	b.WriteString(rule + "\n")

	fmt.Fprintf(&b, "Entries: %d per %.2f seconds (window: %dsec)\n",
		s.Entries, float64(s.CollectedIntervalMs)/1000, s.WindowMs/1000)
	fmt.Fprintf(&b, "Current rate: %d entries/sec\n", s.CurrentPerSecondRate)
	fmt.Fprintf(&b, "Rate        : %.2f entries/sec\n", s.Rate)
	fmt.Fprintf(&b, "Peak rate   : %.2f entries/sec\n", s.PeakRate)
	b.WriteString("\n")

	errPct := 0.0
	if s.Entries > 0 {
		errPct = float64(s.Errors) / float64(s.Entries) * 100
	}
	infoPct := 0.0
	if s.Entries > 0 {
		infoPct = float64(s.Infos) / float64(s.Entries) * 100
	}
	debugPct := 0.0
	if s.Entries > 0 {
		debugPct = float64(s.Debugs) / float64(s.Entries) * 100
	}
	fmt.Fprintf(&b, "Errors: %.2f%% (%d entries); rate: %.2f errors/sec\n",
		errPct, s.Errors, s.Rate*s.ErrorRate)
	fmt.Fprintf(&b, "Infos: %.2f%% (%d entries)\n", infoPct, s.Infos)
	fmt.Fprintf(&b, "Debugs: %.2f%% (%d entries)\n", debugPct, s.Debugs)
	fmt.Fprintf(&b, "Malformed: %d\n", s.Malformed)
	b.WriteString("\n")

	b.WriteString("Top error messages:\n")
	for i, m := range s.TopErrorMessages {
		fmt.Fprintf(&b, "  %d. %q (%d entries)\n", i+1, m.Text, m.Count)
	}
	b.WriteString("\n")

	b.WriteString("Trending messages:\n")
	for _, m := range s.TrendingMessages {
		fmt.Fprintf(&b, "  %q (rate: %.2f)\n", m.Text, m.Rate)
	}
	b.WriteString("\n")

	b.WriteString("Insights:\n")
	fmt.Fprintf(&b, "Error messages per second table size: %d\n", s.PerSecTableSize)
	b.WriteString(rule + "\n")
	b.WriteString("Ctrl-C to stop.\n")

	if _, err := io.WriteString(r.Out, b.String()); err != nil {
		logrus.WithError(err).Error(`report: failed writing tick render`)
	}
}
