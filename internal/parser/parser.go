// Package parser turns raw lines into record.StatRecord values by matching
// the fixed log-line grammar.
package parser

import (
	"time"

	"github.com/grafana/regexp"
	"github.com/sirupsen/logrus"

	"github.com/vrurg/qnode-logproc/internal/record"
)

// lineRE is the process-wide compiled grammar. Constructed once here rather
// than behind a lazy singleton, per the source's design note against hidden
// lazy globals.
var lineRE = regexp.MustCompile(
	`^\[(?P<dt>\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z)\]\s+(?P<level>INFO|ERROR|DEBUG)\s+-\s+IP:(?P<ip>\S+)\s+(?:Error \d+ -\s+)?(?P<msg>.*)$`,
)

var levelIdx, dtIdx, msgIdx = -1, -1, -1

func init() {
	for i, name := range lineRE.SubexpNames() {
		switch name {
		case `dt`:
			dtIdx = i
		case `level`:
			levelIdx = i
		case `msg`:
			msgIdx = i
		}
	}
}

// Parser matches raw lines and forwards classified records downstream.
type Parser struct {
	Input  <-chan record.LineMessage
	Output chan<- record.StatRecord
}

// New builds a Parser wired between the reader's line channel and the
// stats core's ingestion channel.
func New(input <-chan record.LineMessage, output chan<- record.StatRecord) *Parser {
	return &Parser{Input: input, Output: output}
}

// Run drains Input until it is closed, classifying every line and sending
// exactly one StatRecord per line, then closes Output. It does not send
// Stop; stopping the core is left to Core.Shutdown or to a caller that
// sends Stop explicitly.
func (p *Parser) Run() {
	for msg := range p.Input {
		p.Output <- p.classify(msg)
	}
	close(p.Output)
	logrus.Debug(`Parser: input channel closed, exiting`)
}

// classify matches a single line against the grammar.
func (p *Parser) classify(msg record.LineMessage) record.StatRecord {
	m := lineRE.FindStringSubmatch(msg.Line)
	if m == nil {
		return record.Err(record.MalformedRecord{
			RecvMs: msg.RecvMs,
			Line:   msg.Line,
		})
	}

	loggedMs, err := parseLoggedMs(m[dtIdx])
	if err != nil {
		logrus.Debugf(`Parser: matched line has unparseable timestamp %q: %v`, m[dtIdx], err)
		return record.Err(record.MalformedRecord{
			RecvMs: msg.RecvMs,
			Line:   msg.Line,
		})
	}

	lvl, ok := parseLevel(m[levelIdx])
	if !ok {
		return record.Err(record.MalformedRecord{
			RecvMs: msg.RecvMs,
			Line:   msg.Line,
		})
	}

	return record.Ok(record.OkRecord{
		RecvMs:   msg.RecvMs,
		LoggedMs: loggedMs,
		Level:    lvl,
		Message:  m[msgIdx],
	})
}

func parseLoggedMs(dt string) (int64, error) {
	t, err := time.Parse(time.RFC3339, dt)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

func parseLevel(s string) (record.Level, bool) {
	switch s {
	case `INFO`:
		return record.LevelInfo, true
	case `ERROR`:
		return record.LevelError, true
	case `DEBUG`:
		return record.LevelDebug, true
	default:
		return 0, false
	}
}
