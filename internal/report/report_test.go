package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrurg/qnode-logproc/internal/record"
	"github.com/vrurg/qnode-logproc/internal/stats"
)

func TestRenderIncludesAllSections(t *testing.T) {
	var buf bytes.Buffer
	r := &Reporter{Out: &buf}

	r.render(stats.Snapshot{
		TakenAtMs:            1_000_000,
		Entries:              10,
		WindowMs:             60_000,
		CollectedIntervalMs:  5_000,
		CurrentPerSecondRate: 3,
		Rate:                 2.5,
		PeakRate:             9.0,
		Errors:               2,
		Infos:                7,
		Debugs:               1,
		Malformed:            4,
		ErrorRate:            0.2,
		TopErrorMessages: []stats.MessageCount{
			{MsgID: 0, Text: `disk full`, Count: 2},
		},
		TrendingMessages: []stats.MessageTrend{
			{MsgID: 0, Text: `disk full`, Rate: 3.4},
		},
		PerSecTableSize: 5,
	})

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, clearScreen))
	assert.Contains(t, out, `Rate        : 2.50 entries/sec`)
	assert.Contains(t, out, `Peak rate   : 9.00 entries/sec`)
	assert.Contains(t, out, `Errors: 20.00% (2 entries)`)
	assert.Contains(t, out, `Infos: 70.00% (7 entries)`)
	assert.Contains(t, out, `Debugs: 10.00% (1 entries)`)
	assert.Contains(t, out, `Malformed: 4`)
	assert.Contains(t, out, `1. "disk full" (2 entries)`)
	assert.Contains(t, out, `"disk full" (rate: 3.40)`)
	assert.Contains(t, out, `Error messages per second table size: 5`)
	assert.Contains(t, out, `Ctrl-C to stop.`)
}

func TestRenderEmptyShowsPlaceholder(t *testing.T) {
	var buf bytes.Buffer
	r := &Reporter{Out: &buf}

	r.renderEmpty()

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, clearScreen))
	assert.Contains(t, out, `No records yet, as of`)
}

func TestRunRendersLastSnapshotOnceCoreStops(t *testing.T) {
	core := stats.NewCore()
	go core.Run()

	require.NoError(t, core.Push(record.Ok(record.OkRecord{
		RecvMs: 1_000, LoggedMs: 1_000, Level: record.LevelError, Message: `boom`,
	})))

	var buf bytes.Buffer
	r := New(core, &buf)
	r.Interval = 5 * time.Millisecond

	done := make(chan struct{})
	go func() {
		r.Run()
		close(done)
	}()

	// Let at least one tick land before shutting down, so the reporter has
	// a cached snapshot to re-render on its final frame.
	time.Sleep(30 * time.Millisecond)
	core.Shutdown()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal(`Reporter.Run did not return after core shutdown`)
	}

	assert.Contains(t, buf.String(), `boom`)
}
