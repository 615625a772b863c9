package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrurg/qnode-logproc/internal/parser"
	"github.com/vrurg/qnode-logproc/internal/reader"
	"github.com/vrurg/qnode-logproc/internal/record"
	"github.com/vrurg/qnode-logproc/internal/stats"
)

func TestShowCursorWritesShowCursorEscape(t *testing.T) {
	var buf strings.Builder
	showCursor(&buf)
	assert.Equal(t, "\033[?25h", buf.String())
}

func TestCoreInputAdapterForwardsPushedRecords(t *testing.T) {
	core := stats.NewCore()
	go core.Run()
	defer core.Shutdown()

	ch := coreInputAdapter(core)
	ch <- record.Ok(record.OkRecord{RecvMs: 1, LoggedMs: 1, Level: record.LevelInfo})

	res, ok := core.Tick()
	require.True(t, ok)
	require.False(t, res.Empty)
	assert.EqualValues(t, 1, res.Snapshot.Infos)
}

// TestFullPipelineBaseline wires reader -> parser -> stats.Core exactly as
// main does and feeds it the baseline scenario's three lines.
func TestFullPipelineBaseline(t *testing.T) {
	src := strings.NewReader(strings.Join([]string{
		`[2025-01-01T00:00:00Z] INFO  - IP:10.0.0.1 hello`,
		`[2025-01-01T00:00:00Z] ERROR - IP:10.0.0.1 Error 7 - boom`,
		`xxx not a log line xxx`,
	}, "\n") + "\n")

	lines := make(chan record.LineMessage)
	recs := make(chan record.StatRecord)

	rd := reader.New(src, lines)
	p := parser.New(lines, recs)
	core := stats.NewCore()

	go core.Run()
	defer core.Shutdown()

	go p.Run()
	go func() {
		require.NoError(t, rd.Run())
		close(lines)
	}()

	go func() {
		for rec := range recs {
			_ = core.Push(rec)
		}
	}()

	require.Eventually(t, func() bool {
		res, ok := core.Tick()
		return ok && !res.Empty && res.Snapshot.Entries == 3
	}, 2*time.Second, 5*time.Millisecond)

	res, ok := core.Tick()
	require.True(t, ok)
	require.False(t, res.Empty)

	snap := res.Snapshot
	assert.EqualValues(t, 3, snap.Entries)
	assert.EqualValues(t, 1, snap.Infos)
	assert.EqualValues(t, 1, snap.Errors)
	assert.EqualValues(t, 1, snap.Malformed)
	assert.EqualValues(t, 0, snap.Debugs)
	require.Len(t, snap.TopErrorMessages, 1)
	assert.Equal(t, `boom`, snap.TopErrorMessages[0].Text)
	assert.EqualValues(t, 1, snap.TopErrorMessages[0].Count)
}

// TestFullPipelineMalformedBurst wires the same pipeline for the
// malformed-burst scenario: a thousand unparseable lines should leave every
// other counter at zero.
func TestFullPipelineMalformedBurst(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 1000; i++ {
		b.WriteString("not a log line at all\n")
	}

	lines := make(chan record.LineMessage)
	recs := make(chan record.StatRecord)

	rd := reader.New(strings.NewReader(b.String()), lines)
	p := parser.New(lines, recs)
	core := stats.NewCore()

	go core.Run()
	defer core.Shutdown()

	go p.Run()
	go func() {
		require.NoError(t, rd.Run())
		close(lines)
	}()
	go func() {
		for rec := range recs {
			_ = core.Push(rec)
		}
	}()

	require.Eventually(t, func() bool {
		res, ok := core.Tick()
		return ok && !res.Empty && res.Snapshot.Entries == 1000
	}, 2*time.Second, 5*time.Millisecond)

	res, ok := core.Tick()
	require.True(t, ok)
	snap := res.Snapshot
	assert.EqualValues(t, 1000, snap.Malformed)
	assert.EqualValues(t, 0, snap.Errors)
	assert.EqualValues(t, 0, snap.Infos)
	assert.EqualValues(t, 0, snap.Debugs)
	assert.Empty(t, snap.TopErrorMessages)
}
