package stats

import (
	"math"
	"sort"

	"github.com/vrurg/qnode-logproc/internal/record"
)

const (
	// MinWindowMs and MaxWindowMs bound the adaptive window.
	MinWindowMs = 30_000
	MaxWindowMs = 120_000

	// DefaultWindowMs is the window size a fresh Core starts with.
	DefaultWindowMs = 60_000

	// MsgErrorWindowMs floors the span used by the trend-weight engine.
	MsgErrorWindowMs = 15_000
)

type innerKind int

const (
	innerOK innerKind = iota
	innerErr
)

// innerRecord is the interned, deque-resident form of a record.
type innerRecord struct {
	kind     innerKind
	recvMs   int64
	loggedMs int64
	level    record.Level
	msgID    uint64
}

// windowState is the mutable aggregate. It is touched only by the stats
// consumer goroutine; the reporter only ever sees a Snapshot copy.
type windowState struct {
	entries             int64
	collectedIntervalMs int64
	rate                float64
	peakRate            float64
	errorRate           float64
	errors              int64
	infos               int64
	debugs              int64
	malformed           int64
	errorMsgCounts      map[uint64]int64
	errorMsgPerSec      map[int64]map[uint64]int64
	errorMsgRates       map[uint64]float64
	windowMs            int64
	previousWindowMs    int64
	lastSecondReceived  []int64
}

func newWindowState() *windowState {
	return &windowState{
		errorMsgCounts: make(map[uint64]int64),
		errorMsgPerSec: make(map[int64]map[uint64]int64),
		errorMsgRates:  make(map[uint64]float64),
		windowMs:       DefaultWindowMs,
	}
}

// apply updates every counter for rec by act (+1 on ingest, -1 on eviction).
// It is symmetric: apply(r, +1) followed by apply(r, -1) is a no-op. A
// counter going negative, or an eviction whose per-second bucket is missing,
// is an internal invariant violation and panics.
func (ws *windowState) apply(rec *innerRecord, act int64) {
	switch rec.kind {
	case innerErr:
		ws.malformed += act
	case innerOK:
		switch rec.level {
		case record.LevelError:
			ws.errors += act
			ws.errorMsgCounts[rec.msgID] += act
			if ws.errorMsgCounts[rec.msgID] == 0 {
				delete(ws.errorMsgCounts, rec.msgID)
			}

			sec := rec.loggedMs / 1000
			bucket, ok := ws.errorMsgPerSec[sec]
			if !ok {
				if act < 0 {
					panic(`stats: evicting an error record whose per-second bucket is missing`)
				}
				bucket = make(map[uint64]int64)
				ws.errorMsgPerSec[sec] = bucket
			}
			bucket[rec.msgID] += act
			if bucket[rec.msgID] < 0 || ws.errorMsgCounts[rec.msgID] < 0 {
				panic(`stats: per-message error counter underflow`)
			}
			if bucket[rec.msgID] == 0 {
				delete(bucket, rec.msgID)
			}
			if len(bucket) == 0 {
				delete(ws.errorMsgPerSec, sec)
			}
		case record.LevelInfo:
			ws.infos += act
		case record.LevelDebug:
			ws.debugs += act
		}
	}
	if ws.errors < 0 || ws.infos < 0 || ws.debugs < 0 || ws.malformed < 0 {
		panic(`stats: record counter underflow`)
	}
}

// refreshLastSecond pushes ts and evicts everything older than 1000ms
// relative to now. Relies on ts arriving in non-decreasing order, true for
// receive timestamps under normal clock behavior.
func (ws *windowState) refreshLastSecond(ts, now int64) {
	ws.lastSecondReceived = append(ws.lastSecondReceived, ts)
	cutoff := now - 1000
	i := 0
	for i < len(ws.lastSecondReceived) && ws.lastSecondReceived[i] < cutoff {
		i++
	}
	if i > 0 {
		ws.lastSecondReceived = ws.lastSecondReceived[i:]
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// recomputeTrend implements the exponentially weighted newer/older ratio
// described by the trend-weight engine. front/back are the newest/oldest
// records currently retained.
func (ws *windowState) recomputeTrend(now, frontLoggedMs, backLoggedMs int64) {
	span := float64(frontLoggedMs - backLoggedMs)
	if span < MsgErrorWindowMs {
		span = MsgErrorWindowMs
	}
	if span < 2000 {
		return
	}

	baseNewer := float64(now) - span/2
	baseOlder := float64(now)

	secs := make([]int64, 0, len(ws.errorMsgPerSec))
	for s := range ws.errorMsgPerSec {
		secs = append(secs, s)
	}
	sort.Slice(secs, func(i, j int) bool { return secs[i] > secs[j] })

	var groupWeights [2]map[uint64]float64
	groupWeights[0] = make(map[uint64]float64)
	groupWeights[1] = make(map[uint64]float64)

	for _, s := range secs {
		group := int(math.Floor(float64(now-s*1000) * 2 / span))
		if group > 1 {
			break
		}
		if group < 0 {
			continue
		}
		base := baseNewer
		if group == 1 {
			base = baseOlder
		}
		weight := math.Exp((base - float64(s*1000)) / span)
		for msgID, count := range ws.errorMsgPerSec[s] {
			groupWeights[group][msgID] += weight * float64(count)
		}
	}

	rates := make(map[uint64]float64, len(ws.errorMsgCounts))
	for msgID := range ws.errorMsgCounts {
		older := groupWeights[1][msgID]
		newer := groupWeights[0][msgID]
		if older > 0 {
			rates[msgID] = newer / older
		} else {
			rates[msgID] = 0
		}
	}
	ws.errorMsgRates = rates
}

// topByCount returns up to n msgIDs ranked by count desc, ties broken by
// lower msgID.
func topByCount(counts map[uint64]int64, n int) []uint64 {
	ids := make([]uint64, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if counts[ids[i]] != counts[ids[j]] {
			return counts[ids[i]] > counts[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > n {
		ids = ids[:n]
	}
	return ids
}

// topByRate returns up to n msgIDs ranked by trend rate desc, ties broken by
// lower msgID.
func topByRate(rates map[uint64]float64, n int) []uint64 {
	ids := make([]uint64, 0, len(rates))
	for id := range rates {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if rates[ids[i]] != rates[ids[j]] {
			return rates[ids[i]] > rates[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > n {
		ids = ids[:n]
	}
	return ids
}
