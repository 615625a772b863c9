// Package stats owns the sliding-window statistical aggregate: ingestion,
// eviction, trend-weight recomputation, adaptive window sizing and snapshot
// preparation. It is the sole subject of this module's specification.
package stats

import (
	"container/list"
	"errors"
	"sync"
	"time"

	metrics "github.com/rcrowley/go-metrics"

	"github.com/vrurg/qnode-logproc/internal/record"
)

// ErrClosed is returned by Push once the core has stopped accepting
// records, either because a Stop record was processed or Shutdown was
// called.
var ErrClosed = errors.New(`stats: core is closed`)

// TrendAlerter is notified with the freshly recomputed trend rates after
// the cleanup pass of every well-formed (OK) ingest; malformed ingests and
// reporting ticks do not notify it. Implementations must not block the consumer; they
// should dispatch asynchronously. Optional — a nil TrendAlerter disables
// the feature entirely without changing core semantics.
type TrendAlerter interface {
	Check(rates map[uint64]float64, counts map[uint64]int64, textOf func(uint64) string, nowMs int64)
}

// Core is the statistics aggregate's single writer. All mutation of the
// record deque, WindowState and interner happens on the goroutine running
// Run.
type Core struct {
	input   chan record.StatRecord
	tickReq chan chan TickResult

	stopOnce sync.Once
	stopCh   chan struct{}

	records  *list.List
	ws       *windowState
	interner *interner

	alerter TrendAlerter
	clock   func() int64

	registry       metrics.Registry
	ingestedMeter  metrics.Meter
	evictedMeter   metrics.Meter
	malformedMeter metrics.Meter
	snapshotMeter  metrics.Meter
}

// Option configures a Core at construction time.
type Option func(*Core)

// WithAlerter wires a TrendAlerter into the core.
func WithAlerter(a TrendAlerter) Option {
	return func(c *Core) { c.alerter = a }
}

// WithClock overrides the wall-clock source; used by tests.
func WithClock(clock func() int64) Option {
	return func(c *Core) { c.clock = clock }
}

// WithInitialWindow seeds the window size before the adaptive controller
// gets a chance to run. A non-positive value leaves DefaultWindowMs in
// place; an out-of-range value is clamped the same way cleanupAndAdjust
// clamps every later resize.
func WithInitialWindow(ms int64) Option {
	return func(c *Core) {
		if ms <= 0 {
			return
		}
		c.ws.windowMs = int64(clamp(float64(ms), MinWindowMs, MaxWindowMs))
	}
}

// NewCore builds a Core with an empty window, ready to Run.
func NewCore(opts ...Option) *Core {
	c := &Core{
		input:    make(chan record.StatRecord),
		tickReq:  make(chan chan TickResult),
		stopCh:   make(chan struct{}),
		records:  list.New(),
		ws:       newWindowState(),
		interner: newInterner(),
		clock:    func() int64 { return time.Now().UnixMilli() },
		registry: metrics.NewRegistry(),
	}
	c.ingestedMeter = metrics.GetOrRegisterMeter(`/logproc/ingested.per.second`, c.registry)
	c.evictedMeter = metrics.GetOrRegisterMeter(`/logproc/evicted.per.second`, c.registry)
	c.malformedMeter = metrics.GetOrRegisterMeter(`/logproc/malformed.per.second`, c.registry)
	c.snapshotMeter = metrics.GetOrRegisterMeter(`/logproc/snapshots.served.per.second`, c.registry)

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Push sends rec to the core, preserving order and never retrying. The
// input channel is unbuffered and there is no queue behind it: Push blocks
// until the consumer goroutine takes the record, or returns ErrClosed once
// the core has stopped.
func (c *Core) Push(rec record.StatRecord) error {
	select {
	case <-c.stopCh:
		return ErrClosed
	default:
	}
	select {
	case c.input <- rec:
		return nil
	case <-c.stopCh:
		return ErrClosed
	}
}

// Shutdown drops the core's willingness to keep consuming, unblocking any
// goroutine parked in Run's select and any pending Push or Tick call.
func (c *Core) Shutdown() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// TickResult is what the reporter gets back from Tick: either the deque is
// still empty (Empty is true, Snapshot is zero) or a fresh Snapshot taken
// after a cleanup pass.
type TickResult struct {
	Empty    bool
	Snapshot Snapshot
}

// Tick asks the consumer goroutine to evaluate one reporting tick: if the
// deque is empty it reports that without running a cleanup pass (matching
// the contract that an empty window never triggers eviction/adjustment
// work); otherwise it runs cleanupAndAdjust and returns a consistent
// Snapshot. ok is false once the core has stopped; the caller should
// render its last cached TickResult, if any, and give up.
func (c *Core) Tick() (res TickResult, ok bool) {
	reply := make(chan TickResult, 1)
	select {
	case c.tickReq <- reply:
	case <-c.stopCh:
		return TickResult{}, false
	}
	select {
	case res = <-reply:
		return res, true
	case <-c.stopCh:
		return TickResult{}, false
	}
}

// Run is the consumer loop: the sole goroutine allowed to mutate records,
// WindowState and the interner. It returns once a Stop record is observed
// or Shutdown is called.
func (c *Core) Run() {
	for {
		select {
		case <-c.stopCh:
			return

		case reply := <-c.tickReq:
			if c.records.Len() == 0 {
				reply <- TickResult{Empty: true}
				break
			}
			c.cleanupAndAdjust(c.clock())
			reply <- TickResult{Snapshot: c.buildSnapshot()}
			c.snapshotMeter.Mark(1)

		case rec := <-c.input:
			switch rec.Kind {
			case record.KindStop:
				c.requestStop()
				return
			case record.KindOK:
				c.ingestOK(*rec.OK)
			case record.KindMalformed:
				c.ingestMalformed(*rec.Malformed)
			}
		}
	}
}

func (c *Core) requestStop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *Core) ingestOK(rec record.OkRecord) {
	var msgID uint64
	if rec.Level == record.LevelError {
		msgID = c.interner.intern(rec.Message)
	}
	inner := &innerRecord{
		kind:     innerOK,
		recvMs:   rec.RecvMs,
		loggedMs: rec.LoggedMs,
		level:    rec.Level,
		msgID:    msgID,
	}
	c.ws.apply(inner, 1)
	c.records.PushFront(inner)

	now := c.clock()
	c.ws.refreshLastSecond(rec.RecvMs, now)
	c.cleanupAndAdjust(now)
	c.ingestedMeter.Mark(1)

	if c.alerter != nil {
		c.alerter.Check(c.ws.errorMsgRates, c.ws.errorMsgCounts, c.interner.lookup, now)
	}
}

func (c *Core) ingestMalformed(rec record.MalformedRecord) {
	inner := &innerRecord{kind: innerErr, recvMs: rec.RecvMs}
	c.ws.apply(inner, 1)
	c.records.PushFront(inner)
	c.malformedMeter.Mark(1)
}

// cleanupAndAdjust enforces the eviction/adaptive-window invariants. It
// repeats until a pass makes no further window-size change, which the
// clamp guarantees happens within two iterations.
func (c *Core) cleanupAndAdjust(now int64) {
	ws := c.ws

	for {
		ws.entries = int64(c.records.Len())

		for c.records.Len() > 0 {
			back := c.records.Back()
			r := back.Value.(*innerRecord)
			if r.recvMs >= now-ws.windowMs {
				break
			}
			c.records.Remove(back)
			ws.apply(r, -1)
			c.evictedMeter.Mark(1)
		}
		ws.entries = int64(c.records.Len())

		var frontLogged, backLogged int64
		if c.records.Len() == 0 {
			ws.collectedIntervalMs = 0
		} else {
			front := c.records.Front().Value.(*innerRecord)
			back := c.records.Back().Value.(*innerRecord)
			ws.collectedIntervalMs = front.recvMs - back.recvMs
			frontLogged, backLogged = front.loggedMs, back.loggedMs
		}

		if ws.collectedIntervalMs > 100 {
			ws.rate = float64(ws.entries) * 1000 / float64(ws.collectedIntervalMs)
		}
		if ws.collectedIntervalMs >= 1000 && ws.rate > ws.peakRate {
			ws.peakRate = ws.rate
		}
		if ws.entries > 0 {
			ws.errorRate = float64(ws.errors) / float64(ws.entries)
		} else {
			ws.errorRate = 0
		}

		if c.records.Len() > 0 {
			ws.recomputeTrend(now, frontLogged, backLogged)
		}

		changed := false
		if ws.rate > 0 {
			expected := ws.rate * float64(ws.windowMs) / 1000
			if expected > 100_000 || expected < 75_000 {
				candidateSec := clamp(100_000/ws.rate, MinWindowMs/1000, MaxWindowMs/1000)
				newWindow := int64(candidateSec * 1000)
				if newWindow != ws.windowMs {
					ws.previousWindowMs = ws.windowMs
					ws.windowMs = newWindow
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}
}

func (c *Core) buildSnapshot() Snapshot {
	ws := c.ws

	topCounts := topByCount(ws.errorMsgCounts, 3)
	topErrs := make([]MessageCount, len(topCounts))
	for i, id := range topCounts {
		topErrs[i] = MessageCount{MsgID: id, Text: c.interner.lookup(id), Count: ws.errorMsgCounts[id]}
	}

	topTrend := topByRate(ws.errorMsgRates, 3)
	trending := make([]MessageTrend, len(topTrend))
	for i, id := range topTrend {
		trending[i] = MessageTrend{MsgID: id, Text: c.interner.lookup(id), Rate: ws.errorMsgRates[id]}
	}

	return Snapshot{
		TakenAtMs:            c.clock(),
		Entries:              ws.entries,
		WindowMs:             ws.windowMs,
		CollectedIntervalMs:  ws.collectedIntervalMs,
		CurrentPerSecondRate: len(ws.lastSecondReceived),
		Rate:                 ws.rate,
		PeakRate:             ws.peakRate,
		Errors:               ws.errors,
		Infos:                ws.infos,
		Debugs:               ws.debugs,
		Malformed:            ws.malformed,
		ErrorRate:            ws.errorRate,
		TopErrorMessages:     topErrs,
		TrendingMessages:     trending,
		PerSecTableSize:      len(ws.errorMsgPerSec),
	}
}
