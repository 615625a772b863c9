// Package alert dispatches a webhook notification when a message's trend
// score crosses a configured threshold. It is the optional consumer the
// statistics core's trend-weight engine was always going to need; wiring
// it up follows the teacher's own alarm-dispatch shape (a retrying resty
// client posting a small JSON event) almost verbatim, pointed at trend
// scores instead of threshold breaches.
package alert

import (
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mjolnir42/delay"
	"github.com/sirupsen/logrus"

	"github.com/vrurg/qnode-logproc/internal/config"
)

// Event is the JSON payload POSTed to the configured URL.
type Event struct {
	MsgID     uint64  `json:"msg_id"`
	Message   string  `json:"message"`
	Rate      float64 `json:"rate"`
	Count     int64   `json:"count"`
	Timestamp string  `json:"timestamp"`
}

// Dispatcher implements stats.TrendAlerter, POSTing an Event whenever a
// message's trend rate first crosses RateThreshold. It tracks which
// messages it already alerted on since the last time their rate fell back
// under the threshold, so a sustained rising trend fires once, not every
// tick.
type Dispatcher struct {
	client    *resty.Client
	url       string
	threshold float64

	armed map[uint64]bool
	delay *delay.Delay
}

// New builds a Dispatcher from cfg. Returns nil if alerting is disabled;
// Check and Wait are safe on a nil Dispatcher, and cmd/logproc only wires
// it into stats.WithAlerter when it is non-nil.
func New(cfg config.AlertConfig) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}

	client := resty.New().
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(15)).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(100*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader(`Content-Type`, `application/json`)

	return &Dispatcher{
		client:    client,
		url:       cfg.URL,
		threshold: cfg.RateThreshold,
		armed:     make(map[uint64]bool),
		delay:     delay.New(),
	}
}

// Check implements stats.TrendAlerter. Called from the stats consumer
// goroutine after every well-formed (OK) ingest; it must not block the caller, so the
// actual POST happens on its own goroutine.
func (d *Dispatcher) Check(rates map[uint64]float64, counts map[uint64]int64, textOf func(uint64) string, nowMs int64) {
	if d == nil {
		return
	}
	for msgID, rate := range rates {
		if rate < d.threshold {
			d.armed[msgID] = false
			continue
		}
		if d.armed[msgID] {
			continue
		}
		d.armed[msgID] = true

		ev := Event{
			MsgID:     msgID,
			Message:   textOf(msgID),
			Rate:      rate,
			Count:     counts[msgID],
			Timestamp: time.UnixMilli(nowMs).UTC().Format(time.RFC3339Nano),
		}
		d.delay.Use()
		go func() {
			defer d.delay.Done()
			d.post(ev)
		}()
	}
}

// Wait blocks until every POST started by Check has finished, the same
// c.delay.Use()/Done() drain the teacher runs before a handler is allowed
// to stop. Safe to call on a nil Dispatcher.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.delay.Wait()
}

func (d *Dispatcher) post(ev Event) {
	resp, err := d.client.R().SetBody(ev).Post(d.url)
	if err != nil {
		logrus.WithError(err).WithField(`msg_id`, ev.MsgID).Error(`alert: dispatch failed`)
		return
	}
	if resp.StatusCode() >= 300 {
		logrus.WithFields(logrus.Fields{
			`msg_id`: ev.MsgID,
			`status`: resp.StatusCode(),
			`body`:   resp.String(),
		}).Error(`alert: endpoint rejected event`)
		return
	}
	logrus.WithFields(logrus.Fields{
		`msg_id`: ev.MsgID,
		`rate`:   ev.Rate,
	}).Info(`alert: dispatched trend alert`)
}
