// Package limiter holds the gateway's two sliding-window counters: the
// per-connection event limiter and the per-identity connection
// admission counter. Both windows are lazy: counters reset on the first
// touch after expiry, never on a timer, so burst tolerance at window
// boundaries matches the deployed behavior exactly.
package limiter

import (
	"sync"
	"time"

	"AmoraGateway/tools/errs"
)

const megabyte = 1 << 20

// EventCap bounds one event class within a window. Count and byte caps
// are independent; either alone denies.
type EventCap struct {
	Window       time.Duration
	MaxEvents    int
	MaxMegabytes int
}

// EventConf configures the event limiter.
type EventConf struct {
	Default    EventCap            // applied to any event without an override
	PerEvent   map[string]EventCap // per-event-class overrides
	SweepEvery time.Duration       // idle-window sweep period
	IdleAfter  time.Duration       // window age beyond expiry that makes it sweepable
	Clock      func() time.Time    // injectable clock for tests; nil => time.Now
}

func (c *EventConf) norm() {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Default.Window <= 0 {
		c.Default.Window = 5 * time.Minute
	}
	if c.Default.MaxEvents <= 0 {
		c.Default.MaxEvents = 50
	}
	if c.Default.MaxMegabytes <= 0 {
		c.Default.MaxMegabytes = 1
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = 10 * time.Minute
	}
	if c.IdleAfter <= 0 {
		c.IdleAfter = 30 * time.Minute
	}
}

type windowKey struct {
	conn  string
	event string
}

type window struct {
	count    int
	bytes    int64
	expireAt time.Time
}

// EventLimiter gates every inbound event before it reaches business
// handlers. Windows are keyed by (connection handle, event name) and
// created lazily on first use.
type EventLimiter struct {
	mu   sync.Mutex
	wins map[windowKey]*window

	conf     EventConf
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewEventLimiter(conf EventConf) *EventLimiter {
	conf.norm()
	l := &EventLimiter{
		wins:   make(map[windowKey]*window),
		conf:   conf,
		stopCh: make(chan struct{}),
	}
	go l.sweeper()
	return l
}

func (l *EventLimiter) capFor(event string) EventCap {
	c, ok := l.conf.PerEvent[event]
	if !ok {
		return l.conf.Default
	}
	if c.Window <= 0 {
		c.Window = l.conf.Default.Window
	}
	if c.MaxEvents <= 0 {
		c.MaxEvents = l.conf.Default.MaxEvents
	}
	if c.MaxMegabytes <= 0 {
		c.MaxMegabytes = l.conf.Default.MaxMegabytes
	}
	return c
}

// Allow charges one event of the given name and payload size against
// the connection's window. A nil return forwards the event; otherwise
// the error names which cap tripped and the event must be rejected back
// to the sender.
func (l *EventLimiter) Allow(connID, event string, payloadBytes int) error {
	limit := l.capFor(event)
	now := l.conf.Clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	key := windowKey{conn: connID, event: event}
	w, ok := l.wins[key]
	if !ok {
		w = &window{}
		l.wins[key] = w
	}
	if !now.Before(w.expireAt) {
		w.count = 0
		w.bytes = 0
		w.expireAt = now.Add(limit.Window)
	}
	if w.count >= limit.MaxEvents {
		return errs.ErrEventRateLimited
	}
	if w.bytes+int64(payloadBytes) > int64(limit.MaxMegabytes)*megabyte {
		return errs.ErrBandwidthLimited
	}
	w.count++
	w.bytes += int64(payloadBytes)
	return nil
}

// RemoveConn drops every window owned by the connection. Called
// synchronously on disconnect; the sweep alone would keep dead windows
// for up to the idle threshold.
func (l *EventLimiter) RemoveConn(connID string) {
	l.mu.Lock()
	for k := range l.wins {
		if k.conn == connID {
			delete(l.wins, k)
		}
	}
	l.mu.Unlock()
}

// Close stops the sweeper.
func (l *EventLimiter) Close() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *EventLimiter) sweeper() {
	t := time.NewTicker(l.conf.SweepEvery)
	defer t.Stop()
	for {
		select {
		case <-l.stopCh:
			return
		case <-t.C:
			l.sweepOnce(l.conf.Clock())
		}
	}
}

func (l *EventLimiter) sweepOnce(now time.Time) int {
	cutoff := now.Add(-l.conf.IdleAfter)
	n := 0
	l.mu.Lock()
	for k, w := range l.wins {
		if w.expireAt.Before(cutoff) {
			delete(l.wins, k)
			n++
		}
	}
	l.mu.Unlock()
	return n
}

func (l *EventLimiter) windowCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.wins)
}
