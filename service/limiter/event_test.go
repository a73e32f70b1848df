package limiter

import (
	"errors"
	"testing"
	"time"

	"AmoraGateway/tools/errs"
)

// fakeClock drives the lazy windows deterministically.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestLimiter(clk *fakeClock, def EventCap, perEvent map[string]EventCap) *EventLimiter {
	l := NewEventLimiter(EventConf{
		Default:  def,
		PerEvent: perEvent,
		Clock:    clk.Now,
	})
	return l
}

func TestEventCountCap(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	l := newTestLimiter(clk, EventCap{Window: 5 * time.Minute, MaxEvents: 50, MaxMegabytes: 64}, nil)
	defer l.Close()

	for i := 1; i <= 50; i++ {
		if err := l.Allow("C1", "chat", 100); err != nil {
			t.Fatalf("event %d: unexpected deny: %v", i, err)
		}
	}
	err := l.Allow("C1", "chat", 100)
	if !errors.Is(err, errs.ErrEventRateLimited) {
		t.Fatalf("event 51: got %v, want ErrEventRateLimited", err)
	}

	// A different event name on the same connection is unaffected.
	if err := l.Allow("C1", "typing", 10); err != nil {
		t.Fatalf("other event name denied: %v", err)
	}
	// As is the same event on another connection.
	if err := l.Allow("C2", "chat", 100); err != nil {
		t.Fatalf("other connection denied: %v", err)
	}
}

func TestBandwidthCapIndependentOfCount(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	l := newTestLimiter(clk, EventCap{Window: time.Minute, MaxEvents: 1000, MaxMegabytes: 1}, nil)
	defer l.Close()

	half := 1 << 19 // 512 KiB
	if err := l.Allow("C1", "photo", half); err != nil {
		t.Fatalf("first half denied: %v", err)
	}
	if err := l.Allow("C1", "photo", half); err != nil {
		t.Fatalf("second half denied: %v", err)
	}
	err := l.Allow("C1", "photo", 1)
	if !errors.Is(err, errs.ErrBandwidthLimited) {
		t.Fatalf("over-budget event: got %v, want ErrBandwidthLimited", err)
	}
	// The denied event must not have been charged.
	if err := l.Allow("C1", "chat", 1); err != nil {
		t.Fatalf("unrelated event denied: %v", err)
	}
}

func TestLazyWindowResetOnExpiry(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	l := newTestLimiter(clk, EventCap{Window: time.Minute, MaxEvents: 2, MaxMegabytes: 1}, nil)
	defer l.Close()

	if err := l.Allow("C1", "chat", 10); err != nil {
		t.Fatal(err)
	}
	if err := l.Allow("C1", "chat", 10); err != nil {
		t.Fatal(err)
	}
	if err := l.Allow("C1", "chat", 10); !errors.Is(err, errs.ErrEventRateLimited) {
		t.Fatalf("third in window: got %v, want deny", err)
	}

	clk.Advance(61 * time.Second)
	if err := l.Allow("C1", "chat", 10); err != nil {
		t.Fatalf("after rollover: unexpected deny: %v", err)
	}
}

func TestPerEventOverride(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	l := newTestLimiter(clk,
		EventCap{Window: time.Minute, MaxEvents: 100, MaxMegabytes: 10},
		map[string]EventCap{"location": {MaxEvents: 1}},
	)
	defer l.Close()

	if err := l.Allow("C1", "location", 10); err != nil {
		t.Fatal(err)
	}
	if err := l.Allow("C1", "location", 10); !errors.Is(err, errs.ErrEventRateLimited) {
		t.Fatalf("override cap ignored: %v", err)
	}
	// Default still applies to other events.
	if err := l.Allow("C1", "chat", 10); err != nil {
		t.Fatal(err)
	}
}

func TestRemoveConnDropsAllWindows(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	l := newTestLimiter(clk, EventCap{Window: time.Minute, MaxEvents: 10, MaxMegabytes: 1}, nil)
	defer l.Close()

	l.Allow("C1", "chat", 1)
	l.Allow("C1", "typing", 1)
	l.Allow("C2", "chat", 1)

	l.RemoveConn("C1")
	if got := l.windowCount(); got != 1 {
		t.Fatalf("windowCount() = %d, want 1 (only C2 left)", got)
	}
}

func TestSweepEvictsIdleWindows(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	l := NewEventLimiter(EventConf{
		Default:   EventCap{Window: time.Minute, MaxEvents: 10, MaxMegabytes: 1},
		IdleAfter: 30 * time.Minute,
		Clock:     clk.Now,
	})
	defer l.Close()

	l.Allow("C1", "chat", 1)
	l.Allow("C2", "chat", 1)

	// Window expired but not yet idle: sweep keeps it.
	clk.Advance(10 * time.Minute)
	if n := l.sweepOnce(clk.Now()); n != 0 {
		t.Fatalf("sweep evicted %d fresh windows", n)
	}

	// C2 stays active; C1 goes idle past the threshold.
	l.Allow("C2", "chat", 1)
	clk.Advance(25 * time.Minute)
	if n := l.sweepOnce(clk.Now()); n != 1 {
		t.Fatalf("sweep evicted %d windows, want 1", n)
	}
	if got := l.windowCount(); got != 1 {
		t.Fatalf("windowCount() = %d, want 1", got)
	}
}
