package limiter

import (
	"sync"
	"time"

	"AmoraGateway/tools/errs"
)

// AdmissionConf configures the per-identity connection admission
// counter.
type AdmissionConf struct {
	Window time.Duration
	Cap    int
	Clock  func() time.Time
}

func (c *AdmissionConf) norm() {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Window <= 0 {
		c.Window = 60 * time.Second
	}
	if c.Cap <= 0 {
		c.Cap = 3
	}
}

type admissionCounter struct {
	count    int
	expireAt time.Time
}

// Admission bounds connection attempts per external identity with a
// lazy-reset window. It counts windowed attempts and decrements on
// disconnect, which only approximates concurrent sessions: under
// reconnect churn the counter can drift from the number of live
// connections within a window. That drift matches the deployed
// behavior and is kept deliberately.
type Admission struct {
	mu       sync.Mutex
	counters map[string]*admissionCounter
	conf     AdmissionConf
}

func NewAdmission(conf AdmissionConf) *Admission {
	conf.norm()
	return &Admission{
		counters: make(map[string]*admissionCounter),
		conf:     conf,
	}
}

// Admit charges one connection attempt for the identity. A nil return
// admits; errs.ErrAdmissionDenied means the identity exceeded its cap
// within the current window.
func (a *Admission) Admit(externalID string) error {
	now := a.conf.Clock()

	a.mu.Lock()
	defer a.mu.Unlock()

	c, ok := a.counters[externalID]
	if !ok || !now.Before(c.expireAt) {
		a.counters[externalID] = &admissionCounter{count: 1, expireAt: now.Add(a.conf.Window)}
		return nil
	}
	if c.count >= a.conf.Cap {
		return errs.ErrAdmissionDenied
	}
	c.count++
	return nil
}

// Release gives the identity's slot back on disconnect, floored at
// zero. A no-op once the window has rolled over.
func (a *Admission) Release(externalID string) {
	now := a.conf.Clock()

	a.mu.Lock()
	defer a.mu.Unlock()

	c, ok := a.counters[externalID]
	if !ok || !now.Before(c.expireAt) {
		return
	}
	if c.count > 0 {
		c.count--
	}
}
