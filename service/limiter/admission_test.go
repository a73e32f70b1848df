package limiter

import (
	"errors"
	"testing"
	"time"

	"AmoraGateway/tools/errs"
)

func TestAdmissionCapWithinWindow(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	a := NewAdmission(AdmissionConf{Window: time.Minute, Cap: 3, Clock: clk.Now})

	for i := 1; i <= 3; i++ {
		if err := a.Admit("U1"); err != nil {
			t.Fatalf("attempt %d: unexpected deny: %v", i, err)
		}
	}
	err := a.Admit("U1")
	if !errors.Is(err, errs.ErrAdmissionDenied) {
		t.Fatalf("attempt 4: got %v, want ErrAdmissionDenied", err)
	}

	// Other identities are unaffected.
	if err := a.Admit("U2"); err != nil {
		t.Fatalf("other identity denied: %v", err)
	}
}

func TestAdmissionWindowRollover(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	a := NewAdmission(AdmissionConf{Window: time.Minute, Cap: 2, Clock: clk.Now})

	a.Admit("U1")
	a.Admit("U1")
	if err := a.Admit("U1"); !errors.Is(err, errs.ErrAdmissionDenied) {
		t.Fatalf("over cap: got %v, want deny", err)
	}

	clk.Advance(61 * time.Second)
	if err := a.Admit("U1"); err != nil {
		t.Fatalf("after rollover: unexpected deny: %v", err)
	}
}

func TestAdmissionReleaseFreesSlot(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	a := NewAdmission(AdmissionConf{Window: time.Minute, Cap: 2, Clock: clk.Now})

	a.Admit("U1")
	a.Admit("U1")
	a.Release("U1")
	if err := a.Admit("U1"); err != nil {
		t.Fatalf("slot not freed by release: %v", err)
	}
	if err := a.Admit("U1"); !errors.Is(err, errs.ErrAdmissionDenied) {
		t.Fatalf("cap missing after refill: %v", err)
	}
}

func TestAdmissionReleaseFloorsAtZero(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	a := NewAdmission(AdmissionConf{Window: time.Minute, Cap: 2, Clock: clk.Now})

	// Releases without admits, and after rollover, must not go negative
	// or resurrect an expired window.
	a.Release("U1")
	a.Admit("U1")
	clk.Advance(2 * time.Minute)
	a.Release("U1")

	for i := 0; i < 2; i++ {
		if err := a.Admit("U1"); err != nil {
			t.Fatalf("admit %d after rollover: %v", i, err)
		}
	}
	if err := a.Admit("U1"); !errors.Is(err, errs.ErrAdmissionDenied) {
		t.Fatalf("cap not enforced: %v", err)
	}
}
