package match

import (
	"context"
	"testing"
)

func TestStaticSymmetry(t *testing.T) {
	s := NewStatic([2]string{"alice", "bob"}, [2]string{"alice", "carol"})

	got, err := s.Matches(context.Background(), "alice")
	if err != nil {
		t.Fatalf("matches: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("alice matches = %v", got)
	}

	got, err = s.Matches(context.Background(), "bob")
	if err != nil {
		t.Fatalf("matches: %v", err)
	}
	if len(got) != 1 || got[0] != "alice" {
		t.Fatalf("bob matches = %v, want [alice]", got)
	}
}

func TestStaticUnknownUserIsEmptyNotError(t *testing.T) {
	s := NewStatic([2]string{"alice", "bob"})
	got, err := s.Matches(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("unknown user errored: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %v, want empty", got)
	}
}
