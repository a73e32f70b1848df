package registry

import (
	"fmt"
	"sync"
	"testing"
)

func TestRegisterLookupBothSpaces(t *testing.T) {
	t.Parallel()

	r := New[string]()
	r.Register("c1", "ext-1", "int-1")

	if h, ok := r.Lookup("ext-1"); !ok || h != "c1" {
		t.Fatalf("Lookup(ext-1) = %q, %v; want c1, true", h, ok)
	}
	if h, ok := r.Lookup("int-1"); !ok || h != "c1" {
		t.Fatalf("Lookup(int-1) = %q, %v; want c1, true", h, ok)
	}
	if _, ok := r.Lookup("nobody"); ok {
		t.Fatal("Lookup(nobody) should miss")
	}
	if !r.Online("ext-1") {
		t.Fatal("ext-1 should be online")
	}
	if got := r.Count(); got != 1 {
		t.Fatalf("Count() = %d, want 1", got)
	}
	if got := r.EntryCount(); got != 2 {
		t.Fatalf("EntryCount() = %d, want 2", got)
	}
}

func TestDeregisterRoundTrip(t *testing.T) {
	t.Parallel()

	r := New[string]()
	r.Register("c1", "ext-1", "int-1")
	r.Deregister("c1", "ext-1", "int-1")

	if _, ok := r.Lookup("ext-1"); ok {
		t.Fatal("ext-1 entry should be gone")
	}
	if _, ok := r.Lookup("int-1"); ok {
		t.Fatal("int-1 entry should be gone")
	}
	if got := r.EntryCount(); got != 0 {
		t.Fatalf("EntryCount() = %d, want 0", got)
	}
}

func TestReconnectOverwriteKeepsNewerConnection(t *testing.T) {
	t.Parallel()

	r := New[string]()
	r.Register("old", "ext-1", "int-1")
	r.Register("new", "ext-1", "int-1")

	if h, _ := r.Lookup("ext-1"); h != "new" {
		t.Fatalf("Lookup(ext-1) = %q, want new (last write wins)", h)
	}

	// The stale connection's deferred cleanup must not evict the newer
	// registration.
	r.Deregister("old", "ext-1", "int-1")
	if h, ok := r.Lookup("ext-1"); !ok || h != "new" {
		t.Fatalf("stale deregister removed live entry: %q, %v", h, ok)
	}
	r.Deregister("new", "ext-1", "int-1")
	if r.Online("ext-1") {
		t.Fatal("ext-1 should be offline after real deregister")
	}
}

func TestCountDistinctHandles(t *testing.T) {
	t.Parallel()

	r := New[string]()
	for i := 0; i < 5; i++ {
		r.Register(fmt.Sprintf("c%d", i), fmt.Sprintf("ext-%d", i), fmt.Sprintf("int-%d", i))
	}
	if got := r.Count(); got != 5 {
		t.Fatalf("Count() = %d, want 5", got)
	}
	if got := r.EntryCount(); got != 10 {
		t.Fatalf("EntryCount() = %d, want 10", got)
	}
}

func TestConcurrentChurn(t *testing.T) {
	t.Parallel()

	r := New[string]()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ext := fmt.Sprintf("ext-%d", i)
			internal := fmt.Sprintf("int-%d", i)
			for j := 0; j < 100; j++ {
				h := fmt.Sprintf("c-%d-%d", i, j)
				r.Register(h, ext, internal)
				r.Lookup(ext)
				r.Deregister(h, ext, internal)
			}
		}(i)
	}
	wg.Wait()

	if got := r.EntryCount(); got != 0 {
		t.Fatalf("EntryCount() after churn = %d, want 0", got)
	}
}
