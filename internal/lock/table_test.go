package lock

import (
	"errors"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"github.com/fixflow/fixflow/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestAcquireAndRelease(t *testing.T) {
	table := NewTable(nil)

	h, err := table.Acquire("EXECUTOR", []string{"a.go", "b.go"})
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if got := table.HeldCount(); got != 2 {
		t.Errorf("HeldCount = %d, want 2", got)
	}
	if holder, ok := table.Holder("a.go"); !ok || holder != "EXECUTOR" {
		t.Errorf("Holder(a.go) = %q, %v; want EXECUTOR, true", holder, ok)
	}

	table.Release(h)
	if got := table.HeldCount(); got != 0 {
		t.Errorf("HeldCount after release = %d, want 0", got)
	}
}

func TestAcquireAllOrNothing(t *testing.T) {
	table := NewTable(nil)

	if _, err := table.Acquire("first", []string{"b.go"}); err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}

	_, err := table.Acquire("second", []string{"a.go", "b.go", "c.go"})
	if err == nil {
		t.Fatal("overlapping Acquire succeeded, want conflict")
	}
	var conflict *domain.LockConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("error type = %T, want LockConflictError", err)
	}
	if conflict.Path != "b.go" || conflict.Holder != "first" {
		t.Errorf("conflict = {%q %q}, want {b.go first}", conflict.Path, conflict.Holder)
	}

	// The partial reservation of a.go must have been rolled back.
	if _, ok := table.Holder("a.go"); ok {
		t.Error("a.go still held after failed acquire")
	}
	if got := table.HeldCount(); got != 1 {
		t.Errorf("HeldCount = %d, want 1", got)
	}
}

func TestAcquireEmptyPathSet(t *testing.T) {
	table := NewTable(nil)

	for _, paths := range [][]string{nil, {}, {""}} {
		if _, err := table.Acquire("agent", paths); !errors.Is(err, domain.ErrEmptyPathSet) {
			t.Errorf("Acquire(%v) error = %v, want ErrEmptyPathSet", paths, err)
		}
	}
}

func TestAcquireDeduplicatesPaths(t *testing.T) {
	table := NewTable(nil)

	h, err := table.Acquire("agent", []string{"a.go", "a.go", "b.go"})
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if got := len(h.Paths()); got != 2 {
		t.Errorf("handle covers %d paths, want 2", got)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	table := NewTable(nil)

	h, err := table.Acquire("agent", []string{"a.go"})
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	table.Release(h)
	table.Release(h)
	table.Release(nil)

	if got := table.HeldCount(); got != 0 {
		t.Errorf("HeldCount = %d, want 0", got)
	}
}

func TestReleaseDoesNotTouchOtherHandles(t *testing.T) {
	table := NewTable(nil)

	h1, err := table.Acquire("first", []string{"a.go"})
	if err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	table.Release(h1)

	h2, err := table.Acquire("second", []string{"a.go"})
	if err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}

	// A stale release from the first handle must not free the second's lock.
	table.Release(h1)
	if holder, ok := table.Holder("a.go"); !ok || holder != "second" {
		t.Errorf("Holder(a.go) = %q, %v; want second, true", holder, ok)
	}
	table.Release(h2)
}

func TestConcurrentOverlappingAcquires(t *testing.T) {
	table := NewTable(nil)
	paths := []string{"a.go", "b.go", "c.go"}

	const workers = 32
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		held int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := table.Acquire("agent", paths)
			if err != nil {
				return
			}
			mu.Lock()
			held++
			if held > 1 {
				t.Error("two handles hold the same paths at once")
			}
			mu.Unlock()

			mu.Lock()
			held--
			mu.Unlock()
			table.Release(h)
		}()
	}
	wg.Wait()

	if got := table.HeldCount(); got != 0 {
		t.Errorf("HeldCount after all releases = %d, want 0", got)
	}
}
