package coordinator

import (
	"context"
	"errors"
	"testing"

	"github.com/fixflow/fixflow/internal/domain"
)

func noopHandler(ctx context.Context, inv Invocation) error { return nil }

func TestRegistryRegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	key := HandlerKey{Agent: "AUDITOR", Command: "scan"}

	if err := r.Register(key, noopHandler); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	h, err := r.Resolve(key)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if h == nil {
		t.Fatal("Resolve returned nil handler")
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	key := HandlerKey{Agent: "AUDITOR", Command: "scan"}

	if err := r.Register(key, noopHandler); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(key, noopHandler); !errors.Is(err, domain.ErrDuplicateHandler) {
		t.Errorf("second Register = %v, want ErrDuplicateHandler", err)
	}
}

func TestRegistryUnknownPair(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(HandlerKey{Agent: "AUDITOR", Command: "scan"}, noopHandler); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// Same agent, unknown command: key matching is exact, never a fallthrough.
	if _, err := r.Resolve(HandlerKey{Agent: "AUDITOR", Command: "fix"}); !errors.Is(err, domain.ErrUnknownHandler) {
		t.Errorf("Resolve = %v, want ErrUnknownHandler", err)
	}
}

func TestRegistryListSorted(t *testing.T) {
	r := NewRegistry()
	keys := []HandlerKey{
		{Agent: "EXECUTOR", Command: "fix"},
		{Agent: "AUDITOR", Command: "test"},
		{Agent: "AUDITOR", Command: "scan"},
	}
	for _, k := range keys {
		if err := r.Register(k, noopHandler); err != nil {
			t.Fatalf("Register(%v) failed: %v", k, err)
		}
	}

	got := r.List()
	want := []HandlerKey{
		{Agent: "AUDITOR", Command: "scan"},
		{Agent: "AUDITOR", Command: "test"},
		{Agent: "EXECUTOR", Command: "fix"},
	}
	if len(got) != len(want) {
		t.Fatalf("List = %d keys, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestOverlap(t *testing.T) {
	if path, ok := Overlap([]string{"a.go", "b.go"}, []string{"c.go", "b.go"}); !ok || path != "b.go" {
		t.Errorf("Overlap = %q, %v; want b.go, true", path, ok)
	}
	if _, ok := Overlap([]string{"a.go"}, []string{"b.go"}); ok {
		t.Error("disjoint sets reported an overlap")
	}
	if _, ok := Overlap(nil, nil); ok {
		t.Error("empty sets reported an overlap")
	}
}
