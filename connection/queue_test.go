package connection

import (
	"slices"
	"testing"
)

func TestQueue_FIFO(t *testing.T) {
	q := newQueue[int](0)
	for i := 1; i <= 5; i++ {
		if !q.Push(i) {
			t.Fatalf("Push(%d) refused", i)
		}
	}
	if q.Len() != 5 {
		t.Errorf("Len = %d, want 5", q.Len())
	}
	got := q.Drain()
	if !slices.Equal(got, []int{1, 2, 3, 4, 5}) {
		t.Errorf("Drain = %v, want [1 2 3 4 5]", got)
	}
	if q.Len() != 0 {
		t.Errorf("Len after drain = %d, want 0", q.Len())
	}
	if got := q.Drain(); got != nil {
		t.Errorf("Drain on empty = %v, want nil", got)
	}
}

func TestQueue_Limit(t *testing.T) {
	q := newQueue[int](3)
	for i := 0; i < 3; i++ {
		if !q.Push(i) {
			t.Fatalf("Push(%d) refused below limit", i)
		}
	}
	if q.Push(3) {
		t.Error("Push beyond limit accepted")
	}
	if q.Len() != 3 {
		t.Errorf("Len = %d, want 3", q.Len())
	}

	// Draining makes room again.
	q.Drain()
	if !q.Push(4) {
		t.Error("Push refused after drain")
	}
}

func TestQueue_Reset(t *testing.T) {
	q := newQueue[string](0)
	q.Push("a")
	q.Push("b")
	q.Reset()
	if q.Len() != 0 {
		t.Errorf("Len after reset = %d, want 0", q.Len())
	}
	if got := q.Drain(); got != nil {
		t.Errorf("Drain after reset = %v, want nil", got)
	}
}
