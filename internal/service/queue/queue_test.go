package queue

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

func TestQueue_FIFOAndDrainOnClose(t *testing.T) {
	q := New[int](10, Block, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := q.Put(ctx, i); err != nil {
			t.Fatalf("Put(%d) failed: %v", i, err)
		}
	}
	q.Close()

	var got []int
	for item := range q.Items() {
		got = append(got, item)
	}

	if !reflect.DeepEqual(got, []int{0, 1, 2, 3, 4}) {
		t.Errorf("drained %v, expected every item in order", got)
	}
}

func TestQueue_PutAfterClose(t *testing.T) {
	q := New[string](1, Block, nil)
	q.Close()
	q.Close()

	if err := q.Put(context.Background(), "late"); !errors.Is(err, ErrClosed) {
		t.Errorf("Put after Close = %v, expected ErrClosed", err)
	}
}

func TestQueue_BlockHonoursContext(t *testing.T) {
	q := New[int](1, Block, nil)
	if err := q.Put(context.Background(), 1); err != nil {
		t.Fatalf("first Put failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := q.Put(ctx, 2); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Put on full queue = %v, expected deadline exceeded", err)
	}
	if q.Len() != 1 {
		t.Errorf("Len = %d, expected 1", q.Len())
	}
}

func TestQueue_DropOldest(t *testing.T) {
	var mu sync.Mutex
	var evicted []int
	q := New[int](2, DropOldest, func(i int) {
		mu.Lock()
		evicted = append(evicted, i)
		mu.Unlock()
	})

	for i := 1; i <= 5; i++ {
		if err := q.Put(context.Background(), i); err != nil {
			t.Fatalf("Put(%d) failed: %v", i, err)
		}
	}
	q.Close()

	var kept []int
	for item := range q.Items() {
		kept = append(kept, item)
	}

	if !reflect.DeepEqual(kept, []int{4, 5}) {
		t.Errorf("kept %v, expected the two newest items", kept)
	}
	if !reflect.DeepEqual(evicted, []int{1, 2, 3}) {
		t.Errorf("evicted %v, expected the three oldest items", evicted)
	}
	if q.Dropped() != 3 {
		t.Errorf("Dropped = %d, expected 3", q.Dropped())
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		name     string
		expected Policy
		wantErr  bool
	}{
		{"block", Block, false},
		{"", Block, false},
		{"drop-oldest", DropOldest, false},
		{"drop-newest", Block, true},
	}

	for _, tt := range tests {
		got, err := ParsePolicy(tt.name)
		if (err != nil) != tt.wantErr || got != tt.expected {
			t.Errorf("ParsePolicy(%q) = %v, %v", tt.name, got, err)
		}
	}
}
