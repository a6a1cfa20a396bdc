package concurrent

import (
	"reflect"
	"sync"
	"testing"
)

func TestDequeFIFOOrder(t *testing.T) {
	d := NewDeque[int]()
	for i := 1; i <= 5; i++ {
		d.PushBack(i)
	}
	if d.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", d.Len())
	}
	got := d.Snapshot()
	if !reflect.DeepEqual(got, []int{1, 2, 3, 4, 5}) {
		t.Fatalf("Snapshot() = %v", got)
	}
	v, ok := d.PopFront()
	if !ok || v != 1 {
		t.Fatalf("PopFront() = (%d, %v), want (1, true)", v, ok)
	}
}

func TestDequePopFrontKPartial(t *testing.T) {
	d := NewDeque[int]()
	d.PushBack(1)
	d.PushBack(2)
	got := d.PopFrontK(5)
	if !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("PopFrontK(5) = %v, want [1 2]", got)
	}
	if !d.Empty() {
		t.Fatalf("Empty() = false after draining")
	}
}

func TestDequePopFrontOnEmpty(t *testing.T) {
	d := NewDeque[string]()
	if _, ok := d.PopFront(); ok {
		t.Fatalf("PopFront() on empty deque returned ok=true")
	}
	if got := d.PopFrontK(3); got != nil {
		t.Fatalf("PopFrontK(3) on empty deque = %v, want nil", got)
	}
}

func TestDequeClear(t *testing.T) {
	d := NewDeque[int]()
	d.PushBack(1)
	d.PushBack(2)
	d.Clear()
	if !d.Empty() {
		t.Fatalf("Empty() = false after Clear")
	}
}

func TestDequeConcurrentPushBack(t *testing.T) {
	d := NewDeque[int]()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			d.PushBack(v)
		}(i)
	}
	wg.Wait()
	if d.Len() != 100 {
		t.Fatalf("Len() = %d, want 100", d.Len())
	}
}
