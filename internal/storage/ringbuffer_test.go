package storage

import (
	"reflect"
	"sync"
	"testing"
)

func TestRingBuffer_AddAndGetAll(t *testing.T) {
	rb := NewRingBuffer[int](3)
	if got := rb.GetAll(); got != nil {
		t.Errorf("empty buffer GetAll = %v, want nil", got)
	}

	rb.Add(1)
	rb.Add(2)
	if got := rb.GetAll(); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Errorf("GetAll = %v", got)
	}

	// Wrap: 1 is evicted.
	rb.Add(3)
	rb.Add(4)
	if got := rb.GetAll(); !reflect.DeepEqual(got, []int{2, 3, 4}) {
		t.Errorf("GetAll after wrap = %v", got)
	}
	if rb.Size() != 3 {
		t.Errorf("Size = %d", rb.Size())
	}
}

func TestRingBuffer_GetRecent(t *testing.T) {
	rb := NewRingBuffer[int](5)
	for i := 1; i <= 4; i++ {
		rb.Add(i)
	}
	if got := rb.GetRecent(2); !reflect.DeepEqual(got, []int{3, 4}) {
		t.Errorf("GetRecent(2) = %v", got)
	}
	if got := rb.GetRecent(10); !reflect.DeepEqual(got, []int{1, 2, 3, 4}) {
		t.Errorf("GetRecent(10) = %v", got)
	}
}

func TestRingBuffer_AbsolutePositionsSurviveWrap(t *testing.T) {
	rb := NewRingBuffer[int](3)
	for i := 0; i < 10; i++ {
		rb.Add(i)
	}
	// 10 items added; positions 7..9 retained.
	if pos := rb.CurrentPosition(); pos != 10 {
		t.Errorf("CurrentPosition = %d, want 10", pos)
	}
	if got := rb.GetRange(8, 9); !reflect.DeepEqual(got, []int{8, 9}) {
		t.Errorf("GetRange(8,9) = %v", got)
	}
	// Requests reaching back before the oldest retained item clamp.
	if got := rb.GetRange(0, 9); !reflect.DeepEqual(got, []int{7, 8, 9}) {
		t.Errorf("GetRange(0,9) = %v", got)
	}
	if got := rb.GetRange(10, 20); got != nil {
		t.Errorf("GetRange past head = %v, want nil", got)
	}
}

func TestRingBuffer_ClearKeepsPositionsMonotonic(t *testing.T) {
	rb := NewRingBuffer[string](4)
	rb.Add("a")
	rb.Add("b")
	before := rb.CurrentPosition()

	rb.Clear()
	if rb.Size() != 0 {
		t.Errorf("Size after clear = %d", rb.Size())
	}
	if got := rb.GetAll(); got != nil {
		t.Errorf("GetAll after clear = %v", got)
	}
	if rb.CurrentPosition() < before {
		t.Error("positions went backwards after Clear")
	}

	rb.Add("c")
	if got := rb.GetAll(); !reflect.DeepEqual(got, []string{"c"}) {
		t.Errorf("GetAll after clear+add = %v", got)
	}
	// Pre-clear positions stay evicted.
	if got := rb.GetRange(0, rb.CurrentPosition()-1); !reflect.DeepEqual(got, []string{"c"}) {
		t.Errorf("GetRange spanning clear = %v", got)
	}
}

func TestRingBuffer_ZeroCapacityPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for zero capacity")
		}
	}()
	NewRingBuffer[int](0)
}

func TestRingBuffer_ConcurrentAdds(t *testing.T) {
	rb := NewRingBuffer[int](128)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				rb.Add(i)
				rb.GetRecent(10)
			}
		}()
	}
	wg.Wait()
	if pos := rb.CurrentPosition(); pos != 800 {
		t.Errorf("CurrentPosition = %d, want 800", pos)
	}
}
