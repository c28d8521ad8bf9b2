package concurrency

import (
	"sync"
	"testing"
)

func TestKeyedLockSerializesSameKey(t *testing.T) {
	locks := NewKeyedLock()

	var mu sync.Mutex
	order := []int{}
	inFlight := 0
	maxInFlight := 0

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			locks.Lock("patient-1")
			defer locks.Unlock("patient-1")

			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			order = append(order, n)
			inFlight--
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	if maxInFlight != 1 {
		t.Errorf("expected serialized access for one key, saw %d concurrent holders", maxInFlight)
	}
	if len(order) != 16 {
		t.Errorf("expected 16 completed sections, got %d", len(order))
	}
}

func TestKeyedLockIndependentKeys(t *testing.T) {
	locks := NewKeyedLock()

	locks.Lock("patient-a")
	done := make(chan struct{})
	go func() {
		locks.Lock("patient-b")
		locks.Unlock("patient-b")
		close(done)
	}()

	<-done // must not block on key "patient-a"
	locks.Unlock("patient-a")
}
