package keymutex

import (
	"sync"
	"testing"
)

func TestKeyMutex_SerializesSameKey(t *testing.T) {
	km := New()

	const iterations = 1000
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				km.Lock("claim-1")
				counter++
				km.Unlock("claim-1")
			}
		}()
	}
	wg.Wait()

	if counter != 8*iterations {
		t.Errorf("expected %d increments, got %d", 8*iterations, counter)
	}
}

func TestKeyMutex_IndependentKeys(t *testing.T) {
	km := New()

	km.Lock("claim-1")
	done := make(chan struct{})
	go func() {
		km.Lock("claim-2") // must not block on claim-1's mutex
		km.Unlock("claim-2")
		close(done)
	}()
	<-done
	km.Unlock("claim-1")
}
