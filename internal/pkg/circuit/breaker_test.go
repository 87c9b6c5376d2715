package circuit

import (
	"sync"
	"testing"
)

func TestTripLatchesUntilReset(t *testing.T) {
	b := NewBreaker("orders")
	b.SetStateChangeHandler(func(string, State, State, string) {})
	if b.Active() {
		t.Fatal("new breaker must start INACTIVE")
	}
	if !b.Trip("daily loss exceeds safety limit") {
		t.Fatal("first trip must transition")
	}
	if !b.Active() {
		t.Fatal("breaker must be ACTIVE after trip")
	}
	if b.Trip("second reason") {
		t.Fatal("trip while ACTIVE must be a no-op")
	}
	if got := b.Snapshot().Reason; got != "daily loss exceeds safety limit" {
		t.Fatalf("first trip reason must win, got %q", got)
	}
	if !b.Reset() {
		t.Fatal("reset must transition back")
	}
	if b.Active() {
		t.Fatal("breaker must be INACTIVE after reset")
	}
	if b.Reset() {
		t.Fatal("reset while INACTIVE must be a no-op")
	}
}

func TestConcurrentTripsKeepOneReason(t *testing.T) {
	b := NewBreaker("orders")
	b.SetStateChangeHandler(func(string, State, State, string) {})
	var wg sync.WaitGroup
	var mu sync.Mutex
	transitions := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.Trip("concurrent") {
				mu.Lock()
				transitions++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if transitions != 1 {
		t.Fatalf("expected exactly one transition, got %d", transitions)
	}
	if !b.Active() {
		t.Fatal("breaker must end ACTIVE")
	}
}

func TestSnapshotCarriesTriggerMetadata(t *testing.T) {
	b := NewBreaker("orders")
	b.SetStateChangeHandler(func(string, State, State, string) {})
	b.Trip("max order notional exceeded")
	snap := b.Snapshot()
	if !snap.Active || snap.Reason == "" || snap.TriggeredAt.IsZero() {
		t.Fatalf("snapshot missing trigger metadata: %+v", snap)
	}
}
