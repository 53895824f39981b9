package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"flowcore/pkg/domain"
)

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	km := NewKeyedMutex()
	unlock := km.Lock("job/1")

	acquired := make(chan struct{})
	go func() {
		release := km.Lock("job/1")
		close(acquired)
		release()
	}()
	other := km.Lock("job/2")
	other()

	select {
	case <-acquired:
		t.Fatalf("second holder acquired a held key")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("waiter never acquired the key")
	}
	deadline := time.Now().Add(time.Second)
	for km.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if km.Len() != 0 {
		t.Fatalf("entries leaked: %d", km.Len())
	}
}

func TestConcurrentWritesOnOneEntity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, &domain.Scenario{Base: domain.Base{ID: "SCENARIO_1"}})

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handle := &domain.Scenario{Base: domain.Base{ID: "SCENARIO_1"}}
			errs <- SetProperty(ctx, f.r, handle, fmt.Sprintf("k%02d", i), i)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	got := f.canonical(t, domain.KindScenario, "SCENARIO_1").Props()
	if len(got.Keys()) != writers {
		t.Fatalf("lost updates: %d keys persisted, want %d", len(got.Keys()), writers)
	}
	if n := f.repos[domain.KindScenario].setCount(); n != writers {
		t.Fatalf("sets = %d, want %d", n, writers)
	}
}
