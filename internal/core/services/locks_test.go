package services

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIngestLocks_SerialisesUnit(t *testing.T) {
	locks := NewIngestLocks()

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := locks.Unit("alice", "unit-1")
			defer release()

			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive)
	units, owners := locks.size()
	assert.Zero(t, units)
	assert.Zero(t, owners)
}

func TestIngestLocks_DifferentUnitsRunTogether(t *testing.T) {
	locks := NewIngestLocks()

	releaseA := locks.Unit("alice", "a")
	done := make(chan struct{})
	go func() {
		release := locks.Unit("alice", "b")
		release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("unit b blocked behind unit a")
	}
	releaseA()
}

func TestIngestLocks_OwnerWaitsForIngestion(t *testing.T) {
	locks := NewIngestLocks()

	releaseUnit := locks.Unit("alice", "a")

	purged := make(chan struct{})
	go func() {
		release := locks.Owner("alice")
		close(purged)
		release()
	}()

	select {
	case <-purged:
		t.Fatal("purge ran while ingestion held the owner gate")
	case <-time.After(20 * time.Millisecond):
	}

	releaseUnit()
	select {
	case <-purged:
	case <-time.After(time.Second):
		t.Fatal("purge never ran")
	}
}

func TestIngestLocks_OwnerDoesNotBlockOtherOwners(t *testing.T) {
	locks := NewIngestLocks()

	release := locks.Owner("alice")
	defer release()

	done := make(chan struct{})
	go func() {
		locks.Unit("bob", "b")()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("bob blocked by alice's purge")
	}
}
