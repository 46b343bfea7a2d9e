package pool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFixed_CreatesLazilyUpToCapacity(t *testing.T) {
	var created atomic.Int32
	p := NewFixed(2, func() any {
		return int(created.Add(1))
	})

	a := p.Get()
	b := p.Get()
	require.EqualValues(t, 2, created.Load())

	p.Put(a)
	p.Put(b)
	p.Get()
	p.Get()
	require.EqualValues(t, 2, created.Load(), "slots are reused, not recreated")
}

func TestFixed_GetBlocksAtCapacity(t *testing.T) {
	p := NewFixed(1, func() any { return struct{}{} })
	s := p.Get()

	acquired := make(chan any)
	go func() { acquired <- p.Get() }()

	select {
	case <-acquired:
		t.Fatal("Get returned while the only slot was held")
	case <-time.After(50 * time.Millisecond):
	}

	p.Put(s)
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("Get did not unblock after Put")
	}
}

func TestFixed_ConcurrentUse(t *testing.T) {
	const capacity = 4
	p := NewFixed(capacity, func() any { return struct{}{} })

	var inUse, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := p.Get()
			n := inUse.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inUse.Add(-1)
			p.Put(s)
		}()
	}
	wg.Wait()
	require.LessOrEqual(t, peak.Load(), int32(capacity))
}

func TestFixed_ZeroCapacityPanics(t *testing.T) {
	require.Panics(t, func() { NewFixed(0, func() any { return nil }) })
}
