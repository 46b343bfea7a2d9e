package metrics

import (
	"sync"
	"sync/atomic"
)

// BasicProvider keeps measurements in memory. Instruments are created on
// first request and reused by name.
type BasicProvider struct {
	mu         sync.Mutex
	counters   map[string]*basicCounter
	updowns    map[string]*basicCounter
	histograms map[string]*basicHistogram
}

// NewBasicProvider constructs an empty BasicProvider.
func NewBasicProvider() *BasicProvider {
	return &BasicProvider{
		counters:   make(map[string]*basicCounter),
		updowns:    make(map[string]*basicCounter),
		histograms: make(map[string]*basicHistogram),
	}
}

func (p *BasicProvider) Counter(name string) Counter {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.counters[name]
	if !ok {
		c = &basicCounter{}
		p.counters[name] = c
	}
	return c
}

func (p *BasicProvider) UpDownCounter(name string) UpDownCounter {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.updowns[name]
	if !ok {
		u = &basicCounter{}
		p.updowns[name] = u
	}
	return u
}

func (p *BasicProvider) Histogram(name string) Histogram {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.histograms[name]
	if !ok {
		h = &basicHistogram{}
		p.histograms[name] = h
	}
	return h
}

// CounterValue returns the current value of the named counter, or zero when
// it was never recorded.
func (p *BasicProvider) CounterValue(name string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.counters[name]; ok {
		return c.v.Load()
	}
	return 0
}

// UpDownValue returns the current value of the named up/down counter.
func (p *BasicProvider) UpDownValue(name string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if u, ok := p.updowns[name]; ok {
		return u.v.Load()
	}
	return 0
}

// HistogramStats returns the observation count and sum of the named
// histogram.
func (p *BasicProvider) HistogramStats(name string) (count int64, sum float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.histograms[name]
	if !ok {
		return 0, 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count, h.sum
}

type basicCounter struct {
	v atomic.Int64
}

func (c *basicCounter) Add(n int64) { c.v.Add(n) }

type basicHistogram struct {
	mu    sync.Mutex
	count int64
	sum   float64
}

func (h *basicHistogram) Record(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
}
