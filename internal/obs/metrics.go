package obs

import (
	"math"
	"sync/atomic"
)

// Metrics holds engine-wide counters. All fields are updated with
// atomics; reads are lock-free and approximate across fields.
type Metrics struct {
	OrdersAccepted  uint64
	OrdersRejected  uint64
	OrdersCancelled uint64

	WindowsSettled uint64
	WindowsFailed  uint64
	FillsApplied   uint64
	SharesMatched  uint64

	MentionsIngested uint64
	MentionsIgnored  uint64
	PricingCycles    uint64
	Squeezes         uint64

	EventsDropped uint64

	ClearLatency LatencyStats
}

var global Metrics

// Global returns the process-wide metrics instance.
func Global() *Metrics { return &global }

func (m *Metrics) IncOrdersAccepted()  { atomic.AddUint64(&m.OrdersAccepted, 1) }
func (m *Metrics) IncOrdersRejected()  { atomic.AddUint64(&m.OrdersRejected, 1) }
func (m *Metrics) IncOrdersCancelled() { atomic.AddUint64(&m.OrdersCancelled, 1) }

func (m *Metrics) IncWindowsSettled() { atomic.AddUint64(&m.WindowsSettled, 1) }
func (m *Metrics) IncWindowsFailed()  { atomic.AddUint64(&m.WindowsFailed, 1) }

func (m *Metrics) AddFills(n int) { atomic.AddUint64(&m.FillsApplied, uint64(n)) }

func (m *Metrics) AddSharesMatched(n int64) {
	if n > 0 {
		atomic.AddUint64(&m.SharesMatched, uint64(n))
	}
}

func (m *Metrics) IncMentionsIngested() { atomic.AddUint64(&m.MentionsIngested, 1) }
func (m *Metrics) IncMentionsIgnored()  { atomic.AddUint64(&m.MentionsIgnored, 1) }
func (m *Metrics) IncPricingCycles()    { atomic.AddUint64(&m.PricingCycles, 1) }
func (m *Metrics) IncSqueezes()         { atomic.AddUint64(&m.Squeezes, 1) }

func (m *Metrics) AddEventsDropped(n uint64) { atomic.AddUint64(&m.EventsDropped, n) }

// Snapshot copies every counter at a single point per field.
func (m *Metrics) Snapshot() MetricsView {
	return MetricsView{
		OrdersAccepted:   atomic.LoadUint64(&m.OrdersAccepted),
		OrdersRejected:   atomic.LoadUint64(&m.OrdersRejected),
		OrdersCancelled:  atomic.LoadUint64(&m.OrdersCancelled),
		WindowsSettled:   atomic.LoadUint64(&m.WindowsSettled),
		WindowsFailed:    atomic.LoadUint64(&m.WindowsFailed),
		FillsApplied:     atomic.LoadUint64(&m.FillsApplied),
		SharesMatched:    atomic.LoadUint64(&m.SharesMatched),
		MentionsIngested: atomic.LoadUint64(&m.MentionsIngested),
		MentionsIgnored:  atomic.LoadUint64(&m.MentionsIgnored),
		PricingCycles:    atomic.LoadUint64(&m.PricingCycles),
		Squeezes:         atomic.LoadUint64(&m.Squeezes),
		EventsDropped:    atomic.LoadUint64(&m.EventsDropped),
		ClearLatency:     m.ClearLatency.View(),
	}
}

// MetricsView is a point-in-time copy for reporting.
type MetricsView struct {
	OrdersAccepted   uint64
	OrdersRejected   uint64
	OrdersCancelled  uint64
	WindowsSettled   uint64
	WindowsFailed    uint64
	FillsApplied     uint64
	SharesMatched    uint64
	MentionsIngested uint64
	MentionsIgnored  uint64
	PricingCycles    uint64
	Squeezes         uint64
	EventsDropped    uint64
	ClearLatency     LatencyView
}

// LatencyStats tracks min/max/sum/count of durations in nanoseconds.
type LatencyStats struct {
	min   int64
	max   int64
	sum   int64
	count int64
}

// Observe records one sample.
func (l *LatencyStats) Observe(ns int64) {
	atomic.AddInt64(&l.sum, ns)
	atomic.AddInt64(&l.count, 1)

	for {
		cur := atomic.LoadInt64(&l.min)
		if cur != 0 && cur <= ns {
			break
		}
		if atomic.CompareAndSwapInt64(&l.min, cur, ns) {
			break
		}
	}
	for {
		cur := atomic.LoadInt64(&l.max)
		if cur >= ns {
			break
		}
		if atomic.CompareAndSwapInt64(&l.max, cur, ns) {
			break
		}
	}
}

// View returns a copy of the stats.
func (l *LatencyStats) View() LatencyView {
	v := LatencyView{
		Min:   atomic.LoadInt64(&l.min),
		Max:   atomic.LoadInt64(&l.max),
		Count: atomic.LoadInt64(&l.count),
	}
	if v.Count > 0 {
		v.Mean = math.Round(float64(atomic.LoadInt64(&l.sum)) / float64(v.Count))
	}
	return v
}

// LatencyView is a point-in-time copy of LatencyStats.
type LatencyView struct {
	Min   int64
	Max   int64
	Mean  float64
	Count int64
}
