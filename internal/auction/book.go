package auction

import (
	"sync"

	"main/internal/schema"
	"main/pkg/exception"
)

// WindowSummary is the retained, read-only record of a finished window.
type WindowSummary struct {
	TopicID       schema.TopicID
	Seq           uint64
	ScheduledAt   int64
	FiredAt       int64
	SettledAt     int64
	State         schema.WindowState
	ClearingPrice float64
	Matched       int64
	FillCount     int
	Squeezed      bool
}

// Book owns one topic's pending-order queue and window state machine.
// The queue swap inside Fire is the single linearization point: an
// append that happens before the swap lands in the fired window, one
// after it lands in the next.
type Book struct {
	mu sync.Mutex

	topic       schema.TopicID
	state       schema.WindowState
	seq         uint64 // window currently accumulating orders
	scheduledAt int64

	pending  []*schema.Order
	inflight map[schema.OrderID]struct{}

	last    *WindowSummary
	history []WindowSummary
}

const historyCap = 64

// NewBook creates a book with its first window scheduled.
func NewBook(topic schema.TopicID) *Book {
	return &Book{
		topic:    topic,
		state:    schema.WindowStateScheduled,
		seq:      1,
		inflight: make(map[schema.OrderID]struct{}),
	}
}

// Append enqueues an order for the window currently accumulating. It
// never blocks on the auction cycle: during clearing the order simply
// joins the next window.
func (b *Book) Append(o *schema.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o.WindowSeq = b.seq
	b.pending = append(b.pending, o)
}

// Cancel cancels a pending order. Orders captured by a window that is
// already clearing cannot be cancelled.
func (b *Book) Cancel(id schema.OrderID, owner string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, o := range b.pending {
		if o.ID != id {
			continue
		}
		if o.Owner != owner {
			return exception.ErrIntakeNotOrderOwner
		}
		if o.Status.Terminal() {
			return exception.ErrAuctionOrderTerminal
		}
		o.Status = schema.OrderStatusCancelled
		b.pending = append(b.pending[:i], b.pending[i+1:]...)
		return nil
	}
	if _, ok := b.inflight[id]; ok {
		return exception.ErrAuctionWindowClearing
	}
	return exception.ErrIntakeUnknownOrder
}

// Fire atomically swaps the pending queue for a fresh one and
// transitions the window to clearing. The returned set is the immutable
// input to the clearing algorithm. Returns false if a window is already
// clearing.
func (b *Book) Fire(now int64) (captured []*schema.Order, seq uint64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == schema.WindowStateClearing {
		return nil, 0, false
	}
	captured = b.pending
	seq = b.seq
	b.pending = nil
	b.seq++
	b.state = schema.WindowStateClearing
	for _, o := range captured {
		b.inflight[o.ID] = struct{}{}
	}
	b.last = &WindowSummary{
		TopicID:     b.topic,
		Seq:         seq,
		ScheduledAt: b.scheduledAt,
		FiredAt:     now,
		State:       schema.WindowStateClearing,
	}
	return captured, seq, true
}

// Settle completes the clearing window and re-queues carried-over
// orders ahead of anything submitted mid-cycle. A settled window is
// immutable afterward.
func (b *Book) Settle(now int64, price float64, matched int64, fillCount int, squeezed bool, carryOver []*schema.Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != schema.WindowStateClearing {
		return exception.ErrAuctionWindowNotFiring
	}
	b.finish(now, schema.WindowStateSettled, price, matched, fillCount, squeezed, carryOver)
	return nil
}

// Fail marks the clearing window failed and carries all captured orders
// forward unmodified into the next window.
func (b *Book) Fail(now int64, captured []*schema.Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != schema.WindowStateClearing {
		return exception.ErrAuctionWindowNotFiring
	}
	b.finish(now, schema.WindowStateFailed, 0, 0, 0, false, captured)
	return nil
}

func (b *Book) finish(now int64, state schema.WindowState, price float64, matched int64, fillCount int, squeezed bool, carryOver []*schema.Order) {
	requeue := make([]*schema.Order, 0, len(carryOver))
	for _, o := range carryOver {
		delete(b.inflight, o.ID)
		if o.Status.Terminal() {
			continue
		}
		o.WindowSeq = b.seq
		requeue = append(requeue, o)
	}
	for id := range b.inflight {
		delete(b.inflight, id)
	}
	b.pending = append(requeue, b.pending...)
	b.state = schema.WindowStateScheduled

	b.last.SettledAt = now
	b.last.State = state
	b.last.ClearingPrice = price
	b.last.Matched = matched
	b.last.FillCount = fillCount
	b.last.Squeezed = squeezed
	b.history = append(b.history, *b.last)
	if len(b.history) > historyCap {
		b.history = b.history[len(b.history)-historyCap:]
	}
}

// SetScheduledAt records when the next window fires.
func (b *Book) SetScheduledAt(ts int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scheduledAt = ts
}

// Status returns the current window state and schedule.
func (b *Book) Status() (schema.WindowState, int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.scheduledAt
}

// Last returns the most recent finished window, if any.
func (b *Book) Last() (WindowSummary, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last == nil || b.last.State == schema.WindowStateClearing {
		var latest WindowSummary
		if n := len(b.history); n > 0 {
			return b.history[n-1], true
		}
		return latest, false
	}
	return *b.last, true
}

// History returns the retained finished windows, oldest first.
func (b *Book) History() []WindowSummary {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]WindowSummary, len(b.history))
	copy(out, b.history)
	return out
}

// PendingCount returns the queued order count, for tests and metrics.
func (b *Book) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
