package clearing

import (
	"main/internal/pricing"
	"main/internal/schema"
	"main/pkg/exception"
)

// Config defines short-supply and squeeze tunables.
type Config struct {
	// ShortCapFraction bounds aggregate short interest as a fraction of
	// a topic's total shares (0.2 = 20%).
	ShortCapFraction float64 `json:"shortCapFraction"`
	// SqueezeMultiplier widens the per-cycle price clamp for a window
	// whose buy-to-cover demand exceeds freely available shares.
	SqueezeMultiplier float64 `json:"squeezeMultiplier"`
	// MaxMovePct mirrors the pricing clamp; the squeeze bound is
	// MaxMovePct*SqueezeMultiplier around the pre-cycle price.
	MaxMovePct float64 `json:"maxMovePct"`
}

// DefaultConfig returns the clearing defaults.
func DefaultConfig() Config {
	return Config{
		ShortCapFraction:  0.2,
		SqueezeMultiplier: 2,
		MaxMovePct:        0.25,
	}
}

// Input is the immutable captured state for one window. Orders are
// exclusively owned by the engine for the duration of the call.
type Input struct {
	Topic  schema.TopicID
	Seq    uint64
	Orders []*schema.Order

	ReferencePrice float64
	RawPrice       float64
	PrevPrice      float64

	TotalShares         int64
	AvailableShares     int64
	BorrowedOutstanding int64

	// Positions holds the signed position of every order owner,
	// read once at window start.
	Positions map[string]int64
}

// Result is the outcome of clearing one window.
type Result struct {
	Topic         schema.TopicID
	Seq           uint64
	ClearingPrice float64
	Matched       int64
	PoolIssued    int64
	ShortBorrowed int64
	Squeezed      bool
	Fills         []schema.Fill

	// CarryOver are non-terminal orders re-queued into the next window:
	// unmarketable limits, zero fills and partial remainders. Populated
	// by Commit.
	CarryOver []*schema.Order

	allocs []alloc
}

type alloc struct {
	order *schema.Order
	qty   int64
}

// Engine computes uniform-price batch clears. It is pure: all mutable
// market state arrives in the Input and leaves in the Result.
type Engine struct {
	cfg Config
}

// NewEngine creates a clearing engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// ShortCapacity returns the remaining short-sale capacity for a topic.
func (e *Engine) ShortCapacity(totalShares, borrowedOutstanding int64) int64 {
	limit := int64(e.cfg.ShortCapFraction * float64(totalShares))
	remaining := limit - borrowedOutstanding
	if remaining < 0 {
		return 0
	}
	return remaining
}

type entry struct {
	order *schema.Order
	qty   int64 // effective quantity after per-owner and capacity caps
}

// Clear computes the uniform clearing price and fill allocations for
// one captured order set. It mutates nothing: the caller settles the
// result first and then applies it to the orders with Commit.
func (e *Engine) Clear(in Input) (Result, error) {
	res := Result{Topic: in.Topic, Seq: in.Seq, ClearingPrice: in.ReferencePrice}

	buys, sells, shorts, rest := cohorts(in.Orders, res.ClearingPrice)

	// A cover-demand overhang moves the whole window's price, so limit
	// eligibility is decided again at the extended price: buy limits
	// below it drop out, sell limits up to it come in.
	if coverDemand(buys, in.Positions) > in.AvailableShares {
		res.Squeezed = true
		res.ClearingPrice = pricing.SqueezePrice(in.RawPrice, in.PrevPrice, e.cfg.MaxMovePct, e.cfg.SqueezeMultiplier)
		buys, sells, shorts, rest = cohorts(in.Orders, res.ClearingPrice)
	}
	for _, o := range rest {
		res.allocs = append(res.allocs, alloc{order: o})
	}

	capSellsToHoldings(sells, in.Positions)
	capShorts(shorts, e.ShortCapacity(in.TotalShares, in.BorrowedOutstanding))

	var demand int64
	for _, b := range buys {
		demand += b.qty
	}
	var orderSupply int64
	sellSide := make([]entry, 0, len(sells)+len(shorts))
	sellSide = append(sellSide, sells...)
	sellSide = append(sellSide, shorts...)
	for _, s := range sellSide {
		orderSupply += s.qty
	}
	supply := orderSupply + in.AvailableShares

	matched := demand
	if supply < matched {
		matched = supply
	}
	res.Matched = matched

	buyAlloc := ration(quantities(buys), matched)

	orderTarget := matched
	if orderSupply < orderTarget {
		orderTarget = orderSupply
	}
	sellAlloc := ration(quantities(sellSide), orderTarget)
	res.PoolIssued = matched - orderTarget

	if err := e.verify(in, buys, sellSide, buyAlloc, sellAlloc, res.PoolIssued); err != nil {
		return Result{}, err
	}

	for i, b := range buys {
		e.recordFill(&res, b.order, buyAlloc[i])
	}
	for i, s := range sellSide {
		if s.order.Side == schema.OrderSideShort {
			res.ShortBorrowed += sellAlloc[i]
		}
		e.recordFill(&res, s.order, sellAlloc[i])
	}
	return res, nil
}

// recordFill stages one order's allocation. Zero allocations stage a
// bare carry-over.
func (e *Engine) recordFill(res *Result, o *schema.Order, qty int64) {
	res.allocs = append(res.allocs, alloc{order: o, qty: qty})
	if qty > 0 {
		res.Fills = append(res.Fills, schema.Fill{
			OrderID: o.ID,
			Owner:   o.Owner,
			TopicID: o.TopicID,
			Side:    o.Side,
			Qty:     qty,
			Price:   res.ClearingPrice,
		})
	}
}

// Commit applies the staged allocations to the orders and builds the
// carry-over set. Run only after the result settled successfully; a
// result is committed at most once.
func (e *Engine) Commit(res *Result) {
	for _, a := range res.allocs {
		o := a.order
		if a.qty > 0 {
			prevNotional := o.AvgFillPrice * float64(o.FilledQty)
			o.FilledQty += a.qty
			o.AvgFillPrice = (prevNotional + res.ClearingPrice*float64(a.qty)) / float64(o.FilledQty)
			if o.FilledQty >= o.Qty {
				o.Status = schema.OrderStatusFilled
			} else {
				o.Status = schema.OrderStatusPartFilled
			}
		}
		if !o.Status.Terminal() {
			res.CarryOver = append(res.CarryOver, o)
		}
	}
	res.allocs = nil
}

// verify checks the window's conservation invariants before any order
// is mutated. A violation aborts the window.
func (e *Engine) verify(in Input, buys, sellSide []entry, buyAlloc, sellAlloc []int64, poolIssued int64) error {
	var bought, sold int64
	for i, b := range buys {
		if buyAlloc[i] > b.order.Remaining() {
			return exception.ErrClearingOverAllocated
		}
		bought += buyAlloc[i]
	}
	var shorted int64
	for i, s := range sellSide {
		if sellAlloc[i] > s.order.Remaining() {
			return exception.ErrClearingOverAllocated
		}
		sold += sellAlloc[i]
		if s.order.Side == schema.OrderSideShort {
			shorted += sellAlloc[i]
		}
	}
	if poolIssued < 0 || poolIssued > in.AvailableShares {
		return exception.ErrClearingPoolExceeded
	}
	if bought != sold+poolIssued {
		return exception.ErrClearingConservation
	}
	if shorted > e.ShortCapacity(in.TotalShares, in.BorrowedOutstanding) {
		return exception.ErrClearingShortCapacity
	}
	return nil
}

// cohorts splits the live orders into side cohorts marketable at price;
// the remainder carries over untouched.
func cohorts(orders []*schema.Order, price float64) (buys, sells, shorts []entry, rest []*schema.Order) {
	for _, o := range orders {
		if o == nil || o.Status.Terminal() || o.Remaining() <= 0 {
			continue
		}
		if !marketable(o, price) {
			rest = append(rest, o)
			continue
		}
		ent := entry{order: o, qty: o.Remaining()}
		switch o.Side {
		case schema.OrderSideBuy:
			buys = append(buys, ent)
		case schema.OrderSideSell:
			sells = append(sells, ent)
		case schema.OrderSideShort:
			shorts = append(shorts, ent)
		}
	}
	return buys, sells, shorts, rest
}

func marketable(o *schema.Order, ref float64) bool {
	if o.Type != schema.OrderTypeLimit {
		return true
	}
	switch o.Side {
	case schema.OrderSideBuy:
		return o.LimitPrice >= ref
	case schema.OrderSideSell, schema.OrderSideShort:
		return o.LimitPrice <= ref
	default:
		return false
	}
}

// capSellsToHoldings bounds each owner's sell quantity to their current
// long position, pro-rata across that owner's sell orders. This is the
// settlement-time counterpart of the optimistic intake check.
func capSellsToHoldings(sells []entry, positions map[string]int64) {
	byOwner := make(map[string][]int)
	for i, s := range sells {
		byOwner[s.order.Owner] = append(byOwner[s.order.Owner], i)
	}
	for owner, idxs := range byOwner {
		long := positions[owner]
		if long < 0 {
			long = 0
		}
		var total int64
		demands := make([]int64, len(idxs))
		for j, i := range idxs {
			demands[j] = sells[i].qty
			total += sells[i].qty
		}
		if total <= long {
			continue
		}
		alloc := ration(demands, long)
		for j, i := range idxs {
			sells[i].qty = alloc[j]
		}
	}
}

// capShorts rations short quantities down to the remaining borrow
// capacity, never exceeding it.
func capShorts(shorts []entry, capacity int64) {
	var total int64
	for _, s := range shorts {
		total += s.qty
	}
	if total <= capacity {
		return
	}
	alloc := ration(quantities(shorts), capacity)
	for i := range shorts {
		shorts[i].qty = alloc[i]
	}
}

// coverDemand sums buy quantity that must cover existing short
// positions, per owner, bounded by the short's magnitude.
func coverDemand(buys []entry, positions map[string]int64) int64 {
	buyByOwner := make(map[string]int64)
	for _, b := range buys {
		buyByOwner[b.order.Owner] += b.qty
	}
	var total int64
	for owner, qty := range buyByOwner {
		pos := positions[owner]
		if pos >= 0 {
			continue
		}
		short := -pos
		if qty < short {
			total += qty
		} else {
			total += short
		}
	}
	return total
}

func quantities(entries []entry) []int64 {
	out := make([]int64, len(entries))
	for i, e := range entries {
		out[i] = e.qty
	}
	return out
}
