package exchange

import (
	"context"
	"math/rand"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/auction"
	"main/internal/bus"
	"main/internal/clearing"
	"main/internal/intake"
	"main/internal/market"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/pricing"
	"main/internal/schema"
	"main/internal/settle"
)

// Recorder receives settled window outcomes for persistence.
type Recorder interface {
	Record(res clearing.Result)
}

// Exchange wires the full auction pipeline: intake, per-topic books,
// the pricing cycle, clearing, settlement and event fan-out. It is the
// auction.Runner the scheduler drives.
type Exchange struct {
	reg       *schema.Registry
	market    *market.State
	settler   *settle.Manager
	pricer    *pricing.Engine
	clearer   *clearing.Engine
	intake    *intake.Service
	books     map[schema.TopicID]*auction.Book
	publisher *bus.Publisher
	scheduler *auction.Scheduler
	clock     auction.Clock
	metrics   *obs.Metrics
	recorder  Recorder

	repriceInterval int64 // unix nanos
}

// Option overrides a default collaborator.
type Option func(*options)

type options struct {
	clock    auction.Clock
	rng      *rand.Rand
	recorder Recorder
	metrics  *obs.Metrics
}

// WithClock injects a clock, for deterministic tests.
func WithClock(clock auction.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithRand injects the jitter source.
func WithRand(rng *rand.Rand) Option {
	return func(o *options) { o.rng = rng }
}

// WithRecorder attaches a window outcome recorder.
func WithRecorder(rec Recorder) Option {
	return func(o *options) { o.recorder = rec }
}

// WithMetrics injects the metrics instance.
func WithMetrics(m *obs.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// New builds an exchange from resolved configuration.
func New(cfg ops.Loaded, opts ...Option) *Exchange {
	o := options{
		clock:   auction.NewRealClock(),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		metrics: obs.Global(),
	}
	for _, apply := range opts {
		apply(&o)
	}

	st := market.NewState(cfg.Registry)
	settler := settle.NewManager(cfg.Settle)

	books := make(map[schema.TopicID]*auction.Book, cfg.Registry.TopicCount())
	for i := 0; i < cfg.Registry.TopicCount(); i++ {
		topic, _ := cfg.Registry.TopicAt(i)
		books[topic.ID] = auction.NewBook(topic.ID)
		settler.Seed(topic.ID, topic.TotalShares)
	}

	clearer := clearing.NewEngine(cfg.Clearing)
	ex := &Exchange{
		reg:             cfg.Registry,
		market:          st,
		settler:         settler,
		pricer:          pricing.NewEngine(cfg.Pricing),
		clearer:         clearer,
		intake:          intake.NewService(st, settler, books, o.clock, clearer, o.metrics),
		books:           books,
		publisher:       bus.NewPublisher(cfg.BusBuffer),
		clock:           o.clock,
		metrics:         o.metrics,
		recorder:        o.recorder,
		repriceInterval: cfg.RepriceInterval.Nanoseconds(),
	}
	ex.scheduler = auction.NewScheduler(cfg.Auction, o.clock, ex, books, o.rng)
	return ex
}

// Start launches the per-topic auction loops.
func (ex *Exchange) Start(ctx context.Context) {
	ex.scheduler.Start(ctx)
}

// Stop halts scheduling and closes the event bus. In-flight windows
// finish first.
func (ex *Exchange) Stop() {
	ex.scheduler.Stop()
	ex.metrics.AddEventsDropped(ex.publisher.Dropped())
	ex.publisher.Close()
}

// SubmitOrder validates and queues an order for its topic's next
// window.
func (ex *Exchange) SubmitOrder(req intake.Request) (*schema.Order, error) {
	return ex.intake.Submit(req)
}

// CancelOrder cancels a pending order owned by the caller.
func (ex *Exchange) CancelOrder(id schema.OrderID, owner string) error {
	return ex.intake.Cancel(id, owner)
}

// OrderStatus returns a copy of the order's current state.
func (ex *Exchange) OrderStatus(id schema.OrderID) (schema.Order, bool) {
	return ex.intake.Order(id)
}

// IngestMentions records an attention sample for a topic.
func (ex *Exchange) IngestMentions(id schema.TopicID, count int64, ts int64) error {
	accepted, err := ex.market.IngestMentions(id, count, ts)
	if err != nil {
		return err
	}
	if accepted {
		ex.metrics.IncMentionsIngested()
	} else {
		ex.metrics.IncMentionsIgnored()
	}
	return nil
}

// MarketSnapshot returns views of all topics sorted by ticker.
func (ex *Exchange) MarketSnapshot() []market.TopicView {
	return ex.market.Snapshot()
}

// TopicView returns one topic's market view.
func (ex *Exchange) TopicView(id schema.TopicID) (market.TopicView, bool) {
	return ex.market.View(id)
}

// AuctionStatus returns the topic's window state, next fire time and
// last finished window.
func (ex *Exchange) AuctionStatus(id schema.TopicID) (schema.WindowState, int64, auction.WindowSummary, bool) {
	book := ex.books[id]
	if book == nil {
		return schema.WindowStateUnknown, 0, auction.WindowSummary{}, false
	}
	state, scheduledAt := book.Status()
	last, _ := book.Last()
	return state, scheduledAt, last, true
}

// WindowHistory returns the retained finished windows for a topic.
func (ex *Exchange) WindowHistory(id schema.TopicID) []auction.WindowSummary {
	book := ex.books[id]
	if book == nil {
		return nil
	}
	return book.History()
}

// Subscribe registers for a topic's price and settlement events.
func (ex *Exchange) Subscribe(id schema.TopicID) (<-chan schema.Event, func()) {
	return ex.publisher.Subscribe(id)
}

// Settler exposes account and position queries.
func (ex *Exchange) Settler() *settle.Manager {
	return ex.settler
}

// RunWindow executes one full auction window for a topic: queue swap,
// pricing cycle when due, clear, settle, publish.
func (ex *Exchange) RunWindow(id schema.TopicID) {
	book := ex.books[id]
	if book == nil {
		return
	}
	now := ex.clock.Now().UnixNano()

	captured, seq, ok := book.Fire(now)
	if !ok {
		return
	}
	started := time.Now()

	topic, _ := ex.reg.Topic(id)
	ex.cycleFor(topic.CategoryID, now)

	view, err := ex.market.Clearing(id)
	if err != nil {
		ex.fail(book, captured, id, seq, err)
		return
	}

	owners := make([]string, 0, len(captured))
	for _, o := range captured {
		owners = append(owners, o.Owner)
	}

	res, err := ex.clearer.Clear(clearing.Input{
		Topic:               id,
		Seq:                 seq,
		Orders:              captured,
		ReferencePrice:      view.ReferencePrice,
		RawPrice:            view.RawPrice,
		PrevPrice:           view.PrevPrice,
		TotalShares:         view.TotalShares,
		AvailableShares:     view.AvailableShares,
		BorrowedOutstanding: ex.settler.BorrowedOutstanding(id),
		Positions:           ex.settler.Positions(id, owners),
	})
	if err != nil {
		ex.fail(book, captured, id, seq, err)
		return
	}

	if err := ex.settler.Apply(res); err != nil {
		ex.fail(book, captured, id, seq, err)
		return
	}

	ex.clearer.Commit(&res)
	ex.market.ApplySettlement(id, res.PoolIssued, res.Matched)
	ex.intake.Sync(captured)

	settledAt := ex.clock.Now().UnixNano()
	if err := book.Settle(settledAt, res.ClearingPrice, res.Matched, len(res.Fills), res.Squeezed, res.CarryOver); err != nil {
		logs.Errorf("settle window state failed. topic: %d, seq: %d, err: %+v", id, seq, err)
		return
	}

	ex.metrics.IncWindowsSettled()
	ex.metrics.AddFills(len(res.Fills))
	ex.metrics.AddSharesMatched(res.Matched)
	if res.Squeezed {
		ex.metrics.IncSqueezes()
	}
	ex.metrics.ClearLatency.Observe(time.Since(started).Nanoseconds())

	ex.publisher.Publish(schema.Event{
		Type:    schema.EventWindowSettled,
		TopicID: id,
		Ts:      settledAt,
		WindowSettled: &schema.WindowSettled{
			TopicID:       id,
			Seq:           seq,
			ClearingPrice: res.ClearingPrice,
			Matched:       res.Matched,
			FillCount:     len(res.Fills),
			Squeezed:      res.Squeezed,
		},
	})
	if ex.recorder != nil {
		ex.recorder.Record(res)
	}
}

// cycleFor runs the category's pricing cycle when the reprice interval
// has elapsed, publishing a price update per repriced topic.
func (ex *Exchange) cycleFor(cat schema.CategoryID, now int64) {
	if !ex.market.CycleDue(cat, now, ex.repriceInterval) {
		return
	}
	inputs, err := ex.market.PricingInputs(cat)
	if err != nil || len(inputs) == 0 {
		return
	}
	results := ex.pricer.Cycle(inputs)
	ex.market.ApplyCycle(cat, results, now)
	ex.metrics.IncPricingCycles()

	for _, res := range results {
		view, ok := ex.market.View(res.ID)
		if !ok {
			continue
		}
		ex.publisher.Publish(schema.Event{
			Type:    schema.EventPriceUpdate,
			TopicID: res.ID,
			Ts:      now,
			PriceUpdate: &schema.PriceUpdate{
				TopicID:       res.ID,
				Ticker:        view.Ticker,
				Price:         view.Price,
				PreviousPrice: view.PreviousPrice,
				ChangePct:     view.ChangePct,
				Volume:        view.Volume,
			},
		})
	}
}

func (ex *Exchange) fail(book *auction.Book, captured []*schema.Order, id schema.TopicID, seq uint64, cause error) {
	logs.Errorf("window failed, orders carried forward. topic: %d, seq: %d, err: %+v", id, seq, cause)
	ex.metrics.IncWindowsFailed()
	if err := book.Fail(ex.clock.Now().UnixNano(), captured); err != nil {
		logs.Errorf("fail window state transition rejected. topic: %d, seq: %d, err: %+v", id, seq, err)
	}
}
