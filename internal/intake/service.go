package intake

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"

	"main/internal/auction"
	"main/internal/clearing"
	"main/internal/market"
	"main/internal/obs"
	"main/internal/schema"
	"main/pkg/exception"
)

// Request is an order submission before validation.
type Request struct {
	Owner      string
	Topic      schema.TopicID
	Side       schema.OrderSide
	Type       schema.OrderType
	Qty        int64
	LimitPrice float64
}

// Service validates incoming orders and queues them on the topic's
// book. Sell and short checks here are optimistic: the window that
// eventually clears the order re-checks against state captured at the
// swap, so passing intake never guarantees a fill.
type Service struct {
	market  *market.State
	settler Positions
	books   map[schema.TopicID]*auction.Book
	clock   auction.Clock
	engine  *clearing.Engine
	metrics *obs.Metrics

	mu     sync.RWMutex
	orders map[schema.OrderID]*record
}

// record pairs the live order owned by the auction cycle with the last
// committed copy served to status queries. The live struct is mutated
// by the clearing path without intake's lock; queries never touch it.
type record struct {
	live *schema.Order
	view schema.Order
}

// Positions exposes the settlement lookups intake validates against.
type Positions interface {
	PositionQty(owner string, topic schema.TopicID) int64
	BorrowedOutstanding(topic schema.TopicID) int64
}

// NewService wires the intake path. books must contain one entry per
// registered topic.
func NewService(st *market.State, settler Positions, books map[schema.TopicID]*auction.Book, clock auction.Clock, engine *clearing.Engine, metrics *obs.Metrics) *Service {
	return &Service{
		market:  st,
		settler: settler,
		books:   books,
		clock:   clock,
		engine:  engine,
		metrics: metrics,
		orders:  make(map[schema.OrderID]*record),
	}
}

// Submit validates a request, assigns an order ID and queues the order
// for the topic's next window.
func (s *Service) Submit(req Request) (*schema.Order, error) {
	if err := s.validate(req); err != nil {
		s.metrics.IncOrdersRejected()
		return nil, err
	}

	order := &schema.Order{
		ID:         schema.OrderID(uuid.NewString()),
		Owner:      req.Owner,
		TopicID:    req.Topic,
		Side:       req.Side,
		Type:       req.Type,
		Qty:        req.Qty,
		LimitPrice: req.LimitPrice,
		Status:     schema.OrderStatusPending,
		CreatedAt:  s.clock.Now().UnixNano(),
	}

	book := s.books[req.Topic]
	if book == nil {
		s.metrics.IncOrdersRejected()
		return nil, errors.Wrapf(exception.ErrIntakeUnknownTopic, "topic %d", req.Topic)
	}

	s.mu.Lock()
	s.orders[order.ID] = &record{live: order, view: *order}
	s.mu.Unlock()

	book.Append(order)
	s.metrics.IncOrdersAccepted()
	return order, nil
}

// Cancel removes a pending order. Orders captured by an in-flight
// window can no longer be cancelled.
func (s *Service) Cancel(id schema.OrderID, owner string) error {
	s.mu.RLock()
	rec, ok := s.orders[id]
	topic := schema.TopicID(0)
	if ok {
		topic = rec.view.TopicID
	}
	s.mu.RUnlock()
	if !ok {
		return errors.Wrapf(exception.ErrIntakeUnknownOrder, "order %s", id)
	}

	book := s.books[topic]
	if book == nil {
		return errors.Wrapf(exception.ErrIntakeUnknownTopic, "topic %d", topic)
	}
	if err := book.Cancel(id, owner); err != nil {
		return err
	}

	// the order left the queue under the book's lock; the live struct
	// is quiescent now
	s.mu.Lock()
	rec.view = *rec.live
	s.mu.Unlock()

	s.metrics.IncOrdersCancelled()
	return nil
}

// Order returns the order's last committed state. During a clearing
// window the copy lags until Sync runs at settlement.
func (s *Service) Order(id schema.OrderID) (schema.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.orders[id]
	if !ok {
		return schema.Order{}, false
	}
	return rec.view, true
}

// Sync publishes the post-window state of the captured orders. The
// caller must still exclusively own them, i.e. run before the book
// leaves the clearing state.
func (s *Service) Sync(orders []*schema.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range orders {
		if rec, ok := s.orders[o.ID]; ok {
			rec.view = *o
		}
	}
}

func (s *Service) validate(req Request) error {
	if strings.TrimSpace(req.Owner) == "" {
		return errors.Wrap(exception.ErrIntakeInvalidOwner, "owner is empty")
	}

	topic, ok := s.market.Registry().Topic(req.Topic)
	if !ok {
		return errors.Wrapf(exception.ErrIntakeUnknownTopic, "topic %d", req.Topic)
	}
	if !s.market.Active(req.Topic) {
		return errors.Wrapf(exception.ErrIntakeInactiveTopic, "topic %s", topic.Ticker)
	}

	if req.Qty <= 0 {
		return errors.Wrapf(exception.ErrIntakeInvalidQuantity, "qty %d", req.Qty)
	}
	switch req.Type {
	case schema.OrderTypeMarket:
		if req.LimitPrice != 0 {
			return errors.Wrap(exception.ErrIntakeInvalidLimitPrice, "market order carries a limit price")
		}
	case schema.OrderTypeLimit:
		if req.LimitPrice <= 0 {
			return errors.Wrapf(exception.ErrIntakeInvalidLimitPrice, "limit %f", req.LimitPrice)
		}
	default:
		return errors.Wrapf(exception.ErrIntakeInvalidQuantity, "unknown order type %d", req.Type)
	}

	switch req.Side {
	case schema.OrderSideBuy:
	case schema.OrderSideSell:
		held := s.settler.PositionQty(req.Owner, req.Topic)
		if held < req.Qty {
			return errors.Wrapf(exception.ErrIntakeInsufficientPosition, "hold %d, sell %d", held, req.Qty)
		}
	case schema.OrderSideShort:
		capacity := s.engine.ShortCapacity(topic.TotalShares, s.settler.BorrowedOutstanding(req.Topic))
		if req.Qty > capacity {
			return errors.Wrapf(exception.ErrIntakeShortCapExceeded, "capacity %d, short %d", capacity, req.Qty)
		}
	default:
		return errors.Wrapf(exception.ErrIntakeInvalidQuantity, "unknown side %d", req.Side)
	}
	return nil
}
