package schema

// CategoryID is the numeric identifier for a category.
type CategoryID uint16

// TopicID is the numeric identifier for a tradable topic.
type TopicID uint32

// OrderID is the unique identifier assigned to an order at intake.
type OrderID string

// OrderSide describes order direction.
type OrderSide uint16

const (
	OrderSideUnknown OrderSide = iota
	OrderSideBuy
	OrderSideSell
	OrderSideShort
)

func (s OrderSide) String() string {
	switch s {
	case OrderSideBuy:
		return "buy"
	case OrderSideSell:
		return "sell"
	case OrderSideShort:
		return "short"
	default:
		return "unknown"
	}
}

// OrderType describes order type.
type OrderType uint16

const (
	OrderTypeUnknown OrderType = iota
	OrderTypeMarket
	OrderTypeLimit
)

// OrderStatus describes the lifecycle state of an order.
type OrderStatus uint16

const (
	OrderStatusUnknown OrderStatus = iota
	OrderStatusPending
	OrderStatusPartFilled
	OrderStatusFilled
	OrderStatusCancelled
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusPending:
		return "pending"
	case OrderStatusPartFilled:
		return "partially-filled"
	case OrderStatusFilled:
		return "filled"
	case OrderStatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status accepts no further fills.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled
}

// WindowState describes the auction window state machine.
type WindowState uint16

const (
	WindowStateUnknown WindowState = iota
	WindowStateScheduled
	WindowStateClearing
	WindowStateSettled
	WindowStateFailed
)

func (s WindowState) String() string {
	switch s {
	case WindowStateScheduled:
		return "scheduled"
	case WindowStateClearing:
		return "clearing"
	case WindowStateSettled:
		return "settled"
	case WindowStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Order is a participant's instruction. Orders are mutated only by the
// clearing algorithm and by explicit cancellation.
type Order struct {
	ID           OrderID
	Owner        string
	TopicID      TopicID
	Side         OrderSide
	Type         OrderType
	Qty          int64
	LimitPrice   float64 // limit orders only
	Status       OrderStatus
	FilledQty    int64
	AvgFillPrice float64
	CreatedAt    int64 // unix nanos
	WindowSeq    uint64
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() int64 {
	return o.Qty - o.FilledQty
}

// Fill is one order's allocation at the uniform clearing price.
type Fill struct {
	OrderID OrderID
	Owner   string
	TopicID TopicID
	Side    OrderSide
	Qty     int64
	Price   float64
}
