package schema

// EventType defines the category of a published event.
type EventType uint16

const (
	EventUnknown EventType = iota
	EventPriceUpdate
	EventWindowSettled
)

// PriceUpdate is published after a pricing cycle or a settled window
// changes a topic's reference price.
type PriceUpdate struct {
	TopicID       TopicID
	Ticker        string
	Price         float64
	PreviousPrice float64
	ChangePct     float64
	Volume        int64
}

// WindowSettled is published after a window settles.
type WindowSettled struct {
	TopicID       TopicID
	Seq           uint64
	ClearingPrice float64
	Matched       int64
	FillCount     int
	Squeezed      bool
}

// Event is the unit delivered to subscribers. Exactly one payload
// pointer is set, matching Type.
type Event struct {
	Type    EventType
	TopicID TopicID
	Ts      int64

	PriceUpdate   *PriceUpdate
	WindowSettled *WindowSettled
}
