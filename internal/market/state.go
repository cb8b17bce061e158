package market

import (
	"sort"
	"sync"

	"main/internal/pricing"
	"main/internal/schema"
	"main/pkg/exception"
)

// TopicView is a read-only snapshot of one topic's market state.
type TopicView struct {
	ID              schema.TopicID
	CategoryID      schema.CategoryID
	Ticker          string
	Name            string
	Price           float64
	PreviousPrice   float64
	ChangePct       float64
	Volume          int64
	Mentions        int64
	Fatigue         float64
	TotalShares     int64
	AvailableShares int64
	Active          bool
}

// ClearingView carries the price and share-supply figures the clearing
// algorithm needs for one window. Values are stable for the duration of
// a window because a topic's next window cannot start before settlement.
type ClearingView struct {
	ReferencePrice  float64 // post-cycle, clamped
	RawPrice        float64 // post-cycle, pre-clamp
	PrevPrice       float64 // price the clamp was computed around
	TotalShares     int64
	AvailableShares int64
	Active          bool
}

type topicState struct {
	info schema.Topic

	price     float64
	prevPrice float64
	rawPrice  float64

	availableShares int64
	volume          int64

	cumMentions   int64
	cycleMentions int64
	lastMentionTs int64

	lastShare float64
	fatigue   float64
	topStreak int

	active bool
}

// State holds the mutable per-topic market state. The category-level
// aggregates used by the pricing cycle are read under a single lock
// scope so every cycle sees a consistent snapshot.
type State struct {
	mu          sync.RWMutex
	reg         *schema.Registry
	topics      map[schema.TopicID]*topicState
	lastCycleAt map[schema.CategoryID]int64
}

// NewState seeds market state from the registry.
func NewState(reg *schema.Registry) *State {
	s := &State{
		reg:         reg,
		topics:      make(map[schema.TopicID]*topicState, reg.TopicCount()),
		lastCycleAt: make(map[schema.CategoryID]int64),
	}
	for i := 0; i < reg.TopicCount(); i++ {
		info, _ := reg.TopicAt(i)
		s.topics[info.ID] = &topicState{
			info:            info,
			price:           info.InitialPrice,
			prevPrice:       info.InitialPrice,
			rawPrice:        info.InitialPrice,
			availableShares: info.TotalShares,
			active:          true,
		}
	}
	return s
}

// Registry returns the immutable category/topic registry.
func (s *State) Registry() *schema.Registry {
	return s.reg
}

// IngestMentions records a mention sample for a topic. Samples whose
// timestamp is not strictly newer than the last accepted one are
// idempotently ignored. Returns whether the sample was accepted.
func (s *State) IngestMentions(id schema.TopicID, count int64, ts int64) (bool, error) {
	if count < 0 {
		return false, exception.ErrMarketNegativeCount
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.topics[id]
	if !ok {
		return false, exception.ErrMarketUnknownTopic
	}
	if ts <= t.lastMentionTs {
		return false, nil
	}
	t.lastMentionTs = ts
	t.cumMentions += count
	t.cycleMentions += count
	return true, nil
}

// CycleDue reports whether a category's pricing cycle should run.
func (s *State) CycleDue(cat schema.CategoryID, now int64, interval int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	last, ok := s.lastCycleAt[cat]
	if !ok {
		return true
	}
	return now-last >= interval
}

// PricingInputs builds the consistent per-cycle snapshot of all active
// topics in a category.
func (s *State) PricingInputs(cat schema.CategoryID) ([]pricing.TopicInput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.reg.TopicsInCategory(cat)
	if len(ids) == 0 {
		return nil, exception.ErrMarketUnknownCategory
	}
	inputs := make([]pricing.TopicInput, 0, len(ids))
	for _, id := range ids {
		t := s.topics[id]
		if t == nil || !t.active {
			continue
		}
		inputs = append(inputs, pricing.TopicInput{
			ID:            id,
			Price:         t.price,
			CycleMentions: t.cycleMentions,
			LastShare:     t.lastShare,
			Fatigue:       t.fatigue,
			TopStreak:     t.topStreak,
		})
	}
	return inputs, nil
}

// ApplyCycle stores the outcome of a pricing cycle and resets the
// per-cycle mention accumulators.
func (s *State) ApplyCycle(cat schema.CategoryID, results []pricing.TopicResult, now int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, res := range results {
		t, ok := s.topics[res.ID]
		if !ok {
			continue
		}
		t.prevPrice = t.price
		t.price = res.Price
		t.rawPrice = res.RawPrice
		t.lastShare = res.Share
		t.fatigue = res.Fatigue
		t.topStreak = res.TopStreak
		t.cycleMentions = 0
	}
	s.lastCycleAt[cat] = now
}

// Clearing returns the clearing-time view of a topic.
func (s *State) Clearing(id schema.TopicID) (ClearingView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.topics[id]
	if !ok {
		return ClearingView{}, exception.ErrMarketUnknownTopic
	}
	return ClearingView{
		ReferencePrice:  t.price,
		RawPrice:        t.rawPrice,
		PrevPrice:       t.prevPrice,
		TotalShares:     t.info.TotalShares,
		AvailableShares: t.availableShares,
		Active:          t.active,
	}, nil
}

// ApplySettlement consumes pool-issued shares and accumulates matched
// volume for a settled window.
func (s *State) ApplySettlement(id schema.TopicID, poolIssued, matched int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.topics[id]
	if !ok {
		return
	}
	t.availableShares -= poolIssued
	if t.availableShares < 0 {
		t.availableShares = 0
	}
	t.volume += matched
}

// Active reports whether the topic exists and is tradable.
func (s *State) Active(id schema.TopicID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.topics[id]
	return ok && t.active
}

// Deactivate stops a topic from accepting new orders. Topics are never
// deleted.
func (s *State) Deactivate(id schema.TopicID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.topics[id]
	if !ok {
		return exception.ErrMarketUnknownTopic
	}
	t.active = false
	return nil
}

// View returns a snapshot of one topic.
func (s *State) View(id schema.TopicID) (TopicView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.topics[id]
	if !ok {
		return TopicView{}, false
	}
	return t.view(), true
}

// Snapshot returns views of all topics sorted by ticker.
func (s *State) Snapshot() []TopicView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]TopicView, 0, len(s.topics))
	for _, t := range s.topics {
		out = append(out, t.view())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

func (t *topicState) view() TopicView {
	changePct := 0.0
	if t.prevPrice > 0 {
		changePct = (t.price - t.prevPrice) / t.prevPrice * 100
	}
	return TopicView{
		ID:              t.info.ID,
		CategoryID:      t.info.CategoryID,
		Ticker:          t.info.Ticker,
		Name:            t.info.Name,
		Price:           t.price,
		PreviousPrice:   t.prevPrice,
		ChangePct:       changePct,
		Volume:          t.volume,
		Mentions:        t.cumMentions,
		Fatigue:         t.fatigue,
		TotalShares:     t.info.TotalShares,
		AvailableShares: t.availableShares,
		Active:          t.active,
	}
}
