package pricing

import (
	"math"

	"main/internal/schema"
)

// minPrice is the floor applied after all corrections; prices stay
// strictly positive.
const minPrice = 0.0001

// Config defines the pricing model tunables.
type Config struct {
	// Sensitivity scales attention-share change into a raw price delta.
	Sensitivity float64 `json:"sensitivity"`
	// MaxMovePct bounds a topic's price move per cycle (0.25 = ±25%).
	MaxMovePct float64 `json:"maxMovePct"`
	// FatigueGain is added to fatigue per cycle spent at the top
	// attention share of the category.
	FatigueGain float64 `json:"fatigueGain"`
	// FatigueHalfLife is the decay half-life in cycles once a topic
	// loses the top share.
	FatigueHalfLife float64 `json:"fatigueHalfLife"`
	// FatigueThreshold is the level above which the penalty applies.
	FatigueThreshold float64 `json:"fatigueThreshold"`
	// FatiguePenaltyPct is the maximum downward correction per cycle
	// (0.15 = up to −15%).
	FatiguePenaltyPct float64 `json:"fatiguePenaltyPct"`
}

// DefaultConfig returns the model defaults.
func DefaultConfig() Config {
	return Config{
		Sensitivity:       0.1,
		MaxMovePct:        0.25,
		FatigueGain:       0.15,
		FatigueHalfLife:   3,
		FatigueThreshold:  0.7,
		FatiguePenaltyPct: 0.15,
	}
}

// TopicInput is one topic's slice of the per-cycle category snapshot.
type TopicInput struct {
	ID            schema.TopicID
	Price         float64
	CycleMentions int64
	LastShare     float64
	Fatigue       float64
	TopStreak     int
}

// TopicResult is the outcome of one cycle for one topic.
type TopicResult struct {
	ID        schema.TopicID
	Price     float64 // clamped reference price
	RawPrice  float64 // pre-clamp price, used by the squeeze override
	Share     float64
	Fatigue   float64
	TopStreak int
	Clamped   bool
}

// Engine computes reference prices. It is stateless: all per-topic
// state travels through the inputs so a cycle operates on exactly one
// consistent category snapshot.
type Engine struct {
	cfg Config
}

// NewEngine creates a pricing engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Cycle runs one pricing cycle over a category snapshot.
//
// Deltas from attention-share change are rescaled so they sum to zero
// across the category before being applied; fatigue corrections and the
// per-cycle clamp are layered on top as topic-local overrides.
func (e *Engine) Cycle(inputs []TopicInput) []TopicResult {
	n := len(inputs)
	results := make([]TopicResult, n)
	if n == 0 {
		return results
	}

	var totalMentions int64
	var totalPrice float64
	for _, in := range inputs {
		totalMentions += in.CycleMentions
		totalPrice += in.Price
	}

	shares := make([]float64, n)
	deltas := make([]float64, n)
	var residual float64
	for i, in := range inputs {
		if totalMentions > 0 {
			shares[i] = float64(in.CycleMentions) / float64(totalMentions)
		} else {
			shares[i] = in.LastShare
		}
		deltas[i] = e.cfg.Sensitivity * (shares[i] - in.LastShare) * in.Price
		residual += deltas[i]
	}

	// Zero-sum redistribution: subtract each topic's price-weighted
	// portion of the residual so the category deltas net to zero.
	if totalPrice > 0 {
		for i, in := range inputs {
			deltas[i] -= in.Price / totalPrice * residual
		}
	}

	top := topShareIndex(shares)
	decay := fatigueDecayFactor(e.cfg.FatigueHalfLife)

	for i, in := range inputs {
		fatigue := in.Fatigue
		streak := in.TopStreak
		if totalMentions > 0 && i == top {
			streak++
			fatigue = math.Min(1, fatigue+e.cfg.FatigueGain)
		} else {
			streak = 0
			fatigue *= decay
		}

		price := in.Price + deltas[i]
		if fatigue > e.cfg.FatigueThreshold {
			severity := (fatigue - e.cfg.FatigueThreshold) / (1 - e.cfg.FatigueThreshold)
			price *= 1 - e.cfg.FatiguePenaltyPct*severity
		}

		raw := math.Max(price, minPrice)
		clamped, hit := clampMove(raw, in.Price, e.cfg.MaxMovePct)

		results[i] = TopicResult{
			ID:        in.ID,
			Price:     clamped,
			RawPrice:  raw,
			Share:     shares[i],
			Fatigue:   fatigue,
			TopStreak: streak,
			Clamped:   hit,
		}
	}
	return results
}

// topShareIndex returns the index holding the strictly greatest share,
// or -1 when there is no positive share or the top is tied.
func topShareIndex(shares []float64) int {
	top := -1
	best := 0.0
	tied := false
	for i, s := range shares {
		if s > best {
			best = s
			top = i
			tied = false
		} else if s == best && s > 0 {
			tied = true
		}
	}
	if tied || best <= 0 {
		return -1
	}
	return top
}

func fatigueDecayFactor(halfLife float64) float64 {
	if halfLife <= 0 {
		return 0
	}
	return math.Exp(-math.Ln2 / halfLife)
}

func clampMove(price, base, maxMovePct float64) (float64, bool) {
	if maxMovePct <= 0 || base <= 0 {
		return math.Max(price, minPrice), false
	}
	lo := base * (1 - maxMovePct)
	hi := base * (1 + maxMovePct)
	switch {
	case price < lo:
		return math.Max(lo, minPrice), true
	case price > hi:
		return hi, true
	default:
		return math.Max(price, minPrice), false
	}
}

// SqueezePrice widens the upward clamp by the squeeze multiplier and
// re-clamps the raw price for a single window. Covering pressure only
// pushes the price up, so the downward bound stays at the normal clamp.
func SqueezePrice(raw, base, maxMovePct, multiplier float64) float64 {
	if multiplier <= 1 {
		multiplier = 1
	}
	lo := base * (1 - maxMovePct)
	hi := base * (1 + maxMovePct*multiplier)
	switch {
	case raw < lo:
		return math.Max(lo, minPrice)
	case raw > hi:
		return hi
	default:
		return math.Max(raw, minPrice)
	}
}
