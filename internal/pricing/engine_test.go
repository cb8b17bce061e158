package pricing

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func TestCycleZeroSum(t *testing.T) {
	cfg := DefaultConfig()
	engine := NewEngine(cfg)

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 100; trial++ {
		n := 2 + rng.Intn(6)
		inputs := make([]TopicInput, n)
		for i := range inputs {
			inputs[i] = TopicInput{
				ID:            topicID(i),
				Price:         0.5 + rng.Float64()*9.5,
				CycleMentions: int64(rng.Intn(5000)),
				LastShare:     1 / float64(n),
			}
		}

		results := engine.Cycle(inputs)
		require.Len(t, results, n)

		var sum float64
		for i, res := range results {
			// Keep the invariant check on the redistribution itself:
			// skip trials where a clamp or fatigue correction engaged.
			if res.Clamped || res.Fatigue > cfg.FatigueThreshold {
				sum = 0
				break
			}
			sum += res.Price - inputs[i].Price
		}
		assert.InDeltaf(t, 0, sum, 1e-9, "trial %d: category deltas must net to zero", trial)
	}
}

func TestCycleAttentionShiftMovesPrices(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	inputs := []TopicInput{
		{ID: 1, Price: 1.00, CycleMentions: 10000, LastShare: 0.5},
		{ID: 2, Price: 1.00, CycleMentions: 0, LastShare: 0.5},
	}
	results := engine.Cycle(inputs)

	assert.Greater(t, results[0].Price, 1.00, "topic gaining attention must rise")
	assert.Less(t, results[1].Price, 1.00, "topic losing attention must fall")
	assert.InDelta(t, 0, (results[0].Price-1.00)+(results[1].Price-1.00), 1e-12)
	assert.InDelta(t, 1.0, results[0].Share, 1e-12)
}

func TestCycleClampBoundsMove(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sensitivity = 10 // force a move far past the clamp
	engine := NewEngine(cfg)

	inputs := []TopicInput{
		{ID: 1, Price: 1.00, CycleMentions: 1000},
		{ID: 2, Price: 1.00, CycleMentions: 0, LastShare: 1},
	}
	results := engine.Cycle(inputs)

	assert.True(t, results[0].Clamped)
	assert.InDelta(t, 1.25, results[0].Price, 1e-12)
	assert.Greater(t, results[0].RawPrice, results[0].Price, "raw price keeps the pre-clamp value")
	assert.True(t, results[1].Clamped)
	assert.InDelta(t, 0.75, results[1].Price, 1e-12)
}

func TestFatigueAccrualAndDecay(t *testing.T) {
	cfg := DefaultConfig()
	engine := NewEngine(cfg)

	dominant := TopicInput{ID: 1, Price: 1.00}
	rival := TopicInput{ID: 2, Price: 1.00}

	// Five cycles at the top attention share: fatigue strictly rises.
	prev := 0.0
	for cycle := 0; cycle < 5; cycle++ {
		dominant.CycleMentions = 900
		rival.CycleMentions = 100
		results := engine.Cycle([]TopicInput{dominant, rival})

		require.Greater(t, results[0].Fatigue, prev, "cycle %d: fatigue must rise while on top", cycle)
		require.Equal(t, cycle+1, results[0].TopStreak)
		prev = results[0].Fatigue

		dominant = carry(dominant, results[0])
		rival = carry(rival, results[1])
	}

	// Five cycles after losing the top share: fatigue strictly falls.
	for cycle := 0; cycle < 5; cycle++ {
		dominant.CycleMentions = 100
		rival.CycleMentions = 900
		results := engine.Cycle([]TopicInput{dominant, rival})

		require.Less(t, results[0].Fatigue, prev, "cycle %d: fatigue must decay off the top", cycle)
		require.Zero(t, results[0].TopStreak)
		prev = results[0].Fatigue

		dominant = carry(dominant, results[0])
		rival = carry(rival, results[1])
	}
}

func TestFatiguePenaltyDragsPrice(t *testing.T) {
	cfg := DefaultConfig()
	engine := NewEngine(cfg)

	// Fully fatigued topic holding a steady share: no attention delta,
	// the penalty alone must pull the price down by the full amount.
	inputs := []TopicInput{
		{ID: 1, Price: 2.00, CycleMentions: 500, LastShare: 0.5, Fatigue: 0.95, TopStreak: 6},
		{ID: 2, Price: 2.00, CycleMentions: 500, LastShare: 0.5},
	}
	results := engine.Cycle(inputs)

	// Equal mentions tie the top share, so fatigue decays instead of
	// accruing, but remains above the threshold this cycle.
	require.Greater(t, results[0].Fatigue, cfg.FatigueThreshold)
	severity := (results[0].Fatigue - cfg.FatigueThreshold) / (1 - cfg.FatigueThreshold)
	want := 2.00 * (1 - cfg.FatiguePenaltyPct*severity)
	assert.InDelta(t, want, results[0].Price, 1e-12)
	assert.Less(t, results[0].Price, 2.00)
}

func TestCycleNoMentionsHoldsPrices(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	inputs := []TopicInput{
		{ID: 1, Price: 3.00, LastShare: 0.7},
		{ID: 2, Price: 1.00, LastShare: 0.3},
	}
	results := engine.Cycle(inputs)

	assert.InDelta(t, 3.00, results[0].Price, 1e-12)
	assert.InDelta(t, 1.00, results[1].Price, 1e-12)
	assert.Zero(t, results[0].TopStreak, "no mentions means nobody holds the top share")
}

func TestSqueezePrice(t *testing.T) {
	// Raw price 1.60 against base 1.00 with a ±25% clamp: the normal
	// reference stops at 1.25, the squeeze window may reach 1.50.
	assert.InDelta(t, 1.50, SqueezePrice(1.60, 1.00, 0.25, 2), 1e-12)
	assert.InDelta(t, 1.40, SqueezePrice(1.40, 1.00, 0.25, 2), 1e-12)
	// Multiplier below 1 never tightens the clamp.
	assert.InDelta(t, 1.25, SqueezePrice(1.60, 1.00, 0.25, 0.5), 1e-12)
	// Covering pressure is one-sided: a falling raw price still stops at
	// the normal downward clamp, not the widened one.
	assert.InDelta(t, 0.75, SqueezePrice(0.40, 1.00, 0.25, 2), 1e-12)
	assert.InDelta(t, 0.80, SqueezePrice(0.80, 1.00, 0.25, 2), 1e-12)
}

func TestPriceStaysPositive(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sensitivity = 100
	engine := NewEngine(cfg)

	inputs := []TopicInput{
		{ID: 1, Price: 0.0002, CycleMentions: 0, LastShare: 1},
		{ID: 2, Price: 0.0002, CycleMentions: 1000},
	}
	results := engine.Cycle(inputs)
	for _, res := range results {
		assert.True(t, res.Price > 0, "price must stay positive, got %v", res.Price)
		assert.False(t, math.IsNaN(res.Price))
	}
}

func carry(in TopicInput, res TopicResult) TopicInput {
	in.Price = res.Price
	in.LastShare = res.Share
	in.Fatigue = res.Fatigue
	in.TopStreak = res.TopStreak
	return in
}

func topicID(i int) schema.TopicID { return schema.TopicID(i + 1) }
