package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/pricing"
	"main/internal/schema"
	"main/pkg/exception"
)

func newState(t *testing.T) (*State, schema.TopicID, schema.TopicID, schema.CategoryID) {
	t.Helper()
	reg := schema.NewRegistry()
	cat, err := reg.AddCategory("tech")
	require.NoError(t, err)
	ai, err := reg.AddTopic("AI", "Artificial Intelligence", cat, 1000, 2.0)
	require.NoError(t, err)
	vr, err := reg.AddTopic("VR", "Virtual Reality", cat, 500, 1.0)
	require.NoError(t, err)
	return NewState(reg), ai, vr, cat
}

func TestIngestMentionsIdempotent(t *testing.T) {
	s, ai, _, _ := newState(t)

	accepted, err := s.IngestMentions(ai, 10, 100)
	require.NoError(t, err)
	assert.True(t, accepted)

	// replay of the same timestamp is ignored without error
	accepted, err = s.IngestMentions(ai, 10, 100)
	require.NoError(t, err)
	assert.False(t, accepted)

	accepted, err = s.IngestMentions(ai, 5, 101)
	require.NoError(t, err)
	assert.True(t, accepted)

	view, ok := s.View(ai)
	require.True(t, ok)
	assert.Equal(t, int64(15), view.Mentions)
}

func TestIngestMentionsRejectsBadInput(t *testing.T) {
	s, ai, _, _ := newState(t)

	_, err := s.IngestMentions(ai, -1, 100)
	assert.ErrorIs(t, err, exception.ErrMarketNegativeCount)

	_, err = s.IngestMentions(99, 1, 100)
	assert.ErrorIs(t, err, exception.ErrMarketUnknownTopic)
}

func TestCycleDueGating(t *testing.T) {
	s, _, _, cat := newState(t)

	assert.True(t, s.CycleDue(cat, 0, 100), "first cycle is always due")

	s.ApplyCycle(cat, nil, 50)
	assert.False(t, s.CycleDue(cat, 100, 100))
	assert.True(t, s.CycleDue(cat, 150, 100))
}

func TestApplyCycleResetsAccumulators(t *testing.T) {
	s, ai, vr, cat := newState(t)

	_, err := s.IngestMentions(ai, 30, 1)
	require.NoError(t, err)

	inputs, err := s.PricingInputs(cat)
	require.NoError(t, err)
	require.Len(t, inputs, 2)
	assert.Equal(t, int64(30), inputs[0].CycleMentions)

	s.ApplyCycle(cat, []pricing.TopicResult{
		{ID: ai, Price: 2.2, RawPrice: 2.3, Share: 1, Fatigue: 0.15, TopStreak: 1},
		{ID: vr, Price: 0.9, RawPrice: 0.9},
	}, 10)

	inputs, err = s.PricingInputs(cat)
	require.NoError(t, err)
	assert.Zero(t, inputs[0].CycleMentions, "per-cycle mentions reset after a cycle")
	assert.Equal(t, 2.2, inputs[0].Price)

	view, _ := s.View(ai)
	assert.Equal(t, 2.2, view.Price)
	assert.Equal(t, 2.0, view.PreviousPrice)
	assert.InDelta(t, 10.0, view.ChangePct, 1e-9)
	assert.Equal(t, int64(30), view.Mentions, "cumulative mentions survive the cycle")
}

func TestClearingViewAndSettlement(t *testing.T) {
	s, ai, _, _ := newState(t)

	view, err := s.Clearing(ai)
	require.NoError(t, err)
	assert.Equal(t, 2.0, view.ReferencePrice)
	assert.Equal(t, int64(1000), view.AvailableShares)

	s.ApplySettlement(ai, 300, 450)

	view, err = s.Clearing(ai)
	require.NoError(t, err)
	assert.Equal(t, int64(700), view.AvailableShares)

	tv, _ := s.View(ai)
	assert.Equal(t, int64(450), tv.Volume)
}

func TestDeactivate(t *testing.T) {
	s, ai, vr, cat := newState(t)

	require.NoError(t, s.Deactivate(ai))
	assert.False(t, s.Active(ai))
	assert.True(t, s.Active(vr))

	inputs, err := s.PricingInputs(cat)
	require.NoError(t, err)
	assert.Len(t, inputs, 1, "inactive topics drop out of the pricing cycle")

	assert.ErrorIs(t, s.Deactivate(99), exception.ErrMarketUnknownTopic)
}

func TestSnapshotSortedByTicker(t *testing.T) {
	s, _, _, _ := newState(t)

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "AI", snap[0].Ticker)
	assert.Equal(t, "VR", snap[1].Ticker)
}
