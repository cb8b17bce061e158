package settle

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/clearing"
	"main/internal/schema"
)

func fill(owner string, side schema.OrderSide, qty int64, price float64) schema.Fill {
	return schema.Fill{
		OrderID: schema.OrderID(owner + "-" + side.String()),
		Owner:   owner,
		TopicID: 1,
		Side:    side,
		Qty:     qty,
		Price:   price,
	}
}

func result(price float64, fills ...schema.Fill) clearing.Result {
	return clearing.Result{Topic: 1, Seq: 1, ClearingPrice: price, Fills: fills}
}

func newManager() *Manager {
	m := NewManager(DefaultConfig())
	m.Seed(1, 1_000_000)
	return m
}

func TestApplyBuyDebitsCash(t *testing.T) {
	m := newManager()

	err := m.Apply(result(2.50, fill("alice", schema.OrderSideBuy, 100, 2.50)))
	require.NoError(t, err)

	assert.True(t, m.Cash("alice").Equal(decimal.RequireFromString("9750")), "cash=%s", m.Cash("alice"))
	assert.Equal(t, int64(100), m.PositionQty("alice", 1))

	pos, ok := m.PositionView("alice", 1)
	require.True(t, ok)
	assert.True(t, pos.AvgCost.Equal(decimal.RequireFromString("2.5")))
}

func TestApplyWeightedAverageCost(t *testing.T) {
	m := newManager()

	require.NoError(t, m.Apply(result(2.00, fill("alice", schema.OrderSideBuy, 100, 2.00))))
	require.NoError(t, m.Apply(result(4.00, fill("alice", schema.OrderSideBuy, 100, 4.00))))

	pos, _ := m.PositionView("alice", 1)
	assert.Equal(t, int64(200), pos.Qty)
	assert.True(t, pos.AvgCost.Equal(decimal.RequireFromString("3")), "avg=%s", pos.AvgCost)
}

func TestApplySellRealizesPnL(t *testing.T) {
	m := newManager()

	require.NoError(t, m.Apply(result(2.00, fill("alice", schema.OrderSideBuy, 100, 2.00))))
	require.NoError(t, m.Apply(result(3.00, fill("alice", schema.OrderSideSell, 60, 3.00))))

	pos, _ := m.PositionView("alice", 1)
	assert.Equal(t, int64(40), pos.Qty)
	assert.True(t, pos.RealizedPnL.Equal(decimal.RequireFromString("60")), "pnl=%s", pos.RealizedPnL)
	assert.True(t, pos.AvgCost.Equal(decimal.RequireFromString("2")), "basis unchanged on reduction")

	// 10000 - 200 + 180
	assert.True(t, m.Cash("alice").Equal(decimal.RequireFromString("9980")))
}

func TestApplyShortBorrowsAndCoverReturns(t *testing.T) {
	m := newManager()

	require.NoError(t, m.Apply(result(5.00, fill("bob", schema.OrderSideShort, 200, 5.00))))

	ledger, ok := m.Ledger(1)
	require.True(t, ok)
	assert.Equal(t, int64(200), ledger.BorrowedOutstanding)
	assert.Equal(t, int64(-200), m.PositionQty("bob", 1))
	assert.True(t, m.Cash("bob").Equal(decimal.RequireFromString("11000")))

	// Cover half at a lower price: borrow returned, profit realized.
	require.NoError(t, m.Apply(result(4.00, fill("bob", schema.OrderSideBuy, 100, 4.00))))

	ledger, _ = m.Ledger(1)
	assert.Equal(t, int64(100), ledger.BorrowedOutstanding)
	assert.Equal(t, int64(100), ledger.Returned)
	assert.Equal(t, int64(-100), m.PositionQty("bob", 1))

	pos, _ := m.PositionView("bob", 1)
	assert.True(t, pos.RealizedPnL.Equal(decimal.RequireFromString("100")), "pnl=%s", pos.RealizedPnL)
}

func TestApplyCrossZeroResetsBasis(t *testing.T) {
	m := newManager()

	require.NoError(t, m.Apply(result(5.00, fill("bob", schema.OrderSideShort, 100, 5.00))))
	require.NoError(t, m.Apply(result(4.00, fill("bob", schema.OrderSideBuy, 150, 4.00))))

	pos, _ := m.PositionView("bob", 1)
	assert.Equal(t, int64(50), pos.Qty, "leftover after covering flips long")
	assert.True(t, pos.AvgCost.Equal(decimal.RequireFromString("4")), "fresh long basis at fill price")
}

func TestApplyAtomicOnInjectedFailure(t *testing.T) {
	m := newManager()
	require.NoError(t, m.Apply(result(2.00,
		fill("alice", schema.OrderSideBuy, 100, 2.00),
		fill("bob", schema.OrderSideShort, 100, 2.00),
	)))

	cashAlice := m.Cash("alice")
	cashBob := m.Cash("bob")
	posAlice := m.PositionQty("alice", 1)
	ledgerBefore, _ := m.Ledger(1)

	injected := errors.New("storage failure")
	m.beforeCommit = func() error { return injected }

	err := m.Apply(result(3.00,
		fill("alice", schema.OrderSideSell, 50, 3.00),
		fill("bob", schema.OrderSideBuy, 100, 3.00),
	))
	require.ErrorIs(t, err, injected)

	assert.True(t, m.Cash("alice").Equal(cashAlice), "alice cash must be untouched")
	assert.True(t, m.Cash("bob").Equal(cashBob), "bob cash must be untouched")
	assert.Equal(t, posAlice, m.PositionQty("alice", 1))
	ledgerAfter, _ := m.Ledger(1)
	assert.Equal(t, ledgerBefore, ledgerAfter)
}

func TestApplyLedgerInvariant(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.Seed(1, 100)

	err := m.Apply(result(1.00, fill("bob", schema.OrderSideShort, 200, 1.00)))
	require.Error(t, err, "borrowing beyond issued shares must fail the window")

	assert.Equal(t, int64(0), m.BorrowedOutstanding(1))
	assert.Zero(t, m.PositionQty("bob", 1))
}

func TestApplyRejectsBadFill(t *testing.T) {
	m := newManager()
	err := m.Apply(result(1.00, fill("x", schema.OrderSideBuy, 0, 1.00)))
	require.Error(t, err)

	err = m.Apply(result(1.00, schema.Fill{Owner: "x", TopicID: 1, Qty: 5}))
	require.Error(t, err, "unknown side must fail")
}
