package settle

import (
	"sync"

	"github.com/shopspring/decimal"

	"main/internal/clearing"
	"main/internal/schema"
	"main/pkg/exception"
)

// Config defines settlement tunables.
type Config struct {
	// StartingCash is credited to a participant's account on first
	// trade. Account provisioning itself is an external concern.
	StartingCash decimal.Decimal `json:"startingCash"`
}

// DefaultConfig returns the settlement defaults.
func DefaultConfig() Config {
	return Config{StartingCash: decimal.NewFromInt(10_000)}
}

// Account is a participant's cash balance.
type Account struct {
	Owner string
	Cash  decimal.Decimal
}

// Position is a participant's signed holding in a topic. Positive is
// long, negative is short.
type Position struct {
	Owner       string
	TopicID     schema.TopicID
	Qty         int64
	AvgCost     decimal.Decimal
	RealizedPnL decimal.Decimal
}

// SupplyLedger is the per-topic bookkeeping of issued and borrowed
// shares. Invariant: Issued-BorrowedOutstanding >= 0.
type SupplyLedger struct {
	TopicID             schema.TopicID
	Issued              int64
	BorrowedOutstanding int64
	Returned            int64
}

type posKey struct {
	owner string
	topic schema.TopicID
}

// Manager applies fill lists atomically per window: all balance moves
// for a window are staged on copies, validated, then committed in one
// critical section. A failure at any point leaves every balance
// untouched.
type Manager struct {
	mu        sync.RWMutex
	cfg       Config
	accounts  map[string]*Account
	positions map[posKey]*Position
	ledgers   map[schema.TopicID]*SupplyLedger

	// beforeCommit runs after staging and validation, inside the
	// critical section. Tests inject failures here.
	beforeCommit func() error
}

// NewManager creates an empty settlement manager.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:       cfg,
		accounts:  make(map[string]*Account),
		positions: make(map[posKey]*Position),
		ledgers:   make(map[schema.TopicID]*SupplyLedger),
	}
}

// Seed registers the share-supply ledger for a topic.
func (m *Manager) Seed(topic schema.TopicID, totalShares int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ledgers[topic]; !ok {
		m.ledgers[topic] = &SupplyLedger{TopicID: topic, Issued: totalShares}
	}
}

// staged collects the copies a window settlement mutates.
type staged struct {
	accounts  map[string]*Account
	positions map[posKey]*Position
	ledger    *SupplyLedger
}

// Apply settles one cleared window. It either fully applies or fully
// rolls back; partial application across participants is impossible
// because commits swap in staged copies only after validation.
func (m *Manager) Apply(res clearing.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := staged{
		accounts:  make(map[string]*Account),
		positions: make(map[posKey]*Position),
	}
	ledger := m.ledgers[res.Topic]
	if ledger == nil {
		ledger = &SupplyLedger{TopicID: res.Topic}
	}
	cp := *ledger
	st.ledger = &cp

	price := decimal.NewFromFloat(res.ClearingPrice)
	for _, fill := range res.Fills {
		if err := m.stageFill(&st, fill, price); err != nil {
			return err
		}
	}

	if st.ledger.BorrowedOutstanding > st.ledger.Issued {
		return exception.ErrSettleLedgerInvariant
	}
	if st.ledger.BorrowedOutstanding < 0 {
		return exception.ErrSettleLedgerInvariant
	}

	if m.beforeCommit != nil {
		if err := m.beforeCommit(); err != nil {
			return err
		}
	}

	for owner, acct := range st.accounts {
		m.accounts[owner] = acct
	}
	for key, pos := range st.positions {
		m.positions[key] = pos
	}
	m.ledgers[res.Topic] = st.ledger
	return nil
}

func (m *Manager) stageFill(st *staged, fill schema.Fill, price decimal.Decimal) error {
	if fill.Qty <= 0 {
		return exception.ErrSettleNegativeFill
	}

	acct := st.accounts[fill.Owner]
	if acct == nil {
		acct = m.copyAccount(fill.Owner)
		st.accounts[fill.Owner] = acct
	}
	key := posKey{owner: fill.Owner, topic: fill.TopicID}
	pos := st.positions[key]
	if pos == nil {
		pos = m.copyPosition(key)
		st.positions[key] = pos
	}

	qty := decimal.NewFromInt(fill.Qty)
	notional := price.Mul(qty)

	switch fill.Side {
	case schema.OrderSideBuy:
		acct.Cash = acct.Cash.Sub(notional)
		if pos.Qty < 0 {
			covered := min64(fill.Qty, -pos.Qty)
			// Short profit is entry price minus cover price.
			pnl := pos.AvgCost.Sub(price).Mul(decimal.NewFromInt(covered))
			pos.RealizedPnL = pos.RealizedPnL.Add(pnl)
			st.ledger.BorrowedOutstanding -= covered
			st.ledger.Returned += covered
		}
		applyAdd(pos, fill.Qty, price)

	case schema.OrderSideSell:
		acct.Cash = acct.Cash.Add(notional)
		if pos.Qty > 0 {
			closed := min64(fill.Qty, pos.Qty)
			pnl := price.Sub(pos.AvgCost).Mul(decimal.NewFromInt(closed))
			pos.RealizedPnL = pos.RealizedPnL.Add(pnl)
		}
		applyReduce(pos, fill.Qty, price)

	case schema.OrderSideShort:
		acct.Cash = acct.Cash.Add(notional)
		st.ledger.BorrowedOutstanding += fill.Qty
		applyReduce(pos, fill.Qty, price)

	default:
		return exception.ErrSettleUnknownSide
	}
	return nil
}

// applyAdd moves the signed position up by qty, maintaining the
// weighted-average cost basis for the growing side.
func applyAdd(pos *Position, qty int64, price decimal.Decimal) {
	next := pos.Qty + qty
	switch {
	case pos.Qty >= 0:
		// Growing a long: weighted-average in the new lot.
		pos.AvgCost = weightedAvg(pos.AvgCost, pos.Qty, price, qty)
	case next > 0:
		// Crossed zero: leftover opens a fresh long at the fill price.
		pos.AvgCost = price
	case next == 0:
		pos.AvgCost = decimal.Zero
	}
	pos.Qty = next
}

// applyReduce moves the signed position down by qty; growing a short
// weighted-averages the basis on the absolute exposure.
func applyReduce(pos *Position, qty int64, price decimal.Decimal) {
	next := pos.Qty - qty
	switch {
	case pos.Qty <= 0:
		pos.AvgCost = weightedAvg(pos.AvgCost, -pos.Qty, price, qty)
	case next < 0:
		pos.AvgCost = price
	case next == 0:
		pos.AvgCost = decimal.Zero
	}
	pos.Qty = next
}

func weightedAvg(avg decimal.Decimal, held int64, price decimal.Decimal, added int64) decimal.Decimal {
	total := held + added
	if total <= 0 {
		return decimal.Zero
	}
	return avg.Mul(decimal.NewFromInt(held)).
		Add(price.Mul(decimal.NewFromInt(added))).
		Div(decimal.NewFromInt(total))
}

func (m *Manager) copyAccount(owner string) *Account {
	if acct, ok := m.accounts[owner]; ok {
		cp := *acct
		return &cp
	}
	return &Account{Owner: owner, Cash: m.cfg.StartingCash}
}

func (m *Manager) copyPosition(key posKey) *Position {
	if pos, ok := m.positions[key]; ok {
		cp := *pos
		return &cp
	}
	return &Position{
		Owner:       key.owner,
		TopicID:     key.topic,
		AvgCost:     decimal.Zero,
		RealizedPnL: decimal.Zero,
	}
}

// Cash returns a participant's cash balance, or the starting balance if
// the account has not traded yet.
func (m *Manager) Cash(owner string) decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if acct, ok := m.accounts[owner]; ok {
		return acct.Cash
	}
	return m.cfg.StartingCash
}

// PositionQty returns the signed quantity a participant holds.
func (m *Manager) PositionQty(owner string, topic schema.TopicID) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if pos, ok := m.positions[posKey{owner: owner, topic: topic}]; ok {
		return pos.Qty
	}
	return 0
}

// PositionView returns a copy of the full position record.
func (m *Manager) PositionView(owner string, topic schema.TopicID) (Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if pos, ok := m.positions[posKey{owner: owner, topic: topic}]; ok {
		return *pos, true
	}
	return Position{}, false
}

// BorrowedOutstanding returns the topic's outstanding borrowed shares.
func (m *Manager) BorrowedOutstanding(topic schema.TopicID) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ledger, ok := m.ledgers[topic]; ok {
		return ledger.BorrowedOutstanding
	}
	return 0
}

// Ledger returns a copy of the topic's supply ledger.
func (m *Manager) Ledger(topic schema.TopicID) (SupplyLedger, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ledger, ok := m.ledgers[topic]; ok {
		return *ledger, true
	}
	return SupplyLedger{}, false
}

// Positions returns the signed quantities of the given owners for a
// topic, for the clearing snapshot.
func (m *Manager) Positions(topic schema.TopicID, owners []string) map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int64, len(owners))
	for _, owner := range owners {
		if pos, ok := m.positions[posKey{owner: owner, topic: topic}]; ok {
			out[owner] = pos.Qty
		} else {
			out[owner] = 0
		}
	}
	return out
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
