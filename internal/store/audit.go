package store

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"
	"gorm.io/gorm"

	"main/internal/clearing"
	"main/internal/schema"
)

const queueSize = 256

// WindowRecord is one settled or failed auction window.
type WindowRecord struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	TopicID       uint32 `gorm:"index:idx_window_topic_seq,unique"`
	Seq           uint64 `gorm:"index:idx_window_topic_seq,unique"`
	State         string
	ClearingPrice decimal.Decimal `gorm:"type:numeric(20,8)"`
	Matched       int64
	PoolIssued    int64
	ShortBorrowed int64
	Squeezed      bool
	SettledAt     time.Time
}

// FillRecord is one fill within a window.
type FillRecord struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement"`
	TopicID uint32 `gorm:"index"`
	Seq     uint64
	OrderID string `gorm:"index"`
	Owner   string `gorm:"index"`
	Side    string
	Qty     int64
	Price   decimal.Decimal `gorm:"type:numeric(20,8)"`
}

// Audit persists window outcomes asynchronously. Persistence is
// best-effort: a full queue or a write failure never blocks or fails
// settlement.
type Audit struct {
	db    *gorm.DB
	queue chan clearing.Result

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAudit migrates the schema and starts the writer goroutine.
func NewAudit(db *gorm.DB) (*Audit, error) {
	if err := db.AutoMigrate(&WindowRecord{}, &FillRecord{}); err != nil {
		return nil, err
	}
	a := &Audit{
		db:    db,
		queue: make(chan clearing.Result, queueSize),
	}
	a.wg.Add(1)
	go a.run()
	return a, nil
}

// Record queues a window outcome for persistence. Drops when the
// writer cannot keep up.
func (a *Audit) Record(res clearing.Result) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- res:
	default:
		logs.Errorf("audit queue full, dropping window record. topic: %d, seq: %d", res.Topic, res.Seq)
	}
}

// Close drains the queue and stops the writer.
func (a *Audit) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	a.wg.Wait()
}

func (a *Audit) run() {
	defer a.wg.Done()
	for res := range a.queue {
		if err := a.persist(res); err != nil {
			logs.Errorf("persist window record failed. topic: %d, seq: %d, err: %+v", res.Topic, res.Seq, err)
		}
	}
}

func (a *Audit) persist(res clearing.Result) error {
	window := WindowRecord{
		TopicID:       uint32(res.Topic),
		Seq:           res.Seq,
		State:         schema.WindowStateSettled.String(),
		ClearingPrice: decimal.NewFromFloat(res.ClearingPrice),
		Matched:       res.Matched,
		PoolIssued:    res.PoolIssued,
		ShortBorrowed: res.ShortBorrowed,
		Squeezed:      res.Squeezed,
		SettledAt:     time.Now(),
	}

	fills := make([]FillRecord, 0, len(res.Fills))
	for _, fill := range res.Fills {
		fills = append(fills, FillRecord{
			TopicID: uint32(res.Topic),
			Seq:     res.Seq,
			OrderID: string(fill.OrderID),
			Owner:   fill.Owner,
			Side:    fill.Side.String(),
			Qty:     fill.Qty,
			Price:   decimal.NewFromFloat(fill.Price),
		})
	}

	return a.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&window).Error; err != nil {
			return err
		}
		if len(fills) == 0 {
			return nil
		}
		return tx.Create(&fills).Error
	})
}

// Windows returns the most recent window records for a topic.
func (a *Audit) Windows(ctx context.Context, topic schema.TopicID, limit int) ([]WindowRecord, error) {
	var out []WindowRecord
	err := a.db.WithContext(ctx).
		Where("topic_id = ?", uint32(topic)).
		Order("seq desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// Fills returns the fills recorded for one window.
func (a *Audit) Fills(ctx context.Context, topic schema.TopicID, seq uint64) ([]FillRecord, error) {
	var out []FillRecord
	err := a.db.WithContext(ctx).
		Where("topic_id = ? AND seq = ?", uint32(topic), seq).
		Find(&out).Error
	return out, err
}
