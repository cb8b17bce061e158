package auction

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/schema"
)

// Config defines the auction cadence.
type Config struct {
	// BaseInterval is the nominal spacing between windows.
	BaseInterval time.Duration `json:"baseInterval"`
	// Jitter is the maximum deviation applied per window in either
	// direction, so participants cannot time the exact boundary.
	Jitter time.Duration `json:"jitter"`
}

// DefaultConfig returns the auction defaults.
func DefaultConfig() Config {
	return Config{
		BaseInterval: 15 * time.Minute,
		Jitter:       2 * time.Minute,
	}
}

// Runner executes one full window for a topic: swap, price, clear,
// settle, publish. Exactly-once per window is guaranteed by the book's
// state machine, not by the caller.
type Runner interface {
	RunWindow(topic schema.TopicID)
}

// Scheduler drives one window loop per topic. Topics are fully
// independent: a slow clear on one never delays another.
type Scheduler struct {
	cfg    Config
	clock  Clock
	runner Runner
	books  map[schema.TopicID]*Book

	rngMu sync.Mutex
	rng   *rand.Rand

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler over the given books. A nil rng
// seeds from the clock.
func NewScheduler(cfg Config, clock Clock, runner Runner, books map[schema.TopicID]*Book, rng *rand.Rand) *Scheduler {
	if clock == nil {
		clock = NewRealClock()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(clock.Now().UnixNano()))
	}
	return &Scheduler{
		cfg:    cfg,
		clock:  clock,
		runner: runner,
		books:  books,
		rng:    rng,
	}
}

// Start launches one scheduling loop per topic.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	for topic, book := range s.books {
		s.wg.Add(1)
		go s.loop(ctx, topic, book)
	}
	logs.Infof("auction scheduler started, topics: %d, interval: %s ± %s",
		len(s.books), s.cfg.BaseInterval, s.cfg.Jitter)
}

// Stop cancels all loops and waits for them to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, topic schema.TopicID, book *Book) {
	defer s.wg.Done()
	for {
		wait := s.nextInterval()
		book.SetScheduledAt(s.clock.Now().Add(wait).UnixNano())

		select {
		case <-ctx.Done():
			return
		case <-sys.Shutdown():
			return
		case <-s.clock.After(wait):
			s.runner.RunWindow(topic)
		}
	}
}

// nextInterval draws base ± jitter uniformly.
func (s *Scheduler) nextInterval() time.Duration {
	if s.cfg.Jitter <= 0 {
		return s.cfg.BaseInterval
	}
	s.rngMu.Lock()
	offset := time.Duration(s.rng.Int63n(int64(2*s.cfg.Jitter))) - s.cfg.Jitter
	s.rngMu.Unlock()

	interval := s.cfg.BaseInterval + offset
	if interval <= 0 {
		interval = time.Millisecond
	}
	return interval
}
