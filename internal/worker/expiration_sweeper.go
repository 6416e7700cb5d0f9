package worker

import (
	"context"
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/ignite/loyalty-core/internal/pkg/distlock"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultSweepInterval  = time.Hour
	DefaultSweepBatchSize = 500
	sweepLockKey          = "sweep:expirations"
	sweepLockTTL          = 10 * time.Minute
)

// ExpirerService expires due cashback lots in batches. Implemented by the
// ledger service.
type ExpirerService interface {
	ExpireDue(ctx context.Context, now time.Time, limit int) (int, error)
}

// ExpirationSweeper runs the hourly expiration sweep. The sweep is
// idempotent, so overlapping runs after a crash only waste work.
type ExpirationSweeper struct {
	ledger      ExpirerService
	db          *sql.DB
	redisClient *redis.Client

	interval  time.Duration
	batchSize int

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewExpirationSweeper wires the sweeper with default cadence.
func NewExpirationSweeper(ledger ExpirerService, db *sql.DB, redisClient *redis.Client) *ExpirationSweeper {
	return &ExpirationSweeper{
		ledger:      ledger,
		db:          db,
		redisClient: redisClient,
		interval:    DefaultSweepInterval,
		batchSize:   DefaultSweepBatchSize,
	}
}

// SetInterval overrides the sweep cadence.
func (s *ExpirationSweeper) SetInterval(iv time.Duration) { s.interval = iv }

// Start begins the sweep loop.
func (s *ExpirationSweeper) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	log.Printf("[ExpirationSweeper] starting, interval %v", s.interval)
	s.wg.Add(1)
	go s.loop()
	return nil
}

// Stop waits for an in-flight sweep to finish.
func (s *ExpirationSweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	log.Printf("[ExpirationSweeper] stopped")
}

func (s *ExpirationSweeper) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(s.ctx)
		}
	}
}

// RunOnce performs one locked sweep, draining batches until no lot is due.
func (s *ExpirationSweeper) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, sweepLockTTL)
	defer cancel()

	lock := distlock.NewLock(s.redisClient, s.db, sweepLockKey, sweepLockTTL)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		log.Printf("[ExpirationSweeper] lock acquire: %v", err)
		return
	}
	if !ok {
		return
	}
	defer lock.Release(ctx)

	total := 0
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := s.ledger.ExpireDue(ctx, time.Now(), s.batchSize)
		if err != nil {
			log.Printf("[ExpirationSweeper] expire batch: %v", err)
			return
		}
		total += n
		if n < s.batchSize {
			break
		}
	}
	if total > 0 {
		log.Printf("[ExpirationSweeper] expired %d lots", total)
	}
}
