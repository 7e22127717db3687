package reviewqueue

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
)

const (
	// DefaultSweepInterval is how often the sweeper scans for stale items.
	DefaultSweepInterval = time.Minute

	// DefaultMaxItemAge is how long an item may sit undecided before it
	// expires.
	DefaultMaxItemAge = 30 * 24 * time.Hour
)

// SweeperConfig controls the expiry sweeper.
type SweeperConfig struct {
	// Interval between sweeps.
	Interval time.Duration

	// MaxItemAge is the age past which undecided items expire.
	MaxItemAge time.Duration
}

// Sweeper expires review queue items that sat undecided for too long. It
// runs as a background goroutine between Start and Stop.
type Sweeper struct {
	manager *Manager
	config  SweeperConfig
	logger  ectologger.Logger
	now     func() time.Time

	stopCh    chan struct{}
	stoppedCh chan struct{}

	running bool
	mu      sync.RWMutex
}

// NewSweeper creates an expiry sweeper over the queue manager.
func NewSweeper(manager *Manager, config SweeperConfig, logger ectologger.Logger) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = DefaultSweepInterval
	}
	if config.MaxItemAge <= 0 {
		config.MaxItemAge = DefaultMaxItemAge
	}

	return &Sweeper{
		manager:   manager,
		config:    config,
		logger:    logger,
		now:       time.Now,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return stderrors.New("sweeper already running")
	}
	s.running = true
	s.mu.Unlock()

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"interval":     s.config.Interval.String(),
		"max_item_age": s.config.MaxItemAge.String(),
	}).Info("Starting review queue sweeper")

	go s.loop(ctx)
	return nil
}

// Stop shuts the sweep loop down, waiting for an in-flight sweep to finish
// or the context to expire.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)

	select {
	case <-s.stoppedCh:
		s.logger.WithContext(ctx).Info("Review queue sweeper stopped")
		return nil
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("Review queue sweeper shutdown timed out")
		return ctx.Err()
	}
}

// IsRunning reports whether the sweep loop is active.
func (s *Sweeper) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.stoppedCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.sweep(ctx); err != nil {
				s.logger.WithContext(ctx).WithError(err).Error("Review queue sweep failed")
			}
		}
	}
}

// sweep expires every non-terminal item older than MaxItemAge and returns
// how many items it expired.
func (s *Sweeper) sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.config.MaxItemAge)

	items, err := s.manager.List(ctx, models.QueueFilter{
		Status: []models.QueueStatus{models.QueueStatusPending, models.QueueStatusReviewing},
		Until:  &cutoff,
	})
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, item := range items.Items {
		if _, err := s.manager.UpdateStatus(ctx, item.ID, models.QueueStatusExpired); err != nil {
			s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"queue_item_id": item.ID,
			}).Warn("Failed to expire review queue item")
			continue
		}
		expired++
	}

	if expired > 0 {
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"expired": expired,
			"cutoff":  cutoff,
		}).Info("Expired stale review queue items")
	}
	return expired, nil
}
