package service

import (
	"context"
	"sync"
	"time"

	"github.com/switchboard-labs/switchboard/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultJanitorInterval  = 1 * time.Hour
	defaultDeadLetterMaxAge = 30 * 24 * time.Hour
)

// Janitor periodically purges dead letters that agents have already fetched.
type Janitor struct {
	deadLetters domain.DeadLetterStore
	logger      *zap.Logger
	now         Clock

	interval time.Duration
	maxAge   time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewJanitor(dl domain.DeadLetterStore, logger *zap.Logger) *Janitor {
	return &Janitor{
		deadLetters: dl,
		logger:      logger,
		now:         utcNow,
		interval:    defaultJanitorInterval,
		maxAge:      defaultDeadLetterMaxAge,
		stopCh:      make(chan struct{}),
	}
}

func (j *Janitor) SetInterval(d time.Duration) {
	j.interval = d
}

// SetMaxAge sets how long acknowledged dead letters are kept.
func (j *Janitor) SetMaxAge(d time.Duration) {
	j.maxAge = d
}

func (j *Janitor) SetClock(c Clock) {
	j.now = c
}

// Start runs the janitor on a periodic schedule in a background goroutine.
func (j *Janitor) Start() {
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		j.logger.Info("dead letter janitor started",
			zap.Duration("interval", j.interval),
			zap.Duration("max_age", j.maxAge))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				j.RunOnce(ctx)
				cancel()
			case <-j.stopCh:
				j.logger.Info("dead letter janitor stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the janitor.
func (j *Janitor) Stop() {
	close(j.stopCh)
	j.wg.Wait()
}

func (j *Janitor) RunOnce(ctx context.Context) int64 {
	purged, err := j.deadLetters.PurgeAcknowledged(ctx, j.now().Add(-j.maxAge))
	if err != nil {
		j.logger.Error("failed to purge acknowledged dead letters", zap.Error(err))
		return 0
	}
	if purged > 0 {
		j.logger.Info("purged acknowledged dead letters", zap.Int64("count", purged))
	}
	return purged
}
