// Package scheduler owns the recurring expiry sweep of the cache tree.
package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/static-hub/static-hub/internal/cache"
	"github.com/static-hub/static-hub/internal/settings"
)

// DefaultInterval 是过期清理的默认周期。
const DefaultInterval = time.Hour

// Sweeper 按固定周期对缓存根目录执行 cache.Sweep，每次都读取最新的设置快照。
type Sweeper struct {
	root     string
	settings *settings.Holder
	interval time.Duration
	logger   *logrus.Logger
	now      func() time.Time
}

// NewSweeper 创建 Sweeper；interval <= 0 时使用 DefaultInterval。
func NewSweeper(root string, holder *settings.Holder, interval time.Duration, logger *logrus.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		root:     root,
		settings: holder,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Interval 返回实际生效的周期。
func (s *Sweeper) Interval() time.Duration {
	return s.interval
}

// Tick 执行一次清理。
func (s *Sweeper) Tick() cache.SweepResult {
	lifespan := s.settings.Load().Lifespan()
	started := s.now()
	result := cache.Sweep(s.root, lifespan, started)

	if s.logger != nil && lifespan > 0 {
		for _, err := range result.Failures {
			s.logger.WithError(err).WithField("action", "sweep").Warn("sweep_entry_failed")
		}
		s.logger.WithFields(logrus.Fields{
			"action":     "sweep",
			"lifespan":   lifespan.String(),
			"scanned":    result.Scanned,
			"removed":    result.Removed,
			"failures":   len(result.Failures),
			"elapsed_ms": time.Since(started).Milliseconds(),
		}).Info("sweep_completed")
	}
	return result
}

// Run 在 ctx 结束前按周期调用 Tick。
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}
