package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/cuappdev/clicker-backend/internal/session"
)

// IdleReaper ends sessions nobody has been connected to for a while. Running
// polls are stored before the session closes.
type IdleReaper struct {
	registry *session.Registry
	schedule string
	idle     time.Duration
	timeout  time.Duration
	log      *zap.Logger
	cron     *cron.Cron
	now      func() time.Time
}

func NewIdleReaper(registry *session.Registry, schedule string, idle, timeout time.Duration, log *zap.Logger) *IdleReaper {
	return &IdleReaper{
		registry: registry,
		schedule: schedule,
		idle:     idle,
		timeout:  timeout,
		log:      log,
		cron:     cron.New(),
		now:      time.Now,
	}
}

// Start schedules the reaper. A zero idle timeout disables it.
func (r *IdleReaper) Start() error {
	if r.idle <= 0 {
		r.log.Info("idle session reaper disabled")
		return nil
	}
	_, err := r.cron.AddFunc(r.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if n := r.RunOnce(ctx); n > 0 {
			r.log.Info("reaped idle sessions", zap.Int("count", n))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule idle reaper: %w", err)
	}
	r.cron.Start()
	r.log.Info("idle session reaper started", zap.String("schedule", r.schedule), zap.Duration("idle", r.idle))
	return nil
}

// Stop waits for a running pass to finish.
func (r *IdleReaper) Stop() {
	<-r.cron.Stop().Done()
}

// RunOnce ends every session idle for at least the configured duration and
// returns how many were ended.
func (r *IdleReaper) RunOnce(ctx context.Context) int {
	ended := 0
	now := r.now()
	for _, s := range r.registry.Sessions() {
		if s.IsClosing() {
			continue
		}
		since, empty := s.Channel().IdleSince()
		if !empty || now.Sub(since) < r.idle {
			continue
		}
		if err := r.registry.EndSession(ctx, s.Group.ID, true); err != nil {
			r.log.Warn("failed to end idle session", zap.String("groupId", s.Group.ID), zap.Error(err))
			continue
		}
		ended++
	}
	return ended
}
