package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/tendant/tenantctx/pkg/ratelimit"
)

// PruneTask deletes expired rows and reports how many were removed.
type PruneTask struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

// Janitor periodically runs prune tasks for expired cache entries and
// finished rate-limit windows.
type Janitor struct {
	logger   *slog.Logger
	interval time.Duration
	tasks    []PruneTask
}

// NewJanitor creates a janitor running tasks every interval.
func NewJanitor(logger *slog.Logger, interval time.Duration, tasks ...PruneTask) *Janitor {
	return &Janitor{logger: logger, interval: interval, tasks: tasks}
}

// Run blocks until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	if j.interval <= 0 || len(j.tasks) == 0 {
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce runs every task once. Failures are logged and do not stop the
// remaining tasks.
func (j *Janitor) RunOnce(ctx context.Context) {
	for _, task := range j.tasks {
		removed, err := task.Run(ctx)
		if err != nil {
			j.logger.Error("prune failed", "task", task.Name, "error", err)
			continue
		}
		if removed > 0 {
			j.logger.Debug("pruned expired rows", "task", task.Name, "removed", removed)
		}
	}
}

// PruneTask removes rate-limit windows that have ended. maxWindow is the
// longest window configured for any endpoint.
func (r *RateLimitsRepository) PruneTask(maxWindow time.Duration) PruneTask {
	return PruneTask{
		Name: "rate_limits",
		Run: func(ctx context.Context) (int64, error) {
			return r.DeleteBefore(ctx, ratelimit.PruneCutoff(r.now(), maxWindow))
		},
	}
}

// PruneTask removes expired cache entries.
func (r *TenantCacheRepository) PruneTask() PruneTask {
	return PruneTask{
		Name: "tenant_cache",
		Run:  r.DeleteExpired,
	}
}
