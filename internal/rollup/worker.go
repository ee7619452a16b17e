package rollup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
)

// Args is the periodic usage-rollup job. It carries no payload; each run
// recomputes the aggregates for the current and previous UTC day.
type Args struct{}

func (Args) Kind() string { return "usage_rollup" }

// UsageRollups is the contract the worker needs from the usage store.
type UsageRollups interface {
	RollupDay(ctx context.Context, day string) error
}

type Worker struct {
	river.WorkerDefaults[Args]
	usage  UsageRollups
	logger *slog.Logger
	now    func() time.Time
}

func NewWorker(usage UsageRollups, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{usage: usage, logger: logger, now: time.Now}
}

// Work upserts the daily aggregates. Yesterday is included so the last
// run before midnight doesn't leave a short day behind.
func (w *Worker) Work(ctx context.Context, _ *river.Job[Args]) error {
	today := w.now().UTC()
	for _, day := range []string{
		today.AddDate(0, 0, -1).Format("2006-01-02"),
		today.Format("2006-01-02"),
	} {
		if err := w.usage.RollupDay(ctx, day); err != nil {
			return fmt.Errorf("rollup %s: %w", day, err)
		}
	}
	w.logger.Info("usage rollup complete", "day", today.Format("2006-01-02"))
	return nil
}
