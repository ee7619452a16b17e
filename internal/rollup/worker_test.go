package rollup

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/riverqueue/river"
)

type mockRollups struct {
	days []string
	err  error
}

func (m *mockRollups) RollupDay(_ context.Context, day string) error {
	m.days = append(m.days, day)
	return m.err
}

func TestWork_RollsUpYesterdayAndToday(t *testing.T) {
	rollups := &mockRollups{}
	w := NewWorker(rollups, slog.Default())
	w.now = func() time.Time { return time.Date(2026, 8, 31, 3, 0, 0, 0, time.UTC) }

	if err := w.Work(context.Background(), &river.Job[Args]{}); err != nil {
		t.Fatalf("Work: %v", err)
	}
	want := []string{"2026-08-30", "2026-08-31"}
	if len(rollups.days) != 2 || rollups.days[0] != want[0] || rollups.days[1] != want[1] {
		t.Errorf("rolled-up days: got %v, want %v", rollups.days, want)
	}
}

func TestWork_PropagatesStoreError(t *testing.T) {
	rollups := &mockRollups{err: errors.New("connection reset")}
	w := NewWorker(rollups, slog.Default())

	if err := w.Work(context.Background(), &river.Job[Args]{}); err == nil {
		t.Fatal("expected an error so the job retries")
	}
}
