package river

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"
)

// EventWorker consumes lifecycle events. Events are recorded in the log; the
// job table keeps the durable history.
type EventWorker struct {
	river.WorkerDefaults[EventJobArgs]
}

// Work processes a single event job.
func (w *EventWorker) Work(ctx context.Context, job *river.Job[EventJobArgs]) error {
	slog.InfoContext(ctx, "tenant event",
		"event", job.Args.Event,
		"tenant_id", job.Args.TenantID,
		"subdomain", job.Args.Subdomain,
		"status", job.Args.Status,
		"job_id", job.ID,
		"attempt", job.Attempt,
	)
	return nil
}
