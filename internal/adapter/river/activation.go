package river

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/koperasi/internal/domain"
)

// Compile-time check: ActivationQueue implements domain.ActivationQueue.
var _ domain.ActivationQueue = (*ActivationQueue)(nil)

// ActivationJobArgs asks for a tenant to be activated after a settled payment.
type ActivationJobArgs struct {
	TenantID      string `json:"tenant_id"`
	TransactionID string `json:"transaction_id"`
}

func (ActivationJobArgs) Kind() string { return "tenant.activate" }

// InsertOpts makes redelivered notifications for the same transaction
// collapse into one job.
func (ActivationJobArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		MaxAttempts: 10,
		UniqueOpts:  river.UniqueOpts{ByArgs: true},
	}
}

// ActivationQueue enqueues activation jobs.
type ActivationQueue struct {
	client *Client
}

// NewActivationQueue creates a queue backed by the given River client.
func NewActivationQueue(client *Client) *ActivationQueue {
	return &ActivationQueue{client: client}
}

func (q *ActivationQueue) EnqueueActivation(ctx context.Context, tenantID, transactionID string) error {
	_, err := q.client.Insert(ctx, ActivationJobArgs{TenantID: tenantID, TransactionID: transactionID}, nil)
	if err != nil {
		return fmt.Errorf("enqueuing activation job: %w", err)
	}
	return nil
}

// Activator activates a tenant by ID.
type Activator interface {
	Activate(ctx context.Context, id string) (domain.Tenant, error)
}

// ActivationWorker runs activation jobs. Jobs for unknown tenants or tenants
// that cannot be activated are cancelled; other failures are retried.
type ActivationWorker struct {
	river.WorkerDefaults[ActivationJobArgs]
	activator Activator
}

// NewActivationWorker creates a worker that delegates to activator.
func NewActivationWorker(activator Activator) *ActivationWorker {
	return &ActivationWorker{activator: activator}
}

func (w *ActivationWorker) Work(ctx context.Context, job *river.Job[ActivationJobArgs]) error {
	tenant, err := w.activator.Activate(ctx, job.Args.TenantID)

	var transitionErr *domain.TransitionError
	switch {
	case err == nil:
		slog.InfoContext(ctx, "tenant activated by payment",
			"tenant_id", tenant.ID,
			"subdomain", tenant.Subdomain,
			"transaction_id", job.Args.TransactionID,
		)
		return nil
	case errors.Is(err, domain.ErrTenantNotFound), errors.As(err, &transitionErr):
		slog.WarnContext(ctx, "payment activation cancelled",
			"tenant_id", job.Args.TenantID,
			"transaction_id", job.Args.TransactionID,
			"error", err,
		)
		return river.JobCancel(err)
	default:
		return err
	}
}
