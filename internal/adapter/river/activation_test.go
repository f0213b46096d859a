package river_test

import (
	"context"
	"sync"
	"testing"

	goriver "github.com/riverqueue/river"

	riveradapter "github.com/neomorfeo/koperasi/internal/adapter/river"
	"github.com/neomorfeo/koperasi/internal/domain"
)

type fakeActivator struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeActivator) Activate(_ context.Context, id string) (domain.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	if f.err != nil {
		return domain.Tenant{}, f.err
	}
	return domain.NewTenant(id, "Maju", "majujaya", domain.StatusActive), nil
}

func (f *fakeActivator) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func TestActivationQueue_ActivatesTenant(t *testing.T) {
	driver := newDriver(t, setupTestDB(t))
	activator := &fakeActivator{}
	client, events := startClient(t, driver, activator, goriver.EventKindJobCompleted)

	queue := riveradapter.NewActivationQueue(client)
	if err := queue.EnqueueActivation(context.Background(), "t-1", "trx-1"); err != nil {
		t.Fatalf("EnqueueActivation failed: %v", err)
	}

	event := waitForEvent(t, events)
	if event.Job.Kind != "tenant.activate" {
		t.Errorf("job kind = %q, want %q", event.Job.Kind, "tenant.activate")
	}
	if calls := activator.Calls(); len(calls) != 1 || calls[0] != "t-1" {
		t.Errorf("activator calls = %v, want [t-1]", calls)
	}
}

func TestActivationWorker_CancelsPermanentFailures(t *testing.T) {
	cases := map[string]error{
		"not found":  domain.ErrTenantNotFound,
		"transition": &domain.TransitionError{Event: domain.EventActivate, Current: domain.StatusRejected},
	}

	for name, cause := range cases {
		t.Run(name, func(t *testing.T) {
			driver := newDriver(t, setupTestDB(t))
			activator := &fakeActivator{err: cause}
			client, events := startClient(t, driver, activator, goriver.EventKindJobCancelled)

			if err := riveradapter.NewActivationQueue(client).EnqueueActivation(context.Background(), "t-9", "trx-9"); err != nil {
				t.Fatalf("EnqueueActivation failed: %v", err)
			}

			event := waitForEvent(t, events)
			if event.Job.Kind != "tenant.activate" {
				t.Errorf("job kind = %q", event.Job.Kind)
			}
			if n := len(activator.Calls()); n != 1 {
				t.Errorf("activator called %d times, want 1", n)
			}
		})
	}
}

func TestActivationQueue_DeduplicatesTransaction(t *testing.T) {
	db := setupTestDB(t)
	driver := newDriver(t, db)
	ctx := context.Background()

	if err := riveradapter.Migrate(ctx, driver); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	inserter, err := riveradapter.NewInserter(driver)
	if err != nil {
		t.Fatalf("NewInserter failed: %v", err)
	}

	queue := riveradapter.NewActivationQueue(inserter)
	for range 3 {
		if err := queue.EnqueueActivation(ctx, "t-1", "trx-1"); err != nil {
			t.Fatalf("EnqueueActivation failed: %v", err)
		}
	}
	if err := queue.EnqueueActivation(ctx, "t-1", "trx-2"); err != nil {
		t.Fatalf("EnqueueActivation failed: %v", err)
	}

	res, err := inserter.JobList(ctx, goriver.NewJobListParams().Kinds("tenant.activate"))
	if err != nil {
		t.Fatalf("JobList failed: %v", err)
	}
	if len(res.Jobs) != 2 {
		t.Errorf("got %d activation jobs, want 2 (one per transaction)", len(res.Jobs))
	}
}
