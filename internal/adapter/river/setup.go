package river

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver"
	"github.com/riverqueue/river/riverdriver/riverdatabasesql"
	"github.com/riverqueue/river/riverdriver/riversqlite"
	"github.com/riverqueue/river/rivermigrate"
)

// Driver is a River driver over database/sql.
type Driver = riverdriver.Driver[*sql.Tx]

// NewDriver returns the River driver for the given storage driver name
// ("sqlite" or "postgres").
func NewDriver(storage string, db *sql.DB) (Driver, error) {
	switch storage {
	case "sqlite":
		return riversqlite.New(db), nil
	case "postgres":
		return riverdatabasesql.New(db), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", storage)
	}
}

// Migrate runs River's own migrations (river_job, river_leader, etc.). These
// are separate from the app's goose migrations.
func Migrate(ctx context.Context, driver Driver) error {
	migrator, err := rivermigrate.New(driver, nil)
	if err != nil {
		return fmt.Errorf("creating river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return fmt.Errorf("running river migrations: %w", err)
	}
	return nil
}

// NewInserter creates a client that only inserts jobs. Publishers and queues
// use it so they can exist before the services the workers depend on.
func NewInserter(driver Driver) (*Client, error) {
	client, err := river.NewClient(driver, &river.Config{})
	if err != nil {
		return nil, fmt.Errorf("creating river inserter: %w", err)
	}
	return client, nil
}

// Setup runs River's migrations and creates a client with the event and
// activation workers registered. The caller must call client.Start() to begin
// processing jobs and client.Stop() for graceful shutdown.
func Setup(ctx context.Context, driver Driver, activator Activator) (*Client, error) {
	if err := Migrate(ctx, driver); err != nil {
		return nil, err
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &EventWorker{})
	river.AddWorker(workers, NewActivationWorker(activator))

	client, err := river.NewClient(driver, &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 2},
		},
		Workers: workers,
	})
	if err != nil {
		return nil, fmt.Errorf("creating river client: %w", err)
	}

	return client, nil
}
