package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"

	"github.com/neomorfeo/koperasi/internal/adapter/fsm"
	"github.com/neomorfeo/koperasi/internal/adapter/midtrans"
	oteladapter "github.com/neomorfeo/koperasi/internal/adapter/otel"
	"github.com/neomorfeo/koperasi/internal/adapter/password"
	"github.com/neomorfeo/koperasi/internal/adapter/pool"
	"github.com/neomorfeo/koperasi/internal/adapter/postgres"
	riveradapter "github.com/neomorfeo/koperasi/internal/adapter/river"
	"github.com/neomorfeo/koperasi/internal/adapter/sqlite"
	"github.com/neomorfeo/koperasi/internal/app"
	"github.com/neomorfeo/koperasi/internal/config"
	"github.com/neomorfeo/koperasi/internal/domain"
	"github.com/neomorfeo/koperasi/internal/tenancy"

	handler "github.com/neomorfeo/koperasi/internal/adapter/http"
)

func main() {
	if err := run(); err != nil {
		slog.Error("koperasi exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.DefaultEnvFiles...)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability ---
	providers, err := oteladapter.Setup(ctx, oteladapter.Config{
		ServiceName:    cfg.Otel.ServiceName,
		ServiceVersion: cfg.Otel.ServiceVersion,
		Environment:    cfg.Otel.Environment,
		Exporter:       cfg.Otel.Exporter,
		Insecure:       cfg.Otel.Environment != "production",
	})
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			slog.Error("otel shutdown", "error", err)
		}
	}()

	// --- Adapters (out) ---
	st, err := openStorage(cfg)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer st.Close()

	namespaces := pool.New(st.open, cfg.HandlePoolSize, cfg.HandlePoolTTL, st.opts...)
	defer namespaces.Close()

	repo := oteladapter.NewTracingRepository(st.directory)
	provisioner := oteladapter.NewTracingProvisioner(st.provisioner)

	driver, err := riveradapter.NewDriver(cfg.StorageDriver, st.db)
	if err != nil {
		return fmt.Errorf("river: %w", err)
	}
	inserter, err := riveradapter.NewInserter(driver)
	if err != nil {
		return fmt.Errorf("river: %w", err)
	}
	publisher := oteladapter.NewTracingPublisher(riveradapter.NewPublisher(inserter))
	hasher := password.NewHasher(cfg.BcryptCost)

	// --- Application ---
	tenants := app.NewTenantService(repo, provisioner, fsm.New(), publisher, hasher)
	payments := app.NewPaymentService(
		midtrans.New(midtrans.Config{
			ServerKey:   cfg.Midtrans.ServerKey,
			APIURL:      cfg.Midtrans.APIURL,
			SnapURL:     cfg.Midtrans.SnapURL,
			StatusCheck: cfg.Midtrans.StatusCheck,
			Timeout:     cfg.Midtrans.Timeout,
		}),
		riveradapter.NewActivationQueue(inserter),
		repo,
		cfg.SubscriptionFee,
	)
	members := app.NewMemberService(hasher)

	workers, err := riveradapter.Setup(ctx, driver, tenants)
	if err != nil {
		return fmt.Errorf("river: %w", err)
	}
	// Workers outlive the signal context so in-flight jobs finish during Stop.
	if err := workers.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("starting river: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := workers.Stop(stopCtx); err != nil {
			slog.Error("river shutdown", "error", err)
		}
	}()

	// --- Adapters (in) ---
	router := chi.NewMux()
	router.Use(otelchi.Middleware(cfg.Otel.ServiceName, otelchi.WithChiRoutes(router)))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(tenancy.Middleware(
		tenancy.NewHostResolver(cfg.PlatformHosts),
		tenancy.NewProvider(repo, namespaces),
	))

	api := humachi.New(router, huma.DefaultConfig("koperasi", cfg.Otel.ServiceVersion))
	handler.Register(api, handler.Services{
		Tenants:  tenants,
		Payments: payments,
		Members:  members,
	})

	// --- Server ---
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("koperasi listening",
			"addr", srv.Addr,
			"storage", cfg.StorageDriver,
			"docs", fmt.Sprintf("http://localhost:%d/docs", cfg.Port),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	slog.Info("stopped")
	return nil
}

func setupLogger(cfg config.Config) {
	level, _ := cfg.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

// directory is the tenant directory both storage drivers provide.
type directory interface {
	domain.TenantRepository
	Close() error
}

// storage bundles the directory, the provisioner, and the namespace opener of
// one storage driver. db is the directory database River shares.
type storage struct {
	directory   directory
	provisioner domain.Provisioner
	open        pool.Opener
	opts        []pool.Option
	db          *sql.DB
}

func (s storage) Close() {
	if err := s.directory.Close(); err != nil {
		slog.Error("closing directory", "error", err)
	}
}

func openStorage(cfg config.Config) (storage, error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		return openPostgres(cfg)
	default:
		return openSQLite(cfg)
	}
}

func openSQLite(cfg config.Config) (storage, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return storage{}, fmt.Errorf("creating data directory: %w", err)
	}

	dsn := sqlite.DSN(filepath.Join(cfg.DataDir, "directory.db"))
	db, err := oteladapter.OpenDB(sqlite.DriverName, dsn, oteladapter.SystemSQLite)
	if err != nil {
		return storage{}, err
	}
	// SQLite allows one writer; River and the directory share this handle.
	db.SetMaxOpenConns(1)

	dir, err := sqlite.NewFromDB(db)
	if err != nil {
		db.Close()
		return storage{}, err
	}

	store := sqlite.NewNamespaceStore(dir, cfg.DataDir)

	return storage{
		directory:   dir,
		provisioner: store,
		open:        store.Open,
		opts:        []pool.Option{pool.WithConnHook(sqlite.Confine)},
		db:          db,
	}, nil
}

func openPostgres(cfg config.Config) (storage, error) {
	db, err := oteladapter.OpenDB(postgres.DriverName, cfg.DatabaseURL, oteladapter.SystemPostgres)
	if err != nil {
		return storage{}, err
	}

	dir, err := postgres.NewFromDB(db)
	if err != nil {
		db.Close()
		return storage{}, err
	}

	store, err := postgres.NewSchemaStore(dir, cfg.DatabaseURL, cfg.NamespaceRoleSecret, oteladapter.OpenConnector(oteladapter.SystemPostgres))
	if err != nil {
		dir.Close()
		return storage{}, err
	}

	return storage{directory: dir, provisioner: store, open: store.Open, db: db}, nil
}
