// Package app assembles the offline-first client from a Config and owns the
// lifecycle of everything it opens: the SQLite database, the optional gRPC
// health connection, the connectivity monitor and background syncs.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dmitrijs2005/propsync/internal/client/cache"
	"github.com/dmitrijs2005/propsync/internal/client/client"
	"github.com/dmitrijs2005/propsync/internal/client/config"
	"github.com/dmitrijs2005/propsync/internal/client/connectivity"
	"github.com/dmitrijs2005/propsync/internal/client/queue"
	"github.com/dmitrijs2005/propsync/internal/client/services"
	"github.com/dmitrijs2005/propsync/internal/client/session"
	"github.com/dmitrijs2005/propsync/internal/client/state"
	"github.com/dmitrijs2005/propsync/internal/client/storage"
	"github.com/dmitrijs2005/propsync/internal/common"
	"github.com/dmitrijs2005/propsync/internal/filex"
	"github.com/dmitrijs2005/propsync/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// HealthPath is probed under ServerBaseURL when no gRPC health endpoint is
// configured.
const HealthPath = "/health/"

type App struct {
	config *config.Config
	logger logging.Logger

	db   *sql.DB
	conn *grpc.ClientConn

	store      *state.Store
	monitor    *connectivity.Monitor
	session    *session.Manager
	queue      *queue.Queue
	auth       services.AuthService
	properties services.PropertyService

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	stopWatch func()
	closeOnce sync.Once
}

// SyncReport summarises one Sync run.
type SyncReport struct {
	Replayed  int
	Pending   int
	Refreshed bool
}

// New opens local storage and wires every component. The returned App must
// be closed.
func New(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	if _, err := filex.EnsureDir(c.DataDir); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}

	db, err := storage.OpenDatabase(ctx, c.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	app := &App{config: c, logger: logger, db: db}
	if err := app.wire(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) wire(ctx context.Context) error {
	c := a.config

	key, err := storage.DeviceKey(ctx, a.db, []byte(c.DevicePassphrase))
	if err != nil {
		return fmt.Errorf("device key: %w", err)
	}
	secure := storage.NewSecureBackend(storage.NewSQLiteBackend(a.db, storage.TableSecure), key, c.SecureMaxValueSize)

	// The queue stays on this device whatever the bulk backend is.
	local := storage.NewAdapter(secure, storage.NewSQLiteBackend(a.db, storage.TableBulk), c.InlineThreshold, a.logger)
	bulk, err := a.bulkBackend(ctx)
	if err != nil {
		return err
	}
	cached := storage.NewAdapter(secure, bulk, c.InlineThreshold, a.logger)

	prober, err := a.prober()
	if err != nil {
		return err
	}

	a.store = state.New(false)
	a.monitor = connectivity.NewMonitor(prober, c.OnlineCheckInterval, false, a.logger)

	transport := client.NewHTTPTransport(c.ServerBaseURL, nil, c.RequestTimeout, c.UploadTimeout)
	a.queue = queue.New(local, a.logger)
	a.session = session.NewManager(client.NewAuthClient(transport), a.store, cached, a.queue, a.logger)

	interceptor := client.NewInterceptor(transport, a.session, a.logger)
	fetcher := cache.NewFetcher(a.store.Online, cached, cache.Policy{
		Enabled:          c.CacheEnabled,
		PreferCacheFirst: c.PreferCacheFirst,
	}, a.logger)

	a.properties = services.NewPropertyService(interceptor, fetcher, a.queue, cached, a.store, a.logger)
	a.auth = services.NewAuthService(a.session, a.properties, a.logger)

	a.ctx, a.cancel = context.WithCancel(context.WithoutCancel(ctx))
	a.stopWatch = a.monitor.OnChange(a.onConnectivityChange)
	return nil
}

// bulkBackend returns the backend for indirected cache payloads. With S3
// configured it is a mirror that still reads from the local table.
func (a *App) bulkBackend(ctx context.Context) (storage.Backend, error) {
	c := a.config
	local := storage.NewSQLiteBackend(a.db, storage.TableBulk)
	if c.BulkBackend != config.BulkBackendS3 {
		return local, nil
	}

	s3c, err := storage.NewS3Client(ctx, storage.S3Config{
		Bucket:       c.S3Bucket,
		Region:       c.S3Region,
		BaseEndpoint: c.S3BaseEndpoint,
		AccessKey:    c.S3AccessKey,
		SecretKey:    c.S3SecretKey,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 bulk backend: %w", err)
	}
	remote := storage.NewS3Backend(s3c, c.S3Bucket, "propsync/")
	return storage.NewMirrorBackend(local, remote, c.S3Timeout, a.logger), nil
}

func (a *App) prober() (connectivity.Prober, error) {
	if a.config.HealthCheckAddr == "" {
		url := strings.TrimRight(a.config.ServerBaseURL, "/") + HealthPath
		return connectivity.NewHTTPProber(nil, url), nil
	}

	conn, err := grpc.NewClient(a.config.HealthCheckAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("health client: %w", err)
	}
	a.conn = conn
	return connectivity.NewGRPCHealthProber(conn, ""), nil
}

// Start probes connectivity once, starts background polling and restores a
// persisted session. It reports whether a usable session exists.
func (a *App) Start(ctx context.Context) (bool, error) {
	a.monitor.Check(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.monitor.Run(a.ctx)
	}()

	ok, err := a.auth.Startup(ctx)
	if err != nil {
		return false, err
	}
	if ok && a.store.Online() {
		a.syncInBackground()
	}
	return ok, nil
}

// onConnectivityChange mirrors the monitor into the state store and, on
// reconnect with a session present, replays the queue once.
func (a *App) onConnectivityChange(online bool) {
	a.store.SetOnline(online)
	if !online || !a.store.Session().HasToken() {
		return
	}
	a.syncInBackground()
}

func (a *App) syncInBackground() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		report, err := a.Sync(a.ctx)
		switch {
		case errors.Is(err, common.ErrDrainInProgress):
			a.logger.Debug(a.ctx, "sync skipped, drain already running")
		case err != nil:
			a.logger.Warn(a.ctx, "background sync failed", "err", err, "pending", report.Pending)
		default:
			a.logger.Info(a.ctx, "background sync done", "replayed", report.Replayed)
		}
	}()
}

// Sync makes sure the token is usable, drains the offline queue and then
// refreshes the prefetched resources.
func (a *App) Sync(ctx context.Context) (SyncReport, error) {
	var r SyncReport
	if !a.store.Online() {
		return r, common.ErrUnavailable
	}
	if !a.session.CheckAndRefreshIfNeeded(ctx) {
		return r, common.ErrNotAuthenticated
	}

	n, err := a.queue.Drain(ctx)
	r.Replayed = n
	r.Pending = a.queue.Len(ctx)
	if err != nil {
		return r, fmt.Errorf("drain queue: %w", err)
	}

	if err := a.properties.RefreshStale(ctx); err != nil {
		return r, fmt.Errorf("refresh cached data: %w", err)
	}
	r.Refreshed = true
	return r, nil
}

func (a *App) Config() *config.Config               { return a.config }
func (a *App) Store() *state.Store                  { return a.store }
func (a *App) Monitor() *connectivity.Monitor       { return a.monitor }
func (a *App) Queue() *queue.Queue                  { return a.queue }
func (a *App) Auth() services.AuthService           { return a.auth }
func (a *App) Properties() services.PropertyService { return a.properties }

// Close stops background work and releases the database and gRPC connection.
func (a *App) Close() error {
	var errs []error
	a.closeOnce.Do(func() {
		if a.stopWatch != nil {
			a.stopWatch()
		}
		if a.cancel != nil {
			a.cancel()
		}
		a.wg.Wait()

		if a.conn != nil {
			if err := a.conn.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close health conn: %w", err))
			}
		}
		if a.db != nil {
			if err := a.db.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close db: %w", err))
			}
		}
	})
	return errors.Join(errs...)
}
