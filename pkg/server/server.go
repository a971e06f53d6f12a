// Package server assembles the cloud service: directory, catalogs, file
// service, process runner, report archive, mailer, dispatcher and the
// two TLS listeners, with one place owning startup and shutdown order.
package server

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rangelabs/rangecloud/internal/logger"
	"github.com/rangelabs/rangecloud/pkg/api"
	"github.com/rangelabs/rangecloud/pkg/catalog"
	"github.com/rangelabs/rangecloud/pkg/config"
	"github.com/rangelabs/rangecloud/pkg/directory"
	"github.com/rangelabs/rangecloud/pkg/dispatch"
	"github.com/rangelabs/rangecloud/pkg/filestore"
	"github.com/rangelabs/rangecloud/pkg/mailer"
	"github.com/rangelabs/rangecloud/pkg/metrics"
	"github.com/rangelabs/rangecloud/pkg/process"
	"github.com/rangelabs/rangecloud/pkg/report"
)

// Application owns every service instance and their lifecycle.
type Application struct {
	cfg     *config.Config
	version string

	dir         *directory.Directory
	actions     *catalog.Catalog
	procCatalog *process.Catalog
	files       *filestore.Service
	processes   *process.Service
	reports     *report.Archive
	mail        *mailer.Mailer
	dispatcher  *dispatch.Dispatcher

	reloader *api.CertReloader
	public   *api.Listener
	private  *api.Listener
	metrics  *metrics.Server

	stopOnce sync.Once
	stopped  chan struct{}
}

// New wires the application from configuration. Nothing is started yet;
// call Run.
func New(cfg *config.Config, version string) (*Application, error) {
	app := &Application{
		cfg:     cfg,
		version: version,
		stopped: make(chan struct{}),
	}

	if err := app.ensureLayout(); err != nil {
		return nil, err
	}

	app.dir = directory.New(cfg.UsersFile())
	if err := app.dir.Load(); err != nil {
		return nil, fmt.Errorf("failed to load user directory: %w", err)
	}

	app.actions = catalog.New(cfg.ActionsFile())
	if err := app.actions.Load(); err != nil {
		return nil, fmt.Errorf("failed to load action catalog: %w", err)
	}

	app.procCatalog = process.NewCatalog(cfg.ProcessesFile())
	if err := app.procCatalog.Load(); err != nil {
		return nil, fmt.Errorf("failed to load process catalog: %w", err)
	}

	// Completion callbacks close over the app: the dispatcher field is
	// assigned below, before anything can run.
	app.files = filestore.New(filestore.Config{
		StoreDir:     cfg.StoreDir(),
		MaxStoreSize: cfg.FileStoreMaxSize,
		MaxFileSize:  cfg.FileStoreMaxFileSize,
	}, app.dir, func(c filestore.Completion) {
		app.dispatcher.FileCompleted(c)
	})

	app.processes = process.NewService(process.Config{
		ProcessesDir: cfg.ProcessesDir(),
		WorkDir:      cfg.VarDir(),
		LogDir:       cfg.LogDir(),
		RangeCADir:   cfg.RangeCADirectory,
	}, app.procCatalog, func(c process.Completion) {
		app.dispatcher.ProcessCompleted(c)
	})

	app.reports = report.NewArchive(report.Config{
		Dir:              cfg.ReportsDir(),
		MaxReportLength:  cfg.MaxReportLength,
		MaxCommentLength: cfg.MaxCommentLength,
	})

	app.mail = mailer.New(mailer.Config{
		SenderAddress: cfg.SenderEmailAddress,
	})

	app.dispatcher = dispatch.New(dispatch.Config{Version: version}, dispatch.Services{
		Directory: app.dir,
		Actions:   app.actions,
		Files:     app.files,
		Processes: app.processes,
		Reports:   app.reports,
		Mail:      app.mail,
	})
	app.dispatcher.OnStop = app.requestStop

	if err := app.buildListeners(); err != nil {
		return nil, err
	}

	if cfg.Metrics.Enabled {
		app.metrics = metrics.NewServer(metrics.Config{Port: cfg.Metrics.Port})
	}

	return app, nil
}

// ensureLayout creates the on-disk tree under the cloud directory.
func (a *Application) ensureLayout() error {
	dirs := []string{
		a.cfg.EtcDir(),
		a.cfg.CertServerDir(),
		a.cfg.CertCADir(),
		a.cfg.StoreDir(),
		a.cfg.LogDir(),
		a.cfg.VarDir(),
		a.cfg.ProcessesDir(),
		a.cfg.ReportsDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %q: %w", dir, err)
		}
	}
	return nil
}

func (a *Application) buildListeners() error {
	reloader, err := api.NewCertReloader(
		a.cfg.ServerCertFile(),
		a.cfg.ServerKeyFile(),
		a.cfg.PrivateKeyPassword,
	)
	if err != nil {
		return fmt.Errorf("failed to load server certificate: %w", err)
	}
	a.reloader = reloader

	privateTLS, err := api.PrivateTLSConfig(reloader, a.cfg.CACertFile())
	if err != nil {
		return fmt.Errorf("failed to build private listener TLS policy: %w", err)
	}

	publicRouter := api.NewRouter(api.RouterConfig{
		Listener:           "public",
		RateLimitPerSecond: a.cfg.RateLimitPerSecond,
	}, a.dispatcher, a.dir)
	a.public = api.NewListener(api.ListenerConfig{
		Name: "public",
		Port: a.cfg.PublicHTTPPort,
		TLS:  api.PublicTLSConfig(reloader),
	}, publicRouter)

	privateRouter := api.NewRouter(api.RouterConfig{
		Listener:           "private",
		RateLimitPerSecond: a.cfg.RateLimitPerSecond,
		TrustExecutor:      true,
	}, a.dispatcher, a.dir)
	a.private = api.NewListener(api.ListenerConfig{
		Name: "private",
		Port: a.cfg.PrivateHTTPPort,
		TLS:  privateTLS,
	}, privateRouter)

	return nil
}

// requestStop is handed to the dispatcher as OnStop so a stop action
// shuts the whole server down.
func (a *Application) requestStop() {
	a.stopOnce.Do(func() { close(a.stopped) })
}

// Run starts every service and blocks until the context is cancelled, a
// stop action arrives or a listener fails. Shutdown is ordered so that
// queued work drains before state is flushed.
func (a *Application) Run(ctx context.Context) error {
	logger.Info("Server starting", "version", a.version, "cloud_dir", a.cfg.CloudDirectory)

	if err := a.files.Start(); err != nil {
		return fmt.Errorf("failed to start file service: %w", err)
	}
	a.mail.Start()
	a.dispatcher.Start()

	listenCtx, cancelListeners := context.WithCancel(context.Background())
	defer cancelListeners()

	errChan := make(chan error, 3)
	var wg sync.WaitGroup

	start := func(name string, run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(listenCtx); err != nil {
				select {
				case errChan <- fmt.Errorf("%s: %w", name, err):
				default:
				}
			}
		}()
	}

	start("public listener", a.public.Start)
	start("private listener", a.private.Start)
	if a.metrics != nil {
		start("metrics server", a.metrics.Start)
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case <-a.stopped:
		logger.Info("Stop action received")
	case runErr = <-errChan:
		logger.Error("Listener failure, shutting down", "error", runErr)
	}

	// Listeners first: no new actions enter the dispatcher.
	cancelListeners()
	wg.Wait()
	a.reloader.Close()

	// Drain in dependency order: file tasks and processes feed
	// completions into the dispatcher, which queues outbound mail.
	a.files.Stop()
	a.processes.Wait()
	a.dispatcher.Stop()
	a.mail.Stop()

	if err := a.flushState(); err != nil {
		logger.Error("State flush failed", "error", err)
		if runErr == nil {
			runErr = err
		}
	}

	logger.Info("Server stopped")
	return runErr
}

// flushState persists the mutable catalogs on shutdown.
func (a *Application) flushState() error {
	var firstErr error
	for name, save := range map[string]func() error{
		"users":     a.dir.Save,
		"actions":   a.actions.Save,
		"processes": a.procCatalog.Save,
	} {
		if err := save(); err != nil {
			logger.Error("Failed to persist state", "file", name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
