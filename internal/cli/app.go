package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/wangchj/inflight-sub000/internal/config"
	"github.com/wangchj/inflight-sub000/internal/environment"
	"github.com/wangchj/inflight-sub000/internal/executor"
	"github.com/wangchj/inflight-sub000/internal/history"
	"github.com/wangchj/inflight-sub000/internal/logging"
	"github.com/wangchj/inflight-sub000/internal/session"
	"github.com/wangchj/inflight-sub000/internal/storage"
)

const appName = "inflight"

// App wires the pipeline for one process: store, session, executor and
// history
type App struct {
	Settings config.Settings
	Logger   *slog.Logger
	Store    *environment.Store
	Session  *session.Manager
	Executor *executor.Executor
	History  *history.Manager

	closers []io.Closer
}

// Options override values from config.yaml
type Options struct {
	Project string
	Storage string
	Debug   bool
	LogDir  string
}

// Open initializes the config directory, reads settings and opens storage
func Open(ctx context.Context, opts Options) (*App, error) {
	if err := config.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize config: %w", err)
	}

	settings, err := config.Load(config.SettingsFile)
	if err != nil {
		return nil, err
	}
	if opts.Project != "" {
		settings.Project = opts.Project
	}
	if opts.Storage != "" {
		settings.Storage = opts.Storage
	}
	settings.Debug = settings.Debug || opts.Debug
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	logger, logCloser, err := logging.InitLogger(appName, opts.LogDir, settings.Debug)
	if err != nil {
		return nil, err
	}
	closers := []io.Closer{logCloser}
	fail := func(err error) (*App, error) {
		closeAll(closers)
		return nil, err
	}

	var repo storage.Repository
	switch settings.Storage {
	case config.StorageJSON:
		repo = storage.NewJSONRepository(config.DocumentsDir, logger)
	default:
		sqliteRepo, err := storage.OpenSQLite(config.DatabasePath, logger)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, sqliteRepo)
		repo = sqliteRepo
	}

	hist, err := history.NewManager(config.DatabasePath)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, hist)

	app, err := NewApp(ctx, settings, repo, hist, logger)
	if err != nil {
		return fail(err)
	}
	app.closers = append(closers, app.closers...)
	return app, nil
}

// NewApp assembles the pipeline on top of an opened repository
func NewApp(ctx context.Context, settings config.Settings, repo storage.Repository, hist *history.Manager, logger *slog.Logger) (*App, error) {
	saver := storage.NewAutosaver(repo, settings.AutosaveDelay, logger)
	store := environment.NewStore(logger)

	sess, err := session.Open(ctx, repo, saver, store, settings.Project, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open project %q: %w", settings.Project, err)
	}

	transport := executor.NewTransport(settings.RequestTimeout, logger)

	return &App{
		Settings: settings,
		Logger:   logger,
		Store:    store,
		Session:  sess,
		Executor: executor.New(store, transport, logger),
		History:  hist,
	}, nil
}

// Close writes pending documents and releases storage
func (a *App) Close() error {
	err := a.Session.Flush(context.Background())
	return errors.Join(err, closeAll(a.closers))
}

// closeAll closes in reverse order of opening
func closeAll(closers []io.Closer) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
